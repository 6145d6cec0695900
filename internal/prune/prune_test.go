package prune

import (
	"path/filepath"
	"testing"

	"codegraph/internal/graph"
	"codegraph/internal/lang"
	"codegraph/internal/link"
)

func openTestDB(t *testing.T) *graph.DB {
	t.Helper()
	db, err := graph.Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Two files in the same namespace, linked, so the Namespace node is
// shared between them.
func buildTwoFileGraph(t *testing.T, db *graph.DB) {
	t.Helper()
	asts := []*lang.FileAST{
		{
			Path:      "test/Bar.java",
			Lang:      "java",
			Namespace: "test",
			Decls: []lang.Decl{
				{Kind: lang.DeclType, Name: "Bar", Signature: "class Bar"},
				{Kind: lang.DeclMethod, Name: "greet", Parent: "Bar", Signature: "greet(String name)", BodyDigest: "b1"},
			},
		},
		{
			Path:      "test/Baz.java",
			Lang:      "java",
			Namespace: "test",
			Decls: []lang.Decl{
				{Kind: lang.DeclType, Name: "Baz", Signature: "class Baz"},
			},
		},
	}
	for i, ast := range asts {
		if err := lang.Merge(db, ast, "d"+string(rune('0'+i))); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := link.Run(db); err != nil {
		t.Fatal(err)
	}
}

func TestPruneRemovesOwnedSubgraphOnly(t *testing.T) {
	db := openTestDB(t)
	buildTwoFileGraph(t, db)

	result, err := Prune(db, []string{"test/Bar.java"})
	if err != nil {
		t.Fatal(err)
	}
	if result.FilesPruned != 1 {
		t.Errorf("FilesPruned = %d, want 1", result.FilesPruned)
	}
	// File + namespace block + Bar + greet.
	if result.NodesDeleted != 4 {
		t.Errorf("NodesDeleted = %d, want 4", result.NodesDeleted)
	}

	gone, err := db.FindFileByPath("test/Bar.java")
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Error("pruned file node still present")
	}

	kept, err := db.FindFileByPath("test/Baz.java")
	if err != nil {
		t.Fatal(err)
	}
	if kept == nil {
		t.Fatal("sibling file was pruned")
	}

	types, err := db.GetNodesByKind(graph.KindTypeDecl)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 1 || types[0].Str("name") != "Baz" {
		t.Errorf("unexpected surviving types: %v", types)
	}

	// The shared Namespace node is reached only via REF_NAMESPACE, which
	// the prune closure does not follow.
	namespaces, err := db.GetNodesByKind(graph.KindNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(namespaces) != 1 {
		t.Fatalf("shared namespace node was deleted, got %d", len(namespaces))
	}
	refs, err := db.GetEdgesTo(namespaces[0].ID, graph.EdgeRefNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 {
		t.Errorf("expected 1 surviving REF_NAMESPACE edge, got %d", len(refs))
	}
}

func TestPruneMissingPathIsSkipped(t *testing.T) {
	db := openTestDB(t)
	buildTwoFileGraph(t, db)

	result, err := Prune(db, []string{"no/Such.java", "test/Baz.java"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.MissingPaths) != 1 || result.MissingPaths[0] != "no/Such.java" {
		t.Errorf("MissingPaths = %v", result.MissingPaths)
	}
	if result.FilesPruned != 1 {
		t.Errorf("FilesPruned = %d, want 1", result.FilesPruned)
	}
}

func TestPruneEmptyListIsNoOp(t *testing.T) {
	db := openTestDB(t)
	buildTwoFileGraph(t, db)

	before, err := db.EdgeCountsByType()
	if err != nil {
		t.Fatal(err)
	}
	result, err := Prune(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.FilesPruned != 0 || result.NodesDeleted != 0 {
		t.Errorf("no-op prune did work: %+v", result)
	}
	after, err := db.EdgeCountsByType()
	if err != nil {
		t.Fatal(err)
	}
	for typ, n := range before {
		if after[typ] != n {
			t.Errorf("edge count for %s changed: %d -> %d", typ, n, after[typ])
		}
	}
}
