package link

import (
	"path/filepath"
	"reflect"
	"testing"

	"codegraph/internal/graph"
	"codegraph/internal/lang"
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

func mergeFixture(t *testing.T, db *graph.DB) {
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
		{
			Path: "Foo.java",
			Lang: "java",
			Decls: []lang.Decl{
				{Kind: lang.DeclType, Name: "Foo", Signature: "class Foo"},
				{Kind: lang.DeclMethod, Name: "run", Parent: "Foo", Signature: "run()", BodyDigest: "b2"},
			},
		},
	}
	for i, ast := range asts {
		if err := lang.Merge(db, ast, "digest-"+string(rune('a'+i))); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLinkingCreatesOneNamespacePerName(t *testing.T) {
	db := openTestDB(t)
	mergeFixture(t, db)

	if _, err := Run(db); err != nil {
		t.Fatal(err)
	}

	namespaces, err := db.GetNodesByKind(graph.KindNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(namespaces) != 1 {
		t.Fatalf("expected 1 namespace node, got %d", len(namespaces))
	}
	if namespaces[0].Str("name") != "test" {
		t.Errorf("namespace name = %q", namespaces[0].Str("name"))
	}

	// Both blocks reference the shared node.
	refs, err := db.GetEdgesTo(namespaces[0].ID, graph.EdgeRefNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Errorf("expected 2 REF_NAMESPACE edges, got %d", len(refs))
	}
}

// Re-running all three passes must add nothing: the edge set per type is
// identical after the second run.
func TestLinkingIdempotent(t *testing.T) {
	db := openTestDB(t)
	mergeFixture(t, db)

	if _, err := Run(db); err != nil {
		t.Fatal(err)
	}
	first, err := db.EdgeCountsByType()
	if err != nil {
		t.Fatal(err)
	}

	stats, err := Run(db)
	if err != nil {
		t.Fatal(err)
	}
	second, err := db.EdgeCountsByType()
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("edge counts changed on second run: %v -> %v", first, second)
	}
	if stats.NamespacesCreated != 0 || stats.RefEdges != 0 || stats.SourceFileEdges != 0 || stats.ContainsRepaired != 0 {
		t.Errorf("second run reported work: %+v", stats)
	}
}

func TestEnsureContainsRepairsOrphan(t *testing.T) {
	db := openTestDB(t)
	mergeFixture(t, db)
	if _, err := Run(db); err != nil {
		t.Fatal(err)
	}

	// Simulate a partial merge: a method node with no containment.
	tx, err := db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	orphan, err := db.InsertNode(tx, graph.KindMethod, map[string]interface{}{
		"fqName":    "test.Bar.lost",
		"name":      "lost",
		"parent":    "Bar",
		"namespace": "test",
		"path":      "test/Bar.java",
		"span":      "9:0-9:10",
		"signature": "lost()",
		"bodyDigest": "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	stats, err := Run(db)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ContainsRepaired != 1 {
		t.Errorf("expected 1 repaired contains edge, got %d", stats.ContainsRepaired)
	}

	// The orphan is now contained by test.Bar.
	parents, err := db.GetEdgesTo(orphan, graph.EdgeContains)
	if err != nil {
		t.Fatal(err)
	}
	if len(parents) != 1 {
		t.Fatalf("expected 1 containment parent, got %d", len(parents))
	}
	parent, err := db.GetNode(parents[0].Src)
	if err != nil {
		t.Fatal(err)
	}
	if parent.Str("fqName") != "test.Bar" {
		t.Errorf("orphan linked to %q, want test.Bar", parent.Str("fqName"))
	}
}

func TestFileContainmentSentinel(t *testing.T) {
	db := openTestDB(t)

	// A type decl with no path at all.
	tx, err := db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertNode(tx, graph.KindTypeDecl, map[string]interface{}{
		"fqName": "Ghost", "name": "Ghost", "parent": "", "namespace": "", "path": "", "span": "", "signature": "class Ghost",
	}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if _, err := Run(db); err != nil {
		t.Fatal(err)
	}

	sentinel, err := db.FindFileByPath(graph.UnknownFileName)
	if err != nil {
		t.Fatal(err)
	}
	if sentinel == nil {
		t.Fatal("expected sentinel file node to be created")
	}
}
