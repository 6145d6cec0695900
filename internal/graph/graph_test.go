package graph

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertNodeIdempotent(t *testing.T) {
	db := openTestDB(t)

	payload := map[string]interface{}{"path": "Foo.java", "digest": "abc"}

	tx, err := db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	id1, err := db.InsertNode(tx, KindFile, payload)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := db.InsertNode(tx, KindFile, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(id1, id2) {
		t.Error("same payload produced different IDs")
	}

	files, err := db.GetNodesByKind(KindFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 file node, got %d", len(files))
	}
}

func TestInsertEdgeIdempotent(t *testing.T) {
	db := openTestDB(t)

	tx, err := db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	src, err := db.InsertNode(tx, KindFile, map[string]interface{}{"path": "a", "digest": "1"})
	if err != nil {
		t.Fatal(err)
	}
	dst, err := db.InsertNode(tx, KindTypeDecl, map[string]interface{}{"fqName": "A", "path": "a"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := db.InsertEdge(tx, src, EdgeContains, dst); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	counts, err := db.EdgeCountsByType()
	if err != nil {
		t.Fatal(err)
	}
	if counts[EdgeContains] != 1 {
		t.Errorf("expected 1 CONTAINS edge, got %d", counts[EdgeContains])
	}

	ok, err := db.HasEdge(src, EdgeContains, dst)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected edge to exist")
	}
}

func TestDeleteNodesRemovesEdges(t *testing.T) {
	db := openTestDB(t)

	tx, err := db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	file, _ := db.InsertNode(tx, KindFile, map[string]interface{}{"path": "a", "digest": "1"})
	decl, _ := db.InsertNode(tx, KindTypeDecl, map[string]interface{}{"fqName": "A", "path": "a"})
	if err := db.InsertEdge(tx, file, EdgeContains, decl); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertEdge(tx, decl, EdgeSourceFile, file); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	tx, err = db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteNodes(tx, [][]byte{decl}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	counts, err := db.EdgeCountsByType()
	if err != nil {
		t.Fatal(err)
	}
	if counts[EdgeContains] != 0 || counts[EdgeSourceFile] != 0 {
		t.Errorf("expected no edges after delete, got %v", counts)
	}

	node, err := db.GetNode(decl)
	if err != nil {
		t.Fatal(err)
	}
	if node != nil {
		t.Error("expected node to be deleted")
	}
}

func TestFileManifest(t *testing.T) {
	db := openTestDB(t)

	tx, err := db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	db.InsertNode(tx, KindFile, map[string]interface{}{"path": "Foo.java", "digest": "d1"})
	db.InsertNode(tx, KindFile, map[string]interface{}{"path": "test/Bar.java", "digest": "d2"})
	db.InsertNode(tx, KindFile, map[string]interface{}{"path": UnknownFileName, "digest": ""})
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	manifest, err := db.FileManifest()
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest) != 2 {
		t.Fatalf("expected 2 manifest entries, got %d", len(manifest))
	}
	if manifest["Foo.java"] != "d1" || manifest["test/Bar.java"] != "d2" {
		t.Errorf("unexpected manifest: %v", manifest)
	}

	node, err := db.FindFileByPath("test/Bar.java")
	if err != nil {
		t.Fatal(err)
	}
	if node == nil || node.Str("digest") != "d2" {
		t.Error("FindFileByPath failed")
	}
}
