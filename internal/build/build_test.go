package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"codegraph/internal/graph"
)

const fooJava = `public class Foo {
    public String greet() {
        return "hello";
    }
}
`

const fooJavaEdited = `public class Foo {
    public String greet() {
        return "goodbye";
    }
}
`

const barJava = `package test;

public class Bar {
    public int count() {
        return 1;
    }
}
`

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newBuilder(t *testing.T, src, graphPath string) *Builder {
	t.Helper()
	b, err := New(Options{SourceRoot: src, GraphPath: graphPath})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func openGraph(t *testing.T, path string) *graph.DB {
	t.Helper()
	db, err := graph.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// nodeIDs returns the sorted hex IDs of every node in the graph.
func nodeIDs(t *testing.T, db *graph.DB) []string {
	t.Helper()
	var ids []string
	for _, kind := range []graph.NodeKind{
		graph.KindFile, graph.KindNamespace, graph.KindNamespaceBlock,
		graph.KindTypeDecl, graph.KindMethod, graph.KindField, graph.KindComment,
	} {
		nodes, err := db.GetNodesByKind(kind)
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range nodes {
			ids = append(ids, fmt.Sprintf("%x", n.ID))
		}
	}
	sort.Strings(ids)
	return ids
}

func findDecl(t *testing.T, db *graph.DB, kind graph.NodeKind, fqName string) *graph.Node {
	t.Helper()
	nodes, err := db.GetNodesByKind(kind)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range nodes {
		if n.Str("fqName") == fqName {
			return n
		}
	}
	return nil
}

func TestInitialBuildFromScratch(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "Foo.java", fooJava)
	writeSource(t, src, "test/Bar.java", barJava)
	graphPath := filepath.Join(t.TempDir(), "graph.db")

	var phases []Phase
	b, err := New(Options{
		SourceRoot: src,
		GraphPath:  graphPath,
		OnPhase:    func(p Phase) { phases = append(phases, p) },
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := b.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.FromScratch {
		t.Error("expected from-scratch build")
	}
	if report.FilesParsed != 2 {
		t.Errorf("FilesParsed = %d, want 2", report.FilesParsed)
	}

	sawScratch := false
	for _, p := range phases {
		if p == PhaseBuildingFromScratch {
			sawScratch = true
		}
		if p == PhaseBuildingAdded {
			t.Error("from-scratch build reported incremental phase")
		}
	}
	if !sawScratch || phases[len(phases)-1] != PhasePersisted {
		t.Errorf("unexpected phase sequence: %v", phases)
	}

	db := openGraph(t, graphPath)
	if findDecl(t, db, graph.KindTypeDecl, "Foo") == nil {
		t.Error("missing type Foo")
	}
	if findDecl(t, db, graph.KindTypeDecl, "test.Bar") == nil {
		t.Error("missing type test.Bar")
	}
	namespaces, err := db.GetNodesByKind(graph.KindNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(namespaces) != 1 || namespaces[0].Str("name") != "test" {
		t.Errorf("unexpected namespaces: %v", namespaces)
	}
}

func TestRebuildWithoutChangesIsNoOp(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "Foo.java", fooJava)
	graphPath := filepath.Join(t.TempDir(), "graph.db")

	b := newBuilder(t, src, graphPath)
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := nodeIDs(t, openGraph(t, graphPath))

	report, err := b.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Changes) != 0 || report.FilesParsed != 0 || report.FilesPruned != 0 {
		t.Errorf("no-change rebuild did work: %+v", report)
	}

	after := nodeIDs(t, openGraph(t, graphPath))
	if !reflect.DeepEqual(before, after) {
		t.Error("graph changed on a no-change rebuild")
	}
}

// Editing one file's method body must leave every node of the other
// file byte-identical, and replace only the File and Method nodes of
// the edited file.
func TestIncrementalRebuildLeavesSiblingsUntouched(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "Foo.java", fooJava)
	writeSource(t, src, "test/Bar.java", barJava)
	graphPath := filepath.Join(t.TempDir(), "graph.db")

	b := newBuilder(t, src, graphPath)
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	db1 := openGraph(t, graphPath)
	barBefore := findDecl(t, db1, graph.KindTypeDecl, "test.Bar")
	countBefore := findDecl(t, db1, graph.KindMethod, "test.Bar.count")
	greetBefore := findDecl(t, db1, graph.KindMethod, "Foo.greet")
	if barBefore == nil || countBefore == nil || greetBefore == nil {
		t.Fatal("initial build incomplete")
	}
	db1.Close()

	writeSource(t, src, "Foo.java", fooJavaEdited)
	report, err := b.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.FromScratch {
		t.Error("rebuild should be incremental")
	}
	if report.FilesPruned != 1 || report.FilesParsed != 1 {
		t.Errorf("expected exactly Foo.java rebuilt: %+v", report)
	}

	db2 := openGraph(t, graphPath)
	barAfter := findDecl(t, db2, graph.KindTypeDecl, "test.Bar")
	countAfter := findDecl(t, db2, graph.KindMethod, "test.Bar.count")
	greetAfter := findDecl(t, db2, graph.KindMethod, "Foo.greet")
	if barAfter == nil || countAfter == nil || greetAfter == nil {
		t.Fatal("rebuild lost nodes")
	}

	if fmt.Sprintf("%x", barAfter.ID) != fmt.Sprintf("%x", barBefore.ID) {
		t.Error("untouched type node changed identity")
	}
	if fmt.Sprintf("%x", countAfter.ID) != fmt.Sprintf("%x", countBefore.ID) {
		t.Error("untouched method node changed identity")
	}
	if fmt.Sprintf("%x", greetAfter.ID) == fmt.Sprintf("%x", greetBefore.ID) {
		t.Error("edited method body did not change node identity")
	}
}

// An incremental rebuild must converge to the same graph a from-scratch
// build of the final tree produces.
func TestIncrementalEqualsFromScratch(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "Foo.java", fooJava)
	writeSource(t, src, "test/Bar.java", barJava)

	incPath := filepath.Join(t.TempDir(), "inc.db")
	b := newBuilder(t, src, incPath)
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Evolve the tree: edit, add, remove.
	writeSource(t, src, "Foo.java", fooJavaEdited)
	writeSource(t, src, "test/Baz.java", "package test;\npublic class Baz {}\n")
	if err := os.Remove(filepath.Join(src, "test", "Bar.java")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	fullPath := filepath.Join(t.TempDir(), "full.db")
	if _, err := newBuilder(t, src, fullPath).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	inc := nodeIDs(t, openGraph(t, incPath))
	full := nodeIDs(t, openGraph(t, fullPath))
	if !reflect.DeepEqual(inc, full) {
		t.Errorf("incremental graph diverged from from-scratch graph:\ninc:  %v\nfull: %v", inc, full)
	}

	incManifest, err := openGraph(t, incPath).FileManifest()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := incManifest["test/Bar.java"]; ok {
		t.Error("removed file still in manifest")
	}
	if _, ok := incManifest["test/Baz.java"]; !ok {
		t.Error("added file missing from manifest")
	}
}

// A failed build must leave the persisted graph byte-for-byte usable
// with its prior contents.
func TestFailedBuildPreservesPriorGraph(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "Foo.java", fooJava)
	graphPath := filepath.Join(t.TempDir(), "graph.db")

	b := newBuilder(t, src, graphPath)
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := nodeIDs(t, openGraph(t, graphPath))

	writeSource(t, src, "Broken.java", "class {{{{")
	if _, err := b.Run(context.Background()); err == nil {
		t.Fatal("expected build to fail on unparseable file")
	}

	after := nodeIDs(t, openGraph(t, graphPath))
	if !reflect.DeepEqual(before, after) {
		t.Error("failed build modified the persisted graph")
	}

	// No work copies left behind.
	entries, err := os.ReadDir(filepath.Dir(graphPath))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".build-") {
			t.Errorf("leftover build artifact: %s", e.Name())
		}
	}
}

func TestCancelledBuildPreservesPriorGraph(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "Foo.java", fooJava)
	graphPath := filepath.Join(t.TempDir(), "graph.db")

	b := newBuilder(t, src, graphPath)
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := nodeIDs(t, openGraph(t, graphPath))

	writeSource(t, src, "Foo.java", fooJavaEdited)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Run(ctx); err == nil {
		t.Fatal("expected cancelled build to fail")
	}

	after := nodeIDs(t, openGraph(t, graphPath))
	if !reflect.DeepEqual(before, after) {
		t.Error("cancelled build modified the persisted graph")
	}
}
