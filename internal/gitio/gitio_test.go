package gitio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// initRepo creates a repository with two commits touching Foo.java and
// returns the repo path and both commit hashes.
func initRepo(t *testing.T) (string, string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	commit := func(content string) string {
		if err := os.WriteFile(filepath.Join(dir, "Foo.java"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add("Foo.java"); err != nil {
			t.Fatal(err)
		}
		hash, err := wt.Commit("update Foo.java", &git.CommitOptions{
			Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
		})
		if err != nil {
			t.Fatal(err)
		}
		return hash.String()
	}

	first := commit("class Foo { int a; }")
	second := commit("class Foo { int b; }")
	return dir, first, second
}

func TestFileAtRevision(t *testing.T) {
	dir, first, second := initRepo(t)

	repo, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	old, err := repo.FileAtRevision("Foo.java", first)
	if err != nil {
		t.Fatal(err)
	}
	if old != "class Foo { int a; }" {
		t.Errorf("first revision content = %q", old)
	}

	current, err := repo.FileAtRevision("Foo.java", second)
	if err != nil {
		t.Fatal(err)
	}
	if current != "class Foo { int b; }" {
		t.Errorf("second revision content = %q", current)
	}

	if _, err := repo.FileAtRevision("Missing.java", second); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := repo.FileAtRevision("Foo.java", "not-a-ref"); err == nil {
		t.Error("expected error for unknown revision")
	}
}

func TestRevisionFragment(t *testing.T) {
	dir, first, _ := initRepo(t)

	repo, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	frag, err := repo.RevisionFragment("Foo.java", first)
	if err != nil {
		t.Fatal(err)
	}
	if frag.Root != dir || frag.RelPath != "Foo.java" {
		t.Errorf("fragment identity = %q %q", frag.Root, frag.RelPath)
	}
	if frag.Revision != first {
		t.Errorf("revision = %q, want %q", frag.Revision, first)
	}
	if frag.Content != "class Foo { int a; }" {
		t.Errorf("content = %q", frag.Content)
	}
}
