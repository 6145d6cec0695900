// Package gitio resolves file content at git revisions using go-git.
// It is read-only: the index never writes to the repository.
package gitio

import (
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"codegraph/internal/session"
)

// Repository wraps a go-git repository.
type Repository struct {
	repo *git.Repository
	path string
}

// Open opens an existing repository at repoPath.
func Open(repoPath string) (*Repository, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return &Repository{repo: repo, path: repoPath}, nil
}

// resolveRef resolves a branch name, tag, or commit hash to a commit.
func (r *Repository) resolveRef(refName string) (*object.Commit, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(refName), true)
	if err == nil {
		return r.repo.CommitObject(ref.Hash())
	}

	ref, err = r.repo.Reference(plumbing.NewTagReferenceName(refName), true)
	if err == nil {
		return r.repo.CommitObject(ref.Hash())
	}

	commit, err := r.repo.CommitObject(plumbing.NewHash(refName))
	if err != nil {
		return nil, fmt.Errorf("resolving ref %q: not a branch, tag, or commit hash", refName)
	}
	return commit, nil
}

// FileAtRevision returns the content of a file (slash-separated path
// relative to the repository root) at the given revision.
func (r *Repository) FileAtRevision(relPath, revision string) (string, error) {
	commit, err := r.resolveRef(revision)
	if err != nil {
		return "", err
	}

	file, err := commit.File(relPath)
	if err != nil {
		return "", fmt.Errorf("file %s at %s: %w", relPath, revision, err)
	}

	reader, err := file.Reader()
	if err != nil {
		return "", fmt.Errorf("reading %s at %s: %w", relPath, revision, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading %s at %s: %w", relPath, revision, err)
	}
	return string(content), nil
}

// RevisionFragment builds a pinned-revision fragment for a file. The
// revision is resolved to its full commit hash and the content is
// captured, so the fragment stays readable after the tree moves on.
func (r *Repository) RevisionFragment(relPath, revision string) (session.GitRevisionFile, error) {
	commit, err := r.resolveRef(revision)
	if err != nil {
		return session.GitRevisionFile{}, err
	}

	content, err := r.FileAtRevision(relPath, commit.Hash.String())
	if err != nil {
		return session.GitRevisionFile{}, err
	}

	return session.GitRevisionFile{
		Root:     r.path,
		RelPath:  relPath,
		Revision: commit.Hash.String(),
		Content:  content,
	}, nil
}
