// Package stage materializes a file delta into an isolated staging
// directory. Language frontends parse whole directories, so physically
// copying only the added/modified files (preserving relative paths) is
// the boundary that makes an incremental parse correct.
package stage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Staging is a temporary directory holding the build delta.
type Staging struct {
	Root  string
	Paths []string
}

// Materialize copies the given relative paths from sourceRoot into a
// fresh staging directory under stagingBase (os.TempDir when empty).
func Materialize(sourceRoot, stagingBase string, paths []string) (*Staging, error) {
	if stagingBase == "" {
		stagingBase = os.TempDir()
	}
	root := filepath.Join(stagingBase, "codegraph-stage-"+uuid.NewString())
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating staging dir: %w", err)
	}

	st := &Staging{Root: root}
	for _, rel := range paths {
		src := filepath.Join(sourceRoot, filepath.FromSlash(rel))
		dst := filepath.Join(root, filepath.FromSlash(rel))

		if err := copyFile(src, dst); err != nil {
			st.Discard()
			return nil, fmt.Errorf("staging %s: %w", rel, err)
		}
		st.Paths = append(st.Paths, rel)
	}
	return st, nil
}

// Discard removes the staging directory. Safe to call more than once.
func (s *Staging) Discard() {
	if s.Root != "" {
		os.RemoveAll(s.Root)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	// Write then rename so a crash never leaves a half-copied file.
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
