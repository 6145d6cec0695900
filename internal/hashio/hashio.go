// Package hashio computes BLAKE3 content digests for files and directory
// trees. Digests are the change-detection fingerprint for the graph index.
package hashio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"codegraph/internal/cas"
	"codegraph/internal/ignore"
)

// IoError wraps a filesystem failure during hashing. Callers treat the
// affected path as absent for the current cycle.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io error at %s: %v", e.Path, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// HashFile computes the hex digest of a regular file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &IoError{Path: path, Err: err}
	}
	defer f.Close()

	h := cas.NewHasher()
	if _, err := io.Copy(h, f); err != nil {
		return "", &IoError{Path: path, Err: err}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// HashDir computes a digest over a directory by hashing the sorted list
// of its children's digests. Children are sorted by name so the result
// does not depend on filesystem iteration order.
func HashDir(path string) (string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", &IoError{Path: path, Err: err}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	h := cas.NewHasher()
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		var digest string
		if entry.IsDir() {
			digest, err = HashDir(child)
		} else {
			digest, err = HashFile(child)
		}
		if err != nil {
			// Vanished mid-walk: treat as absent this cycle.
			var ioErr *IoError
			if errors.As(err, &ioErr) && errors.Is(ioErr.Err, fs.ErrNotExist) {
				slog.Warn("path vanished during hash walk", "path", child)
				continue
			}
			return "", err
		}
		h.Write([]byte(entry.Name()))
		h.Write([]byte("\n"))
		h.Write([]byte(digest))
		h.Write([]byte("\n"))
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Hash hashes a path, dispatching on whether it is a file or directory.
func Hash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &IoError{Path: path, Err: err}
	}
	if info.IsDir() {
		return HashDir(path)
	}
	return HashFile(path)
}

// TreeOptions configures a manifest walk.
type TreeOptions struct {
	Ignore  *ignore.Matcher
	Workers int
	Cache   *DigestCache
	// Extensions restricts the manifest to files with these extensions
	// (lowercase, with leading dot). Empty means all files.
	Extensions []string
}

// HashTree walks root and returns a manifest of relative path (slash
// separated) to content digest. Hashing is fanned out to a fixed worker
// pool; unreadable or vanished files are logged and skipped.
func HashTree(root string, opts TreeOptions) (map[string]string, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	extSet := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		extSet[ext] = true
	}

	type task struct {
		rel  string
		abs  string
		info fs.FileInfo
	}
	var tasks []task

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				slog.Warn("path vanished during walk", "path", path)
				return nil
			}
			return &IoError{Path: path, Err: err}
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if opts.Ignore != nil && opts.Ignore.Match(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if len(extSet) > 0 && !extSet[lowerExt(rel)] {
			return nil
		}

		tasks = append(tasks, task{rel: rel, abs: path, info: info})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	// Fork: hash files on the pool. Join: collect under a single lock.
	manifest := make(map[string]string, len(tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	ch := make(chan task)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tk := range ch {
				digest, err := hashWithCache(tk.rel, tk.abs, tk.info, opts.Cache)
				if err != nil {
					slog.Warn("skipping unreadable file", "path", tk.rel, "err", err)
					continue
				}
				mu.Lock()
				manifest[tk.rel] = digest
				mu.Unlock()
			}
		}()
	}
	for _, tk := range tasks {
		ch <- tk
	}
	close(ch)
	wg.Wait()

	return manifest, nil
}

func hashWithCache(rel, abs string, info fs.FileInfo, cache *DigestCache) (string, error) {
	if cache != nil {
		if digest, err := cache.Get(rel, info); err == nil && digest != "" {
			return digest, nil
		}
	}
	digest, err := HashFile(abs)
	if err != nil {
		return "", err
	}
	if cache != nil {
		if err := cache.Put(rel, info, digest); err != nil {
			slog.Warn("digest cache write failed", "path", rel, "err", err)
		}
	}
	return digest, nil
}

func lowerExt(path string) string {
	ext := filepath.Ext(path)
	b := []byte(ext)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
