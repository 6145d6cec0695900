// Package ignore provides gitignore-style pattern matching used to filter
// the source walk before hashing and parsing.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern is a single compiled ignore pattern.
type Pattern struct {
	pattern string
	negated bool
	dirOnly bool
}

// Matcher holds compiled ignore patterns.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher creates an empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// AddPattern adds a single gitignore-style pattern line.
func (m *Matcher) AddPattern(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	p := Pattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	anchored := strings.HasPrefix(line, "/")
	if anchored {
		line = line[1:]
	}
	// Unanchored patterns without a slash match the basename at any depth.
	if !anchored && !strings.Contains(line, "/") {
		line = "**/" + line
	}

	p.pattern = line
	m.patterns = append(m.patterns, p)
}

// AddPatterns adds multiple pattern lines.
func (m *Matcher) AddPatterns(lines []string) {
	for _, line := range lines {
		m.AddPattern(line)
	}
}

// LoadFile loads patterns from a gitignore-style file. A missing file is
// not an error.
func (m *Matcher) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// LoadDefaults adds patterns for directories that should never be indexed.
func (m *Matcher) LoadDefaults() {
	m.AddPatterns([]string{
		".git/",
		".codegraph/",
		".svn/",
		".hg/",
		".DS_Store",
		"node_modules/",
		"dist/",
		"build/",
		"target/",
		"__pycache__/",
		"*.class",
		"*.pyc",
		"*.tmp",
	})
}

// Match reports whether a path should be ignored. path must be relative
// to the walk root; isDir indicates whether it names a directory.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")

	ignored := false
	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			// A dir-only pattern ignores a file only via a matching parent.
			if m.matchParent(p.pattern, path) {
				ignored = !p.negated
			}
			continue
		}
		if m.matchPattern(p.pattern, path) {
			ignored = !p.negated
		}
	}
	return ignored
}

func (m *Matcher) matchParent(pattern, path string) bool {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if m.matchPattern(pattern, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchPattern(pattern, path string) bool {
	if matched, _ := doublestar.Match(pattern, path); matched {
		return true
	}
	// "node_modules" should also match "node_modules/foo/bar.js".
	if !strings.HasSuffix(pattern, "/**") {
		if matched, _ := doublestar.Match(pattern+"/**", path); matched {
			return true
		}
	}
	return false
}
