// Package lang provides per-language AST builders behind an explicit
// registry keyed by file extension. Builders lower parsed source into a
// language-neutral FileAST that the merge step turns into graph nodes.
package lang

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DeclKind classifies a declaration.
type DeclKind string

const (
	DeclType   DeclKind = "type"
	DeclMethod DeclKind = "method"
	DeclField  DeclKind = "field"
)

// Span is a source range, 0-based lines and columns.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// Decl is one declaration extracted from a source file.
type Decl struct {
	Kind DeclKind
	Name string
	// Parent is the dotted chain of enclosing type names within the
	// file ("Outer.Inner"), empty for top-level declarations.
	Parent     string
	Signature  string
	Span       Span
	BodyDigest string
}

// Comment is a standalone comment span.
type Comment struct {
	Span   Span
	Digest string
}

// FileAST is the language-neutral result of parsing one file.
type FileAST struct {
	Path      string // relative to the source root, slash separated
	Lang      string
	Namespace string // package name, empty when the language has none
	Decls     []Decl
	Comments  []Comment
}

// ParseFailure indicates a frontend could not produce an AST for a
// staged file. Fatal for the build cycle: the prior persisted graph
// remains authoritative.
type ParseFailure struct {
	Path string
	Err  error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("parse failure in %s: %v", e.Path, e.Err)
}

func (e *ParseFailure) Unwrap() error {
	return e.Err
}

// Builder parses files of one language into FileASTs.
type Builder interface {
	Language() string
	Extensions() []string
	ParseFile(relPath string, content []byte) (*FileAST, error)
}

// Registry maps file extensions to builders. Resolution is explicit: the
// orchestrator constructs one registry at startup and passes it down.
type Registry struct {
	builders  map[string]Builder
	extToLang map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builders:  make(map[string]Builder),
		extToLang: make(map[string]string),
	}
}

// DefaultRegistry returns a registry with all built-in language builders.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewJavaBuilder())
	r.Register(NewJavaScriptBuilder())
	r.Register(NewPythonBuilder())
	return r
}

// Register adds a builder for its extensions.
func (r *Registry) Register(b Builder) {
	r.builders[b.Language()] = b
	for _, ext := range b.Extensions() {
		r.extToLang[ext] = b.Language()
	}
}

// ForFile returns the builder responsible for a path, or nil when the
// file type is unsupported.
func (r *Registry) ForFile(path string) Builder {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := r.extToLang[ext]
	if !ok {
		return nil
	}
	return r.builders[lang]
}

// Extensions returns every registered extension.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

// ParseAll parses the given relative paths out of root, dispatching each
// to its builder. Unsupported files are skipped; any parse error aborts
// with a ParseFailure.
func (r *Registry) ParseAll(root string, paths []string) ([]*FileAST, error) {
	var asts []*FileAST
	for _, rel := range paths {
		b := r.ForFile(rel)
		if b == nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, &ParseFailure{Path: rel, Err: err}
		}
		ast, err := b.ParseFile(rel, content)
		if err != nil {
			return nil, &ParseFailure{Path: rel, Err: err}
		}
		asts = append(asts, ast)
	}
	return asts, nil
}
