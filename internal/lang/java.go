package lang

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"codegraph/internal/cas"
)

// JavaBuilder parses Java sources with Tree-sitter.
type JavaBuilder struct {
	parser *sitter.Parser
}

// NewJavaBuilder creates a Java builder.
func NewJavaBuilder() *JavaBuilder {
	p := sitter.NewParser()
	p.SetLanguage(java.GetLanguage())
	return &JavaBuilder{parser: p}
}

func (b *JavaBuilder) Language() string {
	return "java"
}

func (b *JavaBuilder) Extensions() []string {
	return []string{".java"}
}

// ParseFile extracts the package name, type/method/field declarations,
// and top-level comments from a Java compilation unit.
func (b *JavaBuilder) ParseFile(relPath string, content []byte) (*FileAST, error) {
	tree, err := b.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter: %w", err)
	}
	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("syntax errors in %s", relPath)
	}

	ast := &FileAST{Path: relPath, Lang: b.Language()}

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "package_declaration":
			ast.Namespace = javaPackageName(child, content)
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			b.extractType(child, content, "", ast)
		case "line_comment", "block_comment":
			ast.Comments = append(ast.Comments, Comment{
				Span:   nodeSpan(child),
				Digest: cas.HashHex([]byte(child.Content(content))),
			})
		}
	}
	return ast, nil
}

// extractType records a type declaration and recurses into its body for
// methods, fields, and nested types.
func (b *JavaBuilder) extractType(node *sitter.Node, content []byte, parent string, ast *FileAST) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(content)

	ast.Decls = append(ast.Decls, Decl{
		Kind:      DeclType,
		Name:      name,
		Parent:    parent,
		Signature: typeKeyword(node.Type()) + " " + name,
		Span:      nodeSpan(node),
	})

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}

	chain := name
	if parent != "" {
		chain = parent + "." + name
	}

	for i := 0; i < int(body.ChildCount()); i++ {
		member := body.Child(i)
		switch member.Type() {
		case "method_declaration", "constructor_declaration":
			b.extractMethod(member, content, chain, ast)
		case "field_declaration":
			b.extractField(member, content, chain, ast)
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			b.extractType(member, content, chain, ast)
		}
	}
}

func (b *JavaBuilder) extractMethod(node *sitter.Node, content []byte, parent string, ast *FileAST) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(content)

	params := ""
	if p := node.ChildByFieldName("parameters"); p != nil {
		params = p.Content(content)
	}

	// The body digest is what changes when only an implementation
	// changes; signature-stable edits still replace the method node.
	bodyDigest := ""
	if body := node.ChildByFieldName("body"); body != nil {
		bodyDigest = cas.HashHex([]byte(body.Content(content)))
	}

	ast.Decls = append(ast.Decls, Decl{
		Kind:       DeclMethod,
		Name:       name,
		Parent:     parent,
		Signature:  name + params,
		Span:       nodeSpan(node),
		BodyDigest: bodyDigest,
	})
}

func (b *JavaBuilder) extractField(node *sitter.Node, content []byte, parent string, ast *FileAST) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		ast.Decls = append(ast.Decls, Decl{
			Kind:      DeclField,
			Name:      nameNode.Content(content),
			Parent:    parent,
			Signature: strings.TrimSpace(firstLine(node.Content(content))),
			Span:      nodeSpan(node),
		})
	}
}

func javaPackageName(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "scoped_identifier" || child.Type() == "identifier" {
			return child.Content(content)
		}
	}
	return ""
}

func typeKeyword(nodeType string) string {
	switch nodeType {
	case "interface_declaration":
		return "interface"
	case "enum_declaration":
		return "enum"
	case "record_declaration":
		return "record"
	default:
		return "class"
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func nodeSpan(node *sitter.Node) Span {
	start := node.StartPoint()
	end := node.EndPoint()
	return Span{
		StartLine: int(start.Row),
		StartCol:  int(start.Column),
		EndLine:   int(end.Row),
		EndCol:    int(end.Column),
	}
}
