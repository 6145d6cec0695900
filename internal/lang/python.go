package lang

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"codegraph/internal/cas"
)

// PythonBuilder parses Python sources with Tree-sitter.
type PythonBuilder struct {
	parser *sitter.Parser
}

// NewPythonBuilder creates a Python builder.
func NewPythonBuilder() *PythonBuilder {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &PythonBuilder{parser: p}
}

func (b *PythonBuilder) Language() string {
	return "python"
}

func (b *PythonBuilder) Extensions() []string {
	return []string{".py"}
}

func (b *PythonBuilder) ParseFile(relPath string, content []byte) (*FileAST, error) {
	tree, err := b.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter: %w", err)
	}
	root := tree.RootNode()

	ast := &FileAST{Path: relPath, Lang: b.Language()}

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_definition":
			b.extractFunction(child, content, "", ast)
		case "class_definition":
			b.extractClass(child, content, ast)
		case "comment":
			ast.Comments = append(ast.Comments, Comment{
				Span:   nodeSpan(child),
				Digest: cas.HashHex([]byte(child.Content(content))),
			})
		case "decorated_definition":
			for j := 0; j < int(child.ChildCount()); j++ {
				inner := child.Child(j)
				switch inner.Type() {
				case "function_definition":
					b.extractFunction(inner, content, "", ast)
				case "class_definition":
					b.extractClass(inner, content, ast)
				}
			}
		}
	}
	return ast, nil
}

func (b *PythonBuilder) extractFunction(node *sitter.Node, content []byte, parent string, ast *FileAST) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(content)

	params := ""
	if p := node.ChildByFieldName("parameters"); p != nil {
		params = p.Content(content)
	}
	bodyDigest := ""
	if body := node.ChildByFieldName("body"); body != nil {
		bodyDigest = cas.HashHex([]byte(body.Content(content)))
	}

	ast.Decls = append(ast.Decls, Decl{
		Kind:       DeclMethod,
		Name:       name,
		Parent:     parent,
		Signature:  "def " + name + params,
		Span:       nodeSpan(node),
		BodyDigest: bodyDigest,
	})
}

func (b *PythonBuilder) extractClass(node *sitter.Node, content []byte, ast *FileAST) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(content)

	ast.Decls = append(ast.Decls, Decl{
		Kind:      DeclType,
		Name:      name,
		Signature: "class " + name,
		Span:      nodeSpan(node),
	})

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		member := body.Child(i)
		if member.Type() == "function_definition" {
			b.extractFunction(member, content, name, ast)
		}
	}
}
