package lang

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"codegraph/internal/cas"
)

// JavaScriptBuilder parses JavaScript sources with Tree-sitter.
// JavaScript has no namespace construct, so Namespace is always empty
// and top-level declarations hang directly off the File node.
type JavaScriptBuilder struct {
	parser *sitter.Parser
}

// NewJavaScriptBuilder creates a JavaScript builder.
func NewJavaScriptBuilder() *JavaScriptBuilder {
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	return &JavaScriptBuilder{parser: p}
}

func (b *JavaScriptBuilder) Language() string {
	return "javascript"
}

func (b *JavaScriptBuilder) Extensions() []string {
	return []string{".js", ".jsx", ".mjs", ".cjs"}
}

func (b *JavaScriptBuilder) ParseFile(relPath string, content []byte) (*FileAST, error) {
	tree, err := b.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter: %w", err)
	}
	root := tree.RootNode()

	ast := &FileAST{Path: relPath, Lang: b.Language()}

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		b.extractTopLevel(child, content, ast)
	}
	return ast, nil
}

func (b *JavaScriptBuilder) extractTopLevel(node *sitter.Node, content []byte, ast *FileAST) {
	switch node.Type() {
	case "function_declaration":
		b.extractFunction(node, content, "", ast)
	case "class_declaration":
		b.extractClass(node, content, ast)
	case "lexical_declaration", "variable_declaration":
		b.extractDeclarators(node, content, ast)
	case "export_statement":
		for i := 0; i < int(node.ChildCount()); i++ {
			b.extractTopLevel(node.Child(i), content, ast)
		}
	case "comment":
		ast.Comments = append(ast.Comments, Comment{
			Span:   nodeSpan(node),
			Digest: cas.HashHex([]byte(node.Content(content))),
		})
	}
}

func (b *JavaScriptBuilder) extractFunction(node *sitter.Node, content []byte, parent string, ast *FileAST) {
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
		Signature:  name + params,
		Span:       nodeSpan(node),
		BodyDigest: bodyDigest,
	})
}

func (b *JavaScriptBuilder) extractClass(node *sitter.Node, content []byte, ast *FileAST) {
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
		if member.Type() != "method_definition" {
			continue
		}
		methodName := ""
		if n := member.ChildByFieldName("name"); n != nil {
			methodName = n.Content(content)
		}
		if methodName == "" {
			continue
		}
		params := ""
		if p := member.ChildByFieldName("parameters"); p != nil {
			params = p.Content(content)
		}
		bodyDigest := ""
		if mb := member.ChildByFieldName("body"); mb != nil {
			bodyDigest = cas.HashHex([]byte(mb.Content(content)))
		}
		ast.Decls = append(ast.Decls, Decl{
			Kind:       DeclMethod,
			Name:       methodName,
			Parent:     name,
			Signature:  methodName + params,
			Span:       nodeSpan(member),
			BodyDigest: bodyDigest,
		})
	}
}

// extractDeclarators records const/let/var bindings. Arrow functions and
// function expressions count as methods, plain bindings as fields.
func (b *JavaScriptBuilder) extractDeclarators(node *sitter.Node, content []byte, ast *FileAST) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := nameNode.Content(content)

		value := child.ChildByFieldName("value")
		if value != nil && (value.Type() == "arrow_function" || value.Type() == "function_expression" || value.Type() == "function") {
			params := ""
			if p := value.ChildByFieldName("parameters"); p != nil {
				params = p.Content(content)
			}
			ast.Decls = append(ast.Decls, Decl{
				Kind:       DeclMethod,
				Name:       name,
				Signature:  name + params,
				Span:       nodeSpan(child),
				BodyDigest: cas.HashHex([]byte(value.Content(content))),
			})
			continue
		}

		ast.Decls = append(ast.Decls, Decl{
			Kind:      DeclField,
			Name:      name,
			Signature: firstLine(child.Content(content)),
			Span:      nodeSpan(child),
		})
	}
}
