package lang

import (
	"fmt"

	"codegraph/internal/graph"
)

// FullName returns the fully qualified name for a declaration chain
// within a namespace.
func FullName(namespace, chain string) string {
	if namespace == "" {
		return chain
	}
	return namespace + "." + chain
}

// Merge lowers a FileAST into graph nodes and CONTAINS edges inside one
// transaction. It creates the File node, the per-file namespace block,
// and every declaration node; linking the block to its shared Namespace
// node and adding SOURCE_FILE edges is left to the linking passes, which
// also repair this structure after a partial merge. Content-addressed
// IDs make re-merging the same AST a no-op.
func Merge(db *graph.DB, ast *FileAST, fileDigest string) error {
	tx, err := db.BeginTx()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	fileID, err := db.InsertNode(tx, graph.KindFile, map[string]interface{}{
		"path":   ast.Path,
		"digest": fileDigest,
	})
	if err != nil {
		return fmt.Errorf("inserting file node: %w", err)
	}

	// Root container for top-level declarations: the namespace block
	// when the file declares one, otherwise the file itself.
	rootID := fileID
	if ast.Namespace != "" {
		blockID, err := db.InsertNode(tx, graph.KindNamespaceBlock, map[string]interface{}{
			"name": ast.Namespace,
			"path": ast.Path,
		})
		if err != nil {
			return fmt.Errorf("inserting namespace block: %w", err)
		}
		if err := db.InsertEdge(tx, fileID, graph.EdgeContains, blockID); err != nil {
			return err
		}
		rootID = blockID
	}

	// Builders emit enclosing types before their members, so a decl's
	// parent chain always resolves against typeIDs.
	typeIDs := make(map[string][]byte)

	for _, decl := range ast.Decls {
		chain := decl.Name
		if decl.Parent != "" {
			chain = decl.Parent + "." + decl.Name
		}

		payload := map[string]interface{}{
			"fqName":    FullName(ast.Namespace, chain),
			"name":      decl.Name,
			"parent":    decl.Parent,
			"namespace": ast.Namespace,
			"path":      ast.Path,
			"span":      decl.Span.String(),
			"signature": decl.Signature,
		}

		var kind graph.NodeKind
		switch decl.Kind {
		case DeclType:
			kind = graph.KindTypeDecl
		case DeclMethod:
			kind = graph.KindMethod
			payload["bodyDigest"] = decl.BodyDigest
		case DeclField:
			kind = graph.KindField
		default:
			return fmt.Errorf("unknown decl kind %q in %s", decl.Kind, ast.Path)
		}

		id, err := db.InsertNode(tx, kind, payload)
		if err != nil {
			return fmt.Errorf("inserting %s %s: %w", kind, decl.Name, err)
		}
		if decl.Kind == DeclType {
			typeIDs[chain] = id
		}

		parentID := rootID
		if decl.Parent != "" {
			p, ok := typeIDs[decl.Parent]
			if !ok {
				return fmt.Errorf("decl %s references unknown parent %s in %s", decl.Name, decl.Parent, ast.Path)
			}
			parentID = p
		}
		if err := db.InsertEdge(tx, parentID, graph.EdgeContains, id); err != nil {
			return err
		}
	}

	for _, c := range ast.Comments {
		id, err := db.InsertNode(tx, graph.KindComment, map[string]interface{}{
			"path":   ast.Path,
			"span":   c.Span.String(),
			"digest": c.Digest,
		})
		if err != nil {
			return fmt.Errorf("inserting comment: %w", err)
		}
		if err := db.InsertEdge(tx, fileID, graph.EdgeContains, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}
