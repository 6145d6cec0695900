// Package link contains the graph-normalization passes that run after
// every build, incremental or full. Each pass checks for existing
// structure before mutating, so re-running any of them against a
// partially built graph never produces duplicate nodes or edges.
package link

import (
	"database/sql"
	"fmt"

	"codegraph/internal/graph"
	"codegraph/internal/lang"
)

// Stats reports what a linking run created.
type Stats struct {
	NamespacesCreated int
	RefEdges          int
	SourceFileEdges   int
	ContainsRepaired  int
}

// Run executes the three linking passes in order.
func Run(db *graph.DB) (*Stats, error) {
	stats := &Stats{}
	if err := linkNamespaces(db, stats); err != nil {
		return nil, fmt.Errorf("namespace linking: %w", err)
	}
	if err := linkFileContainment(db, stats); err != nil {
		return nil, fmt.Errorf("file-containment linking: %w", err)
	}
	if err := ensureContains(db, stats); err != nil {
		return nil, fmt.Errorf("contains-edge creation: %w", err)
	}
	return stats, nil
}

// linkNamespaces groups namespace blocks by name and links each group to
// a single shared Namespace node. The Namespace node is created at most
// once per distinct name; blocks already linked are skipped.
func linkNamespaces(db *graph.DB, stats *Stats) error {
	blocks, err := db.GetNodesByKind(graph.KindNamespaceBlock)
	if err != nil {
		return err
	}

	byName := make(map[string][]*graph.Node)
	for _, b := range blocks {
		name := b.Str("name")
		if name == "" {
			continue
		}
		byName[name] = append(byName[name], b)
	}

	existing := make(map[string][]byte)
	namespaces, err := db.GetNodesByKind(graph.KindNamespace)
	if err != nil {
		return err
	}
	for _, ns := range namespaces {
		existing[ns.Str("name")] = ns.ID
	}

	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for name, group := range byName {
		nsID, ok := existing[name]
		if !ok {
			nsID, err = db.InsertNode(tx, graph.KindNamespace, map[string]interface{}{"name": name})
			if err != nil {
				return err
			}
			stats.NamespacesCreated++
		}
		for _, block := range group {
			linked, err := db.HasEdge(block.ID, graph.EdgeRefNamespace, nsID)
			if err != nil {
				return err
			}
			if linked {
				continue
			}
			if err := db.InsertEdge(tx, block.ID, graph.EdgeRefNamespace, nsID); err != nil {
				return err
			}
			stats.RefEdges++
		}
	}
	return tx.Commit()
}

// linkFileContainment gives every root-level AST node (namespace block,
// top-level declaration, comment) a SOURCE_FILE edge to its owning File
// node, creating the File node on demand. A node with no recorded path
// is linked to the sentinel unknown file.
func linkFileContainment(db *graph.DB, stats *Stats) error {
	var candidates []*graph.Node
	for _, kind := range []graph.NodeKind{
		graph.KindNamespaceBlock, graph.KindTypeDecl, graph.KindMethod, graph.KindField, graph.KindComment,
	} {
		nodes, err := db.GetNodesByKind(kind)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			// Only root-level declarations carry SOURCE_FILE edges;
			// members are reachable through their enclosing type.
			if (kind == graph.KindMethod || kind == graph.KindField || kind == graph.KindTypeDecl) && n.Str("parent") != "" {
				continue
			}
			candidates = append(candidates, n)
		}
	}

	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, n := range candidates {
		edges, err := db.GetEdges(n.ID, graph.EdgeSourceFile)
		if err != nil {
			return err
		}
		if len(edges) > 0 {
			continue
		}

		fileID, err := ensureFile(db, tx, n.Str("path"))
		if err != nil {
			return err
		}
		if err := db.InsertEdge(tx, n.ID, graph.EdgeSourceFile, fileID); err != nil {
			return err
		}
		stats.SourceFileEdges++
	}
	return tx.Commit()
}

// ensureContains re-derives the containment edge for any AST node that
// has neither inbound nor outbound CONTAINS edges. Nodes that already
// participate in containment are skipped entirely, which makes the pass
// safe to re-run after a partial incremental merge.
func ensureContains(db *graph.DB, stats *Stats) error {
	typeByKey := make(map[string][]byte)
	types, err := db.GetNodesByKind(graph.KindTypeDecl)
	if err != nil {
		return err
	}
	for _, t := range types {
		typeByKey[t.Str("path")+"\x00"+t.Str("fqName")] = t.ID
	}

	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, kind := range []graph.NodeKind{
		graph.KindNamespaceBlock, graph.KindTypeDecl, graph.KindMethod, graph.KindField, graph.KindComment,
	} {
		nodes, err := db.GetNodesByKind(kind)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			has, err := db.HasAnyContains(n.ID)
			if err != nil {
				return err
			}
			if has {
				continue
			}

			parentID, err := resolveContainer(db, tx, n, kind, typeByKey)
			if err != nil {
				return err
			}
			if err := db.InsertEdge(tx, parentID, graph.EdgeContains, n.ID); err != nil {
				return err
			}
			stats.ContainsRepaired++
		}
	}
	return tx.Commit()
}

// resolveContainer determines which node should contain n, from n's own
// payload: enclosing type first, then namespace block, then file.
func resolveContainer(db *graph.DB, tx *sql.Tx, n *graph.Node, kind graph.NodeKind, typeByKey map[string][]byte) ([]byte, error) {
	path := n.Str("path")

	if kind == graph.KindNamespaceBlock || kind == graph.KindComment {
		return ensureFile(db, tx, path)
	}

	if parent := n.Str("parent"); parent != "" {
		key := path + "\x00" + lang.FullName(n.Str("namespace"), parent)
		if id, ok := typeByKey[key]; ok {
			return id, nil
		}
		// Enclosing type is gone; fall through to the file so the node
		// is at least reachable for the next prune.
	}

	if ns := n.Str("namespace"); ns != "" {
		return db.InsertNode(tx, graph.KindNamespaceBlock, map[string]interface{}{
			"name": ns,
			"path": path,
		})
	}
	return ensureFile(db, tx, path)
}

// ensureFile finds the File node for a path, creating it with an empty
// digest when absent. An empty path maps to the sentinel unknown file.
func ensureFile(db *graph.DB, tx *sql.Tx, path string) ([]byte, error) {
	if path == "" {
		path = graph.UnknownFileName
	}
	node, err := db.FindFileByPath(path)
	if err != nil {
		return nil, err
	}
	if node != nil {
		return node.ID, nil
	}
	return db.InsertNode(tx, graph.KindFile, map[string]interface{}{
		"path":   path,
		"digest": "",
	})
}
