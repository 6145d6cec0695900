// Package prune removes stale file-owned subgraphs ahead of an
// incremental rebuild.
package prune

import (
	"fmt"
	"log/slog"

	"codegraph/internal/graph"
)

// Result reports what a prune pass removed.
type Result struct {
	FilesPruned  int
	NodesDeleted int
	// MissingPaths are paths that had no File node in the graph. Not an
	// error: the graph may legitimately be slightly stale after a prior
	// partial run.
	MissingPaths []string
}

// Prune deletes, for each path, the File node and the transitive closure
// of AST nodes it owns via CONTAINS edges. Shared Namespace nodes are
// never deleted: the only route to them is the non-owning REF_NAMESPACE
// edge, which the closure does not follow. The whole pass runs in one
// transaction so callers observe it atomically.
func Prune(db *graph.DB, paths []string) (*Result, error) {
	result := &Result{}

	var doomed [][]byte
	for _, path := range paths {
		fileNode, err := db.FindFileByPath(path)
		if err != nil {
			return nil, fmt.Errorf("resolving file %s: %w", path, err)
		}
		if fileNode == nil {
			slog.Warn("prune: path not present in graph, skipping", "path", path)
			result.MissingPaths = append(result.MissingPaths, path)
			continue
		}

		subtree, err := containsClosure(db, fileNode.ID)
		if err != nil {
			return nil, fmt.Errorf("collecting subtree of %s: %w", path, err)
		}
		doomed = append(doomed, subtree...)
		result.FilesPruned++
	}

	if len(doomed) == 0 {
		return result, nil
	}

	tx, err := db.BeginTx()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := db.DeleteNodes(tx, doomed); err != nil {
		return nil, fmt.Errorf("deleting stale nodes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing prune: %w", err)
	}

	result.NodesDeleted = len(doomed)
	return result, nil
}

// containsClosure returns root plus every node reachable from it over
// outbound CONTAINS edges.
func containsClosure(db *graph.DB, root []byte) ([][]byte, error) {
	seen := map[string]bool{string(root): true}
	closure := [][]byte{root}
	queue := [][]byte{root}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		edges, err := db.GetEdges(current, graph.EdgeContains)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			key := string(e.Dst)
			if seen[key] {
				continue
			}
			seen[key] = true
			closure = append(closure, e.Dst)
			queue = append(queue, e.Dst)
		}
	}
	return closure, nil
}
