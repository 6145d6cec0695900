// Package query provides read-only lookups over a persisted graph:
// skeleton rendering for a fully qualified name and the declaration
// list of a file.
package query

import (
	"fmt"
	"sort"
	"strings"

	"codegraph/internal/graph"
	"codegraph/internal/session"
)

// Index is a read-only view over one graph file.
type Index struct {
	db   *graph.DB
	root string
}

// Open opens the graph at graphPath. sourceRoot is recorded on the
// fragments returned by DeclarationsInFile.
func Open(graphPath, sourceRoot string) (*Index, error) {
	db, err := graph.Open(graphPath)
	if err != nil {
		return nil, fmt.Errorf("opening graph: %w", err)
	}
	return &Index{db: db, root: sourceRoot}, nil
}

// Close releases the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Skeleton renders an outline for the declaration with the given fully
// qualified name. For a type this is its signature plus one line per
// member with method bodies elided; for a method or field it is the
// bare signature. The second return is false when the name is unknown.
func (ix *Index) Skeleton(fqName string) (string, bool, error) {
	node, err := ix.findByFullName(fqName)
	if err != nil {
		return "", false, err
	}
	if node == nil {
		return "", false, nil
	}

	if node.Kind != graph.KindTypeDecl {
		return node.Str("signature"), true, nil
	}

	var b strings.Builder
	b.WriteString(node.Str("signature"))
	b.WriteString(" {\n")

	members, err := ix.memberNodes(node)
	if err != nil {
		return "", false, err
	}
	for _, m := range members {
		switch m.Kind {
		case graph.KindMethod:
			fmt.Fprintf(&b, "  %s {...}\n", m.Str("signature"))
		case graph.KindField:
			fmt.Fprintf(&b, "  %s;\n", m.Str("signature"))
		case graph.KindTypeDecl:
			fmt.Fprintf(&b, "  %s {...}\n", m.Str("signature"))
		}
	}
	b.WriteString("}")
	return b.String(), true, nil
}

// DeclarationsInFile returns every declaration of a file as code units
// for provenance display. The result is sorted by short name.
func (ix *Index) DeclarationsInFile(relPath string) ([]session.CodeUnit, error) {
	fileNode, err := ix.db.FindFileByPath(relPath)
	if err != nil {
		return nil, err
	}
	if fileNode == nil {
		return nil, nil
	}

	fragment := session.ProjectFile{Root: ix.root, RelPath: relPath}
	var units []session.CodeUnit

	for _, kind := range []graph.NodeKind{graph.KindTypeDecl, graph.KindMethod, graph.KindField} {
		nodes, err := ix.db.GetNodesByKind(kind)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if n.Str("path") != relPath {
				continue
			}
			units = append(units, session.CodeUnit{
				File:        fragment,
				Kind:        unitKind(kind),
				PackageName: n.Str("namespace"),
				ShortName:   shortName(n),
			})
		}
	}

	sort.Slice(units, func(i, j int) bool { return units[i].ShortName < units[j].ShortName })
	return units, nil
}

func unitKind(kind graph.NodeKind) session.CodeUnitKind {
	switch kind {
	case graph.KindTypeDecl:
		return session.UnitClass
	case graph.KindField:
		return session.UnitField
	default:
		return session.UnitFunction
	}
}

// shortName is the declaration chain within its namespace, so members
// read as "Outer.member".
func shortName(n *graph.Node) string {
	name := n.Str("name")
	if parent := n.Str("parent"); parent != "" {
		return parent + "." + name
	}
	return name
}

func (ix *Index) findByFullName(fqName string) (*graph.Node, error) {
	for _, kind := range []graph.NodeKind{graph.KindTypeDecl, graph.KindMethod, graph.KindField} {
		nodes, err := ix.db.GetNodesByKind(kind)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if n.Str("fqName") == fqName {
				return n, nil
			}
		}
	}
	return nil, nil
}

// memberNodes returns the direct CONTAINS children of a type node,
// ordered by source span.
func (ix *Index) memberNodes(typeNode *graph.Node) ([]*graph.Node, error) {
	edges, err := ix.db.GetEdges(typeNode.ID, graph.EdgeContains)
	if err != nil {
		return nil, err
	}

	var members []*graph.Node
	for _, e := range edges {
		child, err := ix.db.GetNode(e.Dst)
		if err != nil {
			return nil, err
		}
		if child != nil {
			members = append(members, child)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return spanStartLine(members[i].Str("span")) < spanStartLine(members[j].Str("span"))
	})
	return members, nil
}

func spanStartLine(span string) int {
	var line int
	fmt.Sscanf(span, "%d:", &line)
	return line
}
