// Package graph provides the SQLite-backed code-property-graph store.
//
// Nodes are content-addressed: a node's ID is the BLAKE3 digest of its
// kind and canonical payload, which makes every insert naturally
// idempotent (INSERT OR IGNORE). Edges are keyed by (src, type, dst) for
// the same reason. The whole graph lives in a single database file so a
// build can operate on a private copy and publish it atomically.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"codegraph/internal/cas"
)

// NodeKind represents the type of a node.
type NodeKind string

const (
	KindFile           NodeKind = "File"
	KindNamespace      NodeKind = "Namespace"
	KindNamespaceBlock NodeKind = "NamespaceBlock"
	KindTypeDecl       NodeKind = "TypeDecl"
	KindMethod         NodeKind = "Method"
	KindField          NodeKind = "Field"
	KindComment        NodeKind = "Comment"
)

// EdgeType represents the type of relationship between nodes.
type EdgeType string

const (
	// EdgeContains expresses "is a syntactic child of", File downward.
	EdgeContains EdgeType = "CONTAINS"
	// EdgeSourceFile links a root-level AST node to its owning File.
	EdgeSourceFile EdgeType = "SOURCE_FILE"
	// EdgeRefNamespace links a per-file NamespaceBlock to the shared
	// Namespace node. Non-owning: pruning a file never follows it.
	EdgeRefNamespace EdgeType = "REF_NAMESPACE"
)

// UnknownFileName is the sentinel path used when a node's origin cannot
// be determined during file-containment linking.
const UnknownFileName = "<unknown>"

// Node represents a node in the graph.
type Node struct {
	ID        []byte
	Kind      NodeKind
	Payload   map[string]interface{}
	CreatedAt int64
}

// Str returns a string payload field, or "" when absent.
func (n *Node) Str(key string) string {
	s, _ := n.Payload[key].(string)
	return s
}

// Edge represents an edge in the graph.
type Edge struct {
	Src       []byte
	Type      EdgeType
	Dst       []byte
	CreatedAt int64
}

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id BLOB PRIMARY KEY,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);

CREATE TABLE IF NOT EXISTS edges (
	src BLOB NOT NULL,
	type TEXT NOT NULL,
	dst BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (src, type, dst)
);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst, type);
`

// DB wraps the SQLite database holding one graph.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the graph database at the given path.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	conn.Exec("PRAGMA busy_timeout=5000")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL back into the main file and closes the
// connection, so the database file alone is a complete artifact.
func (db *DB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// BeginTx starts a new transaction.
func (db *DB) BeginTx() (*sql.Tx, error) {
	return db.conn.Begin()
}

// BeginTxCtx starts a new transaction that honors ctx cancellation.
func (db *DB) BeginTxCtx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

// InsertNode inserts a node if it doesn't already exist and returns its
// content-addressed ID.
func (db *DB) InsertNode(tx *sql.Tx, kind NodeKind, payload map[string]interface{}) ([]byte, error) {
	id, err := cas.NodeID(string(kind), payload)
	if err != nil {
		return nil, fmt.Errorf("computing node ID: %w", err)
	}
	payloadJSON, err := cas.CanonicalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO nodes (id, kind, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, id, string(kind), string(payloadJSON), cas.NowMs())
	if err != nil {
		return nil, fmt.Errorf("inserting node: %w", err)
	}
	return id, nil
}

// InsertEdge inserts an edge if it doesn't already exist.
func (db *DB) InsertEdge(tx *sql.Tx, src []byte, edgeType EdgeType, dst []byte) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO edges (src, type, dst, created_at)
		VALUES (?, ?, ?, ?)
	`, src, string(edgeType), dst, cas.NowMs())
	if err != nil {
		return fmt.Errorf("inserting edge: %w", err)
	}
	return nil
}

// HasEdge reports whether an edge (src, type, dst) exists.
func (db *DB) HasEdge(src []byte, edgeType EdgeType, dst []byte) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM edges WHERE src = ? AND type = ? AND dst = ?`,
		src, string(edgeType), dst,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking edge: %w", err)
	}
	return count > 0, nil
}

// HasAnyContains reports whether a node participates in any CONTAINS
// edge, inbound or outbound.
func (db *DB) HasAnyContains(id []byte) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM edges WHERE type = ? AND (src = ? OR dst = ?)`,
		string(EdgeContains), id, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking contains edges: %w", err)
	}
	return count > 0, nil
}

// GetNode retrieves a node by ID; nil when absent.
func (db *DB) GetNode(id []byte) (*Node, error) {
	var kind, payloadJSON string
	var createdAt int64
	err := db.conn.QueryRow(`
		SELECT kind, payload, created_at FROM nodes WHERE id = ?
	`, id).Scan(&kind, &payloadJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying node: %w", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling payload: %w", err)
	}
	return &Node{ID: id, Kind: NodeKind(kind), Payload: payload, CreatedAt: createdAt}, nil
}

// GetNodesByKind retrieves all nodes of a specific kind.
func (db *DB) GetNodesByKind(kind NodeKind) ([]*Node, error) {
	rows, err := db.conn.Query(`
		SELECT id, payload, created_at FROM nodes WHERE kind = ?
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		var id []byte
		var payloadJSON string
		var createdAt int64
		if err := rows.Scan(&id, &payloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("unmarshaling payload: %w", err)
		}
		nodes = append(nodes, &Node{ID: id, Kind: kind, Payload: payload, CreatedAt: createdAt})
	}
	return nodes, rows.Err()
}

// GetEdges retrieves edges of a type from a source node.
func (db *DB) GetEdges(src []byte, edgeType EdgeType) ([]*Edge, error) {
	rows, err := db.conn.Query(`
		SELECT dst, created_at FROM edges WHERE src = ? AND type = ?
	`, src, string(edgeType))
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		var dst []byte
		var createdAt int64
		if err := rows.Scan(&dst, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		edges = append(edges, &Edge{Src: src, Type: edgeType, Dst: dst, CreatedAt: createdAt})
	}
	return edges, rows.Err()
}

// GetEdgesTo retrieves edges of a type pointing at a destination node.
func (db *DB) GetEdgesTo(dst []byte, edgeType EdgeType) ([]*Edge, error) {
	rows, err := db.conn.Query(`
		SELECT src, created_at FROM edges WHERE dst = ? AND type = ?
	`, dst, string(edgeType))
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		var src []byte
		var createdAt int64
		if err := rows.Scan(&src, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		edges = append(edges, &Edge{Src: src, Type: edgeType, Dst: dst, CreatedAt: createdAt})
	}
	return edges, rows.Err()
}

// EdgeCountsByType returns the number of edges per type. Used to verify
// that re-running the linking passes adds nothing.
func (db *DB) EdgeCountsByType() (map[EdgeType]int, error) {
	rows, err := db.conn.Query(`SELECT type, COUNT(*) FROM edges GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("counting edges: %w", err)
	}
	defer rows.Close()

	counts := make(map[EdgeType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		counts[EdgeType(t)] = n
	}
	return counts, rows.Err()
}

// DeleteNodes deletes the given nodes and every edge touching them.
func (db *DB) DeleteNodes(tx *sql.Tx, ids [][]byte) error {
	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM edges WHERE src = ? OR dst = ?`, id, id); err != nil {
			return fmt.Errorf("deleting edges: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM nodes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting node: %w", err)
		}
	}
	return nil
}

// FindFileByPath returns the File node with the given normalized path,
// or nil when the graph does not know the file.
func (db *DB) FindFileByPath(path string) (*Node, error) {
	files, err := db.GetNodesByKind(KindFile)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.Str("path") == path {
			return f, nil
		}
	}
	return nil, nil
}

// FileManifest returns the path -> content-digest map embedded in the
// graph's File nodes. The sentinel unknown-file node is excluded.
func (db *DB) FileManifest() (map[string]string, error) {
	files, err := db.GetNodesByKind(KindFile)
	if err != nil {
		return nil, err
	}
	manifest := make(map[string]string, len(files))
	for _, f := range files {
		path := f.Str("path")
		if path == "" || path == UnknownFileName {
			continue
		}
		manifest[path] = f.Str("digest")
	}
	return manifest, nil
}
