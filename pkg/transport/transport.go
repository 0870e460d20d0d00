// Package transport defines the wire contract between Ratatoskr and a
// Cypher-speaking graph engine.
//
// Ratatoskr compiles queries to parameterized Cypher text and hands them to a
// Transport; everything below that line (connection pooling, authentication,
// the Bolt protocol itself) belongs to the transport implementation. The
// library ships one production implementation backed by the official Neo4j Go
// driver (NewBolt) and a scripted stub for tests (package transporttest).
//
// Sessions and transactions are never shared across concurrently-running
// logical operations; each operation opens its own session and closes it when
// done.
package transport

import "context"

// AccessMode hints whether a session will read or write, letting clustered
// engines route to an appropriate member.
type AccessMode string

const (
	AccessRead  AccessMode = "read"
	AccessWrite AccessMode = "write"
)

// Result is one fully-drained query result: column names plus rows of
// generic values. Graph entities come back as Node, Relationship or Path
// values; everything else is a plain scalar, list or map.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Node is a generic graph node as returned by the engine.
type Node struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// Relationship is a generic graph relationship. StartID and EndID reference
// node identities; the relationship never owns its endpoints.
type Relationship struct {
	ID      string
	Type    string
	StartID string
	EndID   string
	Props   map[string]any
}

// Path is a traversal result: an alternating walk of nodes and the
// relationships between them. len(Nodes) == len(Relationships)+1 for any
// non-empty path.
type Path struct {
	Nodes         []Node
	Relationships []Relationship
}

// Transport opens sessions against one graph database.
type Transport interface {
	// Session opens a new session. The caller owns it and must Close it.
	Session(ctx context.Context, mode AccessMode) (Session, error)
	// Close releases the underlying connection pool.
	Close(ctx context.Context) error
}

// Session runs statements, either auto-committed or inside an explicit
// transaction.
type Session interface {
	// Run executes one auto-commit statement.
	Run(ctx context.Context, cypher string, params map[string]any) (*Result, error)
	// Begin starts an explicit transaction.
	Begin(ctx context.Context) (Tx, error)
	Close(ctx context.Context) error
}

// Tx is an explicit transaction scope. Statements run through it become
// visible to other sessions only after Commit.
type Tx interface {
	Run(ctx context.Context, cypher string, params map[string]any) (*Result, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
