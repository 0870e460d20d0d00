package transport

// Bolt transport backed by the official Neo4j Go driver. Works against any
// Bolt-compatible engine, including NornicDB and Neo4j itself.

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// BoltTransport adapts neo4j.DriverWithContext to the Transport contract.
type BoltTransport struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewBolt opens a driver against uri with basic auth. The database name may
// be empty for engines without multi-database support.
func NewBolt(uri, username, password, database string) (*BoltTransport, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("open bolt driver: %w", err)
	}
	return &BoltTransport{driver: driver, database: database}, nil
}

// Verify checks connectivity, typically at startup.
func (t *BoltTransport) Verify(ctx context.Context) error {
	return t.driver.VerifyConnectivity(ctx)
}

// Session opens a new driver session.
func (t *BoltTransport) Session(ctx context.Context, mode AccessMode) (Session, error) {
	access := neo4j.AccessModeWrite
	if mode == AccessRead {
		access = neo4j.AccessModeRead
	}
	sess := t.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   access,
		DatabaseName: t.database,
	})
	return &boltSession{sess: sess}, nil
}

// Close shuts down the driver's connection pool.
func (t *BoltTransport) Close(ctx context.Context) error {
	return t.driver.Close(ctx)
}

type boltSession struct {
	sess neo4j.SessionWithContext
}

func (s *boltSession) Run(ctx context.Context, cypher string, params map[string]any) (*Result, error) {
	res, err := s.sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, &ExecutionError{Query: cypher, Err: err}
	}
	return drain(ctx, cypher, res)
}

func (s *boltSession) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.sess.BeginTransaction(ctx)
	if err != nil {
		return nil, &TransactionError{Op: "begin", Err: err}
	}
	return &boltTx{tx: tx}, nil
}

func (s *boltSession) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

type boltTx struct {
	tx neo4j.ExplicitTransaction
}

func (t *boltTx) Run(ctx context.Context, cypher string, params map[string]any) (*Result, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, &ExecutionError{Query: cypher, Err: err}
	}
	return drain(ctx, cypher, res)
}

func (t *boltTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return &TransactionError{Op: "commit", Err: err}
	}
	return nil
}

func (t *boltTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil {
		return &TransactionError{Op: "rollback", Err: err}
	}
	return nil
}

// drain consumes a driver result into a Result, converting driver value
// types to the transport's generic graph values.
func drain(ctx context.Context, cypher string, res neo4j.ResultWithContext) (*Result, error) {
	out := &Result{}
	for res.Next(ctx) {
		rec := res.Record()
		if out.Columns == nil {
			out.Columns = rec.Keys
		}
		row := make([]any, len(rec.Values))
		for i, v := range rec.Values {
			row[i] = fromDriverValue(v)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := res.Err(); err != nil {
		return nil, &ExecutionError{Query: cypher, Err: err}
	}
	if out.Columns == nil {
		if keys, err := res.Keys(); err == nil {
			out.Columns = keys
		}
	}
	return out, nil
}

func fromDriverValue(v any) any {
	switch x := v.(type) {
	case dbtype.Node:
		return Node{ID: x.ElementId, Labels: x.Labels, Props: fromDriverProps(x.Props)}
	case dbtype.Relationship:
		return Relationship{
			ID:      x.ElementId,
			Type:    x.Type,
			StartID: x.StartElementId,
			EndID:   x.EndElementId,
			Props:   fromDriverProps(x.Props),
		}
	case dbtype.Path:
		p := Path{}
		for _, n := range x.Nodes {
			p.Nodes = append(p.Nodes, fromDriverValue(n).(Node))
		}
		for _, r := range x.Relationships {
			p.Relationships = append(p.Relationships, fromDriverValue(r).(Relationship))
		}
		return p
	case dbtype.Date:
		return x.Time()
	case dbtype.LocalDateTime:
		return x.Time()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = fromDriverValue(e)
		}
		return out
	case map[string]any:
		return fromDriverProps(x)
	default:
		return v
	}
}

func fromDriverProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = fromDriverValue(v)
	}
	return out
}
