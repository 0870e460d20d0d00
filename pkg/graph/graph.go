// Package graph is Ratatoskr's public surface: typed queries and writes over
// a Cypher-speaking graph engine.
//
// Application code registers model types once at startup, then composes
// queries through Nodes and Relationships and writes through CreateNode and
// friends. Every query is compiled to parameterized Cypher by pkg/cypher and
// executed over the configured transport; rows are rehydrated back into the
// caller's model types through the registry.
//
// Example Usage:
//
//	reg := registry.New()
//	registry.Register[Person](reg)
//	registry.RegisterRelationship[Knows, Person, Person](reg)
//
//	tr, _ := transport.NewBolt("bolt://localhost:7687", "neo4j", "secret", "")
//	g := graph.New(tr, reg)
//
//	alice := &Person{Name: "Alice", Age: 30}
//	if err := g.CreateNode(ctx, alice); err != nil {
//	    log.Fatal(err)
//	}
//
//	adults, err := graph.Nodes[Person](g).
//	    Where(query.Ge(query.Prop("Age"), 18)).
//	    OrderBy("Name").
//	    ToList(ctx)
//
// Nothing executes until a terminal call (ToList, First, Count, ...); builder
// steps only grow an immutable plan. Reads run on auto-commit sessions;
// writes always run inside an explicit transaction that commits only if the
// whole unit of work succeeds, and every logical operation gets its own
// session, never shared with concurrent operations.
package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orneryd/ratatoskr/pkg/cypher"
	"github.com/orneryd/ratatoskr/pkg/registry"
	"github.com/orneryd/ratatoskr/pkg/schema"
	"github.com/orneryd/ratatoskr/pkg/transport"
)

// Common errors.
var (
	// ErrNotFound is returned by First, Single and point reads that match
	// nothing.
	ErrNotFound = errors.New("no matching entity")
	// ErrNotSingle is returned by Single when more than one entity matches.
	ErrNotSingle = errors.New("more than one matching entity")
)

// Graph is the entry point for all queries and writes. Safe for concurrent
// use; each operation acquires its own session.
type Graph struct {
	tr     transport.Transport
	reg    *registry.Registry
	comp   *cypher.Compiler
	schema *schema.Manager
	log    *logrus.Entry
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger replaces the default logrus standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(g *Graph) { g.log = logrus.NewEntry(l).WithField("component", "graph") }
}

// New creates a Graph over a transport and a populated type registry.
func New(tr transport.Transport, reg *registry.Registry, opts ...Option) *Graph {
	g := &Graph{
		tr:   tr,
		reg:  reg,
		comp: cypher.NewCompiler(reg),
		log:  logrus.NewEntry(logrus.StandardLogger()).WithField("component", "graph"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.schema = schema.NewManager(tr, g.log)
	return g
}

// Close releases the underlying transport.
func (g *Graph) Close(ctx context.Context) error {
	return g.tr.Close(ctx)
}

// Schema exposes the constraint manager, mostly for tests and tooling.
func (g *Graph) Schema() *schema.Manager { return g.schema }

// execRead runs a compiled program on an auto-commit read session.
func (g *Graph) execRead(ctx context.Context, prog *cypher.Program) (*transport.Result, error) {
	if prog.Empty {
		return &transport.Result{}, nil
	}
	g.log.WithField("cypher", prog.Text).Debug("executing read")
	sess, err := g.tr.Session(ctx, transport.AccessRead)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)
	return sess.Run(ctx, prog.Text, prog.Params)
}

// execWrite runs one or more compiled programs inside a single explicit
// transaction. Any failure rolls the transaction back before the error
// propagates; the result of the last statement is returned on success.
func (g *Graph) execWrite(ctx context.Context, progs ...*cypher.Program) (*transport.Result, error) {
	sess, err := g.tr.Session(ctx, transport.AccessWrite)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)

	tx, err := sess.Begin(ctx)
	if err != nil {
		return nil, err
	}

	var res *transport.Result
	for _, prog := range progs {
		g.log.WithField("cypher", prog.Text).Debug("executing write")
		res, err = tx.Run(ctx, prog.Text, prog.Params)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// entityInfo resolves a model value to its registration, insisting on a
// pointer to struct so generated identities can be written back.
func (g *Graph) entityInfo(entity any) (*registry.TypeInfo, reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return nil, reflect.Value{}, fmt.Errorf("entity must be a pointer to a struct, got %T", entity)
	}
	info, err := g.reg.Lookup(rv.Elem().Type())
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return info, rv.Elem(), nil
}

// ensureIdentity assigns a fresh UUID when the entity's identity is empty.
func ensureIdentity(info *registry.TypeInfo, v reflect.Value) string {
	f := v.FieldByName(info.IDField)
	if f.String() == "" {
		f.SetString(uuid.NewString())
	}
	return f.String()
}

// CreateNode persists a new node. The entity must be a registered node model
// passed by pointer; an empty identity is filled with a generated UUID. The
// label's constraints are ensured before the first write to that label.
func (g *Graph) CreateNode(ctx context.Context, entity any) error {
	info, v, err := g.entityInfo(entity)
	if err != nil {
		return err
	}
	if info.Kind != registry.KindNode {
		return fmt.Errorf("%s is registered as a relationship, not a node", info.Type.Name())
	}
	ensureIdentity(info, v)

	if err := g.schema.EnsureConstraintsForLabel(ctx, info.Label, info.IDProp, propNames(info)); err != nil {
		return err
	}
	_, err = g.execWrite(ctx, g.comp.CreateNode(info, extractProps(info, v)))
	return err
}

// CreateRelationship persists a new relationship between two existing nodes.
// The entity's start/end fields must hold the endpoint node identities.
func (g *Graph) CreateRelationship(ctx context.Context, entity any) error {
	info, v, err := g.entityInfo(entity)
	if err != nil {
		return err
	}
	if info.Kind != registry.KindRelationship {
		return fmt.Errorf("%s is registered as a node, not a relationship", info.Type.Name())
	}
	ensureIdentity(info, v)

	startInfo, err := g.reg.Lookup(info.Start)
	if err != nil {
		return err
	}
	endInfo, err := g.reg.Lookup(info.End)
	if err != nil {
		return err
	}
	startID := v.FieldByName(info.StartField).String()
	endID := v.FieldByName(info.EndField).String()
	if startID == "" || endID == "" {
		return fmt.Errorf("relationship %s requires both endpoint identities", info.Label)
	}

	if err := g.schema.EnsureConstraintsForRelType(ctx, info.Label, info.IDProp, propNames(info)); err != nil {
		return err
	}
	_, err = g.execWrite(ctx, g.comp.CreateRelationship(info, startInfo, endInfo, startID, endID, extractProps(info, v)))
	return err
}

// UpdateNode merges the entity's mapped properties onto the stored node with
// the same identity.
func (g *Graph) UpdateNode(ctx context.Context, entity any) error {
	info, v, err := g.entityInfo(entity)
	if err != nil {
		return err
	}
	id := v.FieldByName(info.IDField).String()
	if id == "" {
		return fmt.Errorf("cannot update %s without an identity", info.Type.Name())
	}
	res, err := g.execWrite(ctx, g.comp.UpdateNode(info, id, extractProps(info, v)))
	if err != nil {
		return err
	}
	if len(res.Rows) == 0 {
		return fmt.Errorf("%w: %s %q", ErrNotFound, info.Label, id)
	}
	return nil
}

// UpdateRelationship merges the entity's mapped properties onto the stored
// relationship with the same identity.
func (g *Graph) UpdateRelationship(ctx context.Context, entity any) error {
	info, v, err := g.entityInfo(entity)
	if err != nil {
		return err
	}
	id := v.FieldByName(info.IDField).String()
	if id == "" {
		return fmt.Errorf("cannot update %s without an identity", info.Type.Name())
	}
	res, err := g.execWrite(ctx, g.comp.UpdateRelationship(info, id, extractProps(info, v)))
	if err != nil {
		return err
	}
	if len(res.Rows) == 0 {
		return fmt.Errorf("%w: %s %q", ErrNotFound, info.Label, id)
	}
	return nil
}

// GetNode reads one node by identity.
func GetNode[T any](ctx context.Context, g *Graph, id string) (*T, error) {
	info, err := registry.LookupFor[T](g.reg)
	if err != nil {
		return nil, err
	}
	res, err := g.execRead(ctx, g.comp.GetNode(info, id))
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%w: %s %q", ErrNotFound, info.Label, id)
	}
	return hydrateEntity[T](info, res.Rows[0][0])
}

// GetRelationships reads a batch of relationships by identity. Missing
// identities are simply absent from the result.
func GetRelationships[T any](ctx context.Context, g *Graph, ids []string) ([]*T, error) {
	info, err := registry.LookupFor[T](g.reg)
	if err != nil {
		return nil, err
	}
	res, err := g.execRead(ctx, g.comp.GetRelationships(info, ids))
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(res.Rows))
	for _, row := range res.Rows {
		e, err := hydrateEntity[T](info, row[0])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// DeleteNode detach-deletes a node by identity; its relationships go with it.
func DeleteNode[T any](ctx context.Context, g *Graph, id string) error {
	info, err := registry.LookupFor[T](g.reg)
	if err != nil {
		return err
	}
	_, err = g.execWrite(ctx, g.comp.DeleteNode(info, id))
	return err
}

// DeleteRelationship deletes a relationship by identity.
func DeleteRelationship[T any](ctx context.Context, g *Graph, id string) error {
	info, err := registry.LookupFor[T](g.reg)
	if err != nil {
		return err
	}
	_, err = g.execWrite(ctx, g.comp.DeleteRelationship(info, id))
	return err
}

func propNames(info *registry.TypeInfo) []string {
	out := make([]string, 0, len(info.Fields))
	for _, f := range info.Fields {
		out = append(out, f.Prop)
	}
	return out
}
