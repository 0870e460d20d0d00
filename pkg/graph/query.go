package graph

// Typed query builders. Every builder method returns a new value wrapping a
// new plan node; the receiver is never mutated, so partial queries can be
// shared freely. Builder methods validate expression structure eagerly, so
// an unsupported construct surfaces at plan-build time; the error sticks to
// the query and short-circuits the terminal call before any network
// interaction. Field-to-property resolution happens at compile time, which
// is still client-side.

import (
	"context"
	"fmt"
	"reflect"

	"github.com/orneryd/ratatoskr/pkg/cypher"
	"github.com/orneryd/ratatoskr/pkg/query"
	"github.com/orneryd/ratatoskr/pkg/registry"
	"github.com/orneryd/ratatoskr/pkg/transport"
)

// NodeQuery is a lazily-evaluated query over nodes of model type T.
type NodeQuery[T any] struct {
	g    *Graph
	plan *query.Plan
	err  error
}

// Nodes starts a query over all nodes of model type T.
func Nodes[T any](g *Graph) *NodeQuery[T] {
	src := query.SourceOp{Kind: query.SourceNodes, Type: reflect.TypeOf((*T)(nil)).Elem()}
	q := &NodeQuery[T]{g: g, plan: query.NewPlan(src)}
	if _, err := g.reg.Lookup(src.Type); err != nil {
		q.err = err
	}
	return q
}

// RelationshipQuery is a lazily-evaluated query over relationships of model
// type T.
type RelationshipQuery[T any] struct {
	g    *Graph
	plan *query.Plan
	err  error
}

// Relationships starts a query over all relationships of model type T.
func Relationships[T any](g *Graph) *RelationshipQuery[T] {
	src := query.SourceOp{Kind: query.SourceRelationships, Type: reflect.TypeOf((*T)(nil)).Elem()}
	q := &RelationshipQuery[T]{g: g, plan: query.NewPlan(src)}
	if _, err := g.reg.Lookup(src.Type); err != nil {
		q.err = err
	}
	return q
}

func (q *NodeQuery[T]) with(plan *query.Plan, err error) *NodeQuery[T] {
	if q.err != nil {
		return q
	}
	return &NodeQuery[T]{g: q.g, plan: plan, err: err}
}

func (q *RelationshipQuery[T]) with(plan *query.Plan, err error) *RelationshipQuery[T] {
	if q.err != nil {
		return q
	}
	return &RelationshipQuery[T]{g: q.g, plan: plan, err: err}
}

// Where filters by a predicate over T's fields.
func (q *NodeQuery[T]) Where(pred query.Expr) *NodeQuery[T] {
	return q.with(q.plan.Extend(query.FilterOp{Pred: pred}), cypher.CheckShape(pred))
}

// OrderBy sorts ascending by a field.
func (q *NodeQuery[T]) OrderBy(field string) *NodeQuery[T] {
	return q.with(q.plan.Extend(query.OrderOp{Field: field}), checkOrderField(field))
}

// OrderByDescending sorts descending by a field.
func (q *NodeQuery[T]) OrderByDescending(field string) *NodeQuery[T] {
	return q.with(q.plan.Extend(query.OrderOp{Field: field, Desc: true}), checkOrderField(field))
}

// ThenBy adds a secondary ascending sort key.
func (q *NodeQuery[T]) ThenBy(field string) *NodeQuery[T] {
	return q.with(q.plan.Extend(query.OrderOp{Field: field, Chained: true}), checkOrderField(field))
}

// ThenByDescending adds a secondary descending sort key.
func (q *NodeQuery[T]) ThenByDescending(field string) *NodeQuery[T] {
	return q.with(q.plan.Extend(query.OrderOp{Field: field, Desc: true, Chained: true}), checkOrderField(field))
}

func checkOrderField(field string) error {
	if field == "" {
		return fmt.Errorf("ordering field must not be empty")
	}
	return nil
}

// Skip drops the first n rows.
func (q *NodeQuery[T]) Skip(n int) *NodeQuery[T] {
	if n < 0 {
		return q.with(q.plan, fmt.Errorf("skip count must be >= 0, got %d", n))
	}
	return q.with(q.plan.Extend(query.SkipOp{N: n}), q.err)
}

// Take keeps at most n rows.
func (q *NodeQuery[T]) Take(n int) *NodeQuery[T] {
	if n < 0 {
		return q.with(q.plan, fmt.Errorf("take count must be >= 0, got %d", n))
	}
	return q.with(q.plan.Extend(query.TakeOp{N: n}), q.err)
}

// Distinct removes duplicate rows.
func (q *NodeQuery[T]) Distinct() *NodeQuery[T] {
	return q.with(q.plan.Extend(query.DistinctOp{}), q.err)
}

// Select projects into anonymous named columns; the query yields Rows
// instead of entities from here on.
func (q *NodeQuery[T]) Select(cols ...query.Projection) *RowQuery {
	err := q.err
	if err == nil {
		err = cypher.CheckProjectionShape(cols)
	}
	return &RowQuery{g: q.g, plan: q.plan.Extend(query.ProjectOp{Cols: cols}), err: err}
}

// GroupBy groups rows by a key expression. The grouped query must be
// completed with Select over aggregate expressions.
func (q *NodeQuery[T]) GroupBy(key query.Expr) *GroupedQuery {
	err := q.err
	if err == nil {
		err = cypher.CheckShape(key)
	}
	return &GroupedQuery{g: q.g, plan: q.plan.Extend(query.GroupOp{Key: key}), err: err}
}

// GroupedQuery is a query grouped by a key, awaiting aggregate selection.
type GroupedQuery struct {
	g    *Graph
	plan *query.Plan
	err  error
}

// Select projects each group into named columns; aggregate expressions range
// over the group's rows. The group key is always emitted as column "key".
func (gq *GroupedQuery) Select(cols ...query.Projection) *RowQuery {
	err := gq.err
	if err == nil {
		err = cypher.CheckProjectionShape(cols)
	}
	return &RowQuery{g: gq.g, plan: gq.plan.Extend(query.ProjectOp{Cols: cols}), err: err}
}

// RowQuery is a query that yields anonymous projection rows.
type RowQuery struct {
	g    *Graph
	plan *query.Plan
	err  error
}

// ToList executes the query and returns all projection rows.
func (q *RowQuery) ToList(ctx context.Context) ([]Row, error) {
	if q.err != nil {
		return nil, q.err
	}
	prog, err := q.g.comp.Compile(q.plan)
	if err != nil {
		return nil, err
	}
	res, err := q.g.execRead(ctx, prog)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(res.Rows))
	for _, r := range res.Rows {
		rows = append(rows, rowFromColumns(res.Columns, r))
	}
	return rows, nil
}

// First executes the query and returns the first projection row.
func (q *RowQuery) First(ctx context.Context) (Row, error) {
	rows, err := q.ToList(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// --- shared terminal plumbing ---

// toEntityList compiles and runs a plan, hydrating every row as *T.
func toEntityList[T any](ctx context.Context, g *Graph, plan *query.Plan, stickyErr error) ([]*T, error) {
	if stickyErr != nil {
		return nil, stickyErr
	}
	prog, err := g.comp.Compile(plan)
	if err != nil {
		return nil, err
	}
	res, err := g.execRead(ctx, prog)
	if err != nil {
		return nil, err
	}
	info, err := registry.LookupFor[T](g.reg)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(res.Rows))
	for _, row := range res.Rows {
		value := row[0]
		// The weighted lowering yields whole path rows even for node output;
		// the traversal target is the far end of each path.
		if p, ok := value.(transport.Path); ok {
			if len(p.Nodes) == 0 {
				continue
			}
			value = p.Nodes[len(p.Nodes)-1]
		}
		e, err := hydrateEntity[T](info, value)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// scalarTerminal compiles a plan extended with a single aggregate projection
// and returns the lone value.
func scalarTerminal(ctx context.Context, g *Graph, plan *query.Plan, stickyErr error, agg query.Expr) (any, error) {
	if stickyErr != nil {
		return nil, stickyErr
	}
	prog, err := g.comp.Compile(plan.Extend(query.ProjectOp{Cols: []query.Projection{query.As(agg, "value")}}))
	if err != nil {
		return nil, err
	}
	res, err := g.execRead(ctx, prog)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return nil, nil
	}
	return res.Rows[0][0], nil
}

func countOf(ctx context.Context, g *Graph, plan *query.Plan, stickyErr error) (int64, error) {
	v, err := scalarTerminal(ctx, g, plan, stickyErr, query.CountAll())
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, &MappingError{Type: "int64", Detail: fmt.Sprintf("count returned %T", v)}
	}
	return n, nil
}

func numericTerminal(ctx context.Context, g *Graph, plan *query.Plan, stickyErr error, agg query.Expr) (float64, error) {
	v, err := scalarTerminal(ctx, g, plan, stickyErr, agg)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, &MappingError{Type: "float64", Detail: fmt.Sprintf("aggregate returned %T", v)}
	}
}

// --- node query terminals ---

// ToList executes the query and returns every matching entity. Row order is
// whatever the engine produced unless an OrderBy was applied.
func (q *NodeQuery[T]) ToList(ctx context.Context) ([]*T, error) {
	return toEntityList[T](ctx, q.g, q.plan, q.err)
}

// First returns the first matching entity, or ErrNotFound.
func (q *NodeQuery[T]) First(ctx context.Context) (*T, error) {
	list, err := toEntityList[T](ctx, q.g, q.plan.Extend(query.TakeOp{N: 1}), q.err)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// Single returns the only matching entity; ErrNotFound when nothing matches,
// ErrNotSingle when more than one does.
func (q *NodeQuery[T]) Single(ctx context.Context) (*T, error) {
	list, err := toEntityList[T](ctx, q.g, q.plan.Extend(query.TakeOp{N: 2}), q.err)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return list[0], nil
	default:
		return nil, ErrNotSingle
	}
}

// Count returns the number of matching rows.
func (q *NodeQuery[T]) Count(ctx context.Context) (int64, error) {
	return countOf(ctx, q.g, q.plan, q.err)
}

// Any reports whether at least one row matches.
func (q *NodeQuery[T]) Any(ctx context.Context) (bool, error) {
	n, err := q.Count(ctx)
	return n > 0, err
}

// All reports whether every row satisfies pred.
func (q *NodeQuery[T]) All(ctx context.Context, pred query.Expr) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	if err := cypher.CheckShape(pred); err != nil {
		return false, err
	}
	n, err := countOf(ctx, q.g, q.plan.Extend(query.FilterOp{Pred: query.Not(pred)}), nil)
	return n == 0, err
}

// Sum aggregates a numeric field across all matching rows.
func (q *NodeQuery[T]) Sum(ctx context.Context, field string) (float64, error) {
	return numericTerminal(ctx, q.g, q.plan, q.err, query.Sum(query.Prop(field)))
}

// Avg averages a numeric field across all matching rows.
func (q *NodeQuery[T]) Avg(ctx context.Context, field string) (float64, error) {
	return numericTerminal(ctx, q.g, q.plan, q.err, query.Avg(query.Prop(field)))
}

// Min returns the smallest value of a field across all matching rows.
func (q *NodeQuery[T]) Min(ctx context.Context, field string) (any, error) {
	return scalarTerminal(ctx, q.g, q.plan, q.err, query.Min(query.Prop(field)))
}

// Max returns the largest value of a field across all matching rows.
func (q *NodeQuery[T]) Max(ctx context.Context, field string) (any, error) {
	return scalarTerminal(ctx, q.g, q.plan, q.err, query.Max(query.Prop(field)))
}

// --- relationship query builders and terminals ---

// Where filters by a predicate over T's fields.
func (q *RelationshipQuery[T]) Where(pred query.Expr) *RelationshipQuery[T] {
	return q.with(q.plan.Extend(query.FilterOp{Pred: pred}), cypher.CheckShape(pred))
}

// OrderBy sorts ascending by a field.
func (q *RelationshipQuery[T]) OrderBy(field string) *RelationshipQuery[T] {
	return q.with(q.plan.Extend(query.OrderOp{Field: field}), checkOrderField(field))
}

// OrderByDescending sorts descending by a field.
func (q *RelationshipQuery[T]) OrderByDescending(field string) *RelationshipQuery[T] {
	return q.with(q.plan.Extend(query.OrderOp{Field: field, Desc: true}), checkOrderField(field))
}

// ThenBy adds a secondary ascending sort key.
func (q *RelationshipQuery[T]) ThenBy(field string) *RelationshipQuery[T] {
	return q.with(q.plan.Extend(query.OrderOp{Field: field, Chained: true}), checkOrderField(field))
}

// ThenByDescending adds a secondary descending sort key.
func (q *RelationshipQuery[T]) ThenByDescending(field string) *RelationshipQuery[T] {
	return q.with(q.plan.Extend(query.OrderOp{Field: field, Desc: true, Chained: true}), checkOrderField(field))
}

// Skip drops the first n rows.
func (q *RelationshipQuery[T]) Skip(n int) *RelationshipQuery[T] {
	if n < 0 {
		return q.with(q.plan, fmt.Errorf("skip count must be >= 0, got %d", n))
	}
	return q.with(q.plan.Extend(query.SkipOp{N: n}), q.err)
}

// Take keeps at most n rows.
func (q *RelationshipQuery[T]) Take(n int) *RelationshipQuery[T] {
	if n < 0 {
		return q.with(q.plan, fmt.Errorf("take count must be >= 0, got %d", n))
	}
	return q.with(q.plan.Extend(query.TakeOp{N: n}), q.err)
}

// Distinct removes duplicate rows.
func (q *RelationshipQuery[T]) Distinct() *RelationshipQuery[T] {
	return q.with(q.plan.Extend(query.DistinctOp{}), q.err)
}

// Select projects into anonymous named columns; the query yields Rows
// instead of entities from here on.
func (q *RelationshipQuery[T]) Select(cols ...query.Projection) *RowQuery {
	err := q.err
	if err == nil {
		err = cypher.CheckProjectionShape(cols)
	}
	return &RowQuery{g: q.g, plan: q.plan.Extend(query.ProjectOp{Cols: cols}), err: err}
}

// GroupBy groups rows by a key expression. The grouped query must be
// completed with Select over aggregate expressions.
func (q *RelationshipQuery[T]) GroupBy(key query.Expr) *GroupedQuery {
	err := q.err
	if err == nil {
		err = cypher.CheckShape(key)
	}
	return &GroupedQuery{g: q.g, plan: q.plan.Extend(query.GroupOp{Key: key}), err: err}
}

// ToList executes the query and returns every matching relationship.
func (q *RelationshipQuery[T]) ToList(ctx context.Context) ([]*T, error) {
	return toEntityList[T](ctx, q.g, q.plan, q.err)
}

// First returns the first matching relationship, or ErrNotFound.
func (q *RelationshipQuery[T]) First(ctx context.Context) (*T, error) {
	list, err := toEntityList[T](ctx, q.g, q.plan.Extend(query.TakeOp{N: 1}), q.err)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// Count returns the number of matching relationships.
func (q *RelationshipQuery[T]) Count(ctx context.Context) (int64, error) {
	return countOf(ctx, q.g, q.plan, q.err)
}

// Any reports whether at least one relationship matches.
func (q *RelationshipQuery[T]) Any(ctx context.Context) (bool, error) {
	n, err := q.Count(ctx)
	return n > 0, err
}

// Single returns the only matching relationship; ErrNotFound when nothing
// matches, ErrNotSingle when more than one does.
func (q *RelationshipQuery[T]) Single(ctx context.Context) (*T, error) {
	list, err := toEntityList[T](ctx, q.g, q.plan.Extend(query.TakeOp{N: 2}), q.err)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return list[0], nil
	default:
		return nil, ErrNotSingle
	}
}

// All reports whether every relationship satisfies pred.
func (q *RelationshipQuery[T]) All(ctx context.Context, pred query.Expr) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	if err := cypher.CheckShape(pred); err != nil {
		return false, err
	}
	n, err := countOf(ctx, q.g, q.plan.Extend(query.FilterOp{Pred: query.Not(pred)}), nil)
	return n == 0, err
}

// Sum aggregates a numeric field across all matching relationships.
func (q *RelationshipQuery[T]) Sum(ctx context.Context, field string) (float64, error) {
	return numericTerminal(ctx, q.g, q.plan, q.err, query.Sum(query.Prop(field)))
}

// Avg averages a numeric field across all matching relationships.
func (q *RelationshipQuery[T]) Avg(ctx context.Context, field string) (float64, error) {
	return numericTerminal(ctx, q.g, q.plan, q.err, query.Avg(query.Prop(field)))
}

// Min returns the smallest value of a field across all matching relationships.
func (q *RelationshipQuery[T]) Min(ctx context.Context, field string) (any, error) {
	return scalarTerminal(ctx, q.g, q.plan, q.err, query.Min(query.Prop(field)))
}

// Max returns the largest value of a field across all matching relationships.
func (q *RelationshipQuery[T]) Max(ctx context.Context, field string) (any, error) {
	return scalarTerminal(ctx, q.g, q.plan, q.err, query.Max(query.Prop(field)))
}
