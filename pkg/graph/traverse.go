package graph

// Graph traversal builders. Traverse expands a node query across a
// relationship model and continues as a query over the target nodes;
// TraversePath keeps the hops themselves and yields (Source, Relationship,
// Target) triples. Direction is inferred from the relationship model's
// declared endpoints unless Undirected is requested.

import (
	"context"
	"fmt"
	"reflect"

	"github.com/orneryd/ratatoskr/pkg/cypher"
	"github.com/orneryd/ratatoskr/pkg/query"
	"github.com/orneryd/ratatoskr/pkg/registry"
	"github.com/orneryd/ratatoskr/pkg/transport"
)

// Triple is one traversal hop: a source node, the relationship crossed, and
// the target node. Triples are built per execution and never persisted.
type Triple[S, R, T any] struct {
	Source *S
	Rel    *R
	Target *T
}

// Traverse expands q across relationship model R to target node model T.
// The result is a node query over the targets; depth and strategy default to
// one hop with automatic lowering and can be refined with WithDepth,
// WithMinDepth, WithStrategy and Undirected.
func Traverse[S, R, T any](q *NodeQuery[S]) *NodeQuery[T] {
	op := query.TraverseOp{
		Rel:      reflect.TypeOf((*R)(nil)).Elem(),
		Target:   reflect.TypeOf((*T)(nil)).Elem(),
		MinDepth: 1,
		MaxDepth: query.DepthUnset,
		Strategy: query.Automatic,
	}
	return &NodeQuery[T]{g: q.g, plan: q.plan.Extend(op), err: q.err}
}

// TraversePath expands q across relationship model R to target model T,
// yielding the hops as triples.
func TraversePath[S, R, T any](q *NodeQuery[S]) *PathQuery[S, R, T] {
	op := query.TraverseOp{
		Rel:        reflect.TypeOf((*R)(nil)).Elem(),
		Target:     reflect.TypeOf((*T)(nil)).Elem(),
		MinDepth:   1,
		MaxDepth:   query.DepthUnset,
		Strategy:   query.Automatic,
		PathResult: true,
	}
	return &PathQuery[S, R, T]{g: q.g, plan: q.plan.Extend(op), err: q.err}
}

// adjustTraverse rewrites the plan's top operation, which must be the
// traversal being refined.
func adjustTraverse(plan *query.Plan, f func(*query.TraverseOp)) (*query.Plan, error) {
	op, ok := plan.Op().(query.TraverseOp)
	if !ok {
		return plan, fmt.Errorf("traversal options must directly follow Traverse or TraversePath")
	}
	f(&op)
	return plan.ReplaceTop(op), nil
}

// WithDepth caps the traversal at n hops. 0 means node-only: no relationship
// is crossed at all.
func (q *NodeQuery[T]) WithDepth(n int) *NodeQuery[T] {
	if q.err != nil {
		return q
	}
	if n < 0 {
		return q.with(q.plan, fmt.Errorf("traversal depth must be >= 0, got %d", n))
	}
	plan, err := adjustTraverse(q.plan, func(op *query.TraverseOp) { op.MaxDepth = n })
	return q.with(plan, err)
}

// WithMinDepth sets the minimum number of hops.
func (q *NodeQuery[T]) WithMinDepth(n int) *NodeQuery[T] {
	if q.err != nil {
		return q
	}
	if n < 0 {
		return q.with(q.plan, fmt.Errorf("traversal depth must be >= 0, got %d", n))
	}
	plan, err := adjustTraverse(q.plan, func(op *query.TraverseOp) { op.MinDepth = n })
	return q.with(plan, err)
}

// WithStrategy selects the traversal lowering strategy.
func (q *NodeQuery[T]) WithStrategy(s query.Strategy) *NodeQuery[T] {
	if q.err != nil {
		return q
	}
	plan, err := adjustTraverse(q.plan, func(op *query.TraverseOp) { op.Strategy = s })
	return q.with(plan, err)
}

// Undirected ignores the relationship's declared direction.
func (q *NodeQuery[T]) Undirected() *NodeQuery[T] {
	if q.err != nil {
		return q
	}
	plan, err := adjustTraverse(q.plan, func(op *query.TraverseOp) { op.Undirected = true })
	return q.with(plan, err)
}

// PathQuery is a lazily-evaluated traversal yielding triples.
type PathQuery[S, R, T any] struct {
	g    *Graph
	plan *query.Plan
	err  error
}

func (q *PathQuery[S, R, T]) with(plan *query.Plan, err error) *PathQuery[S, R, T] {
	if q.err != nil {
		return q
	}
	return &PathQuery[S, R, T]{g: q.g, plan: plan, err: err}
}

// Where filters hops; predicates may reference the hop's components through
// query.SourceProp, query.RelProp and query.TargetProp. Relationship
// property filters require a hop bound of exactly 1.
func (q *PathQuery[S, R, T]) Where(pred query.Expr) *PathQuery[S, R, T] {
	err := q.err
	if err == nil {
		err = cypher.CheckShape(pred)
	}
	return q.with(q.plan.Extend(query.FilterOp{Pred: pred}), err)
}

// WithDepth caps the traversal at n hops; 0 yields no triples at all.
func (q *PathQuery[S, R, T]) WithDepth(n int) *PathQuery[S, R, T] {
	if q.err != nil {
		return q
	}
	if n < 0 {
		return q.with(q.plan, fmt.Errorf("traversal depth must be >= 0, got %d", n))
	}
	plan, err := adjustTraverse(q.plan, func(op *query.TraverseOp) { op.MaxDepth = n })
	return q.with(plan, err)
}

// WithMinDepth sets the minimum number of hops.
func (q *PathQuery[S, R, T]) WithMinDepth(n int) *PathQuery[S, R, T] {
	if q.err != nil {
		return q
	}
	plan, err := adjustTraverse(q.plan, func(op *query.TraverseOp) { op.MinDepth = n })
	return q.with(plan, err)
}

// WithStrategy selects the traversal lowering strategy.
func (q *PathQuery[S, R, T]) WithStrategy(s query.Strategy) *PathQuery[S, R, T] {
	if q.err != nil {
		return q
	}
	plan, err := adjustTraverse(q.plan, func(op *query.TraverseOp) { op.Strategy = s })
	return q.with(plan, err)
}

// Undirected ignores the relationship's declared direction.
func (q *PathQuery[S, R, T]) Undirected() *PathQuery[S, R, T] {
	if q.err != nil {
		return q
	}
	plan, err := adjustTraverse(q.plan, func(op *query.TraverseOp) { op.Undirected = true })
	return q.with(plan, err)
}

// Take keeps at most n triples.
func (q *PathQuery[S, R, T]) Take(n int) *PathQuery[S, R, T] {
	if n < 0 {
		return q.with(q.plan, fmt.Errorf("take count must be >= 0, got %d", n))
	}
	return q.with(q.plan.Extend(query.TakeOp{N: n}), q.err)
}

// ToList executes the traversal and materializes every triple. Triple order
// is unspecified; apply ordering to materialized results if it matters.
func (q *PathQuery[S, R, T]) ToList(ctx context.Context) ([]Triple[S, R, T], error) {
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

	srcInfo, err := registry.LookupFor[S](q.g.reg)
	if err != nil {
		return nil, err
	}
	relInfo, err := registry.LookupFor[R](q.g.reg)
	if err != nil {
		return nil, err
	}
	tgtInfo, err := registry.LookupFor[T](q.g.reg)
	if err != nil {
		return nil, err
	}

	var out []Triple[S, R, T]
	for _, row := range res.Rows {
		if len(row) == 3 {
			// Single-hop form: explicit (source, relationship, target) row.
			tr, err := buildTriple[S, R, T](srcInfo, relInfo, tgtInfo, row[0], row[1], row[2])
			if err != nil {
				return nil, err
			}
			out = append(out, tr)
			continue
		}
		// Path form: decompose each relationship into one triple. Multi-hop
		// chains assume homogeneous labels along the path (source and target
		// models alternate endpoint roles).
		p, ok := row[0].(transport.Path)
		if !ok {
			return nil, &MappingError{Type: "path", Detail: fmt.Sprintf("row holds %T, not a path", row[0])}
		}
		byID := make(map[string]transport.Node, len(p.Nodes))
		for _, n := range p.Nodes {
			byID[n.ID] = n
		}
		for _, rel := range p.Relationships {
			tr, err := buildTriple[S, R, T](srcInfo, relInfo, tgtInfo, byID[rel.StartID], rel, byID[rel.EndID])
			if err != nil {
				return nil, err
			}
			out = append(out, tr)
		}
	}
	return out, nil
}

// Count returns the number of triples the traversal would yield.
func (q *PathQuery[S, R, T]) Count(ctx context.Context) (int64, error) {
	list, err := q.ToList(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func buildTriple[S, R, T any](srcInfo, relInfo, tgtInfo *registry.TypeInfo, src, rel, tgt any) (Triple[S, R, T], error) {
	s, err := hydrateEntity[S](srcInfo, src)
	if err != nil {
		return Triple[S, R, T]{}, err
	}
	r, err := hydrateEntity[R](relInfo, rel)
	if err != nil {
		return Triple[S, R, T]{}, err
	}
	t, err := hydrateEntity[T](tgtInfo, tgt)
	if err != nil {
		return Triple[S, R, T]{}, err
	}
	return Triple[S, R, T]{Source: s, Rel: r, Target: t}, nil
}
