// Package query defines Ratatoskr's query intermediate representation.
//
// A query is described twice over: a Plan is an immutable tree of operation
// nodes (source, filter, projection, ordering, pagination, grouping,
// traversal), and each filter/projection carries an expression tree (Expr).
// Both are plain tagged unions built through typed constructors; there is no
// reflection-based expression walking anywhere on the query path.
//
// Plans are persistent: every builder step wraps the previous plan in a new
// node and never mutates an ancestor, so a partially-built query can be
// shared and extended along several branches safely:
//
//	adults := graph.Nodes[Person](g).Where(query.Ge(query.Prop("Age"), 18))
//	names := adults.OrderBy("Name")   // does not affect adults
//	count, err := adults.Count(ctx)   // adults is still just the filter
//
// Nothing in this package talks to the database. Compilation to Cypher lives
// in pkg/cypher; execution lives in pkg/graph.
package query

import "reflect"

// SourceKind says what a plan root matches.
type SourceKind string

const (
	SourceNodes         SourceKind = "nodes"
	SourceRelationships SourceKind = "relationships"
)

// Strategy selects how a traversal is lowered to Cypher.
type Strategy string

const (
	// DepthFirst and BreadthFirst both lower to a bounded variable-length
	// relationship pattern; the hop bound caps the expansion either way and
	// the engine is free to pick the expansion order.
	DepthFirst   Strategy = "depth-first"
	BreadthFirst Strategy = "breadth-first"
	// ShortestPath lowers to a shortestPath() invocation between the matched
	// endpoints. WeightedShortestPath lowers to apoc.algo.dijkstra using the
	// relationship model's declared weight property.
	ShortestPath         Strategy = "shortest-path"
	WeightedShortestPath Strategy = "weighted-shortest-path"
	// Automatic picks a lowering deterministically: hop bounds up to
	// AutomaticPatternLimit use a variable-length pattern, anything deeper
	// uses shortestPath. The rule is fixed; it never varies per query shape.
	Automatic Strategy = "automatic"
)

// AutomaticPatternLimit is the largest hop bound the Automatic strategy
// still lowers to a plain variable-length pattern.
const AutomaticPatternLimit = 4

// DepthUnset marks a traversal whose hop bound was never set; it compiles
// as depth 1 (immediate neighbors).
const DepthUnset = -1

// Op is one node kind in a plan tree.
type Op interface{ opNode() }

// SourceOp is the root of every plan: match all nodes or relationships of a
// model type.
type SourceOp struct {
	Kind SourceKind
	Type reflect.Type
}

// FilterOp keeps rows for which Pred evaluates to true.
type FilterOp struct{ Pred Expr }

// ProjectOp replaces entity rows with the projected columns.
type ProjectOp struct{ Cols []Projection }

// OrderOp sorts by one key. Chained marks a ThenBy continuation of the
// previous OrderOp rather than a fresh sort.
type OrderOp struct {
	Field   string
	Desc    bool
	Chained bool
}

// SkipOp drops the first N rows.
type SkipOp struct{ N int }

// TakeOp keeps at most N rows.
type TakeOp struct{ N int }

// DistinctOp removes duplicate rows.
type DistinctOp struct{}

// GroupOp groups rows by a key expression; the following projection may use
// aggregate expressions over each group.
type GroupOp struct{ Key Expr }

// TraverseOp expands from the current node rows across a relationship model.
// Target is the declared node model on the far side. PathResult selects
// triple output (TraversePath) instead of target-node output (Traverse).
type TraverseOp struct {
	Rel        reflect.Type
	Target     reflect.Type
	MinDepth   int
	MaxDepth   int // DepthUnset means 1
	Strategy   Strategy
	Undirected bool
	PathResult bool
}

func (SourceOp) opNode()   {}
func (FilterOp) opNode()   {}
func (ProjectOp) opNode()  {}
func (OrderOp) opNode()    {}
func (SkipOp) opNode()     {}
func (TakeOp) opNode()     {}
func (DistinctOp) opNode() {}
func (GroupOp) opNode()    {}
func (TraverseOp) opNode() {}

// Plan is one node of the immutable operation tree. The zero value is not
// usable; start from NewPlan.
type Plan struct {
	op   Op
	prev *Plan
}

// NewPlan starts a plan from a source operation.
func NewPlan(src SourceOp) *Plan {
	return &Plan{op: src}
}

// Extend returns a new plan whose last operation is op. The receiver is
// never modified.
func (p *Plan) Extend(op Op) *Plan {
	return &Plan{op: op, prev: p}
}

// Op returns this node's operation.
func (p *Plan) Op() Op { return p.op }

// ReplaceTop returns a new plan identical to p but with the last operation
// swapped for op. Used by builder refinements (WithDepth and friends) that
// adjust the traversal they follow; p itself is untouched.
func (p *Plan) ReplaceTop(op Op) *Plan {
	return &Plan{op: op, prev: p.prev}
}

// Ops returns the operations in application order, source first.
func (p *Plan) Ops() []Op {
	var n int
	for q := p; q != nil; q = q.prev {
		n++
	}
	ops := make([]Op, n)
	for q := p; q != nil; q = q.prev {
		n--
		ops[n] = q.op
	}
	return ops
}

// Source returns the plan's root source operation.
func (p *Plan) Source() SourceOp {
	q := p
	for q.prev != nil {
		q = q.prev
	}
	return q.op.(SourceOp)
}
