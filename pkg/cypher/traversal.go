package cypher

// Traversal lowering. Bounded-depth traversals become fixed- or
// variable-length relationship patterns; shortest-path strategies become
// shortestPath() or apoc.algo.dijkstra invocations between matched endpoints.
//
// The Automatic strategy follows one fixed rule: hop bounds up to
// query.AutomaticPatternLimit lower to a variable-length pattern, deeper
// bounds lower to shortestPath. The rule never varies per query.

import (
	"fmt"
	"strings"

	"github.com/orneryd/ratatoskr/pkg/query"
)

func (c *Compiler) compileTraversal(st *planState) (*Program, error) {
	trav := st.trav

	min := trav.MinDepth
	if min < 0 {
		min = 1
	}
	max := trav.MaxDepth
	if max == query.DepthUnset {
		max = 1
	}
	if max < 0 {
		return nil, errUnsupported("WithDepth", "hop bound must be >= 0")
	}
	if min > max {
		return nil, errUnsupported("traversal depth", "minimum hops %d exceed maximum %d", min, max)
	}

	// Hop bound 0 means node-only: no relationship is traversed at all. A
	// path query over zero hops has no triples to yield.
	if max == 0 {
		if trav.PathResult {
			return &Program{Shape: ShapeTriple, Empty: true}, nil
		}
		return c.compileNodeOnly(st)
	}

	left, right, err := c.arrows(st)
	if err != nil {
		return nil, err
	}

	switch effectiveStrategy(trav.Strategy, max) {
	case query.ShortestPath:
		return c.compileShortestPath(st, max, left, right)
	case query.WeightedShortestPath:
		return c.compileDijkstra(st, left, right)
	default:
		return c.compilePattern(st, min, max, left, right)
	}
}

// effectiveStrategy applies the documented Automatic rule.
func effectiveStrategy(s query.Strategy, max int) query.Strategy {
	switch s {
	case query.ShortestPath, query.WeightedShortestPath:
		return s
	case query.Automatic:
		if max > query.AutomaticPatternLimit {
			return query.ShortestPath
		}
		return query.BreadthFirst
	default:
		return query.BreadthFirst
	}
}

// arrows returns the pattern's left and right connectors, inferring the
// direction from the relationship model's declared endpoints.
func (c *Compiler) arrows(st *planState) (string, string, error) {
	if st.trav.Undirected {
		return "-", "-", nil
	}
	switch st.srcInfo.Type {
	case st.relInfo.Start:
		if st.tgtInfo.Type != st.relInfo.End {
			return "", "", errUnsupported(
				fmt.Sprintf("traversal target %s", st.tgtInfo.Type.Name()),
				"relationship %s ends at %s", st.relInfo.Label, st.relInfo.End.Name())
		}
		return "-", "->", nil
	case st.relInfo.End:
		if st.tgtInfo.Type != st.relInfo.Start {
			return "", "", errUnsupported(
				fmt.Sprintf("traversal target %s", st.tgtInfo.Type.Name()),
				"relationship %s starts at %s", st.relInfo.Label, st.relInfo.Start.Name())
		}
		return "<-", "-", nil
	default:
		return "", "", errUnsupported(
			fmt.Sprintf("traversal source %s", st.srcInfo.Type.Name()),
			"relationship %s connects %s to %s", st.relInfo.Label,
			st.relInfo.Start.Name(), st.relInfo.End.Name())
	}
}

// compileNodeOnly handles hop bound 0 for target-node output: the traversal
// collapses to a query over the source nodes themselves. That only makes
// sense when source and target are the same model; otherwise filters written
// against the target would resolve against the wrong type.
func (c *Compiler) compileNodeOnly(st *planState) (*Program, error) {
	if st.tgtInfo.Type != st.srcInfo.Type {
		return nil, errUnsupported("WithDepth",
			"zero hops yield the source nodes; target %s does not match source %s",
			st.tgtInfo.Type.Name(), st.srcInfo.Type.Name())
	}
	t := newTranslator()
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s)", st.srcInfo.Label)
	t.bind(query.BindEntity, "n", st.srcInfo)
	t.bind(query.BindSource, "n", st.srcInfo)
	t.bind(query.BindTarget, "n", st.tgtInfo)

	filters := append(append([]query.Expr{}, st.preFilters...), st.postFilters...)
	if err := writeWhere(&b, t, filters); err != nil {
		return nil, err
	}
	shape, err := writeTail(&b, t, st, "n")
	if err != nil {
		return nil, err
	}
	return &Program{Text: b.String(), Params: t.params, Shape: shape}, nil
}

// compilePattern lowers bounded-depth traversal to a relationship pattern.
// Single-hop traversals bind the relationship variable so filters can reach
// its properties; variable-length traversals cannot, and path output switches
// from explicit triples to a path value the mapper decomposes.
func (c *Compiler) compilePattern(st *planState, min, max int, left, right string) (*Program, error) {
	t := newTranslator()
	var b strings.Builder
	singleHop := min == 1 && max == 1

	t.bind(query.BindSource, "n", st.srcInfo)
	t.bind(query.BindTarget, "m", st.tgtInfo)

	var rel string
	if singleHop {
		rel = fmt.Sprintf("[r0:%s]", st.relInfo.Label)
		t.bind(query.BindRel, "r0", st.relInfo)
	} else {
		rel = fmt.Sprintf("[:%s*%d..%d]", st.relInfo.Label, min, max)
	}

	pattern := fmt.Sprintf("(n:%s)%s%s%s(m:%s)", st.srcInfo.Label, left, rel, right, st.tgtInfo.Label)
	if st.trav.PathResult && !singleHop {
		fmt.Fprintf(&b, "MATCH p = %s", pattern)
	} else {
		fmt.Fprintf(&b, "MATCH %s", pattern)
	}

	if err := c.writeTraversalWhere(&b, t, st); err != nil {
		return nil, err
	}

	if st.trav.PathResult {
		if st.project != nil || st.groupKey != nil {
			return nil, errUnsupported("Select on TraversePath", "path queries yield triples, not projections")
		}
		if singleHop {
			b.WriteString(" RETURN n, r0, m")
			return c.finishPath(&b, t, st, ShapeTriple)
		}
		b.WriteString(" RETURN p")
		return c.finishPath(&b, t, st, ShapePath)
	}

	shape, err := writeTail(&b, t, st, "m")
	if err != nil {
		return nil, err
	}
	return &Program{Text: b.String(), Params: t.params, Shape: shape}, nil
}

// writeTraversalWhere translates pre-traversal filters against the source
// variable and post-traversal filters against the target, merging both into
// one WHERE clause. The entity binding ends up on the target, which is what
// every downstream clause ranges over.
func (c *Compiler) writeTraversalWhere(b *strings.Builder, t *translator, st *planState) error {
	t.bind(query.BindEntity, "n", st.srcInfo)
	frags := make([]string, 0, len(st.preFilters)+len(st.postFilters))
	for _, f := range st.preFilters {
		frag, err := t.translate(f)
		if err != nil {
			return err
		}
		frags = append(frags, frag)
	}
	t.bind(query.BindEntity, "m", st.tgtInfo)
	for _, f := range st.postFilters {
		frag, err := t.translate(f)
		if err != nil {
			return err
		}
		frags = append(frags, frag)
	}
	if len(frags) > 0 {
		fmt.Fprintf(b, " WHERE %s", strings.Join(frags, " AND "))
	}
	return nil
}

// finishPath appends pagination to a path-producing query. Ordering of path
// rows is the engine's business; an explicit OrderBy on triples is not a
// supported shape.
func (c *Compiler) finishPath(b *strings.Builder, t *translator, st *planState, shape Shape) (*Program, error) {
	if len(st.orders) > 0 {
		return nil, errUnsupported("OrderBy on TraversePath", "triple order is unspecified; sort materialized results instead")
	}
	if st.skip != nil {
		fmt.Fprintf(b, " SKIP %s", t.param(*st.skip))
	}
	if st.take != nil {
		fmt.Fprintf(b, " LIMIT %s", t.param(*st.take))
	}
	return &Program{Text: b.String(), Params: t.params, Shape: shape}, nil
}

// compileShortestPath lowers to a shortestPath() invocation between matched
// endpoints.
func (c *Compiler) compileShortestPath(st *planState, max int, left, right string) (*Program, error) {
	t := newTranslator()
	var b strings.Builder

	t.bind(query.BindSource, "n", st.srcInfo)
	t.bind(query.BindTarget, "m", st.tgtInfo)

	fmt.Fprintf(&b, "MATCH (n:%s), (m:%s), p = shortestPath((n)%s[:%s*..%d]%s(m))",
		st.srcInfo.Label, st.tgtInfo.Label, left, st.relInfo.Label, max, right)

	if err := c.writeTraversalWhere(&b, t, st); err != nil {
		return nil, err
	}

	if st.trav.PathResult {
		b.WriteString(" RETURN p")
		return c.finishPath(&b, t, st, ShapePath)
	}
	shape, err := writeTail(&b, t, st, "m")
	if err != nil {
		return nil, err
	}
	return &Program{Text: b.String(), Params: t.params, Shape: shape}, nil
}

// compileDijkstra lowers the weighted variant to apoc.algo.dijkstra using the
// relationship model's declared weight property.
func (c *Compiler) compileDijkstra(st *planState, left, right string) (*Program, error) {
	if st.relInfo.WeightProp == "" {
		return nil, errUnsupported("WeightedShortestPath",
			"relationship %s declares no weight property (tag one with `graph:\"...,weight\"`)", st.relInfo.Label)
	}

	t := newTranslator()
	var b strings.Builder
	t.bind(query.BindSource, "n", st.srcInfo)
	t.bind(query.BindTarget, "m", st.tgtInfo)

	fmt.Fprintf(&b, "MATCH (n:%s), (m:%s)", st.srcInfo.Label, st.tgtInfo.Label)

	if err := c.writeTraversalWhere(&b, t, st); err != nil {
		return nil, err
	}

	relSpec := st.relInfo.Label
	if left == "<-" {
		relSpec = "<" + relSpec
	} else if right == "->" {
		relSpec = relSpec + ">"
	}
	fmt.Fprintf(&b, " CALL apoc.algo.dijkstra(n, m, %s, %s) YIELD path, weight RETURN path",
		t.param(relSpec), t.param(st.relInfo.WeightProp))

	if st.skip != nil {
		fmt.Fprintf(&b, " SKIP %s", t.param(*st.skip))
	}
	if st.take != nil {
		fmt.Fprintf(&b, " LIMIT %s", t.param(*st.take))
	}
	return &Program{Text: b.String(), Params: t.params, Shape: ShapePath}, nil
}
