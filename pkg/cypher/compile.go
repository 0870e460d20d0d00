// Package cypher compiles Ratatoskr query plans into parameterized Cypher.
//
// The compiler is pure: Compile walks an immutable plan tree, lowers every
// expression through the translator, assembles MATCH/WHERE/RETURN/ORDER BY/
// SKIP/LIMIT clauses, and returns the finished program text together with its
// bound parameters. Nothing here touches the network; execution belongs to
// pkg/graph.
//
// Compilation either succeeds completely or fails with a *TranslationError
// naming the unsupported construct. There is no partial lowering and no
// client-side fallback for shapes the target language cannot express.
package cypher

import (
	"fmt"
	"strings"

	"github.com/orneryd/ratatoskr/pkg/query"
	"github.com/orneryd/ratatoskr/pkg/registry"
)

// Shape tells the result mapper what each row contains.
type Shape string

const (
	// ShapeEntity rows hold a single node or relationship value.
	ShapeEntity Shape = "entity"
	// ShapeTriple rows hold source, relationship, target (single-hop paths).
	ShapeTriple Shape = "triple"
	// ShapePath rows hold a path value (multi-hop traversals).
	ShapePath Shape = "path"
	// ShapeRows rows hold projected columns.
	ShapeRows Shape = "rows"
	// ShapeNone is a statement with no interesting result (deletes).
	ShapeNone Shape = "none"
)

// Program is a compiled, executable unit: query text plus bound parameters.
// Empty marks a program whose result is known to be empty without asking the
// engine (a zero-hop path traversal); executors must not send it.
type Program struct {
	Text   string
	Params map[string]any
	Shape  Shape
	Empty  bool
}

// Compiler lowers plans against a type registry.
type Compiler struct {
	reg *registry.Registry
}

// NewCompiler creates a compiler over a registry.
func NewCompiler(reg *registry.Registry) *Compiler {
	return &Compiler{reg: reg}
}

// planState is the flattened view of one plan tree, gathered before emission.
type planState struct {
	src     query.SourceOp
	srcInfo *registry.TypeInfo

	trav    *query.TraverseOp
	relInfo *registry.TypeInfo
	tgtInfo *registry.TypeInfo

	preFilters  []query.Expr // filters placed before any traversal
	postFilters []query.Expr // filters on the traversal output
	orders      []query.OrderOp
	skip, take  *int
	distinct    bool
	groupKey    query.Expr
	project     []query.Projection
}

// Compile lowers a plan to a Program.
func (c *Compiler) Compile(p *query.Plan) (*Program, error) {
	st, err := c.gather(p)
	if err != nil {
		return nil, err
	}
	if st.trav != nil {
		return c.compileTraversal(st)
	}
	return c.compileFlat(st)
}

func (c *Compiler) gather(p *query.Plan) (*planState, error) {
	st := &planState{}
	for _, op := range p.Ops() {
		switch o := op.(type) {
		case query.SourceOp:
			st.src = o
			info, err := c.reg.Lookup(o.Type)
			if err != nil {
				return nil, errUnsupported(fmt.Sprintf("source type %s", o.Type.Name()), "%v", err)
			}
			st.srcInfo = info
		case query.FilterOp:
			if st.project != nil {
				return nil, errUnsupported("Where after Select", "filters must precede the projection")
			}
			if st.trav == nil {
				st.preFilters = append(st.preFilters, o.Pred)
			} else {
				st.postFilters = append(st.postFilters, o.Pred)
			}
		case query.TraverseOp:
			if st.trav != nil {
				return nil, errUnsupported("chained Traverse", "only one traversal per query is supported")
			}
			if st.src.Kind != query.SourceNodes {
				return nil, errUnsupported("Traverse", "traversal starts from a node query")
			}
			trav := o
			st.trav = &trav
			relInfo, err := c.reg.Lookup(o.Rel)
			if err != nil {
				return nil, errUnsupported(fmt.Sprintf("relationship type %s", o.Rel.Name()), "%v", err)
			}
			tgtInfo, err := c.reg.Lookup(o.Target)
			if err != nil {
				return nil, errUnsupported(fmt.Sprintf("target type %s", o.Target.Name()), "%v", err)
			}
			st.relInfo, st.tgtInfo = relInfo, tgtInfo
		case query.OrderOp:
			if o.Chained && len(st.orders) == 0 {
				return nil, errUnsupported("ThenBy", "secondary sort keys must follow an OrderBy")
			}
			st.orders = append(st.orders, o)
		case query.SkipOp:
			n := o.N
			st.skip = &n
		case query.TakeOp:
			n := o.N
			st.take = &n
		case query.DistinctOp:
			st.distinct = true
		case query.GroupOp:
			st.groupKey = o.Key
		case query.ProjectOp:
			st.project = o.Cols
		default:
			return nil, errUnsupported(fmt.Sprintf("plan operation %T", op), "")
		}
	}
	if st.srcInfo == nil {
		return nil, errUnsupported("plan", "missing source operation")
	}
	if st.groupKey != nil && st.project == nil {
		return nil, errUnsupported("GroupBy", "grouping must be followed by a projection with aggregate selectors")
	}
	return st, nil
}

// compileFlat emits a query with no traversal: a single node or relationship
// pattern plus the usual clause tail.
func (c *Compiler) compileFlat(st *planState) (*Program, error) {
	t := newTranslator()
	var b strings.Builder
	entityVar := "n"

	if st.src.Kind == query.SourceNodes {
		fmt.Fprintf(&b, "MATCH (n:%s)", st.srcInfo.Label)
	} else {
		entityVar = "r"
		fmt.Fprintf(&b, "MATCH ()-[r:%s]->()", st.srcInfo.Label)
	}
	t.bind(query.BindEntity, entityVar, st.srcInfo)

	if err := writeWhere(&b, t, st.preFilters); err != nil {
		return nil, err
	}
	shape, err := writeTail(&b, t, st, entityVar)
	if err != nil {
		return nil, err
	}
	return &Program{Text: b.String(), Params: t.params, Shape: shape}, nil
}

// writeWhere translates filters and appends a WHERE clause when any exist.
func writeWhere(b *strings.Builder, t *translator, filters []query.Expr) error {
	frags := make([]string, 0, len(filters))
	for _, f := range filters {
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

// writeTail emits RETURN, ORDER BY, SKIP and LIMIT. entityVar is what a bare
// RETURN yields when there is no projection.
func writeTail(b *strings.Builder, t *translator, st *planState, entityVar string) (Shape, error) {
	shape := ShapeEntity
	distinct := ""
	if st.distinct {
		distinct = "DISTINCT "
	}

	if st.project != nil {
		shape = ShapeRows
		cols := make([]string, 0, len(st.project)+1)
		if st.groupKey != nil {
			keyFrag, err := t.translate(st.groupKey)
			if err != nil {
				return "", err
			}
			cols = append(cols, keyFrag+" AS key")
		}
		t.allowAgg = true
		for _, p := range st.project {
			frag, err := t.translate(p.Expr)
			if err != nil {
				return "", err
			}
			cols = append(cols, fmt.Sprintf("%s AS %s", frag, p.Name))
		}
		t.allowAgg = false
		fmt.Fprintf(b, " RETURN %s%s", distinct, strings.Join(cols, ", "))
	} else {
		fmt.Fprintf(b, " RETURN %s%s", distinct, entityVar)
	}

	if len(st.orders) > 0 {
		keys := make([]string, 0, len(st.orders))
		for _, o := range st.orders {
			frag, err := orderKey(t, st, o)
			if err != nil {
				return "", err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			keys = append(keys, frag+" "+dir)
		}
		fmt.Fprintf(b, " ORDER BY %s", strings.Join(keys, ", "))
	}
	if st.skip != nil {
		fmt.Fprintf(b, " SKIP %s", t.param(*st.skip))
	}
	if st.take != nil {
		fmt.Fprintf(b, " LIMIT %s", t.param(*st.take))
	}
	return shape, nil
}

// orderKey resolves an ordering field: a projected column name when the
// projection defines it, otherwise a property of the ranged entity.
func orderKey(t *translator, st *planState, o query.OrderOp) (string, error) {
	for _, p := range st.project {
		if p.Name == o.Field {
			return p.Name, nil
		}
	}
	return t.translate(query.Prop(o.Field))
}
