package cypher

// Expression lowering. Each IR node kind has one case below; values are
// always emitted as bound parameters ($p0, $p1, ...) so the engine can reuse
// plans and no literal ever lands in query text.

import (
	"fmt"

	"github.com/orneryd/ratatoskr/pkg/query"
	"github.com/orneryd/ratatoskr/pkg/registry"
)

// binding ties a pattern variable to the model type it ranges over.
type binding struct {
	varName string
	info    *registry.TypeInfo
}

// translator lowers expression trees into Cypher fragments, accumulating
// bound parameters as it goes. One translator serves one compiled program so
// parameter names stay unique across all of its fragments.
type translator struct {
	params   map[string]any
	next     int
	bindings map[query.Binding]binding
	allowAgg bool
}

func newTranslator() *translator {
	return &translator{
		params:   make(map[string]any),
		bindings: make(map[query.Binding]binding),
	}
}

func (t *translator) bind(b query.Binding, varName string, info *registry.TypeInfo) {
	t.bindings[b] = binding{varName: varName, info: info}
}

func (t *translator) param(v any) string {
	name := fmt.Sprintf("p%d", t.next)
	t.next++
	t.params[name] = v
	return "$" + name
}

func (t *translator) translate(e query.Expr) (string, error) {
	switch x := e.(type) {
	case query.ValueExpr:
		return t.param(x.V), nil

	case query.PropExpr:
		b, ok := t.bindings[x.Binding]
		if !ok {
			return "", errUnsupported(fmt.Sprintf("property reference %q", x.Field),
				"binding %q is not available in this query", x.Binding)
		}
		prop, err := b.info.Prop(x.Field)
		if err != nil {
			return "", errUnsupported(fmt.Sprintf("field %s.%s", b.info.Type.Name(), x.Field),
				"field is not mapped to a graph property")
		}
		return b.varName + "." + prop, nil

	case query.BinaryExpr:
		l, err := t.translate(x.L)
		if err != nil {
			return "", err
		}
		r, err := t.translate(x.R)
		if err != nil {
			return "", err
		}
		if !knownBinaryOp(x.Op) {
			return "", errUnsupported(fmt.Sprintf("binary operator %q", x.Op), "")
		}
		return fmt.Sprintf("(%s %s %s)", l, x.Op, r), nil

	case query.UnaryExpr:
		inner, err := t.translate(x.X)
		if err != nil {
			return "", err
		}
		switch x.Op {
		case query.OpNot:
			return fmt.Sprintf("(NOT %s)", inner), nil
		case query.OpNeg:
			return fmt.Sprintf("(-%s)", inner), nil
		default:
			return "", errUnsupported(fmt.Sprintf("unary operator %q", x.Op), "")
		}

	case query.CallExpr:
		return t.translateCall(x)

	case query.CaseExpr:
		cond, err := t.translate(x.Cond)
		if err != nil {
			return "", err
		}
		then, err := t.translate(x.Then)
		if err != nil {
			return "", err
		}
		els, err := t.translate(x.Else)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", cond, then, els), nil

	case query.AggExpr:
		if !t.allowAgg {
			return "", errUnsupported(fmt.Sprintf("aggregate %s", x.Fn),
				"aggregates are only valid in grouped projections and aggregate terminals")
		}
		if x.Arg == nil {
			if x.Fn != query.AggCount {
				return "", errUnsupported(fmt.Sprintf("aggregate %s", x.Fn), "missing argument")
			}
			return "count(*)", nil
		}
		// Aggregate arguments are scalar expressions over one group row.
		wasAllowed := t.allowAgg
		t.allowAgg = false
		arg, err := t.translate(x.Arg)
		t.allowAgg = wasAllowed
		if err != nil {
			return "", err
		}
		if !knownAggFunc(x.Fn) {
			return "", errUnsupported(fmt.Sprintf("aggregate %q", x.Fn), "")
		}
		return fmt.Sprintf("%s(%s)", x.Fn, arg), nil

	default:
		return "", errUnsupported(fmt.Sprintf("expression node %T", e), "")
	}
}

func (t *translator) translateCall(x query.CallExpr) (string, error) {
	argText := func() ([]string, error) {
		out := make([]string, len(x.Args))
		for i, a := range x.Args {
			s, err := t.translate(a)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	}

	switch x.Fn {
	case query.FuncNow:
		return "datetime()", nil
	case query.FuncToday:
		return "date()", nil

	// Temporal components are property accessors in Cypher, not functions.
	case query.FuncYear, query.FuncMonth, query.FuncDay:
		if len(x.Args) != 1 {
			return "", errUnsupported(fmt.Sprintf("function %s", x.Fn), "expects exactly one argument")
		}
		inner, err := t.translate(x.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.%s", inner, x.Fn), nil

	case query.FuncUpper, query.FuncLower, query.FuncTrim, query.FuncLength,
		query.FuncAbs, query.FuncCeil, query.FuncFloor, query.FuncRound, query.FuncSqrt:
		if len(x.Args) != 1 {
			return "", errUnsupported(fmt.Sprintf("function %s", x.Fn), "expects exactly one argument")
		}
		args, err := argText()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", x.Fn, args[0]), nil

	case query.FuncSubstring:
		if len(x.Args) != 2 && len(x.Args) != 3 {
			return "", errUnsupported("function substring", "expects substring(s, start[, length])")
		}
		args, err := argText()
		if err != nil {
			return "", err
		}
		if len(args) == 2 {
			return fmt.Sprintf("substring(%s, %s)", args[0], args[1]), nil
		}
		return fmt.Sprintf("substring(%s, %s, %s)", args[0], args[1], args[2]), nil

	case query.FuncReplace:
		if len(x.Args) != 3 {
			return "", errUnsupported("function replace", "expects replace(s, old, new)")
		}
		args, err := argText()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("replace(%s, %s, %s)", args[0], args[1], args[2]), nil

	default:
		return "", errUnsupported(fmt.Sprintf("function %q", x.Fn), "")
	}
}

func knownBinaryOp(op query.BinaryOp) bool {
	switch op {
	case query.OpEq, query.OpNe, query.OpLt, query.OpLe, query.OpGt, query.OpGe,
		query.OpAnd, query.OpOr,
		query.OpAdd, query.OpSub, query.OpMul, query.OpDiv, query.OpMod, query.OpPow,
		query.OpContains, query.OpStartsWith, query.OpEndsWith:
		return true
	}
	return false
}

func knownAggFunc(fn query.AggFunc) bool {
	switch fn {
	case query.AggCount, query.AggSum, query.AggAvg, query.AggMin, query.AggMax:
		return true
	}
	return false
}
