package cypher

// Plan-build-time validation. Builder methods call CheckShape the moment an
// expression is attached to a plan, so structurally unsupported constructs
// (unknown operators, unknown functions, bad arity, misplaced aggregates)
// fail immediately. Field-to-property resolution needs the final traversal
// bindings and happens at compile time instead, which is still client-side
// and still before any network interaction.

import (
	"fmt"

	"github.com/orneryd/ratatoskr/pkg/query"
)

// CheckShape validates an expression's structure against the supported set.
// Aggregates are rejected; they only belong in grouped projections and
// aggregate terminals.
func CheckShape(e query.Expr) error {
	return checkShape(e, false)
}

// CheckProjectionShape validates projection columns, with aggregates
// permitted at the top level.
func CheckProjectionShape(cols []query.Projection) error {
	for _, col := range cols {
		if col.Name == "" {
			return errUnsupported("projection", "column has no name; use query.As")
		}
		if err := checkShape(col.Expr, true); err != nil {
			return err
		}
	}
	return nil
}

func checkShape(e query.Expr, allowAgg bool) error {
	switch x := e.(type) {
	case query.ValueExpr, query.PropExpr:
		return nil

	case query.BinaryExpr:
		if !knownBinaryOp(x.Op) {
			return errUnsupported(fmt.Sprintf("binary operator %q", x.Op), "")
		}
		if err := checkShape(x.L, false); err != nil {
			return err
		}
		return checkShape(x.R, false)

	case query.UnaryExpr:
		if x.Op != query.OpNot && x.Op != query.OpNeg {
			return errUnsupported(fmt.Sprintf("unary operator %q", x.Op), "")
		}
		return checkShape(x.X, false)

	case query.CallExpr:
		if err := checkCallShape(x); err != nil {
			return err
		}
		for _, a := range x.Args {
			if err := checkShape(a, false); err != nil {
				return err
			}
		}
		return nil

	case query.CaseExpr:
		if err := checkShape(x.Cond, false); err != nil {
			return err
		}
		if err := checkShape(x.Then, false); err != nil {
			return err
		}
		return checkShape(x.Else, false)

	case query.AggExpr:
		if !allowAgg {
			return errUnsupported(fmt.Sprintf("aggregate %s", x.Fn),
				"aggregates are only valid in grouped projections and aggregate terminals")
		}
		if !knownAggFunc(x.Fn) {
			return errUnsupported(fmt.Sprintf("aggregate %q", x.Fn), "")
		}
		if x.Arg == nil {
			if x.Fn != query.AggCount {
				return errUnsupported(fmt.Sprintf("aggregate %s", x.Fn), "missing argument")
			}
			return nil
		}
		return checkShape(x.Arg, false)

	default:
		return errUnsupported(fmt.Sprintf("expression node %T", e), "")
	}
}

func checkCallShape(x query.CallExpr) error {
	want := -1
	switch x.Fn {
	case query.FuncNow, query.FuncToday:
		want = 0
	case query.FuncUpper, query.FuncLower, query.FuncTrim, query.FuncLength,
		query.FuncAbs, query.FuncCeil, query.FuncFloor, query.FuncRound, query.FuncSqrt,
		query.FuncYear, query.FuncMonth, query.FuncDay:
		want = 1
	case query.FuncReplace:
		want = 3
	case query.FuncSubstring:
		if len(x.Args) != 2 && len(x.Args) != 3 {
			return errUnsupported("function substring", "expects substring(s, start[, length])")
		}
		return nil
	default:
		return errUnsupported(fmt.Sprintf("function %q", x.Fn), "")
	}
	if len(x.Args) != want {
		return errUnsupported(fmt.Sprintf("function %s", x.Fn), "expects %d argument(s), got %d", want, len(x.Args))
	}
	return nil
}
