package query

// Reference evaluator for the expression IR.
//
// Eval gives each expression node its meaning over plain Go values. It is the
// semantic yardstick the compiler is tested against: differential tests run a
// predicate here over an in-memory model and compare the survivors with what
// the compiled Cypher selects. The production execution path never calls
// Eval; unsupported query shapes fail translation instead of degrading to
// client-side filtering.

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Resolver supplies the value of a property reference during evaluation.
type Resolver func(b Binding, field string) (any, error)

// Eval evaluates a scalar expression. Aggregate expressions are group-level
// constructs and are rejected here.
func Eval(e Expr, resolve Resolver) (any, error) {
	switch x := e.(type) {
	case ValueExpr:
		return x.V, nil
	case PropExpr:
		return resolve(x.Binding, x.Field)
	case BinaryExpr:
		return evalBinary(x, resolve)
	case UnaryExpr:
		return evalUnary(x, resolve)
	case CallExpr:
		return evalCall(x, resolve)
	case CaseExpr:
		cond, err := Eval(x.Cond, resolve)
		if err != nil {
			return nil, err
		}
		b, ok := cond.(bool)
		if !ok {
			return nil, fmt.Errorf("CASE condition is %T, not bool", cond)
		}
		if b {
			return Eval(x.Then, resolve)
		}
		return Eval(x.Else, resolve)
	case AggExpr:
		return nil, fmt.Errorf("aggregate %s cannot be evaluated as a scalar", x.Fn)
	default:
		return nil, fmt.Errorf("unknown expression node %T", e)
	}
}

// EvalPredicate evaluates a boolean expression; non-boolean results are an
// error, matching the compiler's treatment of non-predicate filters.
func EvalPredicate(e Expr, resolve Resolver) (bool, error) {
	v, err := Eval(e, resolve)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("predicate evaluated to %T, not bool", v)
	}
	return b, nil
}

func evalBinary(x BinaryExpr, resolve Resolver) (any, error) {
	// AND/OR short-circuit like the engine does.
	if x.Op == OpAnd || x.Op == OpOr {
		l, err := EvalPredicate(x.L, resolve)
		if err != nil {
			return nil, err
		}
		if (x.Op == OpAnd && !l) || (x.Op == OpOr && l) {
			return l, nil
		}
		return EvalPredicate(x.R, resolve)
	}

	l, err := Eval(x.L, resolve)
	if err != nil {
		return nil, err
	}
	r, err := Eval(x.R, resolve)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		c, err := compare(l, r)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case OpEq:
			return c == 0, nil
		case OpNe:
			return c != 0, nil
		case OpLt:
			return c < 0, nil
		case OpLe:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case OpAdd:
		if ls, ok := l.(string); ok {
			rs, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("cannot add %T to string", r)
			}
			return ls + rs, nil
		}
		return arith(l, r, func(a, b float64) float64 { return a + b })
	case OpSub:
		return arith(l, r, func(a, b float64) float64 { return a - b })
	case OpMul:
		return arith(l, r, func(a, b float64) float64 { return a * b })
	case OpDiv:
		return arith(l, r, func(a, b float64) float64 { return a / b })
	case OpMod:
		return arith(l, r, math.Mod)
	case OpPow:
		return arith(l, r, math.Pow)
	case OpContains, OpStartsWith, OpEndsWith:
		ls, lok := l.(string)
		rs, rok := r.(string)
		if !lok || !rok {
			return nil, fmt.Errorf("string operator %s applied to %T and %T", x.Op, l, r)
		}
		switch x.Op {
		case OpContains:
			return strings.Contains(ls, rs), nil
		case OpStartsWith:
			return strings.HasPrefix(ls, rs), nil
		default:
			return strings.HasSuffix(ls, rs), nil
		}
	default:
		return nil, fmt.Errorf("unknown binary operator %q", x.Op)
	}
}

func evalUnary(x UnaryExpr, resolve Resolver) (any, error) {
	v, err := Eval(x.X, resolve)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case OpNot:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("NOT applied to %T", v)
		}
		return !b, nil
	case OpNeg:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return -f, nil
	default:
		return nil, fmt.Errorf("unknown unary operator %q", x.Op)
	}
}

func evalCall(x CallExpr, resolve Resolver) (any, error) {
	args := make([]any, len(x.Args))
	for i, a := range x.Args {
		v, err := Eval(a, resolve)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	str := func(i int) (string, error) {
		s, ok := args[i].(string)
		if !ok {
			return "", fmt.Errorf("%s: argument %d is %T, not string", x.Fn, i, args[i])
		}
		return s, nil
	}
	num := func(i int) (float64, error) { return toFloat(args[i]) }

	switch x.Fn {
	case FuncUpper:
		s, err := str(0)
		return strings.ToUpper(s), err
	case FuncLower:
		s, err := str(0)
		return strings.ToLower(s), err
	case FuncTrim:
		s, err := str(0)
		return strings.TrimSpace(s), err
	case FuncLength:
		s, err := str(0)
		return int64(len(s)), err
	case FuncSubstring:
		s, err := str(0)
		if err != nil {
			return nil, err
		}
		start, err := num(1)
		if err != nil {
			return nil, err
		}
		from := int(start)
		if from < 0 || from > len(s) {
			return "", nil
		}
		end := len(s)
		if len(args) == 3 {
			length, err := num(2)
			if err != nil {
				return nil, err
			}
			if e := from + int(length); e < end {
				end = e
			}
		}
		return s[from:end], nil
	case FuncReplace:
		s, err := str(0)
		if err != nil {
			return nil, err
		}
		old, err := str(1)
		if err != nil {
			return nil, err
		}
		new, err := str(2)
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(s, old, new), nil
	case FuncAbs:
		f, err := num(0)
		return math.Abs(f), err
	case FuncCeil:
		f, err := num(0)
		return math.Ceil(f), err
	case FuncFloor:
		f, err := num(0)
		return math.Floor(f), err
	case FuncRound:
		f, err := num(0)
		return math.Round(f), err
	case FuncSqrt:
		f, err := num(0)
		return math.Sqrt(f), err
	case FuncNow:
		return time.Now(), nil
	case FuncToday:
		return time.Now().Truncate(24 * time.Hour), nil
	case FuncYear, FuncMonth, FuncDay:
		t, ok := args[0].(time.Time)
		if !ok {
			return nil, fmt.Errorf("%s: argument is %T, not time.Time", x.Fn, args[0])
		}
		switch x.Fn {
		case FuncYear:
			return int64(t.Year()), nil
		case FuncMonth:
			return int64(t.Month()), nil
		default:
			return int64(t.Day()), nil
		}
	default:
		return nil, fmt.Errorf("unknown function %q", x.Fn)
	}
}

func arith(l, r any, f func(a, b float64) float64) (any, error) {
	a, err := toFloat(l)
	if err != nil {
		return nil, err
	}
	b, err := toFloat(r)
	if err != nil {
		return nil, err
	}
	out := f(a, b)
	// Integer inputs with an integral result stay integral, matching how the
	// engine returns whole numbers from integer arithmetic.
	if isInt(l) && isInt(r) && out == math.Trunc(out) {
		return int64(out), nil
	}
	return out, nil
}

func compare(l, r any) (int, error) {
	if lf, err := toFloat(l); err == nil {
		rf, err := toFloat(r)
		if err != nil {
			return 0, fmt.Errorf("cannot compare %T with %T", l, r)
		}
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	switch lv := l.(type) {
	case string:
		rv, ok := r.(string)
		if !ok {
			return 0, fmt.Errorf("cannot compare string with %T", r)
		}
		return strings.Compare(lv, rv), nil
	case bool:
		rv, ok := r.(bool)
		if !ok {
			return 0, fmt.Errorf("cannot compare bool with %T", r)
		}
		switch {
		case lv == rv:
			return 0, nil
		case rv:
			return -1, nil
		default:
			return 1, nil
		}
	case time.Time:
		rv, ok := r.(time.Time)
		if !ok {
			return 0, fmt.Errorf("cannot compare time.Time with %T", r)
		}
		return lv.Compare(rv), nil
	default:
		return 0, fmt.Errorf("cannot compare values of type %T", l)
	}
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64:
		return true
	}
	return false
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", v)
	}
}
