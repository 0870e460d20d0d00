package query

// Expression IR. Every supported predicate/projector shape has a constructor
// here; anything the constructors cannot express does not exist as far as the
// compiler is concerned, which is what makes fail-fast translation possible.

// Binding says which pattern variable a property reference resolves against.
// Plain node/relationship queries only use BindEntity; path traversals
// additionally expose the source, relationship and target of each hop.
type Binding string

const (
	BindEntity Binding = "entity"
	BindSource Binding = "source"
	BindRel    Binding = "rel"
	BindTarget Binding = "target"
)

// Expr is one node of an expression tree.
type Expr interface{ exprNode() }

// PropExpr references a model field; the compiler resolves the field to a
// graph property through the type registry.
type PropExpr struct {
	Binding Binding
	Field   string
}

// ValueExpr is a literal value. It always compiles to a bound parameter,
// never to inline query text.
type ValueExpr struct{ V any }

// BinaryOp enumerates binary operators.
type BinaryOp string

const (
	OpEq BinaryOp = "="
	OpNe BinaryOp = "<>"
	OpLt BinaryOp = "<"
	OpLe BinaryOp = "<="
	OpGt BinaryOp = ">"
	OpGe BinaryOp = ">="

	OpAnd BinaryOp = "AND"
	OpOr  BinaryOp = "OR"

	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"
	OpPow BinaryOp = "^"

	OpContains   BinaryOp = "CONTAINS"
	OpStartsWith BinaryOp = "STARTS WITH"
	OpEndsWith   BinaryOp = "ENDS WITH"
)

// BinaryExpr applies a binary operator.
type BinaryExpr struct {
	Op   BinaryOp
	L, R Expr
}

// UnaryOp enumerates unary operators.
type UnaryOp string

const (
	OpNot UnaryOp = "NOT"
	OpNeg UnaryOp = "-"
)

// UnaryExpr applies a unary operator.
type UnaryExpr struct {
	Op UnaryOp
	X  Expr
}

// Func enumerates supported scalar functions.
type Func string

const (
	FuncUpper     Func = "toUpper"
	FuncLower     Func = "toLower"
	FuncTrim      Func = "trim"
	FuncSubstring Func = "substring"
	FuncReplace   Func = "replace"
	FuncLength    Func = "size"

	FuncAbs   Func = "abs"
	FuncCeil  Func = "ceil"
	FuncFloor Func = "floor"
	FuncRound Func = "round"
	FuncSqrt  Func = "sqrt"

	FuncNow   Func = "datetime"
	FuncToday Func = "date"
	FuncYear  Func = "year"
	FuncMonth Func = "month"
	FuncDay   Func = "day"
)

// CallExpr invokes a scalar function.
type CallExpr struct {
	Fn   Func
	Args []Expr
}

// CaseExpr is a conditional; it lowers to CASE WHEN ... THEN ... ELSE ... END.
type CaseExpr struct {
	Cond, Then, Else Expr
}

// AggFunc enumerates aggregate functions over a group.
type AggFunc string

const (
	AggCount AggFunc = "count"
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
)

// AggExpr aggregates over the rows of a group. A nil Arg with AggCount
// counts rows (count(*)).
type AggExpr struct {
	Fn  AggFunc
	Arg Expr
}

func (PropExpr) exprNode()   {}
func (ValueExpr) exprNode()  {}
func (BinaryExpr) exprNode() {}
func (UnaryExpr) exprNode()  {}
func (CallExpr) exprNode()   {}
func (CaseExpr) exprNode()   {}
func (AggExpr) exprNode()    {}

// Projection is one named output column.
type Projection struct {
	Expr Expr
	Name string
}

// As names a projected expression.
func As(e Expr, name string) Projection { return Projection{Expr: e, Name: name} }

// lift turns plain Go values into ValueExpr so predicates read naturally:
// query.Gt(query.Prop("Age"), 21) instead of wrapping every literal by hand.
func lift(v any) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	return ValueExpr{V: v}
}

// Prop references a field of the entity the query ranges over.
func Prop(field string) Expr { return PropExpr{Binding: BindEntity, Field: field} }

// SourceProp, RelProp and TargetProp reference hop components inside a
// TraversePath query.
func SourceProp(field string) Expr { return PropExpr{Binding: BindSource, Field: field} }
func RelProp(field string) Expr    { return PropExpr{Binding: BindRel, Field: field} }
func TargetProp(field string) Expr { return PropExpr{Binding: BindTarget, Field: field} }

// Value wraps a literal explicitly. Usually unnecessary; every combinator
// lifts plain values itself.
func Value(v any) Expr { return ValueExpr{V: v} }

// Comparisons.
func Eq(l, r any) Expr { return BinaryExpr{Op: OpEq, L: lift(l), R: lift(r)} }
func Ne(l, r any) Expr { return BinaryExpr{Op: OpNe, L: lift(l), R: lift(r)} }
func Lt(l, r any) Expr { return BinaryExpr{Op: OpLt, L: lift(l), R: lift(r)} }
func Le(l, r any) Expr { return BinaryExpr{Op: OpLe, L: lift(l), R: lift(r)} }
func Gt(l, r any) Expr { return BinaryExpr{Op: OpGt, L: lift(l), R: lift(r)} }
func Ge(l, r any) Expr { return BinaryExpr{Op: OpGe, L: lift(l), R: lift(r)} }

// And chains conjunctions left to right.
func And(exprs ...Expr) Expr { return chain(OpAnd, exprs) }

// Or chains disjunctions left to right.
func Or(exprs ...Expr) Expr { return chain(OpOr, exprs) }

// Not negates a predicate.
func Not(x Expr) Expr { return UnaryExpr{Op: OpNot, X: x} }

func chain(op BinaryOp, exprs []Expr) Expr {
	if len(exprs) == 0 {
		return ValueExpr{V: true}
	}
	e := exprs[0]
	for _, next := range exprs[1:] {
		e = BinaryExpr{Op: op, L: e, R: next}
	}
	return e
}

// Arithmetic.
func Add(l, r any) Expr { return BinaryExpr{Op: OpAdd, L: lift(l), R: lift(r)} }
func Sub(l, r any) Expr { return BinaryExpr{Op: OpSub, L: lift(l), R: lift(r)} }
func Mul(l, r any) Expr { return BinaryExpr{Op: OpMul, L: lift(l), R: lift(r)} }
func Div(l, r any) Expr { return BinaryExpr{Op: OpDiv, L: lift(l), R: lift(r)} }
func Mod(l, r any) Expr { return BinaryExpr{Op: OpMod, L: lift(l), R: lift(r)} }
func Neg(x Expr) Expr   { return UnaryExpr{Op: OpNeg, X: x} }

// String operators and functions.
func Contains(s, sub any) Expr   { return BinaryExpr{Op: OpContains, L: lift(s), R: lift(sub)} }
func StartsWith(s, pre any) Expr { return BinaryExpr{Op: OpStartsWith, L: lift(s), R: lift(pre)} }
func EndsWith(s, suf any) Expr   { return BinaryExpr{Op: OpEndsWith, L: lift(s), R: lift(suf)} }
func Upper(s Expr) Expr          { return CallExpr{Fn: FuncUpper, Args: []Expr{s}} }
func Lower(s Expr) Expr          { return CallExpr{Fn: FuncLower, Args: []Expr{s}} }
func Trim(s Expr) Expr           { return CallExpr{Fn: FuncTrim, Args: []Expr{s}} }
func Length(s Expr) Expr         { return CallExpr{Fn: FuncLength, Args: []Expr{s}} }

// Substring extracts from a start offset; an optional single length bounds
// the result, mirroring substring(s, start[, length]).
func Substring(s Expr, start any, length ...any) Expr {
	args := []Expr{s, lift(start)}
	if len(length) > 0 {
		args = append(args, lift(length[0]))
	}
	return CallExpr{Fn: FuncSubstring, Args: args}
}

func Replace(s, old, new any) Expr {
	return CallExpr{Fn: FuncReplace, Args: []Expr{lift(s), lift(old), lift(new)}}
}

// Numeric functions.
func Abs(x Expr) Expr   { return CallExpr{Fn: FuncAbs, Args: []Expr{x}} }
func Ceil(x Expr) Expr  { return CallExpr{Fn: FuncCeil, Args: []Expr{x}} }
func Floor(x Expr) Expr { return CallExpr{Fn: FuncFloor, Args: []Expr{x}} }
func Round(x Expr) Expr { return CallExpr{Fn: FuncRound, Args: []Expr{x}} }
func Sqrt(x Expr) Expr  { return CallExpr{Fn: FuncSqrt, Args: []Expr{x}} }
func Pow(x, y any) Expr { return BinaryExpr{Op: OpPow, L: lift(x), R: lift(y)} }

// Temporal accessors.
func Now() Expr        { return CallExpr{Fn: FuncNow} }
func Today() Expr      { return CallExpr{Fn: FuncToday} }
func Year(x Expr) Expr { return CallExpr{Fn: FuncYear, Args: []Expr{x}} }
func Month(x Expr) Expr { return CallExpr{Fn: FuncMonth, Args: []Expr{x}} }
func Day(x Expr) Expr   { return CallExpr{Fn: FuncDay, Args: []Expr{x}} }

// If is the conditional expression; it compiles to a CASE expression.
func If(cond, then, els any) Expr {
	return CaseExpr{Cond: lift(cond), Then: lift(then), Else: lift(els)}
}

// Aggregates, valid in projections after GroupBy and in aggregate terminals.
func CountAll() Expr    { return AggExpr{Fn: AggCount} }
func Count(x Expr) Expr { return AggExpr{Fn: AggCount, Arg: x} }
func Sum(x Expr) Expr   { return AggExpr{Fn: AggSum, Arg: x} }
func Avg(x Expr) Expr   { return AggExpr{Fn: AggAvg, Arg: x} }
func Min(x Expr) Expr   { return AggExpr{Fn: AggMin, Arg: x} }
func Max(x Expr) Expr   { return AggExpr{Fn: AggMax, Arg: x} }
