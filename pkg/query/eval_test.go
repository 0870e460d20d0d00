package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapResolver resolves entity-bound fields from a map; any other binding is
// unknown.
func mapResolver(props map[string]any) Resolver {
	return func(b Binding, field string) (any, error) {
		if v, ok := props[field]; ok {
			return v, nil
		}
		return nil, errUnknownField(field)
	}
}

type unknownFieldError string

func (e unknownFieldError) Error() string { return "unknown field " + string(e) }

func errUnknownField(f string) error { return unknownFieldError(f) }

func TestEvalComparisons(t *testing.T) {
	props := map[string]any{"Age": int64(30), "Name": "Alice", "Active": true}
	r := mapResolver(props)

	cases := []struct {
		name string
		expr Expr
		want bool
	}{
		{"eq", Eq(Prop("Age"), 30), true},
		{"ne", Ne(Prop("Age"), 30), false},
		{"lt", Lt(Prop("Age"), 40), true},
		{"le boundary", Le(Prop("Age"), 30), true},
		{"gt", Gt(Prop("Age"), 30), false},
		{"ge boundary", Ge(Prop("Age"), 30), true},
		{"string order", Lt(Prop("Name"), "Bob"), true},
		{"bool eq", Eq(Prop("Active"), true), true},
		{"mixed numeric widths", Eq(Prop("Age"), 30.0), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EvalPredicate(tc.expr, r)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvalLogic(t *testing.T) {
	r := mapResolver(map[string]any{"A": true, "B": false})

	got, err := EvalPredicate(And(Prop("A"), Prop("B")), r)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = EvalPredicate(Or(Prop("A"), Prop("B")), r)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvalPredicate(Not(Prop("B")), r)
	require.NoError(t, err)
	assert.True(t, got)

	// Short-circuit: the right side would fail to resolve, but the left side
	// already decides.
	got, err = EvalPredicate(Or(Prop("A"), Eq(Prop("Missing"), 1)), r)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvalPredicate(And(Prop("B"), Eq(Prop("Missing"), 1)), r)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvalArithmetic(t *testing.T) {
	r := mapResolver(map[string]any{"X": int64(7), "F": 2.5})

	v, err := Eval(Add(Prop("X"), 3), r)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v, "integer arithmetic stays integral")

	v, err = Eval(Add(Prop("F"), 1), r)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	v, err = Eval(Div(Prop("X"), 2), r)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v, "non-integral quotients become floats")

	v, err = Eval(Mod(Prop("X"), 4), r)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = Eval(Neg(Prop("X")), r)
	require.NoError(t, err)
	assert.Equal(t, -7.0, v)

	v, err = Eval(Pow(Prop("X"), 2), r)
	require.NoError(t, err)
	assert.Equal(t, int64(49), v)
}

func TestEvalStringOps(t *testing.T) {
	r := mapResolver(map[string]any{"Name": "  Alice Smith "})

	v, err := Eval(Upper(Prop("Name")), r)
	require.NoError(t, err)
	assert.Equal(t, "  ALICE SMITH ", v)

	v, err = Eval(Trim(Prop("Name")), r)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", v)

	v, err = Eval(Length(Trim(Prop("Name"))), r)
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)

	got, err := EvalPredicate(Contains(Trim(Prop("Name")), "Smith"), r)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvalPredicate(StartsWith(Trim(Prop("Name")), "Alice"), r)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvalPredicate(EndsWith(Trim(Prop("Name")), "Jones"), r)
	require.NoError(t, err)
	assert.False(t, got)

	v, err = Eval(Substring(Trim(Prop("Name")), 6), r)
	require.NoError(t, err)
	assert.Equal(t, "Smith", v)

	v, err = Eval(Substring(Trim(Prop("Name")), 0, 5), r)
	require.NoError(t, err)
	assert.Equal(t, "Alice", v)

	v, err = Eval(Replace(Trim(Prop("Name")), "Smith", "Jones"), r)
	require.NoError(t, err)
	assert.Equal(t, "Alice Jones", v)
}

func TestEvalTemporal(t *testing.T) {
	when := time.Date(2024, time.March, 17, 9, 30, 0, 0, time.UTC)
	r := mapResolver(map[string]any{"Joined": when})

	v, err := Eval(Year(Prop("Joined")), r)
	require.NoError(t, err)
	assert.Equal(t, int64(2024), v)

	v, err = Eval(Month(Prop("Joined")), r)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = Eval(Day(Prop("Joined")), r)
	require.NoError(t, err)
	assert.Equal(t, int64(17), v)

	got, err := EvalPredicate(Lt(Prop("Joined"), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)), r)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvalCase(t *testing.T) {
	r := mapResolver(map[string]any{"Age": int64(15)})

	v, err := Eval(If(Ge(Prop("Age"), 18), "adult", "minor"), r)
	require.NoError(t, err)
	assert.Equal(t, "minor", v)
}

func TestEvalErrors(t *testing.T) {
	r := mapResolver(map[string]any{"Name": "Alice"})

	_, err := EvalPredicate(Prop("Name"), r)
	assert.Error(t, err, "non-boolean predicate")

	_, err = Eval(Add(Prop("Name"), 1), r)
	assert.Error(t, err)

	_, err = Eval(CountAll(), r)
	assert.Error(t, err, "aggregates are not scalars")

	_, err = Eval(Eq(Prop("Missing"), 1), r)
	assert.Error(t, err)
}
