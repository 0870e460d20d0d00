package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ratatoskr/pkg/query"
	"github.com/orneryd/ratatoskr/pkg/transport"
)

func peopleResult(people ...Person) *transport.Result {
	rows := make([][]any, 0, len(people))
	for _, p := range people {
		rows = append(rows, []any{personNode(p.ID, p.Name, p.Age)})
	}
	return &transport.Result{Columns: []string{"n"}, Rows: rows}
}

func TestNodeQueryToList(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.Enqueue(peopleResult(
		Person{ID: "p1", Name: "Alice", Age: 30},
		Person{ID: "p2", Name: "Bob", Age: 25},
	))

	got, err := Nodes[Person](g).
		Where(query.Ge(query.Prop("Age"), 21)).
		OrderBy("Name").
		ToList(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alice", got[0].Name)

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "MATCH (n:Person) WHERE (n.age >= $p0) RETURN n ORDER BY n.name ASC", calls[0].Cypher)
	assert.Equal(t, map[string]any{"p0": 21}, calls[0].Params)
}

func TestNodeQueryFirst(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.Enqueue(peopleResult(Person{ID: "p1", Name: "Alice", Age: 30}))

	got, err := Nodes[Person](g).First(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	// First fetches at most one row.
	assert.Contains(t, stub.Calls()[0].Cypher, "LIMIT $p0")
	assert.Equal(t, 1, stub.Calls()[0].Params["p0"])
}

func TestNodeQueryFirstEmpty(t *testing.T) {
	g, _ := newTestGraph(t)
	_, err := Nodes[Person](g).First(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNodeQuerySingle(t *testing.T) {
	g, stub := newTestGraph(t)

	stub.Enqueue(peopleResult(Person{ID: "p1", Name: "Alice", Age: 30}))
	got, err := Nodes[Person](g).Single(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)

	stub.Enqueue(peopleResult(
		Person{ID: "p1", Name: "Alice", Age: 30},
		Person{ID: "p2", Name: "Bob", Age: 25},
	))
	_, err = Nodes[Person](g).Single(context.Background())
	assert.ErrorIs(t, err, ErrNotSingle)

	_, err = Nodes[Person](g).Single(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNodeQueryCount(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{int64(2)}}})

	n, err := Nodes[Person](g).
		Where(query.Gt(query.Prop("Age"), 21)).
		Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t,
		"MATCH (n:Person) WHERE (n.age > $p0) RETURN count(*) AS value",
		stub.Calls()[0].Cypher)
}

func TestNodeQueryAnyAll(t *testing.T) {
	g, stub := newTestGraph(t)

	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{int64(1)}}})
	ok, err := Nodes[Person](g).Any(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	// All(pred) counts the violators of pred.
	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{int64(0)}}})
	ok, err = Nodes[Person](g).All(context.Background(), query.Ge(query.Prop("Age"), 18))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, stub.Calls()[1].Cypher, "NOT (n.age >= $p0)")

	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{int64(3)}}})
	ok, err = Nodes[Person](g).All(context.Background(), query.Ge(query.Prop("Age"), 18))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNodeQueryNumericAggregates(t *testing.T) {
	g, stub := newTestGraph(t)
	ctx := context.Background()

	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{float64(30)}}})
	avg, err := Nodes[Person](g).Avg(ctx, "Age")
	require.NoError(t, err)
	assert.Equal(t, 30.0, avg)
	assert.Contains(t, stub.Calls()[0].Cypher, "avg(n.age) AS value")

	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{int64(90)}}})
	sum, err := Nodes[Person](g).Sum(ctx, "Age")
	require.NoError(t, err)
	assert.Equal(t, 90.0, sum, "integer aggregates widen to float64")

	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{int64(25)}}})
	min, err := Nodes[Person](g).Min(ctx, "Age")
	require.NoError(t, err)
	assert.Equal(t, int64(25), min)

	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{int64(35)}}})
	max, err := Nodes[Person](g).Max(ctx, "Age")
	require.NoError(t, err)
	assert.Equal(t, int64(35), max)
}

func TestRowQuerySelect(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.Enqueue(&transport.Result{
		Columns: []string{"name", "nextAge"},
		Rows:    [][]any{{"ALICE", int64(31)}},
	})

	rows, err := Nodes[Person](g).
		Select(
			query.As(query.Upper(query.Prop("Name")), "name"),
			query.As(query.Add(query.Prop("Age"), 1), "nextAge"),
		).
		ToList(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ALICE", rows[0]["name"])
	assert.Equal(t, int64(31), rows[0]["nextAge"])
}

func TestGroupBySelect(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.Enqueue(&transport.Result{
		Columns: []string{"key", "n"},
		Rows:    [][]any{{int64(25), int64(1)}, {int64(30), int64(2)}},
	})

	rows, err := Nodes[Person](g).
		GroupBy(query.Prop("Age")).
		Select(query.As(query.CountAll(), "n")).
		ToList(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(25), rows[0]["key"], "the group key is always emitted as \"key\"")
	assert.Equal(t, int64(2), rows[1]["n"])

	assert.Equal(t,
		"MATCH (n:Person) RETURN n.age AS key, count(*) AS n",
		stub.Calls()[0].Cypher)
}

func TestBuilderImmutability(t *testing.T) {
	g, stub := newTestGraph(t)
	base := Nodes[Person](g).Where(query.Gt(query.Prop("Age"), 18))

	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{int64(5)}}})
	_, err := base.Count(context.Background())
	require.NoError(t, err)

	stub.Enqueue(peopleResult())
	_, err = base.OrderBy("Name").ToList(context.Background())
	require.NoError(t, err)

	calls := stub.Calls()
	assert.NotContains(t, calls[0].Cypher, "ORDER BY", "branching never mutates the shared prefix")
	assert.Contains(t, calls[1].Cypher, "ORDER BY")
}

func TestFailFastBeforeTransport(t *testing.T) {
	g, stub := newTestGraph(t)
	ctx := context.Background()

	t.Run("structural error sticks at build time", func(t *testing.T) {
		_, err := Nodes[Person](g).
			Where(query.Gt(query.CountAll(), 1)).
			ToList(ctx)
		require.Error(t, err)
	})

	t.Run("unknown field fails at compile time", func(t *testing.T) {
		_, err := Nodes[Person](g).
			Where(query.Eq(query.Prop("Nickname"), "Al")).
			ToList(ctx)
		require.Error(t, err)
	})

	t.Run("negative take", func(t *testing.T) {
		_, err := Nodes[Person](g).Take(-1).ToList(ctx)
		require.Error(t, err)
	})

	t.Run("then-by without order-by", func(t *testing.T) {
		_, err := Nodes[Person](g).ThenBy("Name").ToList(ctx)
		require.Error(t, err)
	})

	t.Run("error survives further chaining", func(t *testing.T) {
		_, err := Nodes[Person](g).
			Where(query.Gt(query.CountAll(), 1)).
			OrderBy("Name").
			Take(3).
			ToList(ctx)
		require.Error(t, err)
	})

	assert.Equal(t, 0, stub.CallCount(), "no failed query ever reaches the transport")
}

func TestUnregisteredModelFailsFast(t *testing.T) {
	type Stranger struct{ ID string }
	g, stub := newTestGraph(t)

	_, err := Nodes[Stranger](g).ToList(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, stub.CallCount())
}

func TestRelationshipQuery(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.Enqueue(&transport.Result{
		Columns: []string{"r"},
		Rows:    [][]any{{knowsRel("k1", "p1", "p2", 2019)}},
	})

	got, err := Relationships[Knows](g).
		Where(query.Gt(query.Prop("Since"), 2018)).
		ToList(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2019, got[0].Since)

	assert.Equal(t,
		"MATCH ()-[r:KNOWS]->() WHERE (r.since > $p0) RETURN r",
		stub.Calls()[0].Cypher)
}

func TestRelationshipQuerySingle(t *testing.T) {
	g, stub := newTestGraph(t)
	ctx := context.Background()

	stub.Enqueue(&transport.Result{
		Columns: []string{"r"},
		Rows:    [][]any{{knowsRel("k1", "p1", "p2", 2019)}},
	})
	got, err := Relationships[Knows](g).Single(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ID)

	stub.Enqueue(&transport.Result{
		Columns: []string{"r"},
		Rows: [][]any{
			{knowsRel("k1", "p1", "p2", 2019)},
			{knowsRel("k2", "p1", "p3", 2021)},
		},
	})
	_, err = Relationships[Knows](g).Single(ctx)
	assert.ErrorIs(t, err, ErrNotSingle)

	_, err = Relationships[Knows](g).Single(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelationshipQueryAggregates(t *testing.T) {
	g, stub := newTestGraph(t)
	ctx := context.Background()

	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{float64(1.5)}}})
	sum, err := Relationships[Knows](g).Sum(ctx, "Weight")
	require.NoError(t, err)
	assert.Equal(t, 1.5, sum)
	assert.Equal(t, "MATCH ()-[r:KNOWS]->() RETURN sum(r.weight) AS value", stub.Calls()[0].Cypher)

	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{int64(2019)}}})
	min, err := Relationships[Knows](g).Min(ctx, "Since")
	require.NoError(t, err)
	assert.Equal(t, int64(2019), min)

	stub.Enqueue(&transport.Result{Columns: []string{"value"}, Rows: [][]any{{int64(0)}}})
	ok, err := Relationships[Knows](g).All(ctx, query.Ge(query.Prop("Since"), 2015))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, stub.Calls()[2].Cypher, "NOT (r.since >= $p0)")
}

func TestRelationshipGroupBySelect(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.Enqueue(&transport.Result{
		Columns: []string{"key", "n"},
		Rows:    [][]any{{int64(2019), int64(2)}, {int64(2021), int64(1)}},
	})

	rows, err := Relationships[Knows](g).
		GroupBy(query.Prop("Since")).
		Select(query.As(query.CountAll(), "n")).
		ToList(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2019), rows[0]["key"])
	assert.Equal(t, int64(2), rows[0]["n"])

	assert.Equal(t,
		"MATCH ()-[r:KNOWS]->() RETURN r.since AS key, count(*) AS n",
		stub.Calls()[0].Cypher)
}

func TestRelationshipQuerySecondarySort(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.Enqueue(&transport.Result{Columns: []string{"r"}})

	_, err := Relationships[Knows](g).
		OrderBy("Since").
		ThenByDescending("Weight").
		ToList(context.Background())
	require.NoError(t, err)
	assert.Contains(t, stub.Calls()[0].Cypher, "ORDER BY r.since ASC, r.weight DESC")
}
