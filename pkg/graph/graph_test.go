package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ratatoskr/pkg/registry"
	"github.com/orneryd/ratatoskr/pkg/transport"
	"github.com/orneryd/ratatoskr/pkg/transport/transporttest"
)

type Person struct {
	ID   string `graph:"id,identity"`
	Name string `graph:"name"`
	Age  int    `graph:"age"`
}

type Knows struct {
	ID     string  `graph:"id,identity"`
	From   string  `graph:",start"`
	To     string  `graph:",end"`
	Since  int     `graph:"since"`
	Weight float64 `graph:"weight,weight"`
}

func newTestGraph(t *testing.T) (*Graph, *transporttest.Stub) {
	t.Helper()
	reg := registry.New()
	_, err := registry.Register[Person](reg)
	require.NoError(t, err)
	_, err = registry.RegisterRelationship[Knows, Person, Person](reg)
	require.NoError(t, err)

	stub := transporttest.New()
	return New(stub, reg), stub
}

func personNode(id, name string, age int) transport.Node {
	return transport.Node{
		ID:     id,
		Labels: []string{"Person"},
		Props:  map[string]any{"id": id, "name": name, "age": int64(age)},
	}
}

func knowsRel(id, start, end string, since int) transport.Relationship {
	return transport.Relationship{
		ID:      id,
		Type:    "KNOWS",
		StartID: start,
		EndID:   end,
		Props:   map[string]any{"id": id, "since": int64(since), "weight": 1.0},
	}
}

func TestCreateNode(t *testing.T) {
	g, stub := newTestGraph(t)
	ctx := context.Background()

	alice := &Person{Name: "Alice", Age: 30}
	require.NoError(t, g.CreateNode(ctx, alice))

	assert.NotEmpty(t, alice.ID, "empty identity is filled with a generated UUID")

	calls := stub.Calls()
	require.Len(t, calls, 5, "catalog load, three constraints, one create")
	assert.Equal(t, "SHOW CONSTRAINTS", calls[0].Cypher)
	assert.Contains(t, calls[1].Cypher, "IS UNIQUE")
	assert.Equal(t, "CREATE (n:Person) SET n = $props RETURN n", calls[4].Cypher)

	props := calls[4].Params["props"].(map[string]any)
	assert.Equal(t, alice.ID, props["id"])
	assert.Equal(t, "Alice", props["name"])

	// Constraint transaction plus write transaction.
	assert.Equal(t, 2, stub.Commits())
	assert.Equal(t, 0, stub.Rollbacks())
}

func TestCreateNodePreservesIdentity(t *testing.T) {
	g, stub := newTestGraph(t)
	ctx := context.Background()

	p := &Person{ID: "fixed-id", Name: "Bob"}
	require.NoError(t, g.CreateNode(ctx, p))
	assert.Equal(t, "fixed-id", p.ID)

	calls := stub.Calls()
	props := calls[len(calls)-1].Params["props"].(map[string]any)
	assert.Equal(t, "fixed-id", props["id"])
}

func TestCreateNodeRejectsWrongShape(t *testing.T) {
	g, stub := newTestGraph(t)
	ctx := context.Background()

	assert.Error(t, g.CreateNode(ctx, Person{Name: "not a pointer"}))
	assert.Error(t, g.CreateNode(ctx, &Knows{From: "a", To: "b"}), "relationship model is not a node")
	assert.Equal(t, 0, stub.CallCount())
}

func TestCreateRelationship(t *testing.T) {
	g, stub := newTestGraph(t)
	ctx := context.Background()

	k := &Knows{From: "p1", To: "p2", Since: 2019, Weight: 0.5}
	require.NoError(t, g.CreateRelationship(ctx, k))
	assert.NotEmpty(t, k.ID)

	calls := stub.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t,
		"MATCH (a:Person {id: $start}), (b:Person {id: $end}) CREATE (a)-[r:KNOWS]->(b) SET r = $props RETURN r",
		last.Cypher)
	assert.Equal(t, "p1", last.Params["start"])
	assert.Equal(t, "p2", last.Params["end"])
}

func TestCreateRelationshipRequiresEndpoints(t *testing.T) {
	g, stub := newTestGraph(t)
	err := g.CreateRelationship(context.Background(), &Knows{From: "p1"})
	assert.Error(t, err)
	assert.Equal(t, 0, stub.CallCount())
}

func TestGetNode(t *testing.T) {
	g, stub := newTestGraph(t)
	ctx := context.Background()

	stub.Enqueue(&transport.Result{
		Columns: []string{"n"},
		Rows:    [][]any{{personNode("p1", "Alice", 30)}},
	})

	got, err := GetNode[Person](ctx, g, "p1")
	require.NoError(t, err)
	assert.Equal(t, &Person{ID: "p1", Name: "Alice", Age: 30}, got)

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "MATCH (n:Person {id: $id}) RETURN n", calls[0].Cypher)
	assert.False(t, calls[0].InTx, "reads run on auto-commit sessions")
}

func TestGetNodeNotFound(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.Enqueue(&transport.Result{Columns: []string{"n"}})

	_, err := GetNode[Person](context.Background(), g, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRelationships(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.Enqueue(&transport.Result{
		Columns: []string{"r"},
		Rows: [][]any{
			{knowsRel("k1", "p1", "p2", 2019)},
			{knowsRel("k2", "p1", "p3", 2021)},
		},
	})

	got, err := GetRelationships[Knows](context.Background(), g, []string{"k1", "k2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].From, "endpoint identities come from the relationship value")
	assert.Equal(t, "p2", got[0].To)
	assert.Equal(t, 2021, got[1].Since)
}

func TestUpdateNode(t *testing.T) {
	g, stub := newTestGraph(t)
	ctx := context.Background()

	stub.Enqueue(&transport.Result{
		Columns: []string{"n"},
		Rows:    [][]any{{personNode("p1", "Alice", 31)}},
	})
	require.NoError(t, g.UpdateNode(ctx, &Person{ID: "p1", Name: "Alice", Age: 31}))

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "MATCH (n:Person {id: $id}) SET n += $props RETURN n", calls[0].Cypher)
	assert.True(t, calls[0].InTx)
	assert.Equal(t, 1, stub.Commits())
}

func TestUpdateNodeNotFound(t *testing.T) {
	g, _ := newTestGraph(t)
	err := g.UpdateNode(context.Background(), &Person{ID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateWithoutIdentity(t *testing.T) {
	g, stub := newTestGraph(t)
	assert.Error(t, g.UpdateNode(context.Background(), &Person{Name: "nameless"}))
	assert.Equal(t, 0, stub.CallCount())
}

func TestDeleteNode(t *testing.T) {
	g, stub := newTestGraph(t)
	require.NoError(t, DeleteNode[Person](context.Background(), g, "p1"))

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "MATCH (n:Person {id: $id}) DETACH DELETE n", calls[0].Cypher)
	assert.Equal(t, 1, stub.Commits())
}

func TestWriteFailureRollsBack(t *testing.T) {
	g, stub := newTestGraph(t)
	stub.EnqueueError(assert.AnError)

	err := g.UpdateNode(context.Background(), &Person{ID: "p1"})
	require.Error(t, err)
	assert.Equal(t, 1, stub.Rollbacks())
	assert.Equal(t, 0, stub.Commits())
}
