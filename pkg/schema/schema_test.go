package schema

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ratatoskr/pkg/transport"
	"github.com/orneryd/ratatoskr/pkg/transport/transporttest"
)

func catalogResult(labels ...string) *transport.Result {
	rows := make([][]any, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, []any{"c_" + strings.ToLower(l), []any{l}})
	}
	return &transport.Result{
		Columns: []string{"name", "labelsOrTypes"},
		Rows:    rows,
	}
}

func TestLoadExisting(t *testing.T) {
	stub := transporttest.New()
	stub.Enqueue(catalogResult("Person", "City"))
	m := NewManager(stub, nil)

	assert.Equal(t, StateUnloaded, m.State())
	require.NoError(t, m.LoadExisting(context.Background()))
	assert.Equal(t, StateLoaded, m.State())

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "SHOW CONSTRAINTS", calls[0].Cypher)

	// Already loaded: no further catalog queries.
	require.NoError(t, m.LoadExisting(context.Background()))
	assert.Equal(t, 1, stub.CallCount())
}

func TestLoadFailureRevertsAndRetries(t *testing.T) {
	stub := transporttest.New()
	stub.EnqueueError(errors.New("engine down"))
	m := NewManager(stub, nil)

	err := m.LoadExisting(context.Background())
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, StateUnloaded, m.State(), "failed load reverts so a later call can retry")

	stub.Enqueue(catalogResult())
	require.NoError(t, m.LoadExisting(context.Background()))
	assert.Equal(t, StateLoaded, m.State())
}

func TestLoadExistingConcurrent(t *testing.T) {
	stub := transporttest.New()
	stub.Enqueue(catalogResult("Person"))
	m := NewManager(stub, nil)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.LoadExisting(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, stub.CallCount(), "exactly one catalog query for all callers")
}

func TestEnsureConstraintsForLabel(t *testing.T) {
	stub := transporttest.New()
	stub.Enqueue(catalogResult())
	m := NewManager(stub, nil)

	err := m.EnsureConstraintsForLabel(context.Background(), "Person", "id", []string{"name", "age"})
	require.NoError(t, err)

	calls := stub.Calls()
	require.Len(t, calls, 4, "catalog load plus three constraint statements")

	stmts := make([]string, 0, 3)
	for _, c := range calls[1:] {
		assert.True(t, c.InTx, "constraint statements run inside one transaction")
		stmts = append(stmts, c.Cypher)
	}
	assert.Equal(t, "CREATE CONSTRAINT ratatoskr_person_id_unique IF NOT EXISTS FOR (n:Person) REQUIRE n.id IS UNIQUE", stmts[0])
	assert.Equal(t, "CREATE CONSTRAINT ratatoskr_person_name_exists IF NOT EXISTS FOR (n:Person) REQUIRE n.name IS NOT NULL", stmts[1])
	assert.Equal(t, "CREATE CONSTRAINT ratatoskr_person_age_exists IF NOT EXISTS FOR (n:Person) REQUIRE n.age IS NOT NULL", stmts[2])
	assert.Equal(t, 1, stub.Commits())
}

func TestEnsureConstraintsIdempotent(t *testing.T) {
	stub := transporttest.New()
	stub.Enqueue(catalogResult())
	m := NewManager(stub, nil)

	require.NoError(t, m.EnsureConstraintsForLabel(context.Background(), "Person", "id", []string{"name"}))
	before := stub.CallCount()

	// Second ensure for a known label is a no-op.
	require.NoError(t, m.EnsureConstraintsForLabel(context.Background(), "Person", "id", []string{"name"}))
	assert.Equal(t, before, stub.CallCount())
}

func TestEnsureSkipsCatalogKnownLabels(t *testing.T) {
	stub := transporttest.New()
	stub.Enqueue(catalogResult("Person"))
	m := NewManager(stub, nil)

	require.NoError(t, m.EnsureConstraintsForLabel(context.Background(), "Person", "id", []string{"name"}))
	assert.Equal(t, 1, stub.CallCount(), "labels found in the catalog are not re-constrained")
}

func TestEnsureFailureUnmarks(t *testing.T) {
	stub := transporttest.New()
	stub.Enqueue(catalogResult())
	stub.EnqueueError(errors.New("constraint creation refused"))
	m := NewManager(stub, nil)

	err := m.EnsureConstraintsForLabel(context.Background(), "Person", "id", []string{"name"})
	require.Error(t, err)
	assert.Equal(t, 1, stub.Rollbacks())

	// The label is unmarked, so the next writer retries the idempotent
	// statements.
	require.NoError(t, m.EnsureConstraintsForLabel(context.Background(), "Person", "id", []string{"name"}))
	assert.Equal(t, 1, stub.Commits())
}

func TestEnsureConstraintsForRelType(t *testing.T) {
	stub := transporttest.New()
	stub.Enqueue(catalogResult())
	m := NewManager(stub, nil)

	err := m.EnsureConstraintsForRelType(context.Background(), "KNOWS", "id", []string{"since"})
	require.NoError(t, err)

	calls := stub.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "CREATE CONSTRAINT ratatoskr_knows_id_unique IF NOT EXISTS FOR ()-[r:KNOWS]-() REQUIRE r.id IS UNIQUE", calls[1].Cypher)
	assert.Equal(t, "CREATE CONSTRAINT ratatoskr_knows_since_exists IF NOT EXISTS FOR ()-[r:KNOWS]-() REQUIRE r.since IS NOT NULL", calls[2].Cypher)
}
