// Package schema keeps the engine's integrity constraints in sync with the
// registered model types.
//
// The manager lazily discovers what the store already enforces (one catalog
// query per manager lifetime) and, before the first write to any label,
// creates the constraints that label needs: a uniqueness constraint on the
// identity property and an existence constraint on every other mapped
// property. Every statement uses IF NOT EXISTS, so re-creating an existing
// constraint is a harmless no-op. That idempotence is what makes the narrow
// first-writer race safe: two goroutines racing past the "unknown label"
// check both issue creations, and the second set of statements does nothing.
//
// Known limitation: once a label is marked constrained it is never
// reconsidered for the life of the manager, even if someone drops the
// constraints out from under us externally. Restart the process (or build a
// fresh manager) after external schema surgery.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/ratatoskr/pkg/transport"
)

// State is the manager's load state. It moves Unloaded → Loading → Loaded
// exactly once per manager instance; a failed load reverts to Unloaded so a
// later call can retry.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
)

// LoadError wraps a failure to read the store's constraint catalog. It is
// distinct from execution errors so callers can tell "the store is fine but
// schema discovery failed" apart from a failing query of their own.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading constraint catalog failed: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Manager tracks which labels are known to carry their required constraints.
type Manager struct {
	tr  transport.Transport
	log *logrus.Entry

	mu       sync.Mutex
	state    State
	known    map[string]bool
	loadDone chan struct{} // closed when an in-flight load finishes
}

// NewManager creates a manager over a transport. The logger may be nil.
func NewManager(tr transport.Transport, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		tr:    tr,
		log:   log.WithField("component", "schema"),
		state: StateUnloaded,
		known: make(map[string]bool),
	}
}

// State reports the current load state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LoadExisting populates the registry from the store's constraint catalog.
// The first caller performs the load; concurrent callers block until it
// finishes and then proceed without loading again. Once Loaded, the call is
// a no-op. The lock is only ever held around the state check, never across
// the catalog query.
func (m *Manager) LoadExisting(ctx context.Context) error {
	for {
		m.mu.Lock()
		switch m.state {
		case StateLoaded:
			m.mu.Unlock()
			return nil
		case StateLoading:
			done := m.loadDone
			m.mu.Unlock()
			select {
			case <-done:
				// Re-check: the load may have failed and reverted.
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		default:
			m.state = StateLoading
			m.loadDone = make(chan struct{})
			m.mu.Unlock()
		}

		labels, err := m.queryCatalog(ctx)

		m.mu.Lock()
		if err != nil {
			m.state = StateUnloaded
			close(m.loadDone)
			m.mu.Unlock()
			return &LoadError{Err: err}
		}
		for _, l := range labels {
			m.known[l] = true
		}
		m.state = StateLoaded
		close(m.loadDone)
		m.mu.Unlock()

		m.log.WithField("labels", len(labels)).Debug("constraint catalog loaded")
		return nil
	}
}

// queryCatalog reads SHOW CONSTRAINTS and returns every label that already
// carries at least one constraint.
func (m *Manager) queryCatalog(ctx context.Context) ([]string, error) {
	sess, err := m.tr.Session(ctx, transport.AccessRead)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, "SHOW CONSTRAINTS", nil)
	if err != nil {
		return nil, err
	}

	col := -1
	for i, name := range res.Columns {
		if name == "labelsOrTypes" {
			col = i
		}
	}
	if col < 0 {
		return nil, nil
	}

	var labels []string
	for _, row := range res.Rows {
		switch v := row[col].(type) {
		case []any:
			for _, l := range v {
				if s, ok := l.(string); ok {
					labels = append(labels, s)
				}
			}
		case string:
			labels = append(labels, v)
		}
	}
	return labels, nil
}

// EnsureConstraintsForLabel makes sure label has a uniqueness constraint on
// idProp and an existence constraint on every other property. Already-known
// labels return immediately. The check-and-mark is lock-protected but the
// constraint statements run outside the lock, so slow constraint creation on
// one label never serializes writers of unrelated labels.
func (m *Manager) EnsureConstraintsForLabel(ctx context.Context, label, idProp string, props []string) error {
	if err := m.LoadExisting(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.known[label] {
		m.mu.Unlock()
		return nil
	}
	m.known[label] = true
	m.mu.Unlock()

	if err := m.createConstraints(ctx, label, idProp, props); err != nil {
		// Unmark so the next writer retries; the statements are idempotent.
		m.mu.Lock()
		delete(m.known, label)
		m.mu.Unlock()
		return err
	}

	m.log.WithFields(logrus.Fields{
		"label":      label,
		"properties": len(props) + 1,
	}).Info("constraints ensured")
	return nil
}

// EnsureConstraintsForRelType is the relationship-type counterpart of
// EnsureConstraintsForLabel, emitting ()-[r:TYPE]-() constraint patterns.
func (m *Manager) EnsureConstraintsForRelType(ctx context.Context, relType, idProp string, props []string) error {
	if err := m.LoadExisting(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.known[relType] {
		m.mu.Unlock()
		return nil
	}
	m.known[relType] = true
	m.mu.Unlock()

	stmts := []string{relUniqueConstraint(relType, idProp)}
	for _, p := range props {
		if p == idProp {
			continue
		}
		stmts = append(stmts, relExistsConstraint(relType, p))
	}
	if err := m.runInTx(ctx, stmts); err != nil {
		m.mu.Lock()
		delete(m.known, relType)
		m.mu.Unlock()
		return err
	}

	m.log.WithFields(logrus.Fields{
		"relType":    relType,
		"properties": len(props) + 1,
	}).Info("constraints ensured")
	return nil
}

// createConstraints issues all constraint statements for one label inside a
// single transaction.
func (m *Manager) createConstraints(ctx context.Context, label, idProp string, props []string) error {
	stmts := []string{uniqueConstraint(label, idProp)}
	for _, p := range props {
		if p == idProp {
			continue
		}
		stmts = append(stmts, existsConstraint(label, p))
	}
	return m.runInTx(ctx, stmts)
}

// runInTx executes statements inside one transaction, rolling back on the
// first failure.
func (m *Manager) runInTx(ctx context.Context, stmts []string) error {
	sess, err := m.tr.Session(ctx, transport.AccessWrite)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	tx, err := sess.Begin(ctx)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := tx.Run(ctx, stmt, nil); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	return tx.Commit(ctx)
}

func uniqueConstraint(label, prop string) string {
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		constraintName(label, prop, "unique"), label, prop)
}

func existsConstraint(label, prop string) string {
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS NOT NULL",
		constraintName(label, prop, "exists"), label, prop)
}

func relUniqueConstraint(relType, prop string) string {
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR ()-[r:%s]-() REQUIRE r.%s IS UNIQUE",
		constraintName(relType, prop, "unique"), relType, prop)
}

func relExistsConstraint(relType, prop string) string {
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR ()-[r:%s]-() REQUIRE r.%s IS NOT NULL",
		constraintName(relType, prop, "exists"), relType, prop)
}

func constraintName(label, prop, kind string) string {
	s := strings.ToLower(fmt.Sprintf("ratatoskr_%s_%s_%s", label, prop, kind))
	return strings.ReplaceAll(s, " ", "_")
}
