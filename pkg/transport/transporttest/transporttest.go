// Package transporttest provides a scripted in-memory Transport for tests.
//
// The stub records every statement it receives (so tests can assert on the
// compiled Cypher, its parameters, and on how many network calls happened)
// and replays canned results in FIFO order. Transactions are tracked so
// commit/rollback behavior is observable.
package transporttest

import (
	"context"
	"sync"

	"github.com/orneryd/ratatoskr/pkg/transport"
)

// Call is one recorded statement.
type Call struct {
	Cypher string
	Params map[string]any
	InTx   bool
}

// Stub implements transport.Transport. Zero value is not usable; use New.
type Stub struct {
	mu      sync.Mutex
	queue   []scripted
	calls   []Call
	commits int
	rolled  int
}

type scripted struct {
	res *transport.Result
	err error
}

// New creates an empty stub. Statements with no scripted result get an empty
// result back.
func New() *Stub { return &Stub{} }

// Enqueue scripts the next result.
func (s *Stub) Enqueue(res *transport.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scripted{res: res})
}

// EnqueueError scripts the next call to fail.
func (s *Stub) EnqueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scripted{err: err})
}

// Calls returns a copy of all recorded statements.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount reports how many statements reached the transport.
func (s *Stub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Commits reports how many transactions committed.
func (s *Stub) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Rollbacks reports how many transactions rolled back.
func (s *Stub) Rollbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolled
}

func (s *Stub) exec(cypher string, params map[string]any, inTx bool) (*transport.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Cypher: cypher, Params: params, InTx: inTx})
	if len(s.queue) == 0 {
		return &transport.Result{}, nil
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	if next.err != nil {
		return nil, &transport.ExecutionError{Query: cypher, Err: next.err}
	}
	return next.res, nil
}

// Session implements transport.Transport.
func (s *Stub) Session(ctx context.Context, mode transport.AccessMode) (transport.Session, error) {
	return &stubSession{stub: s}, nil
}

// Close implements transport.Transport.
func (s *Stub) Close(ctx context.Context) error { return nil }

type stubSession struct {
	stub *Stub
}

func (s *stubSession) Run(ctx context.Context, cypher string, params map[string]any) (*transport.Result, error) {
	return s.stub.exec(cypher, params, false)
}

func (s *stubSession) Begin(ctx context.Context) (transport.Tx, error) {
	return &stubTx{stub: s.stub}, nil
}

func (s *stubSession) Close(ctx context.Context) error { return nil }

type stubTx struct {
	stub *Stub
}

func (t *stubTx) Run(ctx context.Context, cypher string, params map[string]any) (*transport.Result, error) {
	return t.stub.exec(cypher, params, true)
}

func (t *stubTx) Commit(ctx context.Context) error {
	t.stub.mu.Lock()
	defer t.stub.mu.Unlock()
	t.stub.commits++
	return nil
}

func (t *stubTx) Rollback(ctx context.Context) error {
	t.stub.mu.Lock()
	defer t.stub.mu.Unlock()
	t.stub.rolled++
	return nil
}
