package transport

import "fmt"

// ExecutionError wraps a server-side or network failure raised while a
// compiled statement was running. It is distinct from translation errors
// (which never reach the transport) and from TransactionError (which covers
// the transaction scope itself).
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TransactionError wraps a failure during begin, commit or rollback. Op names
// the phase that failed. The original cause is preserved for errors.Is/As.
type TransactionError struct {
	Op  string // "begin", "commit", "rollback"
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
