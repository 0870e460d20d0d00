package cypher

import "fmt"

// TranslationError reports a query shape the compiler does not support. It is
// raised client-side, before any network interaction, and is never retried:
// an expression that does not translate today will not translate on the next
// attempt either. Construct names the offending piece so the caller can find
// it in their query.
type TranslationError struct {
	Construct string
	Reason    string
}

func (e *TranslationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot translate %s", e.Construct)
	}
	return fmt.Sprintf("cannot translate %s: %s", e.Construct, e.Reason)
}

func errUnsupported(construct, format string, args ...any) *TranslationError {
	return &TranslationError{Construct: construct, Reason: fmt.Sprintf(format, args...)}
}
