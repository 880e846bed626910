// Package ledger defines the port for the external settlement ledger.
//
// The claim engine depends on this abstraction, never on a concrete
// custody service or chain client, so signing strategies (remote custody,
// HSM, in-memory mock) can be swapped without touching the state machine.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Reference is the opaque identifier the ledger returns for a completed
// transfer (for an on-chain ledger, typically the transaction hash).
type Reference string

// Client performs a signed value transfer against the authoritative ledger.
// The engine invokes it at most once per claim ticket, and every ticket for
// the same order carries the same idempotencyKey: the ledger must replay
// the original result for a repeated key, so a retried claim after an
// uncertain outcome cannot spend twice. Implementations must return a
// *Failure so the dispatcher can decide between reopening the order and
// failing it terminally.
type Client interface {
	Transfer(ctx context.Context, destination string, amount decimal.Decimal, idempotencyKey string) (Reference, error)
}

// Failure is the error type returned by Client implementations.
type Failure struct {
	// Code is a stable machine-readable reason, e.g. "custody_unavailable"
	// or "invalid_destination".
	Code string

	// Retriable reports whether the transfer may be attempted again.
	// Transient transport problems are retriable; a ledger-level rejection
	// is not.
	Retriable bool

	Msg string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("ledger: %s (retriable=%t): %s", f.Code, f.Retriable, f.Msg)
}

// Transient builds a retriable Failure.
func Transient(code, format string, args ...any) *Failure {
	return &Failure{Code: code, Retriable: true, Msg: fmt.Sprintf(format, args...)}
}

// Permanent builds a non-retriable Failure.
func Permanent(code, format string, args ...any) *Failure {
	return &Failure{Code: code, Retriable: false, Msg: fmt.Sprintf(format, args...)}
}

// IsRetriable classifies an error from a Transfer call.
//
// Unclassified errors count as retriable: the order reopens and the
// transfer's idempotency key keeps a wire-level retry from double-spending.
func IsRetriable(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Retriable
	}
	return true
}
