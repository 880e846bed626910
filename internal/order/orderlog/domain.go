// Package orderlog defines the durable audit trail of payment-order state
// transitions.
//
// Every transition the engine performs appends one row. The log serves two
// purposes:
//
//  1. Observability: each row carries the OTel trace_id that was active
//     when the transition happened, so an operator can jump from an order
//     to the full distributed trace.
//
//  2. Recovery: on restart the latest row per order tells whether a claim
//     was mid-flight when the process died; such orders are reopened so
//     the exactly-once guarantee survives a crash.
package orderlog

import "time"

// Status is the transition recorded by a log row. It is a superset of the
// order states: REOPENED and SUPERSEDED record transitions back to Open
// and outcomes that arrived after a timeout reap, respectively.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusClaiming   Status = "CLAIMING"
	StatusSettled    Status = "SETTLED"
	StatusReopened   Status = "REOPENED"
	StatusFailed     Status = "FAILED"
	StatusSuperseded Status = "SUPERSEDED"
)

// Entry is a single row in the order_logs table: a point-in-time snapshot
// of one order transition. Rows are append-only, never updated.
type Entry struct {
	// OrderID is the caller-supplied payment order id.
	OrderID string

	// Status is the transition this row records.
	Status Status

	// SettlementRef is the ledger reference, present only on SETTLED and
	// SUPERSEDED rows.
	SettlementRef string

	// Destination is the claim's destination address, present on
	// settlement-outcome rows.
	Destination string

	// ErrorMessage holds the ledger failure for REOPENED and FAILED rows.
	ErrorMessage string

	// TraceID is the W3C trace id (32 hex chars) active at write time.
	TraceID string

	// SpanID pinpoints the span within the trace (16 hex chars).
	SpanID string

	// UpdatedAt is the wall-clock time of the transition.
	UpdatedAt time.Time
}
