// Package order implements the claim-code redemption and settlement
// engine: the order registry, the claim verifier and the settlement
// dispatcher, sharing one per-order state machine.
package order

import (
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearledger/paygate/internal/ledger"
)

// PaymentOrder is the aggregate owned by the Registry. The secret is kept
// in an unexported field so it can never leak through serialization; it is
// only ever read by the constant-time comparison in BeginClaim.
type PaymentOrder struct {
	ID     string
	Amount decimal.Decimal
	State  State

	// SettlementRef is set once the order reaches Settled.
	SettlementRef ledger.Reference

	CreatedAt time.Time

	// ClaimStartedAt is the instant of the last Open → Claiming
	// transition; the reaper uses it to bound how long a claim may hang.
	ClaimStartedAt time.Time

	secret string

	// claimKey is minted at creation and never changes, so every claim
	// attempt for this order presents the same idempotency key to the
	// ledger. A retry after an uncertain outcome then replays the original
	// transfer instead of spending again.
	claimKey string
}

// View is the redacted representation handed out by Get and List.
// It never carries the secret.
type View struct {
	ID            string
	Amount        decimal.Decimal
	State         State
	SettlementRef ledger.Reference
}

func (o *PaymentOrder) view() View {
	return View{
		ID:            o.ID,
		Amount:        o.Amount,
		State:         o.State,
		SettlementRef: o.SettlementRef,
	}
}

// Ticket is the single-use proof that a claim was authorized. It binds
// the order id and amount observed at claim time; exactly one Settle call
// may consume it.
type Ticket struct {
	OrderID string
	Amount  decimal.Decimal

	// IdempotencyKey is the order's stable claim key; tickets for the same
	// order always carry the same one.
	IdempotencyKey string

	consumed atomic.Bool
}

// consume marks the ticket used. Returns false if it already was.
func (t *Ticket) consume() bool {
	return t.consumed.CompareAndSwap(false, true)
}
