package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clearledger/paygate/internal/ledger"
	"github.com/clearledger/paygate/internal/order/orderlog"
)

// Dispatcher drives the settlement for authorized claims: one ledger call
// per ticket, with the outcome recorded back onto the order and into the
// durable log.
type Dispatcher struct {
	registry *Registry
	ledger   ledger.Client
	log      orderlog.Repository // nil-safe, same as the registry's
}

// NewDispatcher wires the dispatcher to its registry and ledger. log may
// be nil.
func NewDispatcher(registry *Registry, lc ledger.Client, log orderlog.Repository) *Dispatcher {
	return &Dispatcher{registry: registry, ledger: lc, log: log}
}

// Settle invokes the ledger with the ticket's amount and the caller's
// destination, then records the outcome:
//
//   - success:             Claiming → Settled, reference stored
//   - transient failure:   Claiming → Open (a later claim may retry)
//   - permanent failure:   Claiming → Failed (terminal)
//
// The ticket is consumed up front, so a second Settle with the same
// ticket fails with ErrTicketConsumed before touching the ledger. The
// ledger round trip holds no lock; only this order stays exclusive, via
// its Claiming state.
func (d *Dispatcher) Settle(ctx context.Context, t *Ticket, destination string) (ledger.Reference, error) {
	if !t.consume() {
		return "", ErrTicketConsumed
	}

	slog.InfoContext(ctx, "dispatching settlement",
		"order_id", t.OrderID, "amount", t.Amount.String(), "destination", destination)

	ref, err := d.ledger.Transfer(ctx, destination, t.Amount, t.IdempotencyKey)
	if err != nil {
		return "", d.recordFailure(ctx, t, destination, err)
	}
	return d.recordSuccess(ctx, t, destination, ref), nil
}

func (d *Dispatcher) recordSuccess(ctx context.Context, t *Ticket, destination string, ref ledger.Reference) ledger.Reference {
	status := orderlog.StatusSettled
	switch {
	case d.registry.settleFrom(t.OrderID, StateClaiming, ref):
		// The normal path.
	case d.registry.settleFrom(t.OrderID, StateOpen, ref):
		// The reaper timed the claim out while the transfer was in flight,
		// but the transfer went through. Pull the order back to Settled so
		// the amount cannot be claimed a second time.
		slog.WarnContext(ctx, "settlement landed after claim timeout",
			"order_id", t.OrderID, "settlement_ref", string(ref))
	default:
		// A competing claim won the order back in the meantime. The
		// transfer stands; leave the state alone and flag the row for
		// operator reconciliation.
		status = orderlog.StatusSuperseded
		slog.ErrorContext(ctx, "settlement outcome superseded, manual reconciliation required",
			"order_id", t.OrderID, "settlement_ref", string(ref))
	}

	entry := orderlog.NewEntry(ctx, t.OrderID, status)
	entry.SettlementRef = string(ref)
	entry.Destination = destination
	d.append(ctx, entry)

	if status == orderlog.StatusSettled {
		slog.InfoContext(ctx, "order settled", "order_id", t.OrderID, "settlement_ref", string(ref))
	}
	return ref
}

func (d *Dispatcher) recordFailure(ctx context.Context, t *Ticket, destination string, cause error) error {
	var status orderlog.Status
	if ledger.IsRetriable(cause) {
		status = orderlog.StatusReopened
		if !d.registry.transition(t.OrderID, StateClaiming, StateOpen) {
			// The reaper already reopened the order; this outcome belongs to
			// the superseded claim.
			status = orderlog.StatusSuperseded
		}
		slog.WarnContext(ctx, "settlement failed, order reopened", "order_id", t.OrderID, "error", cause)
	} else {
		status = orderlog.StatusFailed
		if !d.registry.transition(t.OrderID, StateClaiming, StateFailed) {
			// A reaped claim's rejection must not fail the order out from
			// under its next claimant.
			status = orderlog.StatusSuperseded
		}
		slog.ErrorContext(ctx, "settlement rejected", "order_id", t.OrderID, "error", cause)
	}

	entry := orderlog.NewEntry(ctx, t.OrderID, status)
	entry.Destination = destination
	entry.ErrorMessage = cause.Error()
	d.append(ctx, entry)

	return fmt.Errorf("settle order %q: %w", t.OrderID, cause)
}

func (d *Dispatcher) append(ctx context.Context, e *orderlog.Entry) {
	if d.log == nil {
		return
	}
	// Outcome rows are written best-effort: the in-memory state already
	// transitioned and the caller has the authoritative result in hand.
	if err := d.log.Save(ctx, e); err != nil {
		slog.ErrorContext(ctx, "failed to persist settlement outcome",
			"order_id", e.OrderID, "status", string(e.Status), "error", err)
	}
}
