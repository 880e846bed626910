// Package ledgermock provides an in-memory ledger.Client for tests and
// local development (LEDGER_MODE=mock). Outcomes can be scripted per call
// to exercise the dispatcher's transient/permanent handling.
package ledgermock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearledger/paygate/internal/ledger"
)

var _ ledger.Client = (*Ledger)(nil)

// Transfer records one successful call.
type Transfer struct {
	Destination string
	Amount      decimal.Decimal
	Reference   ledger.Reference
}

// Ledger is a controllable mock ledger. The zero value is not usable;
// construct with New.
type Ledger struct {
	mu        sync.Mutex
	script    []error
	calls     int
	transfers []Transfer
	latency   time.Duration
	// seen replays the original reference for a repeated idempotency key,
	// mirroring the custody service contract.
	seen map[string]ledger.Reference
}

func New() *Ledger {
	return &Ledger{seen: make(map[string]ledger.Reference)}
}

// Script queues outcomes for the next Transfer calls, one per element.
// A nil element means success. Once the script is exhausted every call
// succeeds.
func (l *Ledger) Script(outcomes ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.script = append(l.script, outcomes...)
}

// SetLatency makes each Transfer sleep, to widen race windows in tests.
func (l *Ledger) SetLatency(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latency = d
}

func (l *Ledger) Transfer(ctx context.Context, destination string, amount decimal.Decimal, idempotencyKey string) (ledger.Reference, error) {
	l.mu.Lock()
	l.calls++
	n := l.calls
	if idempotencyKey != "" {
		if ref, ok := l.seen[idempotencyKey]; ok {
			l.mu.Unlock()
			return ref, nil
		}
	}
	var outcome error
	if len(l.script) > 0 {
		outcome = l.script[0]
		l.script = l.script[1:]
	}
	latency := l.latency
	l.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", ledger.Transient("cancelled", "transfer cancelled: %v", ctx.Err())
		}
	}

	if outcome != nil {
		return "", outcome
	}

	ref := ledger.Reference(fmt.Sprintf("mock-tx-%04d", n))
	l.mu.Lock()
	l.transfers = append(l.transfers, Transfer{Destination: destination, Amount: amount, Reference: ref})
	if idempotencyKey != "" {
		l.seen[idempotencyKey] = ref
	}
	l.mu.Unlock()
	return ref, nil
}

// Delegate, Vote and IssueTokens mirror the custody governance surface so
// the mock can back the governance service in dev mode.

func (l *Ledger) Delegate(ctx context.Context, delegatee string) (ledger.Reference, error) {
	return l.Transfer(ctx, delegatee, decimal.Zero, "")
}

func (l *Ledger) Vote(ctx context.Context, choice string, weight decimal.Decimal) (ledger.Reference, error) {
	return l.Transfer(ctx, "ballot:"+choice, weight, "")
}

func (l *Ledger) IssueTokens(ctx context.Context, destination string, amount decimal.Decimal) (ledger.Reference, error) {
	return l.Transfer(ctx, destination, amount, "")
}

// Calls reports how many Transfer calls were made, failed ones included.
func (l *Ledger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Transfers returns a copy of the successful transfers in order.
func (l *Ledger) Transfers() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transfer, len(l.transfers))
	copy(out, l.transfers)
	return out
}
