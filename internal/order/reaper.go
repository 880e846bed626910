package order

import (
	"context"
	"log/slog"
	"time"

	"github.com/clearledger/paygate/internal/order/orderlog"
)

// Reaper bounds how long an order may sit in Claiming. A caller that
// abandons an in-flight settle would otherwise leave the order stuck
// forever; the reaper reverts such orders to Open after the timeout so a
// holder of the secret can claim again.
type Reaper struct {
	registry *Registry
	timeout  time.Duration
	interval time.Duration
	log      orderlog.Repository
}

// NewReaper builds a reaper. timeout is how long a claim may stay
// in flight; interval is how often the sweep runs. log may be nil.
func NewReaper(registry *Registry, timeout, interval time.Duration, log orderlog.Repository) *Reaper {
	return &Reaper{registry: registry, timeout: timeout, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled. Start it in its own goroutine from
// main.
func (p *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep reopens every order that has been Claiming longer than the
// timeout and returns how many it reopened. Exposed for tests and for a
// manual operator trigger.
func (p *Reaper) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-p.timeout)
	reopened := 0

	for _, id := range p.registry.expiredClaims(cutoff) {
		// The CAS can lose to a settlement outcome that lands between the
		// scan and here; that is fine, the outcome wins.
		if !p.registry.transition(id, StateClaiming, StateOpen) {
			continue
		}
		reopened++

		entry := orderlog.NewEntry(ctx, id, orderlog.StatusReopened)
		entry.ErrorMessage = "claim timed out"
		if p.log != nil {
			if err := p.log.Save(ctx, entry); err != nil {
				slog.ErrorContext(ctx, "failed to persist claim timeout", "order_id", id, "error", err)
			}
		}
		slog.WarnContext(ctx, "claim timed out, order reopened", "order_id", id, "timeout", p.timeout.String())
	}
	return reopened
}
