package order

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearledger/paygate/internal/ledger"
	"github.com/clearledger/paygate/internal/order/orderlog"
)

// Registry owns the set of payment orders. All state transitions go
// through its mutex, which makes the check-and-transition in BeginClaim a
// single atomic step per order. The ledger round trip never happens under
// this lock.
type Registry struct {
	mu     sync.Mutex
	orders map[string]*PaymentOrder
	seq    []string

	// log may be nil — transitions are then not persisted (tests).
	log orderlog.Repository
}

// NewRegistry builds an empty registry. log may be nil.
func NewRegistry(log orderlog.Repository) *Registry {
	return &Registry{
		orders: make(map[string]*PaymentOrder),
		log:    log,
	}
}

// Create stores a new order in state Open.
func (r *Registry) Create(ctx context.Context, id, secret string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	r.mu.Lock()
	if _, exists := r.orders[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	r.orders[id] = &PaymentOrder{
		ID:        id,
		Amount:    amount,
		State:     StateOpen,
		CreatedAt: time.Now(),
		secret:    secret,
		claimKey:  uuid.NewString(),
	}
	r.seq = append(r.seq, id)
	r.mu.Unlock()

	if err := r.append(ctx, orderlog.NewEntry(ctx, id, orderlog.StatusOpen)); err != nil {
		// Creation is only acknowledged once durably recorded. Other
		// creations may have appended to seq while the lock was released,
		// so remove this id specifically rather than the tail.
		r.mu.Lock()
		delete(r.orders, id)
		for i, v := range r.seq {
			if v == id {
				r.seq = append(r.seq[:i], r.seq[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		return fmt.Errorf("record order creation: %w", err)
	}

	slog.InfoContext(ctx, "order created", "order_id", id, "amount", amount.String())
	return nil
}

// Get returns the redacted view of an order.
func (r *Registry) Get(id string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return View{}, false
	}
	return o.view(), true
}

// List returns redacted views of all orders in creation order.
func (r *Registry) List() []View {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]View, 0, len(r.seq))
	for _, id := range r.seq {
		out = append(out, r.orders[id].view())
	}
	return out
}

// BeginClaim verifies a claim and atomically transitions the order
// Open → Claiming. On success it returns the single-use ticket that the
// dispatcher consumes; the Claiming state blocks further claims for this
// order (and only this order) until a terminal outcome or a timeout reap.
func (r *Registry) BeginClaim(ctx context.Context, id, secret string) (*Ticket, error) {
	r.mu.Lock()
	o, ok := r.orders[id]
	if !ok {
		r.mu.Unlock()
		// Burn a comparison anyway so a missing id is not distinguishable
		// from a wrong secret by timing.
		subtle.ConstantTimeCompare([]byte(secret), []byte(secret))
		slog.InfoContext(ctx, "claim denied", "order_id", id, "reason", "unknown_order")
		return nil, ErrClaimDenied
	}

	// Secret first: a caller without the secret must not learn whether the
	// order has been claimed.
	if subtle.ConstantTimeCompare([]byte(secret), []byte(o.secret)) != 1 {
		r.mu.Unlock()
		slog.InfoContext(ctx, "claim denied", "order_id", id, "reason", "secret_mismatch")
		return nil, ErrClaimDenied
	}

	switch o.State {
	case StateSettled, StateFailed:
		r.mu.Unlock()
		return nil, ErrAlreadyClaimed
	case StateClaiming:
		r.mu.Unlock()
		return nil, ErrClaimInProgress
	}

	o.State = StateClaiming
	o.ClaimStartedAt = time.Now()
	amount := o.Amount
	claimKey := o.claimKey
	r.mu.Unlock()

	// The claim is only acknowledged once durably recorded.
	if err := r.append(ctx, orderlog.NewEntry(ctx, id, orderlog.StatusClaiming)); err != nil {
		r.transition(id, StateClaiming, StateOpen)
		return nil, fmt.Errorf("record claim: %w", err)
	}

	slog.InfoContext(ctx, "claim authorized", "order_id", id)
	return &Ticket{OrderID: id, Amount: amount, IdempotencyKey: claimKey}, nil
}

// transition performs a compare-and-swap on an order's state. Returns
// false when the order is absent or no longer in the from state.
func (r *Registry) transition(id string, from, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok || o.State != from {
		return false
	}
	o.State = to
	if to == StateClaiming {
		o.ClaimStartedAt = time.Now()
	}
	return true
}

// settleFrom records a settlement outcome: CAS from → Settled plus the
// ledger reference, in one step.
func (r *Registry) settleFrom(id string, from State, ref ledger.Reference) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok || o.State != from {
		return false
	}
	o.State = StateSettled
	o.SettlementRef = ref
	return true
}

// expiredClaims returns the ids of orders that have been Claiming since
// before the cutoff.
func (r *Registry) expiredClaims(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, id := range r.seq {
		o := r.orders[id]
		if o.State == StateClaiming && o.ClaimStartedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// append writes a transition row, skipping when no log is configured.
func (r *Registry) append(ctx context.Context, e *orderlog.Entry) error {
	if r.log == nil {
		return nil
	}
	return r.log.Save(ctx, e)
}
