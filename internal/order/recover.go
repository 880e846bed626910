package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clearledger/paygate/internal/order/orderlog"
)

// RecoveryLog is the slice of the log the startup recovery needs.
// *sqlite.Repository satisfies it.
type RecoveryLog interface {
	orderlog.Repository
	ListInFlight(ctx context.Context) ([]string, error)
}

// RecoverInFlight closes out claims that were mid-flight when the process
// last stopped: for every order whose latest log row is CLAIMING it
// appends a REOPENED row.
//
// The ledger call for such a claim may or may not have gone out before
// the crash — the log distinguishes dispatched from settled, so the
// reopened ids are also returned for operator reconciliation against the
// ledger before the order is claimed again.
func RecoverInFlight(ctx context.Context, log RecoveryLog) ([]string, error) {
	ids, err := log.ListInFlight(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover in-flight claims: %w", err)
	}

	for _, id := range ids {
		entry := orderlog.NewEntry(ctx, id, orderlog.StatusReopened)
		entry.ErrorMessage = "claim interrupted by restart"
		if err := log.Save(ctx, entry); err != nil {
			return nil, fmt.Errorf("record recovery for %q: %w", id, err)
		}
		slog.WarnContext(ctx, "reopened claim interrupted by restart", "order_id", id)
	}
	return ids, nil
}
