package order

import (
	"context"
	"testing"

	"github.com/clearledger/paygate/internal/order/orderlog"
)

// recoveryLog extends memLog with the in-flight listing the recovery path
// needs.
type recoveryLog struct {
	memLog
	inFlight []string
}

func (r *recoveryLog) ListInFlight(context.Context) ([]string, error) {
	return r.inFlight, nil
}

func TestRecoverInFlight(t *testing.T) {
	ctx := context.Background()

	t.Run("reopens interrupted claims", func(t *testing.T) {
		log := &recoveryLog{inFlight: []string{"a", "b"}}

		ids, err := RecoverInFlight(ctx, log)
		if err != nil {
			t.Fatalf("RecoverInFlight: %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("recovered %d ids, want 2", len(ids))
		}
		for _, id := range []string{"a", "b"} {
			got := log.statuses(id)
			if len(got) != 1 || got[0] != orderlog.StatusReopened {
				t.Errorf("log statuses for %s = %v, want [REOPENED]", id, got)
			}
		}
	})

	t.Run("clean log is a no-op", func(t *testing.T) {
		log := &recoveryLog{}

		ids, err := RecoverInFlight(ctx, log)
		if err != nil {
			t.Fatalf("RecoverInFlight: %v", err)
		}
		if len(ids) != 0 || len(log.entries) != 0 {
			t.Errorf("recovered %d ids, wrote %d rows; want none", len(ids), len(log.entries))
		}
	})
}
