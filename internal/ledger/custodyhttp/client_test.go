package custodyhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/clearledger/paygate/internal/ledger"
)

func TestTransferSuccess(t *testing.T) {
	var got transferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(transferResponse{Reference: "0xfeed"})
	}))
	defer srv.Close()

	ref, err := New(srv.URL).Transfer(context.Background(), "0xdest", decimal.RequireFromString("2.5"), "key-1")
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if ref != ledger.Reference("0xfeed") {
		t.Errorf("reference = %s, want 0xfeed", ref)
	}
	if got.Destination != "0xdest" || got.Amount != "2.5" {
		t.Errorf("request = %+v, want destination 0xdest amount 2.5", got)
	}
	if got.IdempotencyKey != "key-1" {
		t.Errorf("idempotency key = %q, want the caller's key", got.IdempotencyKey)
	}
}

// A 201 whose body is lost in transit classifies as transient; the retried
// claim repeats the idempotency key and the custody service replays the
// original transfer instead of executing a second one.
func TestTransferReplayAfterLostResponse(t *testing.T) {
	executed := 0
	refs := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		ref, replay := refs[req.IdempotencyKey]
		if !replay {
			executed++
			ref = "0xoriginal"
			refs[req.IdempotencyKey] = ref

			// The transfer went through but the response is garbage.
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("{broken"))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(transferResponse{Reference: ref})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Transfer(context.Background(), "0xdest", decimal.NewFromInt(1), "claim-key")
	if err == nil {
		t.Fatal("first Transfer succeeded despite broken response")
	}
	if !ledger.IsRetriable(err) {
		t.Fatalf("decode failure should be retriable, got %v", err)
	}

	ref, err := c.Transfer(context.Background(), "0xdest", decimal.NewFromInt(1), "claim-key")
	if err != nil {
		t.Fatalf("retry Transfer: %v", err)
	}
	if ref != ledger.Reference("0xoriginal") {
		t.Errorf("reference = %s, want the replayed original", ref)
	}
	if executed != 1 {
		t.Errorf("custody executed %d transfers, want 1", executed)
	}
}

func TestTransferClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetriable bool
	}{
		{"server error is transient", http.StatusInternalServerError, `{"error":"boom"}`, true},
		{"bad gateway is transient", http.StatusBadGateway, ``, true},
		{"invalid destination is permanent", http.StatusUnprocessableEntity, `{"error":"invalid_destination"}`, false},
		{"policy rejection is permanent", http.StatusConflict, `{"error":"rejected","message":"over limit"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).Transfer(context.Background(), "0xdest", decimal.NewFromInt(1), "key-2")
			if err == nil {
				t.Fatal("Transfer succeeded, want failure")
			}
			if got := ledger.IsRetriable(err); got != tt.wantRetriable {
				t.Errorf("IsRetriable = %t, want %t (err: %v)", got, tt.wantRetriable, err)
			}
		})
	}
}

func TestTransferUnreachableCustody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	_, err := New(srv.URL).Transfer(context.Background(), "0xdest", decimal.NewFromInt(1), "key-3")
	if err == nil {
		t.Fatal("Transfer succeeded against a dead server")
	}
	if !ledger.IsRetriable(err) {
		t.Errorf("connection failure should be retriable, got %v", err)
	}
}

func TestGovernanceWrites(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(transferResponse{Reference: "0xgov"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	if _, err := c.Delegate(ctx, "0xdelegatee"); err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if _, err := c.Vote(ctx, "1", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if _, err := c.IssueTokens(ctx, "0xdest", decimal.NewFromInt(5)); err != nil {
		t.Fatalf("IssueTokens: %v", err)
	}

	want := []string{"/v1/delegations", "/v1/votes", "/v1/issuances"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}
}
