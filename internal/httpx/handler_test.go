package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clearledger/paygate/internal/chain"
	"github.com/clearledger/paygate/internal/governance"
	"github.com/clearledger/paygate/internal/ledger"
	"github.com/clearledger/paygate/internal/ledger/ledgermock"
	"github.com/clearledger/paygate/internal/order"
)

// stubReader serves canned chain answers for the read endpoints.
type stubReader struct {
	supply   string
	tx       json.RawMessage
	proposal chain.Proposal
	err      error
}

func (s *stubReader) TokenAddress() string { return "0xtoken" }

func (s *stubReader) TotalSupply(context.Context) (string, error) {
	return s.supply, s.err
}

func (s *stubReader) Allowance(_ context.Context, owner, spender string) (string, error) {
	return "42", s.err
}

func (s *stubReader) TransactionByHash(context.Context, string) (json.RawMessage, error) {
	return s.tx, s.err
}

func (s *stubReader) TransactionReceipt(context.Context, string) (json.RawMessage, error) {
	return s.tx, s.err
}

func (s *stubReader) WinningProposal(context.Context) (chain.Proposal, error) {
	return s.proposal, s.err
}

type testAPI struct {
	server *httptest.Server
	mock   *ledgermock.Ledger
	reader *stubReader
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	mock := ledgermock.New()
	reader := &stubReader{
		supply:   "1000",
		tx:       json.RawMessage(`{"hash":"0xabc"}`),
		proposal: chain.Proposal{Name: "Proposal A", VoteCount: "3"},
	}

	registry := order.NewRegistry(nil)
	dispatcher := order.NewDispatcher(registry, mock, nil)
	gov := governance.NewService(mock, reader)

	srv := httptest.NewServer(NewRouter(NewHandler(registry, dispatcher, reader, gov)))
	t.Cleanup(srv.Close)

	return &testAPI{server: srv, mock: mock, reader: reader}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build %s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func TestCreateThenClaimFlow(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/orders", `{"id":"ord-1","secret":"open sesame","amount":"10"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (%v)", resp.StatusCode, body)
	}
	if body["state"] != "OPEN" {
		t.Errorf("created state = %v, want OPEN", body["state"])
	}

	resp, body = api.do(t, http.MethodPost, "/orders/ord-1/claim",
		`{"secret":"open sesame","address":"0x9999999999999999999999999999999999999999"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d, want 200 (%v)", resp.StatusCode, body)
	}
	if body["settlement_reference"] == "" {
		t.Error("claim response carries no settlement reference")
	}

	transfers := api.mock.Transfers()
	if len(transfers) != 1 {
		t.Fatalf("ledger saw %d transfers, want 1", len(transfers))
	}
	if transfers[0].Destination != "0x9999999999999999999999999999999999999999" {
		t.Errorf("transfer destination = %s", transfers[0].Destination)
	}

	resp, body = api.do(t, http.MethodGet, "/orders/ord-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if body["state"] != "SETTLED" {
		t.Errorf("state after claim = %v, want SETTLED", body["state"])
	}
}

func TestClaimErrorShape(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/orders", `{"id":"ord-1","secret":"right","amount":"10"}`)

	// Unknown id and wrong secret must be indistinguishable.
	resp1, body1 := api.do(t, http.MethodPost, "/orders/no-such-order/claim", `{"secret":"right","address":"0x1"}`)
	resp2, body2 := api.do(t, http.MethodPost, "/orders/ord-1/claim", `{"secret":"wrong","address":"0x1"}`)

	if resp1.StatusCode != http.StatusNotFound || resp2.StatusCode != http.StatusNotFound {
		t.Errorf("statuses = %d/%d, want 404/404", resp1.StatusCode, resp2.StatusCode)
	}
	if body1["error"] != "claim_denied" || body2["error"] != "claim_denied" {
		t.Errorf("errors = %v/%v, want claim_denied for both", body1["error"], body2["error"])
	}
	if api.mock.Calls() != 0 {
		t.Errorf("ledger called %d times on denied claims", api.mock.Calls())
	}
}

func TestClaimAlreadySettled(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/orders", `{"id":"ord-1","secret":"s","amount":"10"}`)
	api.do(t, http.MethodPost, "/orders/ord-1/claim", `{"secret":"s","address":"0x1"}`)

	resp, body := api.do(t, http.MethodPost, "/orders/ord-1/claim", `{"secret":"s","address":"0x1"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second claim status = %d, want 409", resp.StatusCode)
	}
	if body["error"] != "already_claimed" {
		t.Errorf("error = %v, want already_claimed", body["error"])
	}
	if api.mock.Calls() != 1 {
		t.Errorf("ledger called %d times, want 1", api.mock.Calls())
	}
}

func TestClaimSettlementFailures(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/orders", `{"id":"ord-1","secret":"s","amount":"10"}`)

	api.mock.Script(ledger.Transient("custody_unavailable", "down"))
	resp, body := api.do(t, http.MethodPost, "/orders/ord-1/claim", `{"secret":"s","address":"0x1"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("transient failure status = %d, want 502 (%v)", resp.StatusCode, body)
	}
	if body["error"] != "settlement_retriable" {
		t.Errorf("error = %v, want settlement_retriable", body["error"])
	}

	// The order reopened; a second attempt goes through.
	resp, _ = api.do(t, http.MethodPost, "/orders/ord-1/claim", `{"secret":"s","address":"0x1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("retry status = %d, want 200", resp.StatusCode)
	}
}

func TestClaimPermanentRejection(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/orders", `{"id":"ord-1","secret":"s","amount":"10"}`)

	api.mock.Script(ledger.Permanent("invalid_destination", "bad address"))
	resp, body := api.do(t, http.MethodPost, "/orders/ord-1/claim", `{"secret":"s","address":"junk"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("permanent failure status = %d, want 422 (%v)", resp.StatusCode, body)
	}
	if body["error"] != "settlement_rejected" {
		t.Errorf("error = %v, want settlement_rejected", body["error"])
	}

	// Failed is terminal.
	resp, _ = api.do(t, http.MethodPost, "/orders/ord-1/claim", `{"secret":"s","address":"0x1"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("claim on failed order status = %d, want 409", resp.StatusCode)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"missing secret", `{"id":"ord-1","amount":"10"}`, http.StatusBadRequest, "invalid_request"},
		{"zero amount", `{"id":"ord-1","secret":"s","amount":"0"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"negative amount", `{"id":"ord-1","secret":"s","amount":"-5"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"bad json", `{`, http.StatusBadRequest, "invalid_json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := api.do(t, http.MethodPost, "/orders", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if body["error"] != tt.wantError {
				t.Errorf("error = %v, want %s", body["error"], tt.wantError)
			}
		})
	}

	api.do(t, http.MethodPost, "/orders", `{"id":"dup","secret":"s","amount":"1"}`)
	resp, body := api.do(t, http.MethodPost, "/orders", `{"id":"dup","secret":"s","amount":"1"}`)
	if resp.StatusCode != http.StatusConflict || body["error"] != "duplicate_id" {
		t.Errorf("duplicate create = %d/%v, want 409/duplicate_id", resp.StatusCode, body["error"])
	}
}

func TestListOrders(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/orders", `{"id":"ord-1","secret":"s","amount":"1"}`)
	api.do(t, http.MethodPost, "/orders", `{"id":"ord-2","secret":"s","amount":"2"}`)

	resp, body := api.do(t, http.MethodGet, "/orders", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	orders, ok := body["orders"].([]any)
	if !ok || len(orders) != 2 {
		t.Fatalf("orders = %v, want 2 entries", body["orders"])
	}
	first := orders[0].(map[string]any)
	if first["id"] != "ord-1" {
		t.Errorf("first order = %v, want ord-1 (creation order)", first["id"])
	}
	if _, leaked := first["secret"]; leaked {
		t.Error("order response leaks the claim secret")
	}
}

func TestChainReadEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/token/address", "")
	if resp.StatusCode != http.StatusOK || body["address"] != "0xtoken" {
		t.Errorf("token address = %d/%v", resp.StatusCode, body)
	}

	resp, body = api.do(t, http.MethodGet, "/token/total-supply", "")
	if resp.StatusCode != http.StatusOK || body["total_supply"] != "1000" {
		t.Errorf("total supply = %d/%v", resp.StatusCode, body)
	}

	resp, body = api.do(t, http.MethodGet, "/token/allowance?owner=0xa&spender=0xb", "")
	if resp.StatusCode != http.StatusOK || body["allowance"] != "42" {
		t.Errorf("allowance = %d/%v", resp.StatusCode, body)
	}

	resp, body = api.do(t, http.MethodGet, "/token/allowance", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("allowance without params = %d, want 400 (%v)", resp.StatusCode, body)
	}

	resp, body = api.do(t, http.MethodGet, "/transactions/0xabc", "")
	if resp.StatusCode != http.StatusOK || body["hash"] != "0xabc" {
		t.Errorf("transaction = %d/%v", resp.StatusCode, body)
	}

	api.reader.tx = json.RawMessage("null")
	resp, body = api.do(t, http.MethodGet, "/transactions/0xmissing", "")
	if resp.StatusCode != http.StatusNotFound || body["error"] != "transaction_not_found" {
		t.Errorf("unknown transaction = %d/%v, want 404", resp.StatusCode, body)
	}

	api.reader.err = errors.New("node down")
	resp, body = api.do(t, http.MethodGet, "/token/total-supply", "")
	if resp.StatusCode != http.StatusBadGateway || body["error"] != "chain_unavailable" {
		t.Errorf("node failure = %d/%v, want 502/chain_unavailable", resp.StatusCode, body)
	}
}

func TestGovernanceEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/governance/winning-proposal", "")
	if resp.StatusCode != http.StatusOK || body["name"] != "Proposal A" || body["vote_count"] != "3" {
		t.Errorf("winning proposal = %d/%v", resp.StatusCode, body)
	}

	resp, body = api.do(t, http.MethodPost, "/governance/delegate", `{"address":"0xdee"}`)
	if resp.StatusCode != http.StatusCreated || body["reference"] == "" {
		t.Errorf("delegate = %d/%v", resp.StatusCode, body)
	}

	resp, body = api.do(t, http.MethodPost, "/governance/vote", `{"choice":"1"}`)
	if resp.StatusCode != http.StatusCreated || body["reference"] == "" {
		t.Errorf("vote = %d/%v", resp.StatusCode, body)
	}

	resp, body = api.do(t, http.MethodPost, "/governance/request-tokens", `{"address":"0xdee","amount":"5"}`)
	if resp.StatusCode != http.StatusCreated || body["reference"] == "" {
		t.Errorf("request tokens = %d/%v", resp.StatusCode, body)
	}

	resp, body = api.do(t, http.MethodPost, "/governance/request-tokens", `{"address":"0xdee","amount":"0"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero issuance = %d, want 400 (%v)", resp.StatusCode, body)
	}

	api.mock.Script(ledger.Transient("custody_unreachable", "down"))
	resp, body = api.do(t, http.MethodPost, "/governance/delegate", `{"address":"0xdee"}`)
	if resp.StatusCode != http.StatusBadGateway || body["error"] != "signer_unavailable" {
		t.Errorf("signer outage = %d/%v, want 502/signer_unavailable", resp.StatusCode, body)
	}
}
