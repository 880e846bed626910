// Package custodyhttp is the HTTP adapter for the ledger port.
//
// It talks to a custody/signer service that holds the deployment's single
// signing identity. The engine never sees keys or raw transactions; it
// only asks the custody service for a transfer and gets back an opaque
// settlement reference.
package custodyhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clearledger/paygate/internal/ledger"
)

// Ensure the adapter satisfies the port at compile time.
var _ ledger.Client = (*Client)(nil)

// Client implements ledger.Client against a custody service.
type Client struct {
	base string
	http *http.Client
}

// New returns a custody client for the given base URL, e.g.
// "http://custody:7090". Outbound requests carry OTel spans and a bounded
// timeout so a hung custody service cannot pin a claim forever.
func New(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type transferRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	// IdempotencyKey is stable per order claim. The custody service
	// replays the original result for a repeated key, so a retried claim
	// cannot spend twice.
	IdempotencyKey string `json:"idempotency_key"`
}

type transferResponse struct {
	Reference string `json:"reference"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Transfer submits a signed value transfer.
//
// Classification: transport errors and 5xx responses are transient (the
// order reopens); 4xx responses are permanent (the ledger rejected the
// transfer and retrying the same request cannot succeed).
func (c *Client) Transfer(ctx context.Context, destination string, amount decimal.Decimal, idempotencyKey string) (ledger.Reference, error) {
	body, err := json.Marshal(transferRequest{
		Destination:    destination,
		Amount:         amount.String(),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return "", ledger.Permanent("encode_request", "marshal transfer request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return "", ledger.Permanent("build_request", "build transfer request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", ledger.Transient("custody_unreachable", "post transfer: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		var tr transferResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			// The transfer may have gone through. Reopening is still safe:
			// the next claim for this order repeats the key and the custody
			// service replays the original result.
			return "", ledger.Transient("decode_response", "decode transfer response: %v", err)
		}
		if tr.Reference == "" {
			return "", ledger.Transient("empty_reference", "custody returned no settlement reference")
		}
		return ledger.Reference(tr.Reference), nil

	case resp.StatusCode >= 500:
		return "", ledger.Transient("custody_unavailable", "custody returned %s: %s", resp.Status, readErrorBody(resp.Body))

	default:
		code := "rejected"
		if resp.StatusCode == http.StatusUnprocessableEntity {
			code = "invalid_destination"
		}
		return "", ledger.Permanent(code, "custody returned %s: %s", resp.Status, readErrorBody(resp.Body))
	}
}

// readErrorBody extracts the custody error envelope for diagnostics,
// falling back to the raw body prefix when it is not JSON.
func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "<no body>"
	}
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error != "" {
		if er.Message != "" {
			return fmt.Sprintf("%s: %s", er.Error, er.Message)
		}
		return er.Error
	}
	return string(raw)
}
