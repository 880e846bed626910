package custodyhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/clearledger/paygate/internal/ledger"
)

// Governance write operations ride through the same custody service as
// settlements: delegation, voting and token issuance are all transactions
// signed by the deployment's single authority.

type delegateRequest struct {
	Delegatee string `json:"delegatee"`
}

type voteRequest struct {
	Choice string `json:"choice"`
	Weight string `json:"weight"`
}

type issueRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

// Delegate points the authority's voting weight at the given address.
func (c *Client) Delegate(ctx context.Context, delegatee string) (ledger.Reference, error) {
	return c.postSigned(ctx, "/v1/delegations", delegateRequest{Delegatee: delegatee})
}

// Vote casts the authority's vote for a ballot choice with the given weight.
func (c *Client) Vote(ctx context.Context, choice string, weight decimal.Decimal) (ledger.Reference, error) {
	return c.postSigned(ctx, "/v1/votes", voteRequest{Choice: choice, Weight: weight.String()})
}

// IssueTokens mints voting tokens to the given address.
func (c *Client) IssueTokens(ctx context.Context, destination string, amount decimal.Decimal) (ledger.Reference, error) {
	return c.postSigned(ctx, "/v1/issuances", issueRequest{Destination: destination, Amount: amount.String()})
}

// postSigned shares the request/response envelope and failure
// classification of Transfer for the governance endpoints.
func (c *Client) postSigned(ctx context.Context, path string, payload any) (ledger.Reference, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", ledger.Permanent("encode_request", "marshal request for %s: %v", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return "", ledger.Permanent("build_request", "build request for %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", ledger.Transient("custody_unreachable", "post %s: %v", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		var tr transferResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return "", ledger.Transient("decode_response", "decode response for %s: %v", path, err)
		}
		return ledger.Reference(tr.Reference), nil

	case resp.StatusCode >= 500:
		return "", ledger.Transient("custody_unavailable", "custody returned %s: %s", resp.Status, readErrorBody(resp.Body))

	default:
		return "", ledger.Permanent("rejected", "custody returned %s: %s", resp.Status, readErrorBody(resp.Body))
	}
}
