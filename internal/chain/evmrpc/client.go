// Package evmrpc implements chain.Reader over Ethereum JSON-RPC.
package evmrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clearledger/paygate/internal/chain"
)

// tokenDecimals is the token's fixed decimal scale; amounts read from
// chain are formatted by shifting this many places.
const tokenDecimals = 18

var _ chain.Reader = (*Client)(nil)

// Client reads token, transaction and ballot state from a JSON-RPC node.
type Client struct {
	rpcURL     string
	tokenAddr  string
	ballotAddr string
	http       *http.Client

	selTotalSupply     string
	selAllowance       string
	selWinningProposal string
}

// New builds a reader against the given node for the given token and
// ballot contracts.
func New(rpcURL, tokenAddr, ballotAddr string) *Client {
	return &Client{
		rpcURL:     rpcURL,
		tokenAddr:  tokenAddr,
		ballotAddr: ballotAddr,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		selTotalSupply:     selector("totalSupply()"),
		selAllowance:       selector("allowance(address,address)"),
		selWinningProposal: selector("winningProposal()"),
	}
}

func (c *Client) TokenAddress() string {
	return c.tokenAddr
}

func (c *Client) TotalSupply(ctx context.Context) (string, error) {
	result, err := c.ethCall(ctx, c.tokenAddr, "0x"+c.selTotalSupply)
	if err != nil {
		return "", fmt.Errorf("total supply: %w", err)
	}
	words, err := decodeWords(result, 1)
	if err != nil {
		return "", fmt.Errorf("total supply: %w", err)
	}
	return formatUnits(words[0]), nil
}

func (c *Client) Allowance(ctx context.Context, owner, spender string) (string, error) {
	ownerWord, err := padAddress(owner)
	if err != nil {
		return "", fmt.Errorf("allowance: %w", err)
	}
	spenderWord, err := padAddress(spender)
	if err != nil {
		return "", fmt.Errorf("allowance: %w", err)
	}

	result, err := c.ethCall(ctx, c.tokenAddr, "0x"+c.selAllowance+ownerWord+spenderWord)
	if err != nil {
		return "", fmt.Errorf("allowance: %w", err)
	}
	words, err := decodeWords(result, 1)
	if err != nil {
		return "", fmt.Errorf("allowance: %w", err)
	}
	return formatUnits(words[0]), nil
}

func (c *Client) TransactionByHash(ctx context.Context, hash string) (json.RawMessage, error) {
	return c.call(ctx, "eth_getTransactionByHash", []any{hash})
}

func (c *Client) TransactionReceipt(ctx context.Context, hash string) (json.RawMessage, error) {
	return c.call(ctx, "eth_getTransactionReceipt", []any{hash})
}

func (c *Client) WinningProposal(ctx context.Context) (chain.Proposal, error) {
	result, err := c.ethCall(ctx, c.ballotAddr, "0x"+c.selWinningProposal)
	if err != nil {
		return chain.Proposal{}, fmt.Errorf("winning proposal: %w", err)
	}
	// (bytes32 name, uint256 voteCount)
	words, err := decodeWords(result, 2)
	if err != nil {
		return chain.Proposal{}, fmt.Errorf("winning proposal: %w", err)
	}
	return chain.Proposal{
		Name:      wordToString(words[0]),
		VoteCount: formatUnits(words[1]),
	}, nil
}

// ethCall performs a read-only contract call against the latest block and
// returns the raw hex result.
func (c *Client) ethCall(ctx context.Context, to, data string) (string, error) {
	raw, err := c.call(ctx, "eth_call", []any{map[string]string{"to": to, "data": data}, "latest"})
	if err != nil {
		return "", err
	}
	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("evmrpc: eth_call result is not a hex string: %w", err)
	}
	return result, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs one JSON-RPC 2.0 round trip.
func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("evmrpc: marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("evmrpc: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("evmrpc: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("evmrpc: %s: node returned %s", method, resp.Status)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("evmrpc: decode %s response: %w", method, err)
	}
	if rr.Error != nil {
		return nil, fmt.Errorf("evmrpc: %s: node error %d: %s", method, rr.Error.Code, rr.Error.Message)
	}
	return rr.Result, nil
}

// formatUnits renders a raw token quantity word in whole token units,
// e.g. 1500000000000000000 → "1.5".
func formatUnits(word []byte) string {
	return decimal.NewFromBigInt(wordToBig(word), -tokenDecimals).String()
}
