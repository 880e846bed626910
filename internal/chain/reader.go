// Package chain defines the read-side port for chain state queries.
// These are stateless pass-throughs; no invariant of the claim engine
// depends on them.
package chain

import (
	"context"
	"encoding/json"
)

// Proposal is the decoded winning ballot proposal.
type Proposal struct {
	Name      string
	VoteCount string
}

// Reader answers token, transaction and ballot queries from chain state.
type Reader interface {
	// TokenAddress returns the token contract address this deployment
	// serves. No round trip.
	TokenAddress() string

	// TotalSupply returns the token's total supply formatted in whole
	// token units.
	TotalSupply(ctx context.Context) (string, error)

	// Allowance returns the spender's allowance from owner, formatted in
	// whole token units.
	Allowance(ctx context.Context, owner, spender string) (string, error)

	// TransactionByHash returns the node's raw transaction object, or nil
	// when the node does not know the hash.
	TransactionByHash(ctx context.Context, hash string) (json.RawMessage, error)

	// TransactionReceipt returns the node's raw receipt object, or nil
	// while the transaction is unmined.
	TransactionReceipt(ctx context.Context, hash string) (json.RawMessage, error)

	// WinningProposal returns the ballot's current winner.
	WinningProposal(ctx context.Context) (Proposal, error)
}
