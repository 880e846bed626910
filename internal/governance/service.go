// Package governance is the pass-through service for the token ballot:
// delegation, voting and token issuance through the signing authority,
// plus the winning-proposal read. It holds no state of its own.
package governance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/clearledger/paygate/internal/chain"
	"github.com/clearledger/paygate/internal/ledger"
)

// Signer is the governance write surface of the signing authority.
// Both the custody HTTP client and the mock ledger satisfy it.
type Signer interface {
	Delegate(ctx context.Context, delegatee string) (ledger.Reference, error)
	Vote(ctx context.Context, choice string, weight decimal.Decimal) (ledger.Reference, error)
	IssueTokens(ctx context.Context, destination string, amount decimal.Decimal) (ledger.Reference, error)
}

// voteWeight is the fixed weight attached to each submitted vote.
var voteWeight = decimal.NewFromInt(1)

// Service exposes the governance operations.
type Service struct {
	signer Signer
	chain  chain.Reader
}

func NewService(signer Signer, reader chain.Reader) *Service {
	return &Service{signer: signer, chain: reader}
}

// Delegate points the authority's voting weight at delegatee.
func (s *Service) Delegate(ctx context.Context, delegatee string) (ledger.Reference, error) {
	ref, err := s.signer.Delegate(ctx, delegatee)
	if err != nil {
		return "", fmt.Errorf("delegate to %q: %w", delegatee, err)
	}
	slog.InfoContext(ctx, "vote delegated", "delegatee", delegatee, "reference", string(ref))
	return ref, nil
}

// SubmitVote casts a fixed-weight vote for the given ballot choice.
func (s *Service) SubmitVote(ctx context.Context, choice string) (ledger.Reference, error) {
	ref, err := s.signer.Vote(ctx, choice, voteWeight)
	if err != nil {
		return "", fmt.Errorf("vote for %q: %w", choice, err)
	}
	slog.InfoContext(ctx, "vote submitted", "choice", choice, "reference", string(ref))
	return ref, nil
}

// RequestTokens mints voting tokens to the given address.
func (s *Service) RequestTokens(ctx context.Context, destination string, amount decimal.Decimal) (ledger.Reference, error) {
	if amount.Sign() <= 0 {
		return "", fmt.Errorf("request tokens: amount %s must be positive", amount)
	}
	ref, err := s.signer.IssueTokens(ctx, destination, amount)
	if err != nil {
		return "", fmt.Errorf("issue %s tokens to %q: %w", amount, destination, err)
	}
	slog.InfoContext(ctx, "tokens issued", "destination", destination, "amount", amount.String())
	return ref, nil
}

// WinningProposal reads the ballot's current winner from chain state.
func (s *Service) WinningProposal(ctx context.Context) (chain.Proposal, error) {
	return s.chain.WinningProposal(ctx)
}
