// Package cached decorates a chain.Reader with a read-through cache.
// Chain reads dominate this service's traffic and tolerate short
// staleness, so supply/allowance/ballot answers are cached briefly and
// mined transaction data longer.
package cached

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/clearledger/paygate/internal/chain"
	"github.com/clearledger/paygate/internal/pkg/cache"
)

const (
	supplyTTL  = 15 * time.Second
	ballotTTL  = 30 * time.Second
	receiptTTL = 10 * time.Minute
)

var _ chain.Reader = (*Reader)(nil)

// Reader is the caching decorator. Cache failures degrade to the
// underlying reader; they are logged, never surfaced.
type Reader struct {
	next  chain.Reader
	cache cache.Cache
}

func New(next chain.Reader, c cache.Cache) *Reader {
	return &Reader{next: next, cache: c}
}

func (r *Reader) TokenAddress() string {
	return r.next.TokenAddress()
}

func (r *Reader) TotalSupply(ctx context.Context) (string, error) {
	return r.throughString(ctx, "total-supply", "token", supplyTTL, r.next.TotalSupply)
}

func (r *Reader) Allowance(ctx context.Context, owner, spender string) (string, error) {
	return r.throughString(ctx, "allowance", owner+":"+spender, supplyTTL,
		func(ctx context.Context) (string, error) {
			return r.next.Allowance(ctx, owner, spender)
		})
}

func (r *Reader) TransactionByHash(ctx context.Context, hash string) (json.RawMessage, error) {
	return r.throughRaw(ctx, "tx", hash, func(ctx context.Context) (json.RawMessage, error) {
		return r.next.TransactionByHash(ctx, hash)
	})
}

func (r *Reader) TransactionReceipt(ctx context.Context, hash string) (json.RawMessage, error) {
	return r.throughRaw(ctx, "receipt", hash, func(ctx context.Context) (json.RawMessage, error) {
		return r.next.TransactionReceipt(ctx, hash)
	})
}

func (r *Reader) WinningProposal(ctx context.Context) (chain.Proposal, error) {
	key := r.cache.GenerateKey("winning-proposal", "ballot")
	if hit, ok := r.lookup(ctx, key); ok {
		var p chain.Proposal
		if err := json.Unmarshal([]byte(hit), &p); err == nil {
			return p, nil
		}
	}

	p, err := r.next.WinningProposal(ctx)
	if err != nil {
		return chain.Proposal{}, err
	}
	if encoded, err := json.Marshal(p); err == nil {
		r.store(ctx, key, string(encoded), ballotTTL)
	}
	return p, nil
}

func (r *Reader) throughString(ctx context.Context, op, key string, ttl time.Duration, load func(context.Context) (string, error)) (string, error) {
	cacheKey := r.cache.GenerateKey(op, key)
	if hit, ok := r.lookup(ctx, cacheKey); ok {
		return hit, nil
	}

	value, err := load(ctx)
	if err != nil {
		return "", err
	}
	r.store(ctx, cacheKey, value, ttl)
	return value, nil
}

func (r *Reader) throughRaw(ctx context.Context, op, key string, load func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	cacheKey := r.cache.GenerateKey(op, key)
	if hit, ok := r.lookup(ctx, cacheKey); ok {
		return json.RawMessage(hit), nil
	}

	raw, err := load(ctx)
	if err != nil {
		return nil, err
	}
	// A nil result means the node does not know the hash yet; caching it
	// would hide the transaction once it mines.
	if raw != nil && string(raw) != "null" {
		r.store(ctx, cacheKey, string(raw), receiptTTL)
	}
	return raw, nil
}

func (r *Reader) lookup(ctx context.Context, key string) (string, bool) {
	value, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "chain cache read failed", "key", key, "error", err)
		return "", false
	}
	return value, ok
}

func (r *Reader) store(ctx context.Context, key, value string, ttl time.Duration) {
	if err := r.cache.Set(ctx, key, value, ttl); err != nil {
		slog.WarnContext(ctx, "chain cache write failed", "key", key, "error", err)
	}
}
