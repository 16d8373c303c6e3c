// Package sharegate limits how many referral shares a wallet may publish per
// UTC day. Counters live under sharegate:<wallet>:count and expire at the
// next UTC midnight after the first share of the day.
package sharegate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrLimitReached is returned once a wallet has used up its shares for the day.
var ErrLimitReached = errors.New("daily share limit reached")

// Gate enforces a per-wallet daily share limit on top of a Store.
type Gate struct {
	store Store
	limit int
	now   func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a Gate allowing limit shares per wallet per UTC day.
func New(store Store, limit int, opts ...Option) *Gate {
	g := &Gate{store: store, limit: limit, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Status is the gate's view of a wallet for the current day.
type Status struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// Key returns the store key for wallet.
func Key(wallet common.Address) string {
	return "sharegate:" + strings.ToLower(wallet.Hex()) + ":count"
}

// Status reports usage without consuming a share.
func (g *Gate) Status(ctx context.Context, wallet common.Address) (Status, error) {
	n, err := g.store.Get(ctx, Key(wallet))
	if err != nil {
		return Status{}, fmt.Errorf("failed to read share count: %w", err)
	}
	return g.status(n), nil
}

// Consume records one share. Once the limit is reached it returns the
// status together with ErrLimitReached.
func (g *Gate) Consume(ctx context.Context, wallet common.Address) (Status, error) {
	key := Key(wallet)
	n, err := g.store.Get(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read share count: %w", err)
	}
	if n >= int64(g.limit) {
		return g.status(n), ErrLimitReached
	}

	n, err = g.store.Incr(ctx, key, g.untilReset())
	if err != nil {
		return Status{}, fmt.Errorf("failed to record share: %w", err)
	}
	if n > int64(g.limit) {
		return g.status(n), ErrLimitReached
	}
	return g.status(n), nil
}

func (g *Gate) status(n int64) Status {
	used := int(min(n, int64(g.limit)))
	return Status{
		Used:      used,
		Limit:     g.limit,
		Remaining: g.limit - used,
		ResetsAt:  g.nextReset(),
	}
}

func (g *Gate) nextReset() time.Time {
	now := g.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

func (g *Gate) untilReset() time.Duration {
	return g.nextReset().Sub(g.now())
}
