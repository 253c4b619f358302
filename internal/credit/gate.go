// Package credit enforces the daily generation quota. The gate is advisory:
// it protects the user from overspending, it is not a billing system.
package credit

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/metrics"
)

const (
	DefaultDailyLimit = 2
	DefaultAccount    = "default"
)

type Options struct {
	Ledger     Ledger
	DailyLimit int
	Now        func() time.Time
	Location   *time.Location
	Logger     *slog.Logger
}

type Gate struct {
	ledger Ledger
	limit  int
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
}

func NewGate(opts Options) *Gate {
	ledger := opts.Ledger
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	limit := opts.DailyLimit
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Gate{
		ledger: ledger,
		limit:  limit,
		now:    now,
		loc:    loc,
		logger: logger,
	}
}

func (g *Gate) DailyLimit() int {
	return g.limit
}

// Account returns a handle bound to one user. Handles are cheap and hold no
// state of their own.
func (g *Gate) Account(id string) *Account {
	id = strings.TrimSpace(id)
	if id == "" {
		id = DefaultAccount
	}
	return &Account{gate: g, id: id}
}

// Reset clears every counter and pro flag.
func (g *Gate) Reset(ctx context.Context) error {
	return g.ledger.Reset(ctx)
}

// day is the usage bucket for the current moment. A new calendar date in the
// gate's location starts from zero usage.
func (g *Gate) day() string {
	return g.now().In(g.loc).Format("2006-01-02")
}

type Account struct {
	gate *Gate
	id   string
}

func (a *Account) ID() string {
	return a.id
}

// ConsumeCredit spends one credit. Pro accounts always succeed without
// spending anything.
func (a *Account) ConsumeCredit(ctx context.Context) (bool, error) {
	pro, err := a.gate.ledger.IsPro(ctx, a.id)
	if err != nil {
		return false, err
	}
	if pro {
		return true, nil
	}

	ok, err := a.gate.ledger.Consume(ctx, a.id, a.gate.day(), a.gate.limit)
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.CreditsDeniedTotal.Inc()
		a.gate.logger.Info("daily credit limit reached", "account", a.id, "limit", a.gate.limit)
	}
	return ok, nil
}

// Refund gives back one credit spent today.
func (a *Account) Refund(ctx context.Context) error {
	pro, err := a.gate.ledger.IsPro(ctx, a.id)
	if err != nil {
		return err
	}
	if pro {
		return nil
	}
	return a.gate.ledger.Refund(ctx, a.id, a.gate.day())
}

func (a *Account) Status(ctx context.Context) (domain.Limits, error) {
	pro, err := a.gate.ledger.IsPro(ctx, a.id)
	if err != nil {
		return domain.Limits{}, err
	}
	used, err := a.gate.ledger.Used(ctx, a.id, a.gate.day())
	if err != nil {
		return domain.Limits{}, err
	}

	remaining := a.gate.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.Limits{
		IsPro:          pro,
		RemainingToday: remaining,
		DailyLimit:     a.gate.limit,
	}, nil
}

// Subscribe marks the account as pro. There is no payment behind it.
func (a *Account) Subscribe(ctx context.Context) error {
	if err := a.gate.ledger.SetPro(ctx, a.id); err != nil {
		return err
	}
	a.gate.logger.Info("account upgraded to pro", "account", a.id)
	return nil
}
