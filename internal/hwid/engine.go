// AngelaMos | 2026
// engine.go

package hwid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carterperez-dev/license-gate/internal/account"
	"github.com/carterperez-dev/license-gate/internal/core"
)

var (
	ErrHardwareMismatch = errors.New("hardware id mismatch")
	ErrNotLocked        = errors.New("hardware id not locked")
	ErrCooldownActive   = errors.New("hardware id reset cooldown active")
)

// Decision is the outcome of a bind attempt. A denied decision carries the
// reason in Reason; the account is never mutated on denial.
type Decision struct {
	Admitted bool
	FirstUse bool
	Reason   error
}

type Engine struct {
	repo     account.Repository
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(
	repo account.Repository,
	cooldown time.Duration,
	opts ...Option,
) *Engine {
	e := &Engine{
		repo:     repo,
		cooldown: cooldown,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// bindAttempts bounds how often a first-use bind is retried after losing to
// a concurrent reset.
const bindAttempts = 2

// AttemptBind admits the presented hardware id or denies it. An unbound
// account is locked to the first id presented.
func (e *Engine) AttemptBind(
	ctx context.Context,
	acc *account.Account,
	presented string,
) (Decision, error) {
	if presented == "" {
		return Decision{}, fmt.Errorf(
			"attempt bind: empty hwid: %w",
			core.ErrInvalidInput,
		)
	}

	for range bindAttempts {
		if acc.HWID != nil {
			return evaluate(*acc.HWID, presented), nil
		}

		at := e.now().UTC()
		bound, err := e.repo.BindHWIDIfUnbound(ctx, acc.ID, presented, at)
		if err != nil {
			return Decision{}, fmt.Errorf("attempt bind: %w", err)
		}

		if bound {
			acc.HWID = &presented
			acc.HWIDLockedAt = &at

			e.logger.InfoContext(ctx, "hwid locked",
				"account_id", acc.ID,
			)
			return Decision{Admitted: true, FirstUse: true}, nil
		}

		current, err := e.repo.FindByID(ctx, acc.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("attempt bind: reload: %w", err)
		}

		acc.HWID = current.HWID
		acc.HWIDLockedAt = current.HWIDLockedAt
	}

	if acc.HWID != nil {
		return evaluate(*acc.HWID, presented), nil
	}

	return Decision{}, fmt.Errorf(
		"attempt bind: lost bind to a concurrent reset: %w",
		core.ErrConflict,
	)
}

func evaluate(stored, presented string) Decision {
	if stored == presented {
		return Decision{Admitted: true}
	}
	return Decision{Reason: ErrHardwareMismatch}
}

// Reset unlocks the account without any cooldown.
func (e *Engine) Reset(ctx context.Context, acc *account.Account) error {
	cleared, err := e.repo.ClearHWID(ctx, acc.ID)
	if err != nil {
		return fmt.Errorf("reset hwid: %w", err)
	}

	if !cleared {
		return ErrNotLocked
	}

	acc.HWID = nil
	acc.HWIDLockedAt = nil

	e.logger.InfoContext(ctx, "hwid reset",
		"account_id", acc.ID,
		"username", acc.Username,
	)

	return nil
}

// SelfReset is the account holder's own reset. It is rate limited by the
// configured cooldown and stamps the reset time on the license record in
// the same write that clears the lock.
func (e *Engine) SelfReset(ctx context.Context, acc *account.Account) error {
	now := e.now().UTC()

	if err := e.cooldownError(acc.Subscription.LastHWIDReset, now); err != nil {
		return err
	}

	reset, err := e.repo.SelfResetHWID(ctx, acc.ID, now, now.Add(-e.cooldown))
	if err != nil {
		return fmt.Errorf("self reset: %w", err)
	}

	if !reset {
		current, err := e.repo.FindByID(ctx, acc.ID)
		if err != nil {
			return fmt.Errorf("self reset: reload: %w", err)
		}

		acc.HWID = current.HWID
		acc.HWIDLockedAt = current.HWIDLockedAt
		acc.Subscription.LastHWIDReset = current.Subscription.LastHWIDReset

		if err := e.cooldownError(current.Subscription.LastHWIDReset, now); err != nil {
			return err
		}
		return ErrNotLocked
	}

	acc.HWID = nil
	acc.HWIDLockedAt = nil
	acc.Subscription.LastHWIDReset = &now

	e.logger.InfoContext(ctx, "hwid self reset",
		"account_id", acc.ID,
		"username", acc.Username,
	)

	return nil
}

func (e *Engine) cooldownError(last *time.Time, now time.Time) error {
	if last == nil || now.Sub(*last) >= e.cooldown {
		return nil
	}
	return fmt.Errorf(
		"self reset: next allowed at %s: %w",
		last.Add(e.cooldown).Format(time.RFC3339),
		ErrCooldownActive,
	)
}

// NextSelfReset reports when the account may next reset its own hardware
// lock. A zero time means a reset is allowed now.
func (e *Engine) NextSelfReset(acc *account.Account) time.Time {
	last := acc.Subscription.LastHWIDReset
	if last == nil {
		return time.Time{}
	}

	next := last.Add(e.cooldown)
	if !next.After(e.now()) {
		return time.Time{}
	}
	return next
}
