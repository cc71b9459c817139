// AngelaMos | 2026
// machine.go

package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/carterperez-dev/license-gate/internal/account"
)

var (
	ErrNotCancellable = errors.New("license is not cancellable")
	ErrUnknownPackage = errors.New("unknown package")
)

type Policy struct {
	Packages        []string
	OneTimePackages []string
	GraceOnCancel   bool
}

type Activation struct {
	Package        string
	CustomerID     string
	SubscriptionID string
	PeriodEnd      *time.Time
	EventAt        *time.Time
}

type StatusUpdate struct {
	Status         string
	PeriodEnd      *time.Time
	SubscriptionID string
	EventAt        *time.Time
}

type Summary struct {
	Status           string     `json:"status"`
	Package          string     `json:"package,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	Entitled         bool       `json:"entitled"`
}

type Machine struct {
	repo   account.Repository
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

func NewMachine(repo account.Repository, policy Policy, opts ...Option) *Machine {
	m := &Machine{
		repo:   repo,
		policy: policy,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) IsKnownPackage(pkg string) bool {
	return slices.Contains(m.policy.Packages, pkg)
}

func (m *Machine) IsOneTime(pkg string) bool {
	return slices.Contains(m.policy.OneTimePackages, pkg)
}

// Activate marks the license active for the given package. One-time
// packages never carry a subscription id or a period end. Repeating an
// identical activation, or one older than the last applied event, leaves
// the record untouched.
func (m *Machine) Activate(
	ctx context.Context,
	acc *account.Account,
	a Activation,
) (*account.Account, error) {
	if !m.IsKnownPackage(a.Package) {
		return nil, fmt.Errorf("activate %q: %w", a.Package, ErrUnknownPackage)
	}

	if isStale(acc.Subscription.LastEventAt, a.EventAt) {
		m.logger.InfoContext(ctx, "stale activation skipped",
			"account_id", acc.ID,
			"package", a.Package,
		)
		return acc, nil
	}

	if m.IsOneTime(a.Package) {
		a.SubscriptionID = ""
		a.PeriodEnd = nil
	}

	if m.alreadyActive(acc, a) {
		return acc, nil
	}

	patch := account.Patch{
		Status:               account.Set(account.StatusActive),
		Package:              account.Set(a.Package),
		SubscriptionID:       optionalString(a.SubscriptionID),
		CurrentPeriodEnd:     account.SetPtr(utcPtr(a.PeriodEnd)),
		ActivatedAt:          account.Set(m.now().UTC()),
		CancelledAt:          account.Null[time.Time](),
		PaymentFailed:        account.Set(false),
		PaymentFailureReason: account.Set(""),
	}
	if a.CustomerID != "" {
		patch.CustomerID = account.Set(a.CustomerID)
	}
	patch.LastEventAt = advanceEventAt(acc.Subscription.LastEventAt, a.EventAt)

	if err := m.repo.Update(ctx, acc.ID, patch); err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}

	m.logger.InfoContext(ctx, "license activated",
		"account_id", acc.ID,
		"package", a.Package,
	)

	return m.repo.FindByID(ctx, acc.ID)
}

func (m *Machine) alreadyActive(acc *account.Account, a Activation) bool {
	sub := acc.Subscription
	if sub.Status != account.StatusActive || sub.Package != a.Package {
		return false
	}
	if a.CustomerID != "" && derefString(sub.CustomerID) != a.CustomerID {
		return false
	}
	if derefString(sub.SubscriptionID) != a.SubscriptionID {
		return false
	}
	return sameInstant(sub.CurrentPeriodEnd, a.PeriodEnd)
}

// UpdateStatus stores a processor status verbatim. It reports false when
// the update was skipped because it is older than the last applied event
// or names a subscription other than the account's current one.
func (m *Machine) UpdateStatus(
	ctx context.Context,
	acc *account.Account,
	u StatusUpdate,
) (bool, error) {
	sub := acc.Subscription

	if isStale(sub.LastEventAt, u.EventAt) {
		m.logger.InfoContext(ctx, "stale subscription event skipped",
			"account_id", acc.ID,
			"status", u.Status,
		)
		return false, nil
	}

	if u.SubscriptionID != "" && sub.SubscriptionID != nil &&
		*sub.SubscriptionID != u.SubscriptionID {
		m.logger.InfoContext(ctx, "status for foreign subscription skipped",
			"account_id", acc.ID,
			"subscription_id", u.SubscriptionID,
		)
		return false, nil
	}

	if m.IsOneTime(sub.Package) && sub.Status == account.StatusActive {
		m.logger.InfoContext(ctx, "status update on one-time license skipped",
			"account_id", acc.ID,
			"status", u.Status,
		)
		return false, nil
	}

	patch := account.Patch{
		Status:           account.Set(u.Status),
		CurrentPeriodEnd: account.SetPtr(utcPtr(u.PeriodEnd)),
	}
	if u.SubscriptionID != "" {
		patch.SubscriptionID = account.Set(u.SubscriptionID)
	}
	patch.LastEventAt = advanceEventAt(sub.LastEventAt, u.EventAt)

	if err := m.repo.Update(ctx, acc.ID, patch); err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}

	return true, nil
}

// Cancel ends a recurring license. One-time licenses and licenses without a
// subscription are rejected with ErrNotCancellable.
func (m *Machine) Cancel(
	ctx context.Context,
	acc *account.Account,
	eventAt *time.Time,
) error {
	sub := acc.Subscription

	if m.IsOneTime(sub.Package) || sub.SubscriptionID == nil {
		return fmt.Errorf("cancel %q: %w", sub.Package, ErrNotCancellable)
	}

	if sub.Status == account.StatusCancelled {
		return nil
	}

	patch := account.Patch{
		Status:      account.Set(account.StatusCancelled),
		CancelledAt: account.Set(m.now().UTC()),
		LastEventAt: advanceEventAt(sub.LastEventAt, eventAt),
	}

	if err := m.repo.Update(ctx, acc.ID, patch); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}

	m.logger.InfoContext(ctx, "license cancelled",
		"account_id", acc.ID,
		"package", sub.Package,
	)

	return nil
}

func (m *Machine) IsEntitled(acc *account.Account) bool {
	sub := acc.Subscription
	switch sub.Status {
	case account.StatusActive:
		return true
	case account.StatusCancelled:
		return m.policy.GraceOnCancel &&
			sub.CurrentPeriodEnd != nil &&
			sub.CurrentPeriodEnd.After(m.now())
	default:
		return false
	}
}

func (m *Machine) Summary(acc *account.Account) Summary {
	sub := acc.Subscription
	status := sub.Status
	if status == "" {
		status = account.StatusNone
	}
	return Summary{
		Status:           status,
		Package:          sub.Package,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		Entitled:         m.IsEntitled(acc),
	}
}

func isStale(last, event *time.Time) bool {
	return last != nil && event != nil && event.Before(*last)
}

// advanceEventAt only ever moves the last applied event time forward.
func advanceEventAt(last, event *time.Time) account.Field[time.Time] {
	if event == nil || (last != nil && !event.After(*last)) {
		return account.Field[time.Time]{}
	}
	return account.Set(event.UTC())
}

func optionalString(s string) account.Field[string] {
	if s == "" {
		return account.Null[string]()
	}
	return account.Set(s)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
