// AngelaMos | 2026
// memory.go

package account

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carterperez-dev/license-gate/internal/core"
)

// MemoryRepository keeps accounts in process memory. Every method holds the
// lock for its whole read-modify-write, so the conditional operations are
// atomic.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*Account
	byUsername map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*Account),
		byUsername: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, acc *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(acc.Username)
	if _, taken := r.byUsername[key]; taken {
		return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
	}
	if _, taken := r.byID[acc.ID]; taken {
		return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
	}

	r.byID[acc.ID] = cloneAccount(acc)
	r.byUsername[key] = acc.ID

	return nil
}

func (r *MemoryRepository) FindByID(
	_ context.Context,
	id string,
) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("find account: %w", core.ErrNotFound)
	}
	return cloneAccount(acc), nil
}

func (r *MemoryRepository) FindByUsername(
	_ context.Context,
	username string,
) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, fmt.Errorf("find account by username: %w", core.ErrNotFound)
	}
	return cloneAccount(r.byID[id]), nil
}

func (r *MemoryRepository) FindByExternalCustomerID(
	_ context.Context,
	customerID string,
) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *Account
	for _, acc := range r.byID {
		sub := acc.Subscription
		if sub.CustomerID == nil || *sub.CustomerID != customerID {
			continue
		}
		if found == nil || activatedAfter(acc, found) {
			found = acc
		}
	}

	if found == nil {
		return nil, fmt.Errorf("find account by customer: %w", core.ErrNotFound)
	}
	return cloneAccount(found), nil
}

func activatedAfter(a, b *Account) bool {
	at, bt := a.Subscription.ActivatedAt, b.Subscription.ActivatedAt
	switch {
	case at == nil:
		return false
	case bt == nil:
		return true
	default:
		return at.After(*bt)
	}
}

func (r *MemoryRepository) Update(
	_ context.Context,
	id string,
	patch Patch,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("update account: %w", core.ErrNotFound)
	}

	patch.apply(acc)
	return nil
}

func (r *MemoryRepository) BindHWIDIfUnbound(
	_ context.Context,
	id, hwid string,
	at time.Time,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return false, fmt.Errorf("bind hwid: %w", core.ErrNotFound)
	}

	if acc.HWID != nil {
		return false, nil
	}

	acc.HWID = &hwid
	acc.HWIDLockedAt = &at
	return true, nil
}

func (r *MemoryRepository) ClearHWID(
	_ context.Context,
	id string,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return false, fmt.Errorf("clear hwid: %w", core.ErrNotFound)
	}

	if acc.HWID == nil {
		return false, nil
	}

	acc.HWID = nil
	acc.HWIDLockedAt = nil
	return true, nil
}

func (r *MemoryRepository) SelfResetHWID(
	_ context.Context,
	id string,
	at, notAfter time.Time,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return false, fmt.Errorf("self reset hwid: %w", core.ErrNotFound)
	}

	last := acc.Subscription.LastHWIDReset
	if acc.HWID == nil || (last != nil && last.After(notAfter)) {
		return false, nil
	}

	acc.HWID = nil
	acc.HWIDLockedAt = nil
	acc.Subscription.LastHWIDReset = &at
	return true, nil
}

func (r *MemoryRepository) RecordLogin(
	_ context.Context,
	id string,
	at time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("record login: %w", core.ErrNotFound)
	}

	acc.TotalLogins++
	acc.LastLoginAt = at
	return nil
}

func cloneAccount(a *Account) *Account {
	c := *a
	c.HWID = clonePtr(a.HWID)
	c.HWIDLockedAt = clonePtr(a.HWIDLockedAt)

	s := &c.Subscription
	s.CustomerID = clonePtr(s.CustomerID)
	s.SubscriptionID = clonePtr(s.SubscriptionID)
	s.CurrentPeriodEnd = clonePtr(s.CurrentPeriodEnd)
	s.ActivatedAt = clonePtr(s.ActivatedAt)
	s.CancelledAt = clonePtr(s.CancelledAt)
	s.LastHWIDReset = clonePtr(s.LastHWIDReset)
	s.LastEventAt = clonePtr(s.LastEventAt)
	s.LastPaymentAt = clonePtr(s.LastPaymentAt)
	s.LastPaymentAmount = clonePtr(s.LastPaymentAmount)

	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ Repository = (*MemoryRepository)(nil)
