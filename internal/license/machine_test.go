// AngelaMos | 2026
// machine_test.go

package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/license-gate/internal/account"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

var testPolicy = Policy{
	Packages:        []string{"monthly", "lifetime", "trial"},
	OneTimePackages: []string{"lifetime"},
}

func newMachine(
	t *testing.T,
	policy Policy,
) (*Machine, *account.MemoryRepository, *account.Account) {
	t.Helper()
	repo := account.NewMemoryRepository()
	acc := &account.Account{
		ID:           "acc-1",
		Username:     "alice",
		Subscription: account.Subscription{Status: account.StatusNone},
	}
	require.NoError(t, repo.Create(context.Background(), acc))

	m := NewMachine(repo, policy, WithClock(func() time.Time { return testNow }))
	return m, repo, acc
}

func TestActivate_LifetimeDropsSubscriptionAndPeriodEnd(t *testing.T) {
	m, _, acc := newMachine(t, testPolicy)
	end := testNow.Add(30 * 24 * time.Hour)

	got, err := m.Activate(context.Background(), acc, Activation{
		Package:        "lifetime",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_should_drop",
		PeriodEnd:      &end,
	})
	require.NoError(t, err)

	sub := got.Subscription
	assert.Equal(t, account.StatusActive, sub.Status)
	assert.Equal(t, "lifetime", sub.Package)
	assert.Nil(t, sub.SubscriptionID)
	assert.Nil(t, sub.CurrentPeriodEnd)
	require.NotNil(t, sub.CustomerID)
	assert.Equal(t, "cus_1", *sub.CustomerID)
	assert.Equal(t, testNow, *sub.ActivatedAt)
	assert.True(t, m.IsEntitled(got))
}

func TestActivate_UnknownPackage(t *testing.T) {
	m, _, acc := newMachine(t, testPolicy)

	_, err := m.Activate(context.Background(), acc, Activation{Package: "gold"})
	assert.ErrorIs(t, err, ErrUnknownPackage)
}

func TestActivate_IdenticalReplayIsNoop(t *testing.T) {
	m, repo, acc := newMachine(t, testPolicy)
	ctx := context.Background()
	end := testNow.Add(30 * 24 * time.Hour)
	act := Activation{
		Package:        "monthly",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		PeriodEnd:      &end,
	}

	first, err := m.Activate(ctx, acc, act)
	require.NoError(t, err)

	later := NewMachine(repo, testPolicy, WithClock(func() time.Time {
		return testNow.Add(time.Hour)
	}))
	second, err := later.Activate(ctx, first, act)
	require.NoError(t, err)
	assert.Equal(t, *first.Subscription.ActivatedAt, *second.Subscription.ActivatedAt)
}

func TestCancel_LifetimeIsNotCancellable(t *testing.T) {
	m, repo, acc := newMachine(t, testPolicy)
	ctx := context.Background()

	got, err := m.Activate(ctx, acc, Activation{Package: "lifetime", CustomerID: "cus_1"})
	require.NoError(t, err)

	assert.ErrorIs(t, m.Cancel(ctx, got, nil), ErrNotCancellable)

	stored, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, account.StatusActive, stored.Subscription.Status)
	assert.Nil(t, stored.Subscription.CancelledAt)
}

func TestCancel_MonthlySucceedsAndIsIdempotent(t *testing.T) {
	m, repo, acc := newMachine(t, testPolicy)
	ctx := context.Background()

	got, err := m.Activate(ctx, acc, Activation{
		Package:        "monthly",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
	})
	require.NoError(t, err)

	require.NoError(t, m.Cancel(ctx, got, nil))

	stored, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, account.StatusCancelled, stored.Subscription.Status)
	assert.Equal(t, testNow, *stored.Subscription.CancelledAt)
	assert.False(t, m.IsEntitled(stored))

	require.NoError(t, m.Cancel(ctx, stored, nil))
}

func TestCancel_WithoutSubscription(t *testing.T) {
	m, _, acc := newMachine(t, testPolicy)

	assert.ErrorIs(t, m.Cancel(context.Background(), acc, nil), ErrNotCancellable)
}

func TestUpdateStatus(t *testing.T) {
	m, repo, acc := newMachine(t, testPolicy)
	ctx := context.Background()
	newer := testNow
	older := testNow.Add(-time.Minute)
	end := testNow.Add(24 * time.Hour)

	applied, err := m.UpdateStatus(ctx, acc, StatusUpdate{
		Status:         "past_due",
		PeriodEnd:      &end,
		SubscriptionID: "sub_1",
		EventAt:        &newer,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "past_due", stored.Subscription.Status)
	assert.False(t, m.IsEntitled(stored))

	applied, err = m.UpdateStatus(ctx, stored, StatusUpdate{
		Status:  account.StatusActive,
		EventAt: &older,
	})
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = m.UpdateStatus(ctx, stored, StatusUpdate{
		Status:         account.StatusActive,
		SubscriptionID: "sub_other",
	})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestIsEntitled_GraceOnCancel(t *testing.T) {
	future := testNow.Add(time.Hour)
	past := testNow.Add(-time.Hour)

	strict := NewMachine(nil, testPolicy, WithClock(func() time.Time { return testNow }))
	gracePolicy := testPolicy
	gracePolicy.GraceOnCancel = true
	grace := NewMachine(nil, gracePolicy, WithClock(func() time.Time { return testNow }))

	tests := []struct {
		name     string
		sub      account.Subscription
		strict   bool
		withinGr bool
	}{
		{"active", account.Subscription{Status: account.StatusActive}, true, true},
		{"none", account.Subscription{Status: account.StatusNone}, false, false},
		{"past_due", account.Subscription{Status: "past_due"}, false, false},
		{"cancelled in period", account.Subscription{Status: account.StatusCancelled, CurrentPeriodEnd: &future}, false, true},
		{"cancelled after period", account.Subscription{Status: account.StatusCancelled, CurrentPeriodEnd: &past}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &account.Account{Subscription: tt.sub}
			assert.Equal(t, tt.strict, strict.IsEntitled(acc))
			assert.Equal(t, tt.withinGr, grace.IsEntitled(acc))
		})
	}
}

func TestSummary(t *testing.T) {
	m := NewMachine(nil, testPolicy)

	s := m.Summary(&account.Account{})
	assert.Equal(t, account.StatusNone, s.Status)
	assert.False(t, s.Entitled)
}

func TestLastEventAtOnlyMovesForward(t *testing.T) {
	m, repo, acc := newMachine(t, testPolicy)
	ctx := context.Background()
	later := testNow.Add(time.Hour)
	earlier := testNow.Add(-time.Hour)

	got, err := m.Activate(ctx, acc, Activation{
		Package:        "monthly",
		SubscriptionID: "sub_1",
		EventAt:        &later,
	})
	require.NoError(t, err)

	got, err = m.Activate(ctx, got, Activation{
		Package:        "trial",
		SubscriptionID: "sub_1",
		EventAt:        &earlier,
	})
	require.NoError(t, err)
	assert.Equal(t, "monthly", got.Subscription.Package)

	require.NoError(t, m.Cancel(ctx, got, &earlier))

	stored, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, account.StatusCancelled, stored.Subscription.Status)
	require.NotNil(t, stored.Subscription.LastEventAt)
	assert.True(t, later.Equal(*stored.Subscription.LastEventAt))
}
