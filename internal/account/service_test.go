// AngelaMos | 2026
// service_test.go

package account

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/license-gate/internal/core"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestService_CreateStoresHashAndCountsFirstLogin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(NewMemoryRepository(), WithClock(fixedClock(now)))

	acc, err := svc.Create(context.Background(), "alice", "s3cret-pass")
	require.NoError(t, err)

	assert.NotEmpty(t, acc.ID)
	assert.NotEqual(t, "s3cret-pass", acc.CredentialHash)
	assert.Equal(t, RoleUser, acc.Role)
	assert.Equal(t, 1, acc.TotalLogins)
	assert.Equal(t, now, acc.CreatedAt)
	assert.Equal(t, StatusNone, acc.Subscription.Status)
	assert.False(t, acc.HWIDBound())
}

func TestService_CreateRejectsDuplicateCaseInsensitive(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Create(ctx, "Alice", "pw-one")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "alice", "pw-two")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestService_CreateValidatesInput(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	_, err := svc.Create(context.Background(), "ab", "pw")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = svc.Create(context.Background(), "abc", "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestService_Authenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	created, err := svc.Create(ctx, "bob", "hunter22")
	require.NoError(t, err)

	acc, err := svc.Authenticate(ctx, "BOB", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created.ID, acc.ID)

	_, err = svc.Authenticate(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_PromoteToAdmin(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Create(ctx, "mod", "pw-mod")
	require.NoError(t, err)

	require.NoError(t, svc.PromoteToAdmin(ctx, "mod"))
	require.NoError(t, svc.PromoteToAdmin(ctx, "mod"))

	acc, err := svc.GetByUsername(ctx, "mod")
	require.NoError(t, err)
	assert.True(t, acc.IsAdmin())

	assert.ErrorIs(t, svc.PromoteToAdmin(ctx, "ghost"), core.ErrNotFound)
}

func TestMemoryRepository_BindHWIDIsAtomic(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	acc, err := svc.Create(ctx, "racer", "pw-race")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := range 16 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := repo.BindHWIDIfUnbound(ctx, acc.ID, string(rune('A'+n)), time.Now())
			if err == nil && ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	stored, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.HWID)
	require.NotNil(t, stored.HWIDLockedAt)
}

func TestMemoryRepository_ClearHWID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &Account{ID: "a1", Username: "carol"}))

	cleared, err := repo.ClearHWID(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, cleared)

	_, err = repo.BindHWIDIfUnbound(ctx, "a1", "HW", time.Now())
	require.NoError(t, err)

	cleared, err = repo.ClearHWID(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, cleared)

	acc, err := repo.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, acc.HWID)
	assert.Nil(t, acc.HWIDLockedAt)

	_, err = repo.ClearHWID(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &Account{ID: "a1", Username: "dave"}))

	acc, err := repo.FindByID(ctx, "a1")
	require.NoError(t, err)
	acc.Subscription.Status = StatusActive

	again, err := repo.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.NotEqual(t, StatusActive, again.Subscription.Status)
}

func TestMemoryRepository_FindByExternalCustomerIDPrefersLatest(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	require.NoError(t, repo.Create(ctx, &Account{ID: "a1", Username: "first"}))
	require.NoError(t, repo.Create(ctx, &Account{ID: "a2", Username: "second"}))
	require.NoError(t, repo.Update(ctx, "a1", Patch{
		CustomerID:  Set("cus_9"),
		ActivatedAt: Set(older),
	}))
	require.NoError(t, repo.Update(ctx, "a2", Patch{
		CustomerID:  Set("cus_9"),
		ActivatedAt: Set(newer),
	}))

	acc, err := repo.FindByExternalCustomerID(ctx, "cus_9")
	require.NoError(t, err)
	assert.Equal(t, "a2", acc.ID)

	_, err = repo.FindByExternalCustomerID(ctx, "cus_none")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPatch_ApplyAndNull(t *testing.T) {
	end := time.Now().UTC()
	acc := &Account{Subscription: Subscription{CurrentPeriodEnd: &end}}

	Patch{
		Status:           Set(StatusActive),
		CurrentPeriodEnd: Null[time.Time](),
		SubscriptionID:   SetPtr[string](nil),
	}.apply(acc)

	assert.Equal(t, StatusActive, acc.Subscription.Status)
	assert.Nil(t, acc.Subscription.CurrentPeriodEnd)
	assert.Nil(t, acc.Subscription.SubscriptionID)

	assert.True(t, Patch{}.IsEmpty())
	assert.False(t, Patch{Role: Set(RoleAdmin)}.IsEmpty())
}
