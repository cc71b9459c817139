// AngelaMos | 2026
// repository_test.go

package account

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/license-gate/internal/core"
)

const testAccountID = "7b0c9f5e-3c56-4d0e-9d1b-3f1f3a0c2b11"

var accountColumns = []string{
	"id", "username", "credential_hash", "role", "created_at", "last_login_at",
	"total_logins", "hwid", "hwid_locked_at",
	"sub_status", "sub_package", "sub_customer_id", "sub_subscription_id",
	"sub_period_end", "sub_activated_at", "sub_cancelled_at",
	"sub_last_hwid_reset", "sub_last_event_at",
	"last_payment_at", "last_payment_amount", "last_payment_currency",
	"payment_failed", "payment_failure_reason",
}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func accountRowFixture(created time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(accountColumns).AddRow(
		testAccountID, "alice", "$argon2id$hash", RoleUser, created, created,
		3, "HW-1", created,
		StatusActive, "monthly", "cus_1", "sub_1",
		created.Add(30*24*time.Hour), created, nil,
		nil, nil,
		nil, nil, "",
		false, "",
	)
}

func TestPostgresRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO accounts`).
		WithArgs(testAccountID, "alice", "hash", RoleUser, now, now, 1, StatusNone).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &Account{
		ID:             testAccountID,
		Username:       "alice",
		CredentialHash: "hash",
		Role:           RoleUser,
		CreatedAt:      now,
		LastLoginAt:    now,
		TotalLogins:    1,
		Subscription:   Subscription{Status: StatusNone},
	})
	require.NoError(t, err)
}

func TestPostgresRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &Account{
		ID:       testAccountID,
		Username: "alice",
	})
	assert.ErrorIs(t, err, core.ErrDuplicateKey)
}

func TestPostgresRepository_FindByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`FROM accounts\s+WHERE id = \$1`).
		WithArgs(testAccountID).
		WillReturnRows(accountRowFixture(created))

	acc, err := repo.FindByID(context.Background(), testAccountID)
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, 3, acc.TotalLogins)
	require.NotNil(t, acc.HWID)
	assert.Equal(t, "HW-1", *acc.HWID)
	assert.Equal(t, StatusActive, acc.Subscription.Status)
	require.NotNil(t, acc.Subscription.CustomerID)
	assert.Equal(t, "cus_1", *acc.Subscription.CustomerID)
	assert.Nil(t, acc.Subscription.CancelledAt)
}

func TestPostgresRepository_FindByIDMalformedIsNotFound(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPostgresRepository_FindByUsernameMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`WHERE LOWER\(username\) = LOWER\(\$1\)`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(accountColumns))

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPostgresRepository_UpdateBuildsSetClause(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE accounts SET sub_status = $2, sub_package = $3, sub_period_end = $4 WHERE id = $1",
	)).
		WithArgs(testAccountID, StatusActive, "lifetime", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), testAccountID, Patch{
		Status:           Set(StatusActive),
		Package:          Set("lifetime"),
		CurrentPeriodEnd: Null[time.Time](),
	})
	require.NoError(t, err)
}

func TestPostgresRepository_UpdateMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE accounts SET role = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), testAccountID, Patch{
		Role: Set(RoleAdmin),
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPostgresRepository_BindHWIDIfUnbound(t *testing.T) {
	at := time.Now().UTC()

	t.Run("bound", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`WHERE id = \$1 AND hwid IS NULL`).
			WithArgs(testAccountID, "HW-1", at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.BindHWIDIfUnbound(context.Background(), testAccountID, "HW-1", at)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("already bound", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`WHERE id = \$1 AND hwid IS NULL`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(testAccountID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := repo.BindHWIDIfUnbound(context.Background(), testAccountID, "HW-2", at)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing account", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`WHERE id = \$1 AND hwid IS NULL`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.BindHWIDIfUnbound(context.Background(), testAccountID, "HW-2", at)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestPostgresRepository_SelfResetHWID(t *testing.T) {
	at := time.Now().UTC()
	notAfter := at.Add(-7 * 24 * time.Hour)

	t.Run("reset", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`SET hwid = NULL, hwid_locked_at = NULL, sub_last_hwid_reset = \$2 WHERE id = \$1 AND hwid IS NOT NULL AND \(sub_last_hwid_reset IS NULL OR sub_last_hwid_reset <= \$3\)`).
			WithArgs(testAccountID, at, notAfter).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.SelfResetHWID(context.Background(), testAccountID, at, notAfter)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("cooldown or unbound", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(`sub_last_hwid_reset <= \$3`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(testAccountID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := repo.SelfResetHWID(context.Background(), testAccountID, at, notAfter)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPostgresRepository_RecordLogin(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Now().UTC()

	mock.ExpectExec(`SET total_logins = total_logins \+ 1`).
		WithArgs(testAccountID, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordLogin(context.Background(), testAccountID, at))
}
