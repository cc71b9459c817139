// AngelaMos | 2026
// repository_test.go

package vouch

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/license-gate/internal/core"
)

const cursorID = "0f8fad5b-d9cb-469f-a165-70867728950e"

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

func TestPostgresRepository_ListApprovedWithCursor(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(cursorID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`WHERE approved AND target_user_id = \$1 AND \(created_at, id\) < .* ORDER BY created_at DESC, id DESC LIMIT \$3`).
		WithArgs("seller", cursorID, 11).
		WillReturnRows(sqlmock.NewRows([]string{"id", "rating"}))

	vouches, err := repo.ListApproved(context.Background(), ListQuery{
		TargetUserID: "seller",
		Cursor:       cursorID,
		Limit:        11,
	})
	require.NoError(t, err)
	assert.Empty(t, vouches)
}

func TestPostgresRepository_ListApprovedUnknownCursor(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.ListApproved(context.Background(), ListQuery{Cursor: cursorID, Limit: 5})
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = repo.ListApproved(context.Background(), ListQuery{Cursor: "garbage", Limit: 5})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestPostgresRepository_RatingCounts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`WHERE approved AND target_user_id = \$1 GROUP BY rating`).
		WithArgs("seller").
		WillReturnRows(sqlmock.NewRows([]string{"rating", "n"}).AddRow(5, 3).AddRow(4, 1))

	counts, err := repo.RatingCounts(context.Background(), "seller")
	require.NoError(t, err)
	assert.Equal(t, map[int]int{5: 3, 4: 1}, counts)
}

func TestPostgresRepository_ModerationGuards(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`SET approved = TRUE, approved_by = \$2, approved_at = \$3\s+WHERE id = \$1 AND NOT approved AND NOT rejected`).
		WithArgs(cursorID, "mod", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	applied, err := repo.Approve(ctx, cursorID, "mod", at)
	require.NoError(t, err)
	assert.False(t, applied)

	mock.ExpectExec(`SET rejected = TRUE, approved = FALSE, featured = FALSE,.*WHERE id = \$1 AND NOT rejected`).
		WithArgs(cursorID, "spam", "mod", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	applied, err = repo.Reject(ctx, cursorID, "mod", "spam", at)
	require.NoError(t, err)
	assert.True(t, applied)

	mock.ExpectQuery(`SET featured = NOT featured\s+WHERE id = \$1 AND approved AND NOT rejected\s+RETURNING featured`).
		WithArgs(cursorID).
		WillReturnRows(sqlmock.NewRows([]string{"featured"}))
	_, applied, err = repo.ToggleFeatured(ctx, cursorID)
	require.NoError(t, err)
	assert.False(t, applied)

	mock.ExpectQuery(`SET featured = NOT featured`).
		WithArgs(cursorID).
		WillReturnRows(sqlmock.NewRows([]string{"featured"}).AddRow(true))
	featured, applied, err := repo.ToggleFeatured(ctx, cursorID)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, featured)
}

func TestPostgresRepository_ModerationMalformedID(t *testing.T) {
	repo, _ := newMockRepo(t)
	ctx := context.Background()

	applied, err := repo.Approve(ctx, "42", "mod", time.Now())
	require.NoError(t, err)
	assert.False(t, applied)

	_, applied, err = repo.ToggleFeatured(ctx, "42")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestPostgresRepository_FindByIDMalformed(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.FindByID(context.Background(), "42")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
