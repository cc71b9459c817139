// AngelaMos | 2026
// repository.go

package vouch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/license-gate/internal/core"
)

var ErrInvalidCursor = errors.New("invalid cursor")

type Repository interface {
	Create(ctx context.Context, v *Vouch) error
	FindByID(ctx context.Context, id string) (*Vouch, error)
	// Moderation writes are conditional and touch only their own columns.
	// They report false when the row did not satisfy the guard.
	Approve(ctx context.Context, id, moderatorID string, at time.Time) (bool, error)
	Reject(ctx context.Context, id, moderatorID, reason string, at time.Time) (bool, error)
	ToggleFeatured(ctx context.Context, id string) (featured bool, ok bool, err error)
	ListApproved(ctx context.Context, q ListQuery) ([]Vouch, error)
	ListPending(ctx context.Context, limit int) ([]Vouch, error)
	RatingCounts(ctx context.Context, targetUserID string) (map[int]int, error)
}

const vouchColumns = `
	id, author_id, target_user_id, rating, message, approved, featured,
	rejected, rejection_reason, created_at, approved_by, approved_at,
	rejected_by, rejected_at`

type PostgresRepository struct {
	db core.DBTX
}

func NewPostgresRepository(db core.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, v *Vouch) error {
	query := `
		INSERT INTO vouches (
			id, author_id, target_user_id, rating, message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		v.ID,
		v.AuthorID,
		v.TargetUserID,
		v.Rating,
		v.Message,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create vouch: %w", err)
	}

	return nil
}

func (r *PostgresRepository) FindByID(
	ctx context.Context,
	id string,
) (*Vouch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("find vouch: %w", core.ErrNotFound)
	}

	var v Vouch
	err := r.db.GetContext(ctx, &v,
		`SELECT `+vouchColumns+` FROM vouches WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find vouch: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find vouch: %w", err)
	}

	return &v, nil
}

// Approve reports false when the vouch is missing, already approved or
// rejected. The guard lives in the WHERE clause so a concurrent Reject wins.
func (r *PostgresRepository) Approve(
	ctx context.Context,
	id, moderatorID string,
	at time.Time,
) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	query := `
		UPDATE vouches
		SET approved = TRUE, approved_by = $2, approved_at = $3
		WHERE id = $1 AND NOT approved AND NOT rejected`

	return r.execModeration(ctx, "approve vouch", query, id, moderatorID, at)
}

func (r *PostgresRepository) Reject(
	ctx context.Context,
	id, moderatorID, reason string,
	at time.Time,
) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	query := `
		UPDATE vouches
		SET rejected = TRUE, approved = FALSE, featured = FALSE,
		    rejection_reason = $2, rejected_by = $3, rejected_at = $4
		WHERE id = $1 AND NOT rejected`

	return r.execModeration(ctx, "reject vouch", query, id, reason, moderatorID, at)
}

func (r *PostgresRepository) ToggleFeatured(
	ctx context.Context,
	id string,
) (bool, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, false, nil
	}

	query := `
		UPDATE vouches
		SET featured = NOT featured
		WHERE id = $1 AND approved AND NOT rejected
		RETURNING featured`

	var featured bool
	err := r.db.GetContext(ctx, &featured, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("feature vouch: %w", err)
	}

	return featured, true, nil
}

func (r *PostgresRepository) execModeration(
	ctx context.Context,
	op, query string,
	args ...any,
) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return rows == 1, nil
}

func (r *PostgresRepository) ListApproved(
	ctx context.Context,
	q ListQuery,
) ([]Vouch, error) {
	conditions := []string{"approved"}
	args := []any{}

	if q.FeaturedOnly {
		conditions = append(conditions, "featured")
	}

	if q.TargetUserID != "" {
		args = append(args, q.TargetUserID)
		conditions = append(conditions, fmt.Sprintf("target_user_id = $%d", len(args)))
	}

	if q.Cursor != "" {
		if _, err := uuid.Parse(q.Cursor); err != nil {
			return nil, fmt.Errorf("list vouches: %w", ErrInvalidCursor)
		}

		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM vouches WHERE id = $1)`, q.Cursor,
		); err != nil {
			return nil, fmt.Errorf("list vouches: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("list vouches: %w", ErrInvalidCursor)
		}

		args = append(args, q.Cursor)
		conditions = append(conditions, fmt.Sprintf(
			"(created_at, id) < (SELECT created_at, id FROM vouches WHERE id = $%d)",
			len(args),
		))
	}

	args = append(args, q.Limit)
	query := fmt.Sprintf(
		`SELECT %s FROM vouches WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		vouchColumns,
		strings.Join(conditions, " AND "),
		len(args),
	)

	var vouches []Vouch
	if err := r.db.SelectContext(ctx, &vouches, query, args...); err != nil {
		return nil, fmt.Errorf("list vouches: %w", err)
	}

	return vouches, nil
}

func (r *PostgresRepository) ListPending(
	ctx context.Context,
	limit int,
) ([]Vouch, error) {
	query := `SELECT ` + vouchColumns + `
		FROM vouches
		WHERE NOT approved AND NOT rejected
		ORDER BY created_at ASC, id ASC
		LIMIT $1`

	var vouches []Vouch
	if err := r.db.SelectContext(ctx, &vouches, query, limit); err != nil {
		return nil, fmt.Errorf("list pending vouches: %w", err)
	}

	return vouches, nil
}

func (r *PostgresRepository) RatingCounts(
	ctx context.Context,
	targetUserID string,
) (map[int]int, error) {
	query := `SELECT rating, COUNT(*) AS n FROM vouches WHERE approved`
	args := []any{}
	if targetUserID != "" {
		query += ` AND target_user_id = $1`
		args = append(args, targetUserID)
	}
	query += ` GROUP BY rating`

	var rows []struct {
		Rating int `db:"rating"`
		N      int `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("vouch stats: %w", err)
	}

	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.Rating] = row.N
	}
	return counts, nil
}

var _ Repository = (*PostgresRepository)(nil)
