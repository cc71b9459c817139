// AngelaMos | 2026
// repository.go

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carterperez-dev/license-gate/internal/core"
)

type Repository interface {
	Create(ctx context.Context, acc *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByExternalCustomerID(
		ctx context.Context,
		customerID string,
	) (*Account, error)
	Update(ctx context.Context, id string, patch Patch) error
	BindHWIDIfUnbound(
		ctx context.Context,
		id, hwid string,
		at time.Time,
	) (bool, error)
	ClearHWID(ctx context.Context, id string) (bool, error)
	// SelfResetHWID clears a bound hwid and stamps the reset time only when
	// the previous self reset happened at or before notAfter.
	SelfResetHWID(
		ctx context.Context,
		id string,
		at, notAfter time.Time,
	) (bool, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

type accountRow struct {
	ID                   string     `db:"id"`
	Username             string     `db:"username"`
	CredentialHash       string     `db:"credential_hash"`
	Role                 string     `db:"role"`
	CreatedAt            time.Time  `db:"created_at"`
	LastLoginAt          time.Time  `db:"last_login_at"`
	TotalLogins          int        `db:"total_logins"`
	HWID                 *string    `db:"hwid"`
	HWIDLockedAt         *time.Time `db:"hwid_locked_at"`
	Status               string     `db:"sub_status"`
	Package              string     `db:"sub_package"`
	CustomerID           *string    `db:"sub_customer_id"`
	SubscriptionID       *string    `db:"sub_subscription_id"`
	CurrentPeriodEnd     *time.Time `db:"sub_period_end"`
	ActivatedAt          *time.Time `db:"sub_activated_at"`
	CancelledAt          *time.Time `db:"sub_cancelled_at"`
	LastHWIDReset        *time.Time `db:"sub_last_hwid_reset"`
	LastEventAt          *time.Time `db:"sub_last_event_at"`
	LastPaymentAt        *time.Time `db:"last_payment_at"`
	LastPaymentAmount    *int64     `db:"last_payment_amount"`
	LastPaymentCurrency  string     `db:"last_payment_currency"`
	PaymentFailed        bool       `db:"payment_failed"`
	PaymentFailureReason string     `db:"payment_failure_reason"`
}

func (r *accountRow) toAccount() *Account {
	return &Account{
		ID:             r.ID,
		Username:       r.Username,
		CredentialHash: r.CredentialHash,
		Role:           r.Role,
		CreatedAt:      r.CreatedAt,
		LastLoginAt:    r.LastLoginAt,
		TotalLogins:    r.TotalLogins,
		HWID:           r.HWID,
		HWIDLockedAt:   r.HWIDLockedAt,
		Subscription: Subscription{
			Status:               r.Status,
			Package:              r.Package,
			CustomerID:           r.CustomerID,
			SubscriptionID:       r.SubscriptionID,
			CurrentPeriodEnd:     r.CurrentPeriodEnd,
			ActivatedAt:          r.ActivatedAt,
			CancelledAt:          r.CancelledAt,
			LastHWIDReset:        r.LastHWIDReset,
			LastEventAt:          r.LastEventAt,
			LastPaymentAt:        r.LastPaymentAt,
			LastPaymentAmount:    r.LastPaymentAmount,
			LastPaymentCurrency:  r.LastPaymentCurrency,
			PaymentFailed:        r.PaymentFailed,
			PaymentFailureReason: r.PaymentFailureReason,
		},
	}
}

const selectColumns = `
	SELECT id, username, credential_hash, role, created_at, last_login_at,
	       total_logins, hwid, hwid_locked_at,
	       sub_status, sub_package, sub_customer_id, sub_subscription_id,
	       sub_period_end, sub_activated_at, sub_cancelled_at,
	       sub_last_hwid_reset, sub_last_event_at,
	       last_payment_at, last_payment_amount, last_payment_currency,
	       payment_failed, payment_failure_reason
	FROM accounts`

type PostgresRepository struct {
	db core.DBTX
}

func NewPostgresRepository(db core.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, acc *Account) error {
	query := `
		INSERT INTO accounts (
			id, username, credential_hash, role, created_at, last_login_at,
			total_logins, sub_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		acc.ID,
		acc.Username,
		acc.CredentialHash,
		acc.Role,
		acc.CreatedAt,
		acc.LastLoginAt,
		acc.TotalLogins,
		acc.Subscription.Status,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

func (r *PostgresRepository) FindByID(
	ctx context.Context,
	id string,
) (*Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("find account: %w", core.ErrNotFound)
	}
	return r.findOne(ctx, "find account", selectColumns+` WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByUsername(
	ctx context.Context,
	username string,
) (*Account, error) {
	return r.findOne(
		ctx,
		"find account by username",
		selectColumns+` WHERE LOWER(username) = LOWER($1)`,
		username,
	)
}

func (r *PostgresRepository) FindByExternalCustomerID(
	ctx context.Context,
	customerID string,
) (*Account, error) {
	return r.findOne(
		ctx,
		"find account by customer",
		selectColumns+`
		WHERE sub_customer_id = $1
		ORDER BY sub_activated_at DESC NULLS LAST
		LIMIT 1`,
		customerID,
	)
}

func (r *PostgresRepository) findOne(
	ctx context.Context,
	op, query string,
	arg any,
) (*Account, error) {
	var row accountRow
	err := r.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return row.toAccount(), nil
}

func (r *PostgresRepository) Update(
	ctx context.Context,
	id string,
	patch Patch,
) error {
	assignments := patch.assignments()
	if len(assignments) == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		return nil
	}

	sets := make([]string, 0, len(assignments))
	args := make([]any, 0, len(assignments)+1)
	args = append(args, id)
	for i, a := range assignments {
		sets = append(sets, fmt.Sprintf("%s = $%d", a.column, i+2))
		args = append(args, a.value)
	}

	query := fmt.Sprintf(
		"UPDATE accounts SET %s WHERE id = $1",
		strings.Join(sets, ", "),
	)

	return r.execAffecting(ctx, "update account", query, args...)
}

func (r *PostgresRepository) BindHWIDIfUnbound(
	ctx context.Context,
	id, hwid string,
	at time.Time,
) (bool, error) {
	query := `
		UPDATE accounts
		SET hwid = $2, hwid_locked_at = $3
		WHERE id = $1 AND hwid IS NULL`

	return r.conditionalUpdate(ctx, "bind hwid", id, query, id, hwid, at)
}

func (r *PostgresRepository) ClearHWID(
	ctx context.Context,
	id string,
) (bool, error) {
	query := `
		UPDATE accounts
		SET hwid = NULL, hwid_locked_at = NULL
		WHERE id = $1 AND hwid IS NOT NULL`

	return r.conditionalUpdate(ctx, "clear hwid", id, query, id)
}

func (r *PostgresRepository) SelfResetHWID(
	ctx context.Context,
	id string,
	at, notAfter time.Time,
) (bool, error) {
	query := `
		UPDATE accounts
		SET hwid = NULL, hwid_locked_at = NULL, sub_last_hwid_reset = $2
		WHERE id = $1 AND hwid IS NOT NULL
		  AND (sub_last_hwid_reset IS NULL OR sub_last_hwid_reset <= $3)`

	return r.conditionalUpdate(ctx, "self reset hwid", id, query, id, at, notAfter)
}

func (r *PostgresRepository) RecordLogin(
	ctx context.Context,
	id string,
	at time.Time,
) error {
	query := `
		UPDATE accounts
		SET total_logins = total_logins + 1, last_login_at = $2
		WHERE id = $1`

	return r.execAffecting(ctx, "record login", query, id, at)
}

// conditionalUpdate runs a guarded UPDATE. A miss is disambiguated into
// "guard failed" (false, nil) or "no such account" (ErrNotFound).
func (r *PostgresRepository) conditionalUpdate(
	ctx context.Context,
	op, id, query string,
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

	if rows > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.GetContext(
		ctx,
		&exists,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`,
		id,
	); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !exists {
		return false, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return false, nil
}

func (r *PostgresRepository) execAffecting(
	ctx context.Context,
	op, query string,
	args ...any,
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ Repository = (*PostgresRepository)(nil)
