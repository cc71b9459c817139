// AngelaMos | 2026
// dto.go

package account

import (
	"time"
)

type SubscriptionResponse struct {
	Status           string     `json:"status"`
	Package          string     `json:"package,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	LastHWIDReset    *time.Time `json:"last_hwid_reset,omitempty"`
	PaymentFailed    bool       `json:"payment_failed"`
}

type StatsResponse struct {
	TotalLogins   int       `json:"total_logins"`
	LastLoginDate time.Time `json:"last_login_date"`
}

type AccountResponse struct {
	ID           string               `json:"id"`
	Username     string               `json:"username"`
	Role         string               `json:"role"`
	CreatedAt    time.Time            `json:"created_at"`
	LastLoginAt  time.Time            `json:"last_login_at"`
	HWIDLocked   bool                 `json:"hwid_locked"`
	HWIDLockedAt *time.Time           `json:"hwid_locked_at,omitempty"`
	Subscription SubscriptionResponse `json:"subscription"`
	Stats        StatsResponse        `json:"stats"`
}

func ToAccountResponse(a *Account) AccountResponse {
	sub := a.Subscription
	return AccountResponse{
		ID:           a.ID,
		Username:     a.Username,
		Role:         a.Role,
		CreatedAt:    a.CreatedAt,
		LastLoginAt:  a.LastLoginAt,
		HWIDLocked:   a.HWIDBound(),
		HWIDLockedAt: a.HWIDLockedAt,
		Subscription: SubscriptionResponse{
			Status:           sub.Status,
			Package:          sub.Package,
			CurrentPeriodEnd: sub.CurrentPeriodEnd,
			ActivatedAt:      sub.ActivatedAt,
			CancelledAt:      sub.CancelledAt,
			LastHWIDReset:    sub.LastHWIDReset,
			PaymentFailed:    sub.PaymentFailed,
		},
		Stats: StatsResponse{
			TotalLogins:   a.TotalLogins,
			LastLoginDate: a.LastLoginAt,
		},
	}
}
