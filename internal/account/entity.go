// AngelaMos | 2026
// entity.go

package account

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	StatusNone      = "none"
	StatusInactive  = "inactive"
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

type Account struct {
	ID             string
	Username       string
	CredentialHash string
	Role           string
	CreatedAt      time.Time
	LastLoginAt    time.Time
	TotalLogins    int
	HWID           *string
	HWIDLockedAt   *time.Time
	Subscription   Subscription
}

// Subscription is the license record embedded in every account. Status may
// also hold a raw payment-processor status such as "past_due".
type Subscription struct {
	Status               string
	Package              string
	CustomerID           *string
	SubscriptionID       *string
	CurrentPeriodEnd     *time.Time
	ActivatedAt          *time.Time
	CancelledAt          *time.Time
	LastHWIDReset        *time.Time
	LastEventAt          *time.Time
	LastPaymentAt        *time.Time
	LastPaymentAmount    *int64
	LastPaymentCurrency  string
	PaymentFailed        bool
	PaymentFailureReason string
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a *Account) HWIDBound() bool {
	return a.HWID != nil
}
