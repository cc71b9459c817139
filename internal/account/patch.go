// AngelaMos | 2026
// patch.go

package account

import (
	"time"
)

// Field is one optional assignment in a Patch. The zero value leaves the
// column untouched; Null clears a nullable column.
type Field[T any] struct {
	set   bool
	value *T
}

func Set[T any](v T) Field[T] {
	return Field[T]{set: true, value: &v}
}

func Null[T any]() Field[T] {
	return Field[T]{set: true}
}

// SetPtr sets the field to *v, or to null when v is nil.
func SetPtr[T any](v *T) Field[T] {
	if v == nil {
		return Null[T]()
	}
	return Set(*v)
}

func (f Field[T]) IsSet() bool {
	return f.set
}

func (f Field[T]) Value() *T {
	return f.value
}

func (f Field[T]) sqlValue() any {
	if f.value == nil {
		return nil
	}
	return *f.value
}

func (f Field[T]) applyTo(dst *T) {
	if f.set && f.value != nil {
		*dst = *f.value
	}
}

func (f Field[T]) applyToPtr(dst **T) {
	if !f.set {
		return
	}
	if f.value == nil {
		*dst = nil
		return
	}
	v := *f.value
	*dst = &v
}

// Patch is a partial update. Only fields that are set are written. The HWID
// pair is not patchable; it changes only through BindHWIDIfUnbound and
// ClearHWID.
type Patch struct {
	CredentialHash Field[string]
	Role           Field[string]

	Status               Field[string]
	Package              Field[string]
	CustomerID           Field[string]
	SubscriptionID       Field[string]
	CurrentPeriodEnd     Field[time.Time]
	ActivatedAt          Field[time.Time]
	CancelledAt          Field[time.Time]
	LastHWIDReset        Field[time.Time]
	LastEventAt          Field[time.Time]
	LastPaymentAt        Field[time.Time]
	LastPaymentAmount    Field[int64]
	LastPaymentCurrency  Field[string]
	PaymentFailed        Field[bool]
	PaymentFailureReason Field[string]
}

type assignment struct {
	column string
	value  any
}

func (p Patch) assignments() []assignment {
	fields := []struct {
		column string
		set    bool
		value  any
	}{
		{"credential_hash", p.CredentialHash.IsSet(), p.CredentialHash.sqlValue()},
		{"role", p.Role.IsSet(), p.Role.sqlValue()},
		{"sub_status", p.Status.IsSet(), p.Status.sqlValue()},
		{"sub_package", p.Package.IsSet(), p.Package.sqlValue()},
		{"sub_customer_id", p.CustomerID.IsSet(), p.CustomerID.sqlValue()},
		{"sub_subscription_id", p.SubscriptionID.IsSet(), p.SubscriptionID.sqlValue()},
		{"sub_period_end", p.CurrentPeriodEnd.IsSet(), p.CurrentPeriodEnd.sqlValue()},
		{"sub_activated_at", p.ActivatedAt.IsSet(), p.ActivatedAt.sqlValue()},
		{"sub_cancelled_at", p.CancelledAt.IsSet(), p.CancelledAt.sqlValue()},
		{"sub_last_hwid_reset", p.LastHWIDReset.IsSet(), p.LastHWIDReset.sqlValue()},
		{"sub_last_event_at", p.LastEventAt.IsSet(), p.LastEventAt.sqlValue()},
		{"last_payment_at", p.LastPaymentAt.IsSet(), p.LastPaymentAt.sqlValue()},
		{"last_payment_amount", p.LastPaymentAmount.IsSet(), p.LastPaymentAmount.sqlValue()},
		{"last_payment_currency", p.LastPaymentCurrency.IsSet(), p.LastPaymentCurrency.sqlValue()},
		{"payment_failed", p.PaymentFailed.IsSet(), p.PaymentFailed.sqlValue()},
		{"payment_failure_reason", p.PaymentFailureReason.IsSet(), p.PaymentFailureReason.sqlValue()},
	}

	out := make([]assignment, 0, len(fields))
	for _, f := range fields {
		if f.set {
			out = append(out, assignment{column: f.column, value: f.value})
		}
	}
	return out
}

func (p Patch) IsEmpty() bool {
	return len(p.assignments()) == 0
}

func (p Patch) apply(a *Account) {
	p.CredentialHash.applyTo(&a.CredentialHash)
	p.Role.applyTo(&a.Role)

	s := &a.Subscription
	p.Status.applyTo(&s.Status)
	p.Package.applyTo(&s.Package)
	p.CustomerID.applyToPtr(&s.CustomerID)
	p.SubscriptionID.applyToPtr(&s.SubscriptionID)
	p.CurrentPeriodEnd.applyToPtr(&s.CurrentPeriodEnd)
	p.ActivatedAt.applyToPtr(&s.ActivatedAt)
	p.CancelledAt.applyToPtr(&s.CancelledAt)
	p.LastHWIDReset.applyToPtr(&s.LastHWIDReset)
	p.LastEventAt.applyToPtr(&s.LastEventAt)
	p.LastPaymentAt.applyToPtr(&s.LastPaymentAt)
	p.LastPaymentAmount.applyToPtr(&s.LastPaymentAmount)
	p.LastPaymentCurrency.applyTo(&s.LastPaymentCurrency)
	p.PaymentFailed.applyTo(&s.PaymentFailed)
	p.PaymentFailureReason.applyTo(&s.PaymentFailureReason)
}
