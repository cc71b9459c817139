// AngelaMos | 2026
// event.go

package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

const (
	TypeCheckoutCompleted       = "checkout.session.completed"
	TypeSubscriptionCreated     = "customer.subscription.created"
	TypeSubscriptionUpdated     = "customer.subscription.updated"
	TypeSubscriptionDeleted     = "customer.subscription.deleted"
	TypeInvoicePaymentSucceeded = "invoice.payment_succeeded"
	TypeInvoicePaid             = "invoice.paid"
	TypeInvoicePaymentFailed    = "invoice.payment_failed"
)

type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (e *Event) CreatedAt() *time.Time {
	if e.Created <= 0 {
		return nil
	}
	t := time.Unix(e.Created, 0).UTC()
	return &t
}

func ParseEvent(payload []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("parse event: %v: %w", err, ErrMalformedEvent)
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("parse event: missing id or type: %w", ErrMalformedEvent)
	}
	return &evt, nil
}

func (e *Event) decodeObject(dst any) error {
	if len(e.Data.Object) == 0 {
		return fmt.Errorf("%s %s: empty data.object: %w", e.Type, e.ID, ErrMalformedEvent)
	}
	if err := json.Unmarshal(e.Data.Object, dst); err != nil {
		return fmt.Errorf("%s %s: %v: %w", e.Type, e.ID, err, ErrMalformedEvent)
	}
	return nil
}

// objectID accepts either a bare id or an expanded object carrying an id.
type objectID string

func (o *objectID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*o = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = objectID(s)
		return nil
	}

	var expanded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &expanded); err != nil {
		return err
	}
	*o = objectID(expanded.ID)
	return nil
}

type checkoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          objectID          `json:"customer"`
	Subscription      objectID          `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID               string   `json:"id"`
	Customer         objectID `json:"customer"`
	Status           string   `json:"status"`
	CurrentPeriodEnd int64    `json:"current_period_end"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (s *subscriptionObject) periodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	if end == 0 && len(s.Items.Data) > 0 {
		end = s.Items.Data[0].CurrentPeriodEnd
	}
	if end <= 0 {
		return nil
	}
	t := time.Unix(end, 0).UTC()
	return &t
}

type invoiceObject struct {
	ID                string   `json:"id"`
	Customer          objectID `json:"customer"`
	AmountPaid        int64    `json:"amount_paid"`
	AmountDue         int64    `json:"amount_due"`
	Currency          string   `json:"currency"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	LastFinalizationError *struct {
		Message string `json:"message"`
	} `json:"last_finalization_error"`
}
