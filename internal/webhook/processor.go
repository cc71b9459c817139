// AngelaMos | 2026
// processor.go

package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/license-gate/internal/account"
	"github.com/carterperez-dev/license-gate/internal/core"
	"github.com/carterperez-dev/license-gate/internal/license"
)

var ErrInFlight = errors.New("webhook event already being processed")

const (
	tracerName = "license-gate/webhook"
	claimTTL   = time.Minute
)

type Result struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Duplicate bool   `json:"duplicate"`
}

type Processor struct {
	accounts account.Repository
	licenses *license.Machine
	ledger   Ledger
	locker   Locker
	logger   *slog.Logger
	now      func() time.Time
}

type ProcessorConfig struct {
	Accounts account.Repository
	Licenses *license.Machine
	Ledger   Ledger
	Locker   Locker
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		accounts: cfg.Accounts,
		licenses: cfg.Licenses,
		ledger:   cfg.Ledger,
		locker:   cfg.Locker,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if p.locker == nil {
		p.locker = NewMemoryLocker()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Process applies a verified event. Events already in the ledger are
// acknowledged without dispatch; the ledger entry is completed only when
// the handler succeeds, so a failed event is retried by the processor.
func (p *Processor) Process(ctx context.Context, evt *Event) (res Result, err error) {
	ctx, span := core.StartSpan(ctx, tracerName, "webhook.process",
		attribute.String("webhook.event_id", evt.ID),
		attribute.String("webhook.event_type", evt.Type),
	)
	defer span.End()

	res = Result{EventID: evt.ID, Type: evt.Type}
	logger := p.logger.With("event_id", evt.ID, "event_type", evt.Type)

	claimed, err := p.locker.Claim(ctx, "webhook:"+evt.ID, claimTTL)
	if err != nil {
		core.SetSpanError(ctx, err)
		return res, err
	}
	if claimed {
		defer func() {
			if relErr := p.locker.Release(ctx, "webhook:"+evt.ID); relErr != nil {
				logger.WarnContext(ctx, "release webhook claim", "error", relErr)
			}
		}()
	}

	done, err := p.ledger.IsProcessed(ctx, evt.ID)
	if err != nil {
		core.SetSpanError(ctx, err)
		return res, err
	}
	if done {
		res.Duplicate = true
		core.AddSpanEvent(ctx, "duplicate")
		logger.InfoContext(ctx, "duplicate webhook event acknowledged")
		return res, nil
	}
	if !claimed {
		return res, ErrInFlight
	}

	if err := p.ledger.Record(ctx, evt.ID, evt.Type, p.now().UTC()); err != nil {
		core.SetSpanError(ctx, err)
		return res, err
	}

	err = p.dispatch(ctx, logger, evt)
	if errors.Is(err, ErrMalformedEvent) {
		logger.ErrorContext(ctx, "undecodable webhook object acknowledged",
			"error", err,
		)
		err = nil
	}
	if err != nil {
		core.SetSpanError(ctx, err)
		logger.ErrorContext(ctx, "webhook handler failed", "error", err)
		return res, err
	}

	if err := p.ledger.MarkProcessed(ctx, evt.ID, p.now().UTC()); err != nil {
		core.SetSpanError(ctx, err)
		return res, err
	}

	return res, nil
}

func (p *Processor) dispatch(
	ctx context.Context,
	logger *slog.Logger,
	evt *Event,
) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s handler panic: %v", evt.Type, rec)
		}
	}()

	switch evt.Type {
	case TypeCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, logger, evt)
	case TypeSubscriptionCreated, TypeSubscriptionUpdated:
		return p.handleSubscriptionChanged(ctx, logger, evt)
	case TypeSubscriptionDeleted:
		return p.handleSubscriptionDeleted(ctx, logger, evt)
	case TypeInvoicePaymentSucceeded, TypeInvoicePaid:
		return p.handleInvoicePaid(ctx, logger, evt)
	case TypeInvoicePaymentFailed:
		return p.handleInvoiceFailed(ctx, logger, evt)
	default:
		logger.InfoContext(ctx, "unhandled webhook event type acknowledged")
		return nil
	}
}

func (p *Processor) handleCheckoutCompleted(
	ctx context.Context,
	logger *slog.Logger,
	evt *Event,
) error {
	var session checkoutSession
	if err := evt.decodeObject(&session); err != nil {
		return err
	}

	acc, err := p.checkoutAccount(ctx, &session)
	if errors.Is(err, core.ErrNotFound) {
		logger.WarnContext(ctx, "checkout for unknown account",
			"client_reference_id", session.ClientReferenceID,
			"customer_id", string(session.Customer),
		)
		return nil
	}
	if err != nil {
		return err
	}

	pkg := session.Metadata["package"]
	_, err = p.licenses.Activate(ctx, acc, license.Activation{
		Package:        pkg,
		CustomerID:     string(session.Customer),
		SubscriptionID: string(session.Subscription),
		EventAt:        evt.CreatedAt(),
	})
	if errors.Is(err, license.ErrUnknownPackage) {
		logger.ErrorContext(ctx, "checkout names unknown package",
			"account_id", acc.ID,
			"package", pkg,
		)
		return nil
	}
	return err
}

func (p *Processor) checkoutAccount(
	ctx context.Context,
	s *checkoutSession,
) (*account.Account, error) {
	id := s.ClientReferenceID
	if id == "" {
		id = s.Metadata["account_id"]
	}
	if id != "" {
		acc, err := p.accounts.FindByID(ctx, id)
		if err == nil || !errors.Is(err, core.ErrNotFound) {
			return acc, err
		}
	}

	if username := s.Metadata["username"]; username != "" {
		return p.accounts.FindByUsername(ctx, username)
	}

	return nil, fmt.Errorf("checkout account: %w", core.ErrNotFound)
}

func (p *Processor) customerAccount(
	ctx context.Context,
	logger *slog.Logger,
	customerID string,
) (*account.Account, error) {
	if customerID == "" {
		logger.WarnContext(ctx, "webhook event without customer id")
		return nil, nil
	}

	acc, err := p.accounts.FindByExternalCustomerID(ctx, customerID)
	if errors.Is(err, core.ErrNotFound) {
		logger.WarnContext(ctx, "no account for customer",
			"customer_id", customerID,
		)
		return nil, nil
	}
	return acc, err
}

func (p *Processor) handleSubscriptionChanged(
	ctx context.Context,
	logger *slog.Logger,
	evt *Event,
) error {
	var sub subscriptionObject
	if err := evt.decodeObject(&sub); err != nil {
		return err
	}

	acc, err := p.customerAccount(ctx, logger, string(sub.Customer))
	if err != nil || acc == nil {
		return err
	}

	_, err = p.licenses.UpdateStatus(ctx, acc, license.StatusUpdate{
		Status:         sub.Status,
		PeriodEnd:      sub.periodEnd(),
		SubscriptionID: sub.ID,
		EventAt:        evt.CreatedAt(),
	})
	return err
}

func (p *Processor) handleSubscriptionDeleted(
	ctx context.Context,
	logger *slog.Logger,
	evt *Event,
) error {
	var sub subscriptionObject
	if err := evt.decodeObject(&sub); err != nil {
		return err
	}

	acc, err := p.customerAccount(ctx, logger, string(sub.Customer))
	if err != nil || acc == nil {
		return err
	}

	current := acc.Subscription.SubscriptionID
	if current != nil && *current != sub.ID {
		logger.InfoContext(ctx, "deletion of superseded subscription ignored",
			"account_id", acc.ID,
			"subscription_id", sub.ID,
		)
		return nil
	}

	err = p.licenses.Cancel(ctx, acc, evt.CreatedAt())
	if errors.Is(err, license.ErrNotCancellable) {
		logger.WarnContext(ctx, "subscription deleted on non-cancellable license",
			"account_id", acc.ID,
			"package", acc.Subscription.Package,
		)
		return nil
	}
	return err
}

func (p *Processor) handleInvoicePaid(
	ctx context.Context,
	logger *slog.Logger,
	evt *Event,
) error {
	var inv invoiceObject
	if err := evt.decodeObject(&inv); err != nil {
		return err
	}

	acc, err := p.customerAccount(ctx, logger, string(inv.Customer))
	if err != nil || acc == nil {
		return err
	}

	paidAt := evt.CreatedAt()
	if inv.StatusTransitions.PaidAt > 0 {
		t := time.Unix(inv.StatusTransitions.PaidAt, 0).UTC()
		paidAt = &t
	}

	return p.accounts.Update(ctx, acc.ID, account.Patch{
		LastPaymentAt:        account.SetPtr(paidAt),
		LastPaymentAmount:    account.Set(inv.AmountPaid),
		LastPaymentCurrency:  account.Set(inv.Currency),
		PaymentFailed:        account.Set(false),
		PaymentFailureReason: account.Set(""),
	})
}

func (p *Processor) handleInvoiceFailed(
	ctx context.Context,
	logger *slog.Logger,
	evt *Event,
) error {
	var inv invoiceObject
	if err := evt.decodeObject(&inv); err != nil {
		return err
	}

	acc, err := p.customerAccount(ctx, logger, string(inv.Customer))
	if err != nil || acc == nil {
		return err
	}

	reason := "invoice payment failed"
	if inv.LastFinalizationError != nil && inv.LastFinalizationError.Message != "" {
		reason = inv.LastFinalizationError.Message
	}

	logger.WarnContext(ctx, "payment failed",
		"account_id", acc.ID,
		"invoice_id", inv.ID,
	)

	return p.accounts.Update(ctx, acc.ID, account.Patch{
		PaymentFailed:        account.Set(true),
		PaymentFailureReason: account.Set(reason),
	})
}
