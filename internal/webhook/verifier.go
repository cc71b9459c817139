// AngelaMos | 2026
// verifier.go

package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

const SignatureHeader = "Stripe-Signature"

// Verifier checks the processor signature over the raw request body. It
// must run before the body is parsed.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

func (v *Verifier) Verify(payload []byte, header string) error {
	if v.secret == "" {
		return fmt.Errorf("verify: no signing secret configured: %w", ErrInvalidSignature)
	}
	if header == "" {
		return fmt.Errorf("verify: missing %s header: %w", SignatureHeader, ErrInvalidSignature)
	}

	if err := webhook.ValidatePayloadWithTolerance(
		payload,
		header,
		v.secret,
		v.tolerance,
	); err != nil {
		return fmt.Errorf("verify: %v: %w", err, ErrInvalidSignature)
	}

	return nil
}
