// Package ingress decodes raw payment-provider webhooks into billing events
// the lifecycle engine understands. Verification happens here, at the
// boundary; nothing downstream sees an unauthenticated payload.
package ingress

import (
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/open-rails/vpnkit/core"
)

// StripeVerifier implements core.Verifier over Stripe's webhook signing
// scheme. The endpoint secret comes from configuration; this package never
// embeds one.
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(endpointSecret string) *StripeVerifier {
	return &StripeVerifier{secret: endpointSecret}
}

// Verify checks the Stripe-Signature header against the payload and decodes
// the event. Unknown event types decode to core.EventOther: authentic but
// not actionable. Invoice events without a customer email decode with an
// empty contact address.
func (v *StripeVerifier) Verify(payload []byte, signature string) (core.BillingEvent, error) {
	ev, err := webhook.ConstructEvent(payload, signature, v.secret)
	if err != nil {
		return core.BillingEvent{}, fmt.Errorf("%w: %v", core.ErrUnauthorizedEvent, err)
	}

	out := core.BillingEvent{Type: core.EventOther, ProviderID: ev.ID}
	switch ev.Type {
	case "invoice.payment_succeeded":
		out.Type = core.PaymentSucceeded
	case "invoice.payment_failed":
		out.Type = core.PaymentFailed
	default:
		return out, nil
	}

	var inv stripe.Invoice
	if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
		return core.BillingEvent{}, fmt.Errorf("ingress: malformed invoice payload: %w", err)
	}
	out.ContactAddress = inv.CustomerEmail
	return out, nil
}
