package core

// EventType tags the billing events this engine acts on. Provider event
// types outside this set decode to EventOther and produce no lifecycle
// action.
type EventType string

const (
	PaymentSucceeded EventType = "payment_succeeded"
	PaymentFailed    EventType = "payment_failed"
	EventOther       EventType = "other"
)

// BillingEvent is the decoded form of a verified provider webhook.
// ContactAddress may be empty for events the provider sends without a
// customer email; those carry no actionable information and are ignored.
type BillingEvent struct {
	Type           EventType
	ContactAddress string

	// ProviderID is the provider's event identifier, kept for audit trails.
	ProviderID string
}

// Verifier authenticates a raw webhook payload against its signature token
// and decodes it into a BillingEvent. Implementations must return
// ErrUnauthorizedEvent (possibly wrapped) when verification fails.
type Verifier interface {
	Verify(payload []byte, signature string) (BillingEvent, error)
}
