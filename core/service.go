package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/vpnkit/entitlements"
)

// DefaultRenewalTerm is how long a successful payment entitles a client.
// A renewal extends from the payment time, not from the old expiry.
const DefaultRenewalTerm = 30 * 24 * time.Hour

// Outcome classifies what the engine did with a billing event.
type Outcome string

const (
	// OutcomeAccepted: the event drove a lifecycle action (possibly with
	// surfaced partial failures).
	OutcomeAccepted Outcome = "accepted"
	// OutcomeIgnored: the event was authentic but carried no actionable
	// information (unknown type, or no contact address).
	OutcomeIgnored Outcome = "ignored"
	// OutcomeRejected: the event was refused before any state change.
	OutcomeRejected Outcome = "rejected"
)

// Config wires a Service. Store, Provisioner, Notifier, and Verifier are
// required; the rest default sensibly.
type Config struct {
	Store       entitlements.Store
	Provisioner Provisioner
	Notifier    Notifier
	Verifier    Verifier

	// Audit is optional; when set, lifecycle decisions are recorded
	// best-effort.
	Audit LifecycleAuditLogger

	Logger logrus.FieldLogger

	// RenewalTerm overrides DefaultRenewalTerm when > 0.
	RenewalTerm time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service is the subscription lifecycle engine. It interprets verified
// billing events and elapsed time into provision/revoke decisions against
// the entitlement ledger, serializing work per client ID so concurrent
// deliveries for the same client cannot interleave.
type Service struct {
	store  entitlements.Store
	prov   Provisioner
	notify Notifier
	verify Verifier
	audit  LifecycleAuditLogger
	log    logrus.FieldLogger
	term   time.Duration
	now    func() time.Time
	locks  *keyedMutex
}

func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("core: store is required")
	}
	if cfg.Provisioner == nil {
		return nil, errors.New("core: provisioner is required")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("core: notifier is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("core: verifier is required")
	}
	s := &Service{
		store:  cfg.Store,
		prov:   cfg.Provisioner,
		notify: cfg.Notifier,
		verify: cfg.Verifier,
		audit:  cfg.Audit,
		log:    cfg.Logger,
		term:   cfg.RenewalTerm,
		now:    cfg.Now,
		locks:  newKeyedMutex(),
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.term <= 0 {
		s.term = DefaultRenewalTerm
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// HandleBillingEvent verifies, decodes, and applies one raw provider
// webhook. Rejected events never mutate state. Accepted events run to
// completion: partial failures (provisioning, storage) are returned to the
// caller alongside OutcomeAccepted rather than abandoning the remaining
// steps silently.
func (s *Service) HandleBillingEvent(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ev, err := s.verify.Verify(payload, signature)
	if err != nil {
		s.log.WithError(err).Warn("billing event rejected: signature verification failed")
		return OutcomeRejected, fmt.Errorf("%w: %v", ErrUnauthorizedEvent, err)
	}

	switch ev.Type {
	case PaymentSucceeded, PaymentFailed:
	default:
		return OutcomeIgnored, nil
	}
	if ev.ContactAddress == "" {
		// Nothing to act on; the provider sends some invoice events
		// without a customer email.
		s.log.WithField("event_type", ev.Type).Debug("billing event without contact address ignored")
		return OutcomeIgnored, nil
	}

	clientID, err := ClientID(ev.ContactAddress)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"event_type":  ev.Type,
			"provider_id": ev.ProviderID,
		}).Warn("billing event rejected: contact address not normalizable")
		return OutcomeRejected, err
	}

	unlock := s.locks.lock(clientID)
	defer unlock()

	switch ev.Type {
	case PaymentSucceeded:
		return OutcomeAccepted, s.paymentSucceeded(ctx, clientID, ev.ContactAddress)
	default:
		return OutcomeAccepted, s.paymentFailed(ctx, clientID)
	}
}

// paymentSucceeded provisions (or keeps) access and records a fresh term.
// Caller holds the client lock.
func (s *Service) paymentSucceeded(ctx context.Context, clientID, contact string) error {
	log := s.log.WithFields(logrus.Fields{"client_id": clientID, "action": "add-client"})

	var provErr error
	if err := s.prov.AddClient(ctx, clientID); err != nil {
		// The ledger still records the paid-for entitlement; the
		// operator remediates the infrastructure side.
		provErr = &ProvisionError{ClientID: clientID, Op: "add-client", Err: err}
		log.WithError(err).Error("provisioning add-client failed")
	}

	if err := s.notify.DeliverArtifact(ctx, clientID, contact); err != nil {
		log.WithError(err).Warn("artifact delivery failed; provisioning unaffected")
	}

	now := s.now()
	prev, err := s.store.Get(ctx, clientID)
	if err == nil && prev != nil && prev.Email != contact {
		log.WithField("previous_email", prev.Email).Debug("entitlement merged under existing client id")
	}
	rec := entitlements.Record{
		ClientID:  clientID,
		Email:     contact,
		ExpiresAt: now.Add(s.term),
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return &StorageError{ClientID: clientID, Err: err}
	}
	s.auditLifecycle(ctx, clientID, "provision", provErr)
	log.WithField("expires_at", rec.ExpiresAt).Info("entitlement recorded")
	return provErr
}

// paymentFailed revokes access. The revoke call is unconditional even when
// the client is not in the ledger; the external tooling tolerates absent
// clients. The record is only deleted after a successful revoke so a
// retried event or sweep will try again — a stale entitlement is the safe
// failure direction, not silent deauthorization.
// Caller holds the client lock.
func (s *Service) paymentFailed(ctx context.Context, clientID string) error {
	log := s.log.WithFields(logrus.Fields{"client_id": clientID, "action": "revoke"})

	if err := s.prov.Revoke(ctx, clientID); err != nil {
		log.WithError(err).Error("provisioning revoke failed; entitlement retained")
		perr := &ProvisionError{ClientID: clientID, Op: "revoke", Err: err}
		s.auditLifecycle(ctx, clientID, "revoke", perr)
		return perr
	}
	removed, err := s.store.Delete(ctx, clientID)
	if err != nil {
		return &StorageError{ClientID: clientID, Err: err}
	}
	s.auditLifecycle(ctx, clientID, "revoke", nil)
	if removed {
		log.Info("entitlement revoked")
	}
	return nil
}

// RevokeClient is the explicit administrative revoke: same semantics as a
// failed payment for an already-known client ID.
func (s *Service) RevokeClient(ctx context.Context, clientID string) error {
	if clientID == "" {
		return ErrInvalidIdentity
	}
	unlock := s.locks.lock(clientID)
	defer unlock()
	return s.paymentFailed(ctx, clientID)
}

func (s *Service) auditLifecycle(ctx context.Context, clientID, action string, opErr error) {
	if s.audit == nil {
		return
	}
	outcome := "ok"
	if opErr != nil {
		outcome = "failed"
	}
	if err := s.audit.LogLifecycle(ctx, uuid.New(), clientID, action, outcome); err != nil {
		s.log.WithError(err).Debug("lifecycle audit write failed")
	}
}
