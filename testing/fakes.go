// Package testing provides in-memory fakes for the external capabilities
// the lifecycle engine consumes, plus a Stripe webhook signing helper, so
// applications built on vpnkit can test end to end without a VPN host or a
// payment provider.
//
// Example usage:
//
//	prov := &kittest.ProvisionerRecorder{}
//	notify := &kittest.NotifierRecorder{}
//	svc, _ := core.New(core.Config{Store: memorystore.New(), Provisioner: prov, Notifier: notify, Verifier: ...})
package testing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/open-rails/vpnkit/core"
)

// ProvisionerRecorder is an in-memory core.Provisioner that records calls
// and fails on demand.
type ProvisionerRecorder struct {
	mu      sync.Mutex
	Added   []string
	Revoked []string

	// FailAdd / FailRevoke inject an error for specific client IDs.
	FailAdd    map[string]error
	FailRevoke map[string]error
}

func (p *ProvisionerRecorder) AddClient(ctx context.Context, clientID string) error {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Added = append(p.Added, clientID)
	if err, ok := p.FailAdd[clientID]; ok {
		return err
	}
	return nil
}

func (p *ProvisionerRecorder) Revoke(ctx context.Context, clientID string) error {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Revoked = append(p.Revoked, clientID)
	if err, ok := p.FailRevoke[clientID]; ok {
		return err
	}
	return nil
}

// RevokedClients returns a copy of the revoke call log.
func (p *ProvisionerRecorder) RevokedClients() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Revoked...)
}

// Delivery records one artifact delivery attempt.
type Delivery struct {
	ClientID string
	Address  string
}

// NotifierRecorder is an in-memory core.Notifier.
type NotifierRecorder struct {
	mu         sync.Mutex
	Deliveries []Delivery
	Err        error
}

func (n *NotifierRecorder) DeliverArtifact(ctx context.Context, clientID, contactAddress string) error {
	_ = ctx
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Deliveries = append(n.Deliveries, Delivery{ClientID: clientID, Address: contactAddress})
	return n.Err
}

// StaticVerifier is a core.Verifier that accepts any payload presented with
// the expected token and returns the configured event. Payloads with any
// other token are unauthorized.
type StaticVerifier struct {
	Token string
	Event core.BillingEvent
}

func (v *StaticVerifier) Verify(payload []byte, signature string) (core.BillingEvent, error) {
	_ = payload
	if signature != v.Token {
		return core.BillingEvent{}, core.ErrUnauthorizedEvent
	}
	return v.Event, nil
}

// SignStripePayload computes a Stripe-Signature header for payload that
// verifies against the given endpoint secret, in the scheme the provider
// uses (t=<unix>,v1=<hex hmac-sha256 of "<unix>.<payload>">).
func SignStripePayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
