package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/open-rails/vpnkit/core"
	"github.com/open-rails/vpnkit/entitlements"
	memorystore "github.com/open-rails/vpnkit/storage/memory"
	kittest "github.com/open-rails/vpnkit/testing"
)

const testToken = "tok_valid"

// jsonVerifier authenticates against a static token and decodes the payload
// itself as the billing event, so tests can drive the full entry point.
type jsonVerifier struct{ token string }

func (v jsonVerifier) Verify(payload []byte, signature string) (core.BillingEvent, error) {
	if signature != v.token {
		return core.BillingEvent{}, core.ErrUnauthorizedEvent
	}
	var ev core.BillingEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return core.BillingEvent{}, err
	}
	return ev, nil
}

type fixture struct {
	svc    *core.Service
	store  *memorystore.Store
	prov   *kittest.ProvisionerRecorder
	notify *kittest.NotifierRecorder
	now    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memorystore.New(),
		prov:   &kittest.ProvisionerRecorder{},
		notify: &kittest.NotifierRecorder{},
	}
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f.now = &start
	svc, err := core.New(core.Config{
		Store:       f.store,
		Provisioner: f.prov,
		Notifier:    f.notify,
		Verifier:    jsonVerifier{token: testToken},
		Now:         func() time.Time { return *f.now },
	})
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) event(t *testing.T, typ core.EventType, contact string) (core.Outcome, error) {
	t.Helper()
	payload, err := json.Marshal(core.BillingEvent{Type: typ, ContactAddress: contact})
	if err != nil {
		t.Fatal(err)
	}
	return f.svc.HandleBillingEvent(context.Background(), payload, testToken)
}

func (f *fixture) record(t *testing.T, clientID string) *entitlements.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background(), clientID)
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	return rec
}

func TestPaymentSucceededProvisionsAndRecords(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.event(t, core.PaymentSucceeded, "Jane.Doe@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != core.OutcomeAccepted {
		t.Fatalf("outcome = %q, want accepted", outcome)
	}

	rec := f.record(t, "jane_doe")
	if rec == nil {
		t.Fatal("expected entitlement record for jane_doe")
	}
	if rec.Email != "Jane.Doe@example.com" {
		t.Errorf("email = %q", rec.Email)
	}
	if want := f.now.Add(core.DefaultRenewalTerm); !rec.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", rec.ExpiresAt, want)
	}
	if len(f.prov.Added) != 1 || f.prov.Added[0] != "jane_doe" {
		t.Errorf("add-client calls = %v", f.prov.Added)
	}
	if len(f.notify.Deliveries) != 1 || f.notify.Deliveries[0].Address != "Jane.Doe@example.com" {
		t.Errorf("deliveries = %v", f.notify.Deliveries)
	}
}

func TestPaymentSucceededReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)

	if _, err := f.event(t, core.PaymentSucceeded, "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	now2 := f.now.Add(2 * time.Hour)
	*f.now = now2
	if _, err := f.event(t, core.PaymentSucceeded, "jane@example.com"); err != nil {
		t.Fatal(err)
	}

	snap, _ := f.store.Snapshot(context.Background())
	if len(snap) != 1 {
		t.Fatalf("expected one record after replay, got %d", len(snap))
	}
	if want := now2.Add(core.DefaultRenewalTerm); !snap[0].ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want the later invocation's renewal %v", snap[0].ExpiresAt, want)
	}
	// The external add is invoked per event; the infrastructure-level
	// effect stays idempotent.
	if len(f.prov.Added) != 2 {
		t.Errorf("add-client calls = %d, want 2", len(f.prov.Added))
	}
}

func TestRenewalExtendsFromNow(t *testing.T) {
	f := newFixture(t)

	if _, err := f.event(t, core.PaymentSucceeded, "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	firstExpiry := f.record(t, "jane").ExpiresAt

	*f.now = f.now.Add(5 * 24 * time.Hour)
	if _, err := f.event(t, core.PaymentSucceeded, "jane@example.com"); err != nil {
		t.Fatal(err)
	}

	got := f.record(t, "jane").ExpiresAt
	if want := firstExpiry.Add(5 * 24 * time.Hour); !got.Equal(want) {
		t.Errorf("renewal expires_at = %v, want %v (extend from now, not from old expiry)", got, want)
	}
}

func TestPaymentFailedRevokesAndDeletes(t *testing.T) {
	f := newFixture(t)

	if _, err := f.event(t, core.PaymentSucceeded, "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	outcome, err := f.event(t, core.PaymentFailed, "jane@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != core.OutcomeAccepted {
		t.Fatalf("outcome = %q", outcome)
	}
	if f.record(t, "jane") != nil {
		t.Error("record should be gone after failed payment")
	}
	if got := f.prov.RevokedClients(); len(got) != 1 || got[0] != "jane" {
		t.Errorf("revoke calls = %v", got)
	}
}

func TestPaymentFailedAbsentClientReplay(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		outcome, err := f.event(t, core.PaymentFailed, "ghost@example.com")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if outcome != core.OutcomeAccepted {
			t.Fatalf("attempt %d: outcome = %q", i+1, outcome)
		}
	}
	// Defensive revoke happens each time; no record appears.
	if got := f.prov.RevokedClients(); len(got) != 2 {
		t.Errorf("revoke calls = %v", got)
	}
	if f.record(t, "ghost") != nil {
		t.Error("no record expected")
	}
}

func TestPaymentFailedRevokeFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	if _, err := f.event(t, core.PaymentSucceeded, "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	f.prov.FailRevoke = map[string]error{"jane": errors.New("tooling down")}

	_, err := f.event(t, core.PaymentFailed, "jane@example.com")
	var perr *core.ProvisionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProvisionError, got %v", err)
	}
	if perr.ClientID != "jane" || perr.Op != "revoke" {
		t.Errorf("ProvisionError = %+v", perr)
	}
	if f.record(t, "jane") == nil {
		t.Error("record must survive a failed revoke so a retry tries again")
	}
}

func TestAddClientFailureStillRecordsEntitlement(t *testing.T) {
	f := newFixture(t)
	f.prov.FailAdd = map[string]error{"jane": errors.New("installer exploded")}

	_, err := f.event(t, core.PaymentSucceeded, "jane@example.com")
	var perr *core.ProvisionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected surfaced ProvisionError, got %v", err)
	}
	if f.record(t, "jane") == nil {
		t.Error("ledger must record the paid-for entitlement even when provisioning failed")
	}
}

func TestNotificationFailureDoesNotBlockProvisioning(t *testing.T) {
	f := newFixture(t)
	f.notify.Err = errors.New("smtp down")

	if _, err := f.event(t, core.PaymentSucceeded, "jane@example.com"); err != nil {
		t.Fatalf("notification failure must not fail the event: %v", err)
	}
	if f.record(t, "jane") == nil {
		t.Error("record expected despite notification failure")
	}
}

func TestUnauthorizedEventNeverMutates(t *testing.T) {
	f := newFixture(t)
	if _, err := f.event(t, core.PaymentSucceeded, "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	before, _ := f.store.Snapshot(context.Background())

	payload, _ := json.Marshal(core.BillingEvent{Type: core.PaymentFailed, ContactAddress: "jane@example.com"})
	outcome, err := f.svc.HandleBillingEvent(context.Background(), payload, "tok_forged")
	if !errors.Is(err, core.ErrUnauthorizedEvent) {
		t.Fatalf("expected ErrUnauthorizedEvent, got %v", err)
	}
	if outcome != core.OutcomeRejected {
		t.Errorf("outcome = %q", outcome)
	}

	after, _ := f.store.Snapshot(context.Background())
	sortRecords(before)
	sortRecords(after)
	if !reflect.DeepEqual(before, after) {
		t.Error("store changed on a rejected event")
	}
	if len(f.prov.RevokedClients()) != 0 {
		t.Error("no revoke call expected on a rejected event")
	}
}

func TestEventsWithoutActionAreIgnored(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.event(t, core.EventOther, "jane@example.com")
	if err != nil || outcome != core.OutcomeIgnored {
		t.Errorf("other event: outcome=%q err=%v", outcome, err)
	}
	outcome, err = f.event(t, core.PaymentSucceeded, "")
	if err != nil || outcome != core.OutcomeIgnored {
		t.Errorf("missing contact: outcome=%q err=%v", outcome, err)
	}
	if len(f.prov.Added) != 0 {
		t.Errorf("no provisioning expected, got %v", f.prov.Added)
	}
}

func TestInvalidContactAddressRejected(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.event(t, core.PaymentSucceeded, "not-an-address")
	if !errors.Is(err, core.ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
	if outcome != core.OutcomeRejected {
		t.Errorf("outcome = %q", outcome)
	}
	if snap, _ := f.store.Snapshot(context.Background()); len(snap) != 0 {
		t.Error("store must stay empty")
	}
}

func TestAdministrativeRevoke(t *testing.T) {
	f := newFixture(t)
	if _, err := f.event(t, core.PaymentSucceeded, "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RevokeClient(context.Background(), "jane"); err != nil {
		t.Fatalf("RevokeClient: %v", err)
	}
	if f.record(t, "jane") != nil {
		t.Error("record should be removed by admin revoke")
	}
}

func sortRecords(recs []entitlements.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ClientID < recs[j].ClientID })
}
