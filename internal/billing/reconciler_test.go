package billing

import (
	"fmt"
	"testing"
	"time"

	"github.com/bookden/bookden/internal/registry"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(t.TempDir())
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func mustCreateTenant(t *testing.T, reg *registry.Registry, slug string) *registry.Tenant {
	t.Helper()
	id, err := registry.GenerateTenantID()
	if err != nil {
		t.Fatalf("GenerateTenantID: %v", err)
	}
	tenant := &registry.Tenant{ID: id, Slug: slug, DisplayName: slug}
	if err := reg.CreateTenant(tenant); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	return tenant
}

func signEvent(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func checkoutEvent(eventID string, created int64, tenantID string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":"checkout.session.completed","created":%d,
		"data":{"object":{"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1",
		"metadata":{"tenant_id":%q}}}}`, eventID, created, tenantID)
}

func subscriptionEvent(eventID string, created int64, tenantID, status string, trialEnd int64) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":"customer.subscription.updated","created":%d,
		"data":{"object":{"id":"sub_1","customer":"cus_1","status":%q,"trial_end":%d,
		"metadata":{"tenant_id":%q}}}}`, eventID, created, status, trialEnd, tenantID)
}

func TestApplyRejectsInvalidSignature(t *testing.T) {
	rc := NewReconciler(newTestRegistry(t), testSecret, nil)

	res := rc.Apply([]byte(`{"id":"evt_1","type":"invoice.paid"}`), "t=1,v1=deadbeef")
	if res.Code != ResultSignatureInvalid {
		t.Fatalf("code = %q, want signature_invalid", res.Code)
	}
	if res.HTTPStatus() != 400 {
		t.Fatalf("status = %d, want 400", res.HTTPStatus())
	}
}

func TestApplyIgnoresUnknownEventType(t *testing.T) {
	rc := NewReconciler(newTestRegistry(t), testSecret, nil)

	payload, header := signEvent(t, `{"id":"evt_1","object":"event","type":"charge.refunded","created":1000,"data":{"object":{}}}`)
	res := rc.Apply(payload, header)
	if res.Code != ResultIgnored {
		t.Fatalf("code = %q, want ignored", res.Code)
	}
	if res.HTTPStatus() != 200 {
		t.Fatalf("status = %d, want 200 so the provider stops redelivering", res.HTTPStatus())
	}
}

func TestCheckoutCreatesSubscription(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")
	rc := NewReconciler(reg, testSecret, nil)

	payload, header := signEvent(t, checkoutEvent("evt_1", 1000, tenant.ID))
	res := rc.Apply(payload, header)
	if res.Code != ResultApplied {
		t.Fatalf("code = %q (err=%v), want applied", res.Code, res.Err)
	}
	if res.TenantID != tenant.ID {
		t.Fatalf("tenant = %q, want %q", res.TenantID, tenant.ID)
	}

	sub, err := reg.GetSubscription(tenant.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Status != registry.StatusActive {
		t.Fatalf("status = %q, want active", sub.Status)
	}
	if sub.ExternalCustomerID != "cus_1" || sub.ExternalSubscriptionID != "sub_1" {
		t.Fatalf("external refs = (%q, %q)", sub.ExternalCustomerID, sub.ExternalSubscriptionID)
	}
	if sub.LastEventSequence != 1000 {
		t.Fatalf("sequence = %d, want 1000", sub.LastEventSequence)
	}
}

func TestSubscriptionSnapshotSetsTrial(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")
	rc := NewReconciler(reg, testSecret, nil)

	trialEnd := time.Now().Add(14 * 24 * time.Hour).Unix()
	payload, header := signEvent(t, subscriptionEvent("evt_1", 1000, tenant.ID, "trialing", trialEnd))
	res := rc.Apply(payload, header)
	if res.Code != ResultApplied {
		t.Fatalf("code = %q (err=%v), want applied", res.Code, res.Err)
	}

	sub, err := reg.GetSubscription(tenant.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Status != registry.StatusTrialing {
		t.Fatalf("status = %q, want trialing", sub.Status)
	}
	if sub.TrialEnd == nil || sub.TrialEnd.Unix() != trialEnd {
		t.Fatalf("trial_end = %v, want %d", sub.TrialEnd, trialEnd)
	}
	if !sub.EntitledAt(time.Now()) {
		t.Fatal("trialing subscription inside window should be entitled")
	}
}

func TestDuplicateDeliveryIsAcceptedNoOp(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")
	rc := NewReconciler(reg, testSecret, nil)

	raw := checkoutEvent("evt_1", 1000, tenant.ID)

	payload, header := signEvent(t, raw)
	if res := rc.Apply(payload, header); res.Code != ResultApplied {
		t.Fatalf("first delivery code = %q (err=%v)", res.Code, res.Err)
	}

	payload, header = signEvent(t, raw)
	res := rc.Apply(payload, header)
	if res.Code != ResultStale {
		t.Fatalf("duplicate delivery code = %q, want stale", res.Code)
	}
	if res.HTTPStatus() != 200 {
		t.Fatalf("duplicate delivery status = %d, want 200", res.HTTPStatus())
	}

	sub, _ := reg.GetSubscription(tenant.ID)
	if sub.Status != registry.StatusActive || sub.LastEventSequence != 1000 {
		t.Fatalf("duplicate mutated state: (%q, %d)", sub.Status, sub.LastEventSequence)
	}
}

func TestOutOfOrderEventsDoNotRegress(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")
	rc := NewReconciler(reg, testSecret, nil)

	// The newer snapshot lands first.
	payload, header := signEvent(t, subscriptionEvent("evt_2", 2000, tenant.ID, "active", 0))
	if res := rc.Apply(payload, header); res.Code != ResultApplied {
		t.Fatalf("newer event code = %q (err=%v)", res.Code, res.Err)
	}

	// The older failure event arrives late and must not regress state.
	older := `{"id":"evt_1","object":"event","type":"invoice.payment_failed","created":1500,
		"data":{"object":{"id":"in_1","customer":"cus_1","subscription":"sub_1"}}}`
	payload, header = signEvent(t, older)
	res := rc.Apply(payload, header)
	if res.Code != ResultStale {
		t.Fatalf("older event code = %q, want stale", res.Code)
	}

	sub, _ := reg.GetSubscription(tenant.ID)
	if sub.Status != registry.StatusActive {
		t.Fatalf("status regressed to %q", sub.Status)
	}

	// A genuinely newer deletion still applies.
	deleted := `{"id":"evt_3","object":"event","type":"customer.subscription.deleted","created":3000,
		"data":{"object":{"id":"sub_1","customer":"cus_1","status":"canceled"}}}`
	payload, header = signEvent(t, deleted)
	if res := rc.Apply(payload, header); res.Code != ResultApplied {
		t.Fatalf("deletion code = %q (err=%v)", res.Code, res.Err)
	}
	sub, _ = reg.GetSubscription(tenant.ID)
	if sub.Status != registry.StatusCanceled {
		t.Fatalf("status = %q, want canceled", sub.Status)
	}
}

func TestSameSecondCancellationApplies(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")
	rc := NewReconciler(reg, testSecret, nil)

	// The provider emits the snapshot and the deletion with the same
	// second-granularity created timestamp. Both are distinct events and
	// both must land; dropping the deletion would leave the tenant
	// entitled forever.
	payload, header := signEvent(t, subscriptionEvent("evt_a", 1000, tenant.ID, "active", 0))
	if res := rc.Apply(payload, header); res.Code != ResultApplied {
		t.Fatalf("snapshot code = %q (err=%v)", res.Code, res.Err)
	}

	deleted := fmt.Sprintf(`{"id":"evt_b","object":"event","type":"customer.subscription.deleted","created":1000,
		"data":{"object":{"id":"sub_1","customer":"cus_1","status":"canceled","metadata":{"tenant_id":%q}}}}`, tenant.ID)
	payload, header = signEvent(t, deleted)
	res := rc.Apply(payload, header)
	if res.Code != ResultApplied {
		t.Fatalf("same-second deletion code = %q (err=%v), want applied", res.Code, res.Err)
	}

	sub, err := reg.GetSubscription(tenant.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Status != registry.StatusCanceled {
		t.Fatalf("status = %q, want canceled", sub.Status)
	}
	if sub.EntitledAt(time.Now()) {
		t.Fatal("canceled subscription must not stay entitled")
	}
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")
	rc := NewReconciler(reg, testSecret, nil)

	payload, header := signEvent(t, checkoutEvent("evt_1", 1000, tenant.ID))
	if res := rc.Apply(payload, header); res.Code != ResultApplied {
		t.Fatalf("checkout code = %q (err=%v)", res.Code, res.Err)
	}

	// Resolved by provider customer reference, no tenant metadata on invoices.
	failed := `{"id":"evt_2","object":"event","type":"invoice.payment_failed","created":2000,
		"data":{"object":{"id":"in_1","customer":"cus_1"}}}`
	payload, header = signEvent(t, failed)
	if res := rc.Apply(payload, header); res.Code != ResultApplied {
		t.Fatalf("payment failure code = %q (err=%v)", res.Code, res.Err)
	}

	sub, _ := reg.GetSubscription(tenant.ID)
	if sub.Status != registry.StatusPastDue {
		t.Fatalf("status = %q, want past_due", sub.Status)
	}
}

func TestMalformedAuthenticEventRejected(t *testing.T) {
	rc := NewReconciler(newTestRegistry(t), testSecret, nil)

	payload, header := signEvent(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed","created":1000,"data":{"object":[1,2]}}`)
	res := rc.Apply(payload, header)
	if res.Code != ResultRejected {
		t.Fatalf("code = %q, want rejected", res.Code)
	}
	if res.HTTPStatus() != 400 {
		t.Fatalf("status = %d, want 400", res.HTTPStatus())
	}
}

func TestCheckoutWithoutTenantRefRejected(t *testing.T) {
	rc := NewReconciler(newTestRegistry(t), testSecret, nil)

	payload, header := signEvent(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed","created":1000,
		"data":{"object":{"id":"cs_1","mode":"subscription","customer":"cus_1"}}}`)
	res := rc.Apply(payload, header)
	if res.Code != ResultRejected {
		t.Fatalf("code = %q, want rejected", res.Code)
	}
}

func TestSnapshotForUnknownSubscriptionRetries(t *testing.T) {
	rc := NewReconciler(newTestRegistry(t), testSecret, nil)

	raw := `{"id":"evt_1","object":"event","type":"customer.subscription.updated","created":1000,
		"data":{"object":{"id":"sub_missing","customer":"cus_missing","status":"active"}}}`

	payload, header := signEvent(t, raw)
	res := rc.Apply(payload, header)
	if res.Code != ResultFailed {
		t.Fatalf("code = %q, want failed", res.Code)
	}
	if res.HTTPStatus() != 500 {
		t.Fatalf("status = %d, want 500 so the provider retries", res.HTTPStatus())
	}

	// Redelivery must retry processing, not short-circuit as handled.
	payload, header = signEvent(t, raw)
	if res := rc.Apply(payload, header); res.Code != ResultFailed {
		t.Fatalf("redelivery code = %q, want failed", res.Code)
	}
}
