package registry

import (
	"strings"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func mustCreateTenant(t *testing.T, reg *Registry, slug string) *Tenant {
	t.Helper()
	id, err := GenerateTenantID()
	if err != nil {
		t.Fatalf("GenerateTenantID: %v", err)
	}
	tenant := &Tenant{ID: id, Slug: slug, DisplayName: slug}
	if err := reg.CreateTenant(tenant); err != nil {
		t.Fatalf("CreateTenant(%q): %v", slug, err)
	}
	return tenant
}

func TestGenerateTenantIDFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateTenantID()
		if err != nil {
			t.Fatalf("GenerateTenantID: %v", err)
		}
		if !strings.HasPrefix(id, "t-") || len(id) != 12 {
			t.Fatalf("unexpected tenant ID format: %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate tenant ID: %s", id)
		}
		seen[id] = true
	}
}

func TestSlugLookupIsCaseInsensitive(t *testing.T) {
	reg := newTestRegistry(t)
	created := mustCreateTenant(t, reg, "luna-hair")

	for _, lookup := range []string{"luna-hair", "LUNA-HAIR", "Luna-Hair"} {
		got, err := reg.GetTenantBySlug(lookup)
		if err != nil {
			t.Fatalf("GetTenantBySlug(%q): %v", lookup, err)
		}
		if got == nil || got.ID != created.ID {
			t.Fatalf("GetTenantBySlug(%q) = %+v, want tenant %s", lookup, got, created.ID)
		}
	}
}

func TestSlugCollisionIsCaseInsensitive(t *testing.T) {
	reg := newTestRegistry(t)
	mustCreateTenant(t, reg, "luna-hair")

	id, _ := GenerateTenantID()
	err := reg.CreateTenant(&Tenant{ID: id, Slug: "Luna-Hair"})
	if err != ErrSlugTaken {
		t.Fatalf("CreateTenant with colliding slug: err=%v, want ErrSlugTaken", err)
	}
}

func TestGetTenantBySlugMissIsNil(t *testing.T) {
	reg := newTestRegistry(t)
	mustCreateTenant(t, reg, "luna-hair")

	got, err := reg.GetTenantBySlug("luna-hai")
	if err != nil {
		t.Fatalf("GetTenantBySlug: %v", err)
	}
	if got != nil {
		t.Fatalf("near-miss slug resolved to tenant %s, want nil", got.ID)
	}
}

func TestValidSlug(t *testing.T) {
	valid := []string{"ab", "luna-hair", "studio42", strings.Repeat("a", 63)}
	invalid := []string{"", "a", "-luna", "luna-", "Luna", "luna hair", "luna_hair", strings.Repeat("a", 64)}

	for _, s := range valid {
		if !ValidSlug(s) {
			t.Errorf("ValidSlug(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if ValidSlug(s) {
			t.Errorf("ValidSlug(%q) = true, want false", s)
		}
	}
}

func TestMembershipUpsertKeepsSingleRow(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")

	if err := reg.PutMembership(&Membership{TenantID: tenant.ID, IdentityID: "user-1", Role: RoleStaff}); err != nil {
		t.Fatalf("PutMembership: %v", err)
	}
	if err := reg.PutMembership(&Membership{TenantID: tenant.ID, IdentityID: "user-1", Role: RoleAdmin}); err != nil {
		t.Fatalf("PutMembership upsert: %v", err)
	}

	members, err := reg.ListMembers(tenant.ID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("got %d membership rows, want 1", len(members))
	}
	if members[0].Role != RoleAdmin {
		t.Fatalf("role = %q, want admin", members[0].Role)
	}
}

func TestRoleOfWithoutMembership(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")

	role, err := reg.RoleOf("stranger", tenant.ID)
	if err != nil {
		t.Fatalf("RoleOf: %v", err)
	}
	if role != RoleNone {
		t.Fatalf("role = %q, want RoleNone", role)
	}

	// Anonymous callers resolve through the same path.
	role, err = reg.RoleOf("", tenant.ID)
	if err != nil || role != RoleNone {
		t.Fatalf("RoleOf anonymous = (%q, %v), want (RoleNone, nil)", role, err)
	}
}

func TestMembershipsAreTenantScoped(t *testing.T) {
	reg := newTestRegistry(t)
	luna := mustCreateTenant(t, reg, "luna-hair")
	atlas := mustCreateTenant(t, reg, "atlas-barbers")

	if err := reg.PutMembership(&Membership{TenantID: luna.ID, IdentityID: "user-1", Role: RoleOwner}); err != nil {
		t.Fatalf("PutMembership: %v", err)
	}

	role, err := reg.RoleOf("user-1", atlas.ID)
	if err != nil {
		t.Fatalf("RoleOf: %v", err)
	}
	if role != RoleNone {
		t.Fatalf("membership leaked across tenants: role=%q", role)
	}
}

func TestEnsureSubscriptionFirstWriteWins(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")

	first, err := reg.EnsureSubscription(&Subscription{TenantID: tenant.ID, Status: StatusTrialing})
	if err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}
	if first.Status != StatusTrialing {
		t.Fatalf("status = %q, want trialing", first.Status)
	}

	second, err := reg.EnsureSubscription(&Subscription{TenantID: tenant.ID, Status: StatusActive})
	if err != nil {
		t.Fatalf("EnsureSubscription second: %v", err)
	}
	if second.Status != StatusTrialing {
		t.Fatalf("second ensure overwrote row: status=%q, want trialing", second.Status)
	}
}

func TestApplySubscriptionEventOrdering(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")

	sub, err := reg.EnsureSubscription(&Subscription{TenantID: tenant.ID, Status: StatusIncomplete})
	if err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}

	sub.Status = StatusActive
	applied, err := reg.ApplySubscriptionEvent(sub, "evt_a", 5)
	if err != nil {
		t.Fatalf("ApplySubscriptionEvent(evt_a, 5): %v", err)
	}
	if !applied {
		t.Fatal("sequence 5 against stored 0 was not applied")
	}

	// An older event arriving late must not regress state.
	stale := *sub
	stale.Status = StatusPastDue
	applied, err = reg.ApplySubscriptionEvent(&stale, "evt_old", 3)
	if err != nil {
		t.Fatalf("ApplySubscriptionEvent(evt_old, 3): %v", err)
	}
	if applied {
		t.Fatal("sequence 3 applied over stored 5")
	}

	// Redelivery of an already-seen ID is a no-op at any sequence.
	applied, err = reg.ApplySubscriptionEvent(sub, "evt_a", 5)
	if err != nil {
		t.Fatalf("ApplySubscriptionEvent(evt_a redelivery): %v", err)
	}
	if applied {
		t.Fatal("redelivered evt_a applied twice")
	}

	stored, err := reg.GetSubscription(tenant.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if stored.Status != StatusActive || stored.LastEventSequence != 5 {
		t.Fatalf("stored = (%q, %d), want (active, 5)", stored.Status, stored.LastEventSequence)
	}
}

func TestApplySubscriptionEventSameSecondDistinctIDs(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")

	sub, err := reg.EnsureSubscription(&Subscription{TenantID: tenant.ID, Status: StatusIncomplete})
	if err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}

	sub.Status = StatusActive
	if applied, err := reg.ApplySubscriptionEvent(sub, "evt_a", 5); err != nil || !applied {
		t.Fatalf("ApplySubscriptionEvent(evt_a, 5) = (%v, %v)", applied, err)
	}

	// A distinct event sharing the same second must still apply; only an
	// identical event ID counts as a duplicate.
	next := *sub
	next.Status = StatusCanceled
	applied, err := reg.ApplySubscriptionEvent(&next, "evt_b", 5)
	if err != nil {
		t.Fatalf("ApplySubscriptionEvent(evt_b, 5): %v", err)
	}
	if !applied {
		t.Fatal("distinct event with a tied sequence was swallowed as a duplicate")
	}

	stored, err := reg.GetSubscription(tenant.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if stored.Status != StatusCanceled {
		t.Fatalf("status = %q, want canceled", stored.Status)
	}
}

func TestEntitledAtDerivesTrialExpiry(t *testing.T) {
	trialEnd := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub := &Subscription{Status: StatusTrialing, TrialEnd: &trialEnd}

	if !sub.EntitledAt(trialEnd.Add(-time.Minute)) {
		t.Fatal("trialing subscription before trial end should be entitled")
	}
	if sub.EntitledAt(trialEnd) {
		t.Fatal("trialing subscription at trial end should not be entitled")
	}
	if sub.EntitledAt(trialEnd.Add(time.Minute)) {
		t.Fatal("trialing subscription after trial end should not be entitled")
	}

	// A trialing row with no trial window fails closed.
	noWindow := &Subscription{Status: StatusTrialing}
	if noWindow.EntitledAt(trialEnd) {
		t.Fatal("trialing subscription without trial_end should not be entitled")
	}

	var missing *Subscription
	if missing.EntitledAt(trialEnd) {
		t.Fatal("missing subscription should not be entitled")
	}
	if missing.EffectiveStatus() != StatusNone {
		t.Fatalf("missing subscription status = %q, want none", missing.EffectiveStatus())
	}

	active := &Subscription{Status: StatusActive}
	if !active.EntitledAt(trialEnd) {
		t.Fatal("active subscription should be entitled")
	}
	for _, status := range []SubscriptionStatus{StatusIncomplete, StatusPastDue, StatusCanceled} {
		s := &Subscription{Status: status, TrialEnd: &trialEnd}
		if s.EntitledAt(trialEnd.Add(-time.Hour)) {
			t.Fatalf("%s subscription should not be entitled", status)
		}
	}
}

func TestExternalIDLookups(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")

	sub, err := reg.EnsureSubscription(&Subscription{TenantID: tenant.ID, Status: StatusActive})
	if err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}
	sub.ExternalCustomerID = "cus_123"
	sub.ExternalSubscriptionID = "sub_456"
	if _, err := reg.ApplySubscriptionEvent(sub, "evt_1", 1); err != nil {
		t.Fatalf("ApplySubscriptionEvent: %v", err)
	}

	bySub, err := reg.GetSubscriptionByExternalID("sub_456")
	if err != nil || bySub == nil || bySub.TenantID != tenant.ID {
		t.Fatalf("GetSubscriptionByExternalID = (%+v, %v)", bySub, err)
	}
	byCus, err := reg.GetSubscriptionByExternalCustomerID("cus_123")
	if err != nil || byCus == nil || byCus.TenantID != tenant.ID {
		t.Fatalf("GetSubscriptionByExternalCustomerID = (%+v, %v)", byCus, err)
	}

	// Empty references never match anything.
	none, err := reg.GetSubscriptionByExternalID("")
	if err != nil || none != nil {
		t.Fatalf("empty external ID lookup = (%+v, %v), want (nil, nil)", none, err)
	}
}

func TestCatalogIsTenantScoped(t *testing.T) {
	reg := newTestRegistry(t)
	luna := mustCreateTenant(t, reg, "luna-hair")
	atlas := mustCreateTenant(t, reg, "atlas-barbers")

	svc := &Service{TenantID: luna.ID, Name: "Cut & Finish", DurationMin: 45, PriceCents: 5500, Published: true}
	if err := reg.PutService(svc); err != nil {
		t.Fatalf("PutService: %v", err)
	}
	draft := &Service{TenantID: luna.ID, Name: "Color Consult", DurationMin: 15, Published: false}
	if err := reg.PutService(draft); err != nil {
		t.Fatalf("PutService draft: %v", err)
	}

	published, err := reg.ListServices(luna.ID, true)
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	if len(published) != 1 || published[0].Name != "Cut & Finish" {
		t.Fatalf("published services = %+v, want only Cut & Finish", published)
	}

	other, err := reg.ListServices(atlas.ID, false)
	if err != nil {
		t.Fatalf("ListServices other tenant: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("service leaked across tenants: %+v", other)
	}

	// Deleting with the wrong tenant scope is a no-op.
	if err := reg.DeleteService(atlas.ID, svc.ID); err != nil {
		t.Fatalf("DeleteService wrong tenant: %v", err)
	}
	remaining, _ := reg.ListServices(luna.ID, false)
	if len(remaining) != 2 {
		t.Fatalf("cross-tenant delete removed a service: %d rows left", len(remaining))
	}
}
