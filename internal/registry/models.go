package registry

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// Tenant represents an isolated business account. The slug is the public,
// immutable handle used for storefront routing; lookups are case-insensitive.
type Tenant struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"

	// RoleNone is the zero role: no membership, or anonymous caller.
	// Callers must not distinguish the two for authorization purposes.
	RoleNone Role = ""
)

// ValidRole reports whether r is an assignable membership role.
func ValidRole(r Role) bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleStaff:
		return true
	}
	return false
}

// Membership ties one external identity to one tenant with exactly one role.
// At most one row exists per (identity, tenant) pair.
type Membership struct {
	TenantID   string    `json:"tenant_id"`
	IdentityID string    `json:"identity_id"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SubscriptionStatus is the stored position of a tenant's subscription state
// machine. A tenant with no subscription row behaves as StatusNone.
type SubscriptionStatus string

const (
	StatusNone       SubscriptionStatus = "none" // never stored; derived from a missing row
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
)

// Subscription is the durable billing record for a tenant (1:1). It is
// mutated exclusively by the billing reconciler and never deleted.
type Subscription struct {
	TenantID               string             `json:"tenant_id"`
	Status                 SubscriptionStatus `json:"status"`
	TrialEnd               *time.Time         `json:"trial_end,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	ExternalCustomerID     string             `json:"external_customer_id"`
	ExternalSubscriptionID string             `json:"external_subscription_id"`
	LastEventSequence      int64              `json:"last_event_sequence"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// EntitledAt reports whether the subscription grants access to billing-gated
// features at the given instant. Entitlement is derived, not the stored
// status alone: a trialing subscription lapses the moment its trial window
// closes, without requiring a state write.
func (s *Subscription) EntitledAt(now time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case StatusActive:
		return true
	case StatusTrialing:
		return s.TrialEnd != nil && now.Before(*s.TrialEnd)
	default:
		return false
	}
}

// EffectiveStatus returns StatusNone for a missing subscription row so
// callers can treat both cases identically.
func (s *Subscription) EffectiveStatus() SubscriptionStatus {
	if s == nil {
		return StatusNone
	}
	return s.Status
}

// crockfordBase32 is the Crockford base32 alphabet (excludes I, L, O, U).
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// GenerateTenantID returns a tenant ID of the form "t-" followed by 10 random
// Crockford base32 characters (50 bits of entropy).
func GenerateTenantID() (string, error) {
	return generateID("t-")
}

func generateID(prefix string) (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, v := range b {
		sb.WriteByte(crockfordBase32[int(v)%len(crockfordBase32)])
	}
	return sb.String(), nil
}

const (
	slugMinLen = 2
	slugMaxLen = 63
)

// NormalizeSlug case-folds a slug for storage and lookup.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// ValidSlug reports whether a slug is acceptable for publication: lowercase
// letters, digits, and interior hyphens only.
func ValidSlug(slug string) bool {
	if len(slug) < slugMinLen || len(slug) > slugMaxLen {
		return false
	}
	if slug[0] == '-' || slug[len(slug)-1] == '-' {
		return false
	}
	for i := 0; i < len(slug); i++ {
		c := slug[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		return false
	}
	return true
}
