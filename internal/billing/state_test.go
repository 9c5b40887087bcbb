package billing

import (
	"testing"

	"github.com/bookden/bookden/internal/registry"
)

func TestKindOf(t *testing.T) {
	cases := map[string]EventKind{
		"checkout.session.completed":    KindCheckoutCompleted,
		"customer.subscription.created": KindSubscriptionUpdated,
		"customer.subscription.updated": KindSubscriptionUpdated,
		"customer.subscription.deleted": KindSubscriptionDeleted,
		"invoice.paid":                  KindPaymentSucceeded,
		"invoice.payment_succeeded":     KindPaymentSucceeded,
		"invoice.payment_failed":        KindPaymentFailed,
		"charge.refunded":               KindUnknown,
		"customer.created":              KindUnknown,
		"":                              KindUnknown,
	}
	for eventType, want := range cases {
		if got := KindOf(eventType); got != want {
			t.Errorf("KindOf(%q) = %q, want %q", eventType, got, want)
		}
	}
}

func TestMapProviderStatusFailsClosed(t *testing.T) {
	cases := map[string]registry.SubscriptionStatus{
		"active":             registry.StatusActive,
		"trialing":           registry.StatusTrialing,
		"past_due":           registry.StatusPastDue,
		"unpaid":             registry.StatusPastDue,
		"canceled":           registry.StatusCanceled,
		"incomplete":         registry.StatusIncomplete,
		"incomplete_expired": registry.StatusCanceled,
		" Active ":           registry.StatusActive,
		"paused":             registry.StatusPastDue,
		"something_new":      registry.StatusPastDue,
	}
	for status, want := range cases {
		if got := MapProviderStatus(status); got != want {
			t.Errorf("MapProviderStatus(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		current        registry.SubscriptionStatus
		kind           EventKind
		providerStatus string
		want           registry.SubscriptionStatus
	}{
		{registry.StatusActive, KindPaymentFailed, "", registry.StatusPastDue},
		{registry.StatusTrialing, KindPaymentFailed, "", registry.StatusPastDue},
		{registry.StatusPastDue, KindPaymentSucceeded, "", registry.StatusActive},
		{registry.StatusIncomplete, KindPaymentSucceeded, "", registry.StatusActive},
		{registry.StatusActive, KindSubscriptionDeleted, "", registry.StatusCanceled},
		{registry.StatusTrialing, KindSubscriptionDeleted, "", registry.StatusCanceled},

		// Canceled is terminal for payment and deletion events.
		{registry.StatusCanceled, KindPaymentSucceeded, "", registry.StatusCanceled},
		{registry.StatusCanceled, KindPaymentFailed, "", registry.StatusCanceled},
		{registry.StatusCanceled, KindSubscriptionDeleted, "", registry.StatusCanceled},

		// A fresh checkout restarts a canceled lifecycle.
		{registry.StatusCanceled, KindCheckoutCompleted, "", registry.StatusActive},
		{registry.StatusIncomplete, KindCheckoutCompleted, "", registry.StatusActive},
		{registry.StatusTrialing, KindCheckoutCompleted, "", registry.StatusTrialing},
		{registry.StatusActive, KindCheckoutCompleted, "", registry.StatusActive},

		// Snapshot events take the provider's word, including out of cancel.
		{registry.StatusCanceled, KindSubscriptionUpdated, "active", registry.StatusActive},
		{registry.StatusActive, KindSubscriptionUpdated, "trialing", registry.StatusTrialing},
		{registry.StatusActive, KindSubscriptionUpdated, "mystery", registry.StatusPastDue},

		// Unknown kinds keep the current state.
		{registry.StatusActive, KindUnknown, "", registry.StatusActive},
		{registry.StatusTrialing, KindUnknown, "", registry.StatusTrialing},
	}

	for _, tc := range cases {
		got := Transition(tc.current, tc.kind, tc.providerStatus)
		if got != tc.want {
			t.Errorf("Transition(%q, %q, %q) = %q, want %q", tc.current, tc.kind, tc.providerStatus, got, tc.want)
		}
	}
}
