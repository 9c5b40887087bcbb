package billing

import (
	"strings"

	"github.com/bookden/bookden/internal/registry"
)

// EventKind is the tagged variant of a billing provider event. Mapping raw
// provider type strings to kinds once, here, makes unknown and future event
// types a no-op by construction instead of by omission.
type EventKind string

const (
	KindCheckoutCompleted   EventKind = "checkout_completed"
	KindSubscriptionUpdated EventKind = "subscription_updated"
	KindSubscriptionDeleted EventKind = "subscription_deleted"
	KindPaymentSucceeded    EventKind = "payment_succeeded"
	KindPaymentFailed       EventKind = "payment_failed"
	KindUnknown             EventKind = "unknown"
)

// KindOf maps a provider event type string to its tagged kind.
func KindOf(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return KindCheckoutCompleted
	case "customer.subscription.created", "customer.subscription.updated":
		return KindSubscriptionUpdated
	case "customer.subscription.deleted":
		return KindSubscriptionDeleted
	case "invoice.paid", "invoice.payment_succeeded":
		return KindPaymentSucceeded
	case "invoice.payment_failed":
		return KindPaymentFailed
	default:
		return KindUnknown
	}
}

// MapProviderStatus converts the provider's subscription status string to the
// stored status. Unknown statuses fail closed: the tenant keeps its data but
// loses entitlement until a recognizable status arrives.
func MapProviderStatus(status string) registry.SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return registry.StatusActive
	case "trialing":
		return registry.StatusTrialing
	case "past_due", "unpaid":
		return registry.StatusPastDue
	case "canceled":
		return registry.StatusCanceled
	case "incomplete":
		return registry.StatusIncomplete
	case "incomplete_expired":
		return registry.StatusCanceled
	default:
		return registry.StatusPastDue
	}
}

// transitions is the explicit state table for events that do not carry their
// own status snapshot: current status -> next status, per event kind. A
// missing entry keeps the current status.
var transitions = map[EventKind]map[registry.SubscriptionStatus]registry.SubscriptionStatus{
	KindPaymentSucceeded: {
		registry.StatusIncomplete: registry.StatusActive,
		registry.StatusTrialing:   registry.StatusActive,
		registry.StatusActive:     registry.StatusActive,
		registry.StatusPastDue:    registry.StatusActive,
	},
	KindPaymentFailed: {
		registry.StatusIncomplete: registry.StatusPastDue,
		registry.StatusTrialing:   registry.StatusPastDue,
		registry.StatusActive:     registry.StatusPastDue,
		registry.StatusPastDue:    registry.StatusPastDue,
	},
	KindSubscriptionDeleted: {
		registry.StatusIncomplete: registry.StatusCanceled,
		registry.StatusTrialing:   registry.StatusCanceled,
		registry.StatusActive:     registry.StatusCanceled,
		registry.StatusPastDue:    registry.StatusCanceled,
		registry.StatusCanceled:   registry.StatusCanceled,
	},
}

// Transition computes the next stored status for an event. Status-carrying
// events (subscription snapshots) take the provider's word; table-driven
// events consult the transition table. Canceled is terminal for the current
// lifecycle: only a fresh checkout restarts it.
func Transition(current registry.SubscriptionStatus, kind EventKind, providerStatus string) registry.SubscriptionStatus {
	if current == registry.StatusCanceled && kind != KindSubscriptionUpdated && kind != KindCheckoutCompleted {
		return registry.StatusCanceled
	}
	switch kind {
	case KindSubscriptionUpdated:
		return MapProviderStatus(providerStatus)
	case KindCheckoutCompleted:
		// An entitled state is never downgraded by a checkout confirmation;
		// the subscription snapshot events own the fine-grained status.
		if current == registry.StatusTrialing || current == registry.StatusActive {
			return current
		}
		if strings.EqualFold(strings.TrimSpace(providerStatus), "trialing") {
			return registry.StatusTrialing
		}
		return registry.StatusActive
	}
	if next, ok := transitions[kind][current]; ok {
		return next
	}
	return current
}
