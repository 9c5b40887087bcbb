package billing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bookden/bookden/internal/metrics"
	"github.com/bookden/bookden/internal/registry"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ResultCode classifies the outcome of applying one provider event.
type ResultCode string

const (
	// ResultApplied means the event advanced the stored subscription state.
	ResultApplied ResultCode = "applied"
	// ResultStale means the event was already applied or carried an older
	// sequence than the stored state. Accepted as a no-op so the provider
	// stops redelivering.
	ResultStale ResultCode = "stale"
	// ResultIgnored means the event type is not one we track.
	ResultIgnored ResultCode = "ignored"
	// ResultRejected means the event was authentic but malformed.
	ResultRejected ResultCode = "rejected"
	// ResultSignatureInvalid means the payload failed signature verification.
	ResultSignatureInvalid ResultCode = "signature_invalid"
	// ResultFailed means a transient internal failure; the provider should
	// retry delivery.
	ResultFailed ResultCode = "failed"
)

// Result reports what happened to one delivered event.
type Result struct {
	Code      ResultCode
	EventType string
	EventID   string
	TenantID  string
	Err       error
}

// HTTPStatus maps the result onto the response the webhook endpoint returns.
// Anything answered 2xx will not be redelivered, so only signature failures,
// malformed payloads, and transient internal errors escape that range.
func (r Result) HTTPStatus() int {
	switch r.Code {
	case ResultApplied, ResultStale, ResultIgnored:
		return http.StatusOK
	case ResultRejected:
		return http.StatusBadRequest
	case ResultSignatureInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// TransitionRecorder receives subscription state changes for the audit trail.
type TransitionRecorder interface {
	RecordSubscriptionTransition(tenantID string, from, to registry.SubscriptionStatus, eventType, eventID string)
}

// Reconciler folds billing provider events into the subscription store. It is
// the only writer of subscription state; every mutation goes through the
// event-keyed guarded update so redelivered and reordered events converge on
// the same stored state.
type Reconciler struct {
	reg      *registry.Registry
	secret   string
	recorder TransitionRecorder
}

// NewReconciler creates an event reconciler. The recorder may be nil.
func NewReconciler(reg *registry.Registry, webhookSecret string, recorder TransitionRecorder) *Reconciler {
	return &Reconciler{reg: reg, secret: webhookSecret, recorder: recorder}
}

// checkoutSession is the slice of the provider's checkout session object the
// reconciler needs.
type checkoutSession struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	TrialEnd         int64             `json:"trial_end"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
}

type invoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

// Apply verifies, parses, and folds one delivered event. The event ID dedups
// redelivery; the creation timestamp orders distinct events per subscription.
// Second-granularity ties are real (checkout completion and the subscription
// snapshot often share a second), so equal timestamps with unseen IDs still
// apply.
func (rc *Reconciler) Apply(payload []byte, signatureHeader string) Result {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, rc.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Result{Code: ResultSignatureInvalid, Err: fmt.Errorf("verify event signature: %w", err)}
	}

	res := Result{EventType: string(event.Type), EventID: event.ID}
	kind := KindOf(string(event.Type))
	if kind == KindUnknown {
		log.Debug().Str("event_type", res.EventType).Str("event_id", event.ID).Msg("Ignoring unhandled billing event type")
		res.Code = ResultIgnored
		return res
	}

	switch kind {
	case KindCheckoutCompleted:
		return rc.applyCheckout(event, res)
	case KindSubscriptionUpdated, KindSubscriptionDeleted:
		return rc.applySubscriptionSnapshot(kind, event, res)
	default:
		return rc.applyInvoice(kind, event, res)
	}
}

func (rc *Reconciler) applyCheckout(event stripe.Event, res Result) Result {
	var session checkoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		res.Code = ResultRejected
		res.Err = fmt.Errorf("decode checkout session: %w", err)
		return res
	}
	if session.Mode != "" && session.Mode != "subscription" {
		res.Code = ResultIgnored
		return res
	}
	tenantID := session.Metadata["tenant_id"]
	if tenantID == "" {
		res.Code = ResultRejected
		res.Err = fmt.Errorf("checkout session %s carries no tenant reference", session.ID)
		return res
	}
	res.TenantID = tenantID

	row, err := rc.ensureRow(tenantID)
	if err != nil {
		res.Code = ResultFailed
		res.Err = err
		return res
	}

	next := *row
	next.Status = Transition(row.Status, KindCheckoutCompleted, "")
	if session.Customer != "" {
		next.ExternalCustomerID = session.Customer
	}
	if session.Subscription != "" {
		next.ExternalSubscriptionID = session.Subscription
	}
	return rc.persist(row, &next, event, res)
}

func (rc *Reconciler) applySubscriptionSnapshot(kind EventKind, event stripe.Event, res Result) Result {
	var obj subscriptionObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		res.Code = ResultRejected
		res.Err = fmt.Errorf("decode subscription object: %w", err)
		return res
	}

	row, err := rc.resolveRow(obj.Metadata["tenant_id"], obj.ID, obj.Customer)
	if err != nil {
		res.Code = ResultFailed
		res.Err = err
		return res
	}
	if row == nil {
		// Subscription creation can outrun the checkout completion that
		// establishes the tenant link. Answer 5xx so the provider retries
		// once the link exists.
		res.Code = ResultFailed
		res.Err = fmt.Errorf("no tenant for subscription %s (customer %s)", obj.ID, obj.Customer)
		return res
	}
	res.TenantID = row.TenantID

	next := *row
	next.Status = Transition(row.Status, kind, obj.Status)
	if obj.ID != "" {
		next.ExternalSubscriptionID = obj.ID
	}
	if obj.Customer != "" {
		next.ExternalCustomerID = obj.Customer
	}
	if kind == KindSubscriptionUpdated {
		next.TrialEnd = unixPtr(obj.TrialEnd)
		next.CurrentPeriodEnd = unixPtr(obj.CurrentPeriodEnd)
	}
	return rc.persist(row, &next, event, res)
}

func (rc *Reconciler) applyInvoice(kind EventKind, event stripe.Event, res Result) Result {
	var obj invoiceObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		res.Code = ResultRejected
		res.Err = fmt.Errorf("decode invoice object: %w", err)
		return res
	}

	row, err := rc.resolveRow("", obj.Subscription, obj.Customer)
	if err != nil {
		res.Code = ResultFailed
		res.Err = err
		return res
	}
	if row == nil {
		res.Code = ResultFailed
		res.Err = fmt.Errorf("no tenant for invoice %s (customer %s)", obj.ID, obj.Customer)
		return res
	}
	res.TenantID = row.TenantID

	next := *row
	next.Status = Transition(row.Status, kind, "")
	return rc.persist(row, &next, event, res)
}

// persist writes the computed state through the event guard and records the
// outcome. A guarded miss means this event ID already landed or a newer event
// beat it; the delivery is acknowledged without touching state.
func (rc *Reconciler) persist(prev, next *registry.Subscription, event stripe.Event, res Result) Result {
	applied, err := rc.reg.ApplySubscriptionEvent(next, event.ID, event.Created)
	if err != nil {
		res.Code = ResultFailed
		res.Err = err
		return res
	}
	if !applied {
		metrics.StaleEventsTotal.Inc()
		log.Debug().
			Str("tenant_id", next.TenantID).
			Str("event_id", event.ID).
			Int64("event_sequence", event.Created).
			Int64("stored_sequence", prev.LastEventSequence).
			Msg("Skipping stale billing event")
		res.Code = ResultStale
		return res
	}

	if next.Status != prev.Status {
		metrics.SubscriptionTransitionsTotal.WithLabelValues(string(next.Status)).Inc()
		if rc.recorder != nil {
			rc.recorder.RecordSubscriptionTransition(next.TenantID, prev.Status, next.Status, res.EventType, event.ID)
		}
	}
	log.Info().
		Str("tenant_id", next.TenantID).
		Str("event_type", res.EventType).
		Str("from", string(prev.Status)).
		Str("to", string(next.Status)).
		Msg("Applied billing event")
	res.Code = ResultApplied
	return res
}

// ensureRow returns the tenant's subscription row, inserting a neutral
// placeholder on first contact. Concurrent first events collapse onto the
// primary key; the placeholder carries sequence zero so any real event
// advances it.
func (rc *Reconciler) ensureRow(tenantID string) (*registry.Subscription, error) {
	row, err := rc.reg.GetSubscription(tenantID)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return row, nil
	}
	return rc.reg.EnsureSubscription(&registry.Subscription{
		TenantID: tenantID,
		Status:   registry.StatusIncomplete,
	})
}

// resolveRow locates a subscription row by tenant reference, provider
// subscription ID, or provider customer ID, in that order.
func (rc *Reconciler) resolveRow(tenantID, externalSubscriptionID, externalCustomerID string) (*registry.Subscription, error) {
	if tenantID != "" {
		return rc.ensureRow(tenantID)
	}
	row, err := rc.reg.GetSubscriptionByExternalID(externalSubscriptionID)
	if err != nil || row != nil {
		return row, err
	}
	return rc.reg.GetSubscriptionByExternalCustomerID(externalCustomerID)
}

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
