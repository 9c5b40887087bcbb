package billing

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bookden/bookden/internal/metrics"
	"github.com/rs/zerolog/log"
)

// maxWebhookBody bounds the payload we are willing to read. Provider events
// relevant to us are a few KB; anything near the cap is garbage.
const maxWebhookBody = 1 << 20

// WebhookHandler terminates the billing provider's event delivery endpoint.
// It does no business logic itself: read, hand to the reconciler, translate
// the result to a status the provider's retry machinery understands.
type WebhookHandler struct {
	rec *Reconciler
}

// NewWebhookHandler creates the webhook HTTP handler.
func NewWebhookHandler(rec *Reconciler) *WebhookHandler {
	return &WebhookHandler{rec: rec}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		log.Warn().Err(err).Msg("Failed to read webhook body")
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	res := h.rec.Apply(body, r.Header.Get("Stripe-Signature"))

	eventType := res.EventType
	if eventType == "" {
		eventType = "unverified"
	}
	metrics.WebhookRequestsTotal.WithLabelValues(eventType, string(res.Code)).Inc()
	metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())

	switch res.Code {
	case ResultSignatureInvalid:
		log.Warn().Err(res.Err).Msg("Rejected webhook with invalid signature")
	case ResultRejected:
		log.Warn().Err(res.Err).Str("event_type", res.EventType).Str("event_id", res.EventID).Msg("Rejected malformed webhook event")
	case ResultFailed:
		log.Error().Err(res.Err).Str("event_type", res.EventType).Str("event_id", res.EventID).Msg("Failed to apply webhook event")
	}

	w.WriteHeader(res.HTTPStatus())
}
