package ledger

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for webhook ingestion.
var (
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cosmic_webhook_events_total",
		Help: "Total webhook deliveries by outcome",
	}, []string{"outcome"}) // "applied", "duplicate", "invalid", "failed"
)

// Event is an inbound billing-provider webhook event.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		UserID string `json:"user_id"`
		Tier   string `json:"tier"`
	} `json:"data"`
}

// Event types with side effects.
const (
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
)

// freeTier is the entitlement users fall back to when a subscription ends.
const freeTier = "free"

// WebhookHandler ingests billing webhook deliveries idempotently.
type WebhookHandler struct {
	ledger *Ledger
	logger zerolog.Logger
}

// NewWebhookHandler creates a webhook handler over the ledger.
func NewWebhookHandler(l *Ledger, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ledger: l,
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

// ServeHTTP implements http.Handler.
//
// Delivery is at-least-once: the sender retries anything that is not a 2xx.
// Lock acquisition happens before any side effect, so a duplicate delivery is
// acknowledged without reprocessing, and a side-effect failure after the lock
// returns 500 (inviting a retry that will no-op) rather than releasing the
// lock.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		webhookEventsTotal.WithLabelValues("invalid").Inc()
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		webhookEventsTotal.WithLabelValues("invalid").Inc()
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if event.ID == "" || event.Type == "" {
		webhookEventsTotal.WithLabelValues("invalid").Inc()
		http.Error(w, "missing event id or type", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	acquired, err := h.ledger.Acquire(ctx, event.ID, event.Type)
	if err != nil {
		webhookEventsTotal.WithLabelValues("failed").Inc()
		h.logger.Error().Err(err).Str("event_id", event.ID).Msg("Event lock acquisition failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !acquired {
		webhookEventsTotal.WithLabelValues("duplicate").Inc()
		h.logger.Info().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("Duplicate delivery acknowledged")
		writeAck(w, true)
		return
	}

	if err := h.apply(r, event); err != nil {
		// The lock row stays: this event is permanently "seen" even though
		// its effect did not apply. Retries will no-op; recovery is manual.
		webhookEventsTotal.WithLabelValues("failed").Inc()
		h.logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("Side effect failed after lock acquisition")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	webhookEventsTotal.WithLabelValues("applied").Inc()
	h.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Msg("Webhook event applied")
	writeAck(w, false)
}

// apply performs the event's side effect.
func (h *WebhookHandler) apply(r *http.Request, event Event) error {
	ctx := r.Context()

	switch event.Type {
	case EventSubscriptionUpdated:
		if event.Data.UserID == "" || event.Data.Tier == "" {
			return errors.New("subscription.updated missing user_id or tier")
		}
		return h.ledger.SetTier(ctx, event.Data.UserID, event.Data.Tier)

	case EventSubscriptionDeleted:
		if event.Data.UserID == "" {
			return errors.New("subscription.deleted missing user_id")
		}
		return h.ledger.SetTier(ctx, event.Data.UserID, freeTier)

	default:
		// Unrecognized event types are recorded and acknowledged; there is
		// nothing to apply.
		h.logger.Debug().Str("event_type", event.Type).Msg("Ignoring unhandled event type")
		return nil
	}
}

func writeAck(w http.ResponseWriter, duplicate bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{
		"received":  true,
		"duplicate": duplicate,
	})
}
