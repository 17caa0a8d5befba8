package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/vodarr/internal/eventgrid"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/service"
)

// WebhookPath is where the transcoder delivers job events.
const WebhookPath = "/api/v1/webhooks/transcoder"

// maxWebhookBody bounds a single delivery.
const maxWebhookBody = 1 << 20

// WebhookServiceInterface applies decoded transcoder events.
type WebhookServiceInterface interface {
	Handle(ctx context.Context, events []eventgrid.Event) (*service.WebhookResult, error)
}

// WebhookHandler receives transcoder event deliveries. It is mounted on the
// chi router directly and answers with a bare JSON object.
type WebhookHandler struct {
	service WebhookServiceInterface
	logger  *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(svc WebhookServiceInterface) *WebhookHandler {
	return &WebhookHandler{
		service: svc,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *WebhookHandler) WithLogger(logger *slog.Logger) *WebhookHandler {
	h.logger = logger
	return h
}

// RegisterChiRoutes registers the webhook route on the router.
func (h *WebhookHandler) RegisterChiRoutes(r chi.Router) {
	r.Post(WebhookPath, h.Receive)
}

// Receive decodes one delivery and hands it to the webhook service. Bodies
// that are not an event array are acknowledged so the sender stops retrying.
// A 500 is returned only when applying an event failed and a retry may help.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	events, err := eventgrid.Decode(body)
	if err != nil {
		logger.WarnContext(ctx, "ignoring undecodable webhook delivery",
			slog.Int("size", len(body)),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, &service.WebhookResult{})
		return
	}

	result, err := h.service.Handle(ctx, events)
	if err != nil {
		logger.ErrorContext(ctx, "applying webhook delivery failed",
			slog.Int("events", len(events)),
			slog.String("error", err.Error()))
		http.Error(w, "applying events failed", http.StatusInternalServerError)
		return
	}
	if result == nil {
		result = &service.WebhookResult{}
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
