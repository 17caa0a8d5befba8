package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/internal/eventgrid"
	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/service"
)

type mockWebhookService struct {
	calls  [][]eventgrid.Event
	result *service.WebhookResult
	err    error
}

func (m *mockWebhookService) Handle(ctx context.Context, events []eventgrid.Event) (*service.WebhookResult, error) {
	m.calls = append(m.calls, events)
	return m.result, m.err
}

func newWebhookRouter(t *testing.T, svc *mockWebhookService) http.Handler {
	return newTestRouter(t, func(_ huma.API, r chi.Router) {
		NewWebhookHandler(svc).RegisterChiRoutes(r)
	})
}

const validationDelivery = `[{
	"id": "evt-1",
	"eventType": "Microsoft.EventGrid.SubscriptionValidationEvent",
	"subject": "",
	"eventTime": "2026-01-02T15:04:05Z",
	"data": {"validationCode": "code-123", "validationUrl": "https://hooks.example.net/validate?code=code-123"}
}]`

func TestWebhookHandler_Receive(t *testing.T) {
	t.Run("echoes validation code", func(t *testing.T) {
		svc := &mockWebhookService{result: &service.WebhookResult{ValidationCode: "code-123"}}
		rec := doRequest(t, newWebhookRouter(t, svc), http.MethodPost, WebhookPath, validationDelivery, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"validationCode":"code-123"}`, rec.Body.String())
		require.Len(t, svc.calls, 1)
		require.Len(t, svc.calls[0], 1)
		assert.IsType(t, &eventgrid.SubscriptionValidation{}, svc.calls[0][0])
	})

	t.Run("does not require identity", func(t *testing.T) {
		svc := &mockWebhookService{result: &service.WebhookResult{}}
		rec := doRequest(t, newWebhookRouter(t, svc), http.MethodPost, WebhookPath, `[]`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{}`, rec.Body.String())
	})

	t.Run("acknowledges undecodable body", func(t *testing.T) {
		svc := &mockWebhookService{}
		rec := doRequest(t, newWebhookRouter(t, svc), http.MethodPost, WebhookPath, `{"not":"an array"}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, svc.calls)
	})

	t.Run("apply failure asks for redelivery", func(t *testing.T) {
		svc := &mockWebhookService{err: fmt.Errorf("resolving asset-123: %w", models.ErrTranscoderUnavailable)}
		rec := doRequest(t, newWebhookRouter(t, svc), http.MethodPost, WebhookPath, validationDelivery, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("rejects oversized body", func(t *testing.T) {
		svc := &mockWebhookService{}
		body := "[" + strings.Repeat(" ", maxWebhookBody) + "]"
		rec := doRequest(t, newWebhookRouter(t, svc), http.MethodPost, WebhookPath, body, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Empty(t, svc.calls)
	})
}
