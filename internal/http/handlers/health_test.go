package handlers

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/jmylchreest/vodarr/internal/httpclient"
	"github.com/jmylchreest/vodarr/internal/scheduler"
)

type stubDispatcher struct{ status scheduler.DispatcherStatus }

func (s stubDispatcher) GetStatus() scheduler.DispatcherStatus { return s.status }

type stubCircuit struct{ state httpclient.CircuitState }

func (s stubCircuit) CircuitState() httpclient.CircuitState { return s.state }

func TestHealthHandler_GetHealth(t *testing.T) {
	t.Run("without dependencies", func(t *testing.T) {
		handler := NewHealthHandler("1.0.0")

		output, err := handler.GetHealth(context.Background(), &HealthInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output == nil {
			t.Fatal("expected non-nil output")
		}
		if output.Body.Status != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", output.Body.Status)
		}
		if output.Body.Version != "1.0.0" {
			t.Errorf("expected version '1.0.0', got '%s'", output.Body.Version)
		}
		if output.Body.Uptime == "" {
			t.Error("expected non-empty uptime")
		}
		if output.Body.Checks["database"] != "unknown" {
			t.Errorf("expected database check 'unknown', got '%s'", output.Body.Checks["database"])
		}
	})

	t.Run("with database and workers", func(t *testing.T) {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		if err != nil {
			t.Fatalf("opening database: %v", err)
		}

		handler := NewHealthHandler("1.0.0").
			WithDB(db).
			WithDispatcher(stubDispatcher{status: scheduler.DispatcherStatus{Running: true, WorkerCount: 4}}).
			WithTranscoder(stubCircuit{state: httpclient.CircuitClosed})

		output, err := handler.GetHealth(context.Background(), &HealthInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output.Body.Checks["database"] != "ok" {
			t.Errorf("expected database check 'ok', got '%s'", output.Body.Checks["database"])
		}
		if output.Body.Components.Dispatcher == nil || output.Body.Components.Dispatcher.Workers != 4 {
			t.Errorf("expected dispatcher with 4 workers, got %+v", output.Body.Components.Dispatcher)
		}
		if output.Body.Components.Transcoder == nil || output.Body.Components.Transcoder.Circuit != "closed" {
			t.Errorf("expected closed transcoder circuit, got %+v", output.Body.Components.Transcoder)
		}
	})

	t.Run("open circuit degrades", func(t *testing.T) {
		handler := NewHealthHandler("1.0.0").WithTranscoder(stubCircuit{state: httpclient.CircuitOpen})

		output, err := handler.GetHealth(context.Background(), &HealthInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output.Body.Status != "degraded" {
			t.Errorf("expected status 'degraded', got '%s'", output.Body.Status)
		}
		if output.Body.Checks["transcoder"] != "unavailable" {
			t.Errorf("expected transcoder check 'unavailable', got '%s'", output.Body.Checks["transcoder"])
		}
	})
}
