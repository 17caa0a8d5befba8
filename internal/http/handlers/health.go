// Package handlers provides HTTP API handlers for vodarr.
package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"gorm.io/gorm"

	"github.com/jmylchreest/vodarr/internal/httpclient"
	"github.com/jmylchreest/vodarr/internal/scheduler"
)

// DispatcherStatusProvider reports background worker state.
type DispatcherStatusProvider interface {
	GetStatus() scheduler.DispatcherStatus
}

// CircuitReporter reports the transcoder client circuit breaker state.
type CircuitReporter interface {
	CircuitState() httpclient.CircuitState
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version    string
	startTime  time.Time
	db         *gorm.DB
	dispatcher DispatcherStatusProvider
	transcoder CircuitReporter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithDispatcher sets the worker pool reported on.
func (h *HealthHandler) WithDispatcher(d DispatcherStatusProvider) *HealthHandler {
	h.dispatcher = d
	return h
}

// WithTranscoder sets the transcoder client reported on.
func (h *HealthHandler) WithTranscoder(c CircuitReporter) *HealthHandler {
	h.transcoder = c
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse describes service health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks"`
}

// HealthComponents holds per-dependency health.
type HealthComponents struct {
	Database   DatabaseHealth    `json:"database"`
	Dispatcher *DispatcherHealth `json:"dispatcher,omitempty"`
	Transcoder *TranscoderHealth `json:"transcoder,omitempty"`
}

// DatabaseHealth reports connection pool stats and ping latency.
type DatabaseHealth struct {
	Status             string  `json:"status"`
	ResponseTimeMS     float64 `json:"response_time_ms"`
	ConnectionPoolSize int     `json:"connection_pool_size"`
	ActiveConnections  int     `json:"active_connections"`
	IdleConnections    int     `json:"idle_connections"`
}

// DispatcherHealth reports the background worker pool.
type DispatcherHealth struct {
	Running   bool  `json:"running"`
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Dropped   int64 `json:"dropped"`
}

// TranscoderHealth reports the management client circuit breaker.
type TranscoderHealth struct {
	Circuit string `json:"circuit"`
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service and its dependencies",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	dbHealth := h.getDatabaseHealth(ctx)
	status := "healthy"
	if dbHealth.Status == "error" {
		status = "degraded"
	}

	components := HealthComponents{Database: dbHealth}
	checks := map[string]string{"database": dbHealth.Status}

	if h.dispatcher != nil {
		st := h.dispatcher.GetStatus()
		components.Dispatcher = &DispatcherHealth{
			Running:   st.Running,
			Workers:   st.WorkerCount,
			Queued:    st.Queued,
			Active:    st.Active,
			Completed: st.Completed,
			Dropped:   st.Dropped,
		}
		checks["dispatcher"] = "ok"
		if !st.Running {
			checks["dispatcher"] = "stopped"
		}
	}

	if h.transcoder != nil {
		state := h.transcoder.CircuitState()
		components.Transcoder = &TranscoderHealth{Circuit: state.String()}
		checks["transcoder"] = "ok"
		if state == httpclient.CircuitOpen {
			checks["transcoder"] = "unavailable"
			status = "degraded"
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			Components:    components,
			Checks:        checks,
		},
	}, nil
}

// getDatabaseHealth pings the database and reads pool stats.
func (h *HealthHandler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{Status: "ok"}

	if h.db == nil {
		health.Status = "unknown"
		return health
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		health.Status = "error"
		return health
	}

	stats := sqlDB.Stats()
	health.ConnectionPoolSize = stats.MaxOpenConnections
	health.ActiveConnections = stats.InUse
	health.IdleConnections = stats.Idle

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		health.Status = "error"
	}

	return health
}
