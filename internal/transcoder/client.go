// Package transcoder is a client for the media services management API that
// runs transcode jobs and publishes their output for streaming.
package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/vodarr/internal/config"
	"github.com/jmylchreest/vodarr/internal/httpclient"
	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/version"
)

const maxResponseBody = 4 << 20

// Client talks to one media services account.
type Client struct {
	http        *httpclient.Client
	baseURL     string
	accountPath string
	apiVersion  string
	logger      *slog.Logger
}

// NewTokenSource returns a client-credentials token source for scope, or nil
// when no client id is configured.
func NewTokenSource(cfg config.TranscoderConfig, scope string) oauth2.TokenSource {
	if cfg.ClientID == "" {
		return nil
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret.Reveal(),
		TokenURL:     tokenURL,
		Scopes:       []string{scope},
	}
	return cc.TokenSource(context.Background())
}

// NewHTTPClient builds the resilient client used for management calls,
// authenticating with ts when it is non-nil.
func NewHTTPClient(cfg config.TranscoderConfig, ts oauth2.TokenSource, logger *slog.Logger) *httpclient.Client {
	hc := httpclient.DefaultConfig()
	hc.Logger = logger
	hc.UserAgent = version.UserAgent()
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	hc.RetryAttempts = cfg.RetryAttempts
	if cfg.CircuitBreakerThreshold > 0 {
		hc.CircuitThreshold = cfg.CircuitBreakerThreshold
	}
	if cfg.CircuitBreakerTimeout > 0 {
		hc.CircuitTimeout = cfg.CircuitBreakerTimeout
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		hc.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if ts != nil {
		hc.BaseClient = &http.Client{
			Timeout:   hc.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
		}
	}
	return httpclient.New(hc)
}

// New creates a Client from configuration.
func New(cfg config.TranscoderConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "transcoder")
	ts := NewTokenSource(cfg, cfg.Scope)
	return NewWithHTTPClient(cfg, NewHTTPClient(cfg, ts, logger), logger)
}

// NewWithHTTPClient creates a Client that sends requests through hc.
func NewWithHTTPClient(cfg config.TranscoderConfig, hc *httpclient.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:        hc,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accountPath: cfg.AccountPath(),
		apiVersion:  cfg.APIVersion,
		logger:      logger,
	}
}

// CircuitState reports the circuit breaker state of the management client.
func (c *Client) CircuitState() httpclient.CircuitState {
	return c.http.CircuitState()
}

// CreateOrUpdateTransform upserts a transform with a single built-in preset output.
func (c *Client) CreateOrUpdateTransform(ctx context.Context, name, preset string) (*Transform, error) {
	in := Transform{Properties: TransformProperties{Outputs: []TransformOutput{{
		Preset: Preset{ODataType: odataBuiltInPreset, PresetName: preset},
	}}}}
	var out Transform
	if err := c.do(ctx, "creating transform", http.MethodPut, "/transforms/"+url.PathEscape(name), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrUpdateAsset upserts an empty output asset.
func (c *Client) CreateOrUpdateAsset(ctx context.Context, name string) (*Asset, error) {
	var out Asset
	if err := c.do(ctx, "creating asset", http.MethodPut, assetPath(name), Asset{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAsset fetches an asset. A missing asset yields an error matching IsNotFound.
func (c *Client) GetAsset(ctx context.Context, name string) (*Asset, error) {
	var out Asset
	if err := c.do(ctx, "getting asset", http.MethodGet, assetPath(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAsset removes an asset record. The storage container is left in place.
func (c *Client) DeleteAsset(ctx context.Context, name string) error {
	return c.do(ctx, "deleting asset", http.MethodDelete, assetPath(name), nil, nil)
}

// CreateJob submits a job that reads inputURL over HTTP and writes into outputAsset.
func (c *Client) CreateJob(ctx context.Context, transform, name, inputURL, outputAsset string) (*Job, error) {
	in := Job{Properties: JobProperties{
		Input:   JobInput{ODataType: odataJobInputHTTP, Files: []string{inputURL}},
		Outputs: []JobOutput{{ODataType: odataJobOutput, AssetName: outputAsset}},
	}}
	var out Job
	if err := c.do(ctx, "submitting job", http.MethodPut, jobPath(transform, name), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob fetches the current state of a job.
func (c *Client) GetJob(ctx context.Context, transform, name string) (*Job, error) {
	var out Job
	if err := c.do(ctx, "getting job", http.MethodGet, jobPath(transform, name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateStreamingLocator creates a locator for asset. An existing locator of
// the same name yields an error matching IsConflict.
func (c *Client) CreateStreamingLocator(ctx context.Context, name, asset, policy string) (*StreamingLocator, error) {
	in := StreamingLocator{Properties: StreamingLocatorProperties{AssetName: asset, StreamingPolicyName: policy}}
	var out StreamingLocator
	if err := c.do(ctx, "creating streaming locator", http.MethodPut, "/streamingLocators/"+url.PathEscape(name), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStreamingEndpoint fetches a streaming endpoint.
func (c *Client) GetStreamingEndpoint(ctx context.Context, name string) (*StreamingEndpoint, error) {
	var out StreamingEndpoint
	if err := c.do(ctx, "getting streaming endpoint", http.MethodGet, "/streamingEndpoints/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPaths lists the streaming and download paths published by a locator.
func (c *Client) ListPaths(ctx context.Context, locator string) (*ListPathsResponse, error) {
	var out ListPathsResponse
	if err := c.do(ctx, "listing streaming paths", http.MethodPost, "/streamingLocators/"+url.PathEscape(locator)+"/listPaths", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func assetPath(name string) string {
	return "/assets/" + url.PathEscape(name)
}

func jobPath(transform, name string) string {
	return "/transforms/" + url.PathEscape(transform) + "/jobs/" + url.PathEscape(name)
}

// do sends one management request. Transport failures wrap
// models.ErrTranscoderUnavailable; non-2xx responses return *APIError.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	u := c.baseURL + c.accountPath + path + "?api-version=" + url.QueryEscape(c.apiVersion)

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrTranscoderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}

	c.logger.Log(ctx, observability.LevelTrace, "transcoder response",
		slog.String("operation", op),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("body", string(raw)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Code = eb.Error.Code
			apiErr.Message = eb.Error.Message
		}
		return apiErr
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decoding response: %w", op, err)
		}
	}
	return nil
}
