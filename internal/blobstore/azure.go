package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/jmylchreest/vodarr/internal/config"
	"github.com/jmylchreest/vodarr/internal/httpclient"
)

const defaultAzureAPIVersion = "2021-08-06"

// Azure deletes containers through the Blob service REST API.
type Azure struct {
	endpoint   string
	apiVersion string
	http       *httpclient.Client
	logger     *slog.Logger
}

// NewAzure creates an Azure Blob store.
func NewAzure(cfg config.AzureStorageConfig, ts oauth2.TokenSource, logger *slog.Logger) *Azure {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.EndpointURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAzureAPIVersion
	}

	hc := httpclient.DefaultConfig()
	hc.Logger = logger
	if ts != nil {
		hc.BaseClient = &http.Client{
			Timeout:   hc.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
		}
	}

	return &Azure{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiVersion: apiVersion,
		http:       httpclient.New(hc),
		logger:     logger,
	}
}

// Name returns the driver name.
func (a *Azure) Name() string { return "azure" }

// DeleteContainer deletes a blob container and everything in it.
func (a *Azure) DeleteContainer(ctx context.Context, container string) error {
	u := a.endpoint + "/" + url.PathEscape(container) + "?restype=container"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("x-ms-version", a.apiVersion)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("deleting container %s: %w", container, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		a.logger.DebugContext(ctx, "container already gone", slog.String("container", container))
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		a.logger.InfoContext(ctx, "container deleted", slog.String("container", container))
		return nil
	default:
		return fmt.Errorf("deleting container %s: status %d %s", container, resp.StatusCode,
			resp.Header.Get("x-ms-error-code"))
	}
}
