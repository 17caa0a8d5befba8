package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/transcoder"
)

// CompletionResolver turns a finished output asset into playable URLs.
type CompletionResolver struct {
	client   Transcoder
	endpoint string
	policy   string
	logger   *slog.Logger
}

// NewCompletionResolver creates a resolver that publishes through the named
// streaming endpoint using the given streaming policy.
func NewCompletionResolver(client Transcoder, endpoint, policy string) *CompletionResolver {
	return &CompletionResolver{
		client:   client,
		endpoint: endpoint,
		policy:   policy,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *CompletionResolver) WithLogger(logger *slog.Logger) *CompletionResolver {
	r.logger = logger
	return r
}

// Resolve creates (or reuses) the asset's streaming locator and builds its
// manifest and thumbnail URLs.
func (r *CompletionResolver) Resolve(ctx context.Context, assetRef string) (models.StreamingOutput, error) {
	locator := locatorPrefix + assetRef
	if _, err := r.client.CreateStreamingLocator(ctx, locator, assetRef, r.policy); err != nil {
		if !transcoder.IsConflict(err) {
			return models.StreamingOutput{}, fmt.Errorf("creating streaming locator: %w", err)
		}
		r.logger.DebugContext(ctx, "reusing streaming locator", slog.String("locator", locator))
	}

	ep, err := r.client.GetStreamingEndpoint(ctx, r.endpoint)
	if err != nil {
		return models.StreamingOutput{}, fmt.Errorf("getting streaming endpoint: %w", err)
	}
	if ep.Properties.ResourceState != transcoder.EndpointRunning {
		return models.StreamingOutput{}, fmt.Errorf("%w: endpoint %s is %s",
			models.ErrEndpointNotServing, r.endpoint, ep.Properties.ResourceState)
	}

	paths, err := r.client.ListPaths(ctx, locator)
	if err != nil {
		return models.StreamingOutput{}, fmt.Errorf("listing streaming paths: %w", err)
	}

	out := ClassifyPaths(ep.Properties.HostName, paths)
	if !out.Playable() {
		return out, fmt.Errorf("%w: locator %s", models.ErrNoPlayableOutput, locator)
	}
	return out, nil
}

// ClassifyPaths assigns streaming paths to the HLS, DASH and Smooth slots
// (first match wins) and picks the first image download as the thumbnail.
func ClassifyPaths(hostName string, resp *transcoder.ListPathsResponse) models.StreamingOutput {
	var out models.StreamingOutput
	if resp == nil {
		return out
	}
	base := "https://" + hostName

	for _, sp := range resp.StreamingPaths {
		for _, p := range sp.Paths {
			u := base + p
			switch {
			case strings.Contains(p, "format=m3u8"):
				if out.HLSURL == nil {
					out.HLSURL = models.StringPtr(u)
				}
			case strings.Contains(p, "format=mpd"):
				if out.DASHURL == nil {
					out.DASHURL = models.StringPtr(u)
				}
			case strings.HasSuffix(p, "/manifest"):
				if out.SmoothStreamingURL == nil {
					out.SmoothStreamingURL = models.StringPtr(u)
				}
			}
		}
	}

	for _, p := range resp.DownloadPaths {
		lower := strings.ToLower(p)
		if strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") || strings.HasSuffix(lower, ".png") {
			out.ThumbnailURL = models.StringPtr(base + p)
			break
		}
	}
	return out
}
