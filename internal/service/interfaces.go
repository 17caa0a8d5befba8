// Package service holds vodarr's orchestration logic: transcode submission,
// completion handling, review transitions and deletion.
package service

import (
	"context"
	"time"

	"github.com/jmylchreest/vodarr/internal/scheduler"
	"github.com/jmylchreest/vodarr/internal/transcoder"
)

// Transcoder is the subset of the media management API used by the services.
// *transcoder.Client satisfies it.
type Transcoder interface {
	CreateOrUpdateTransform(ctx context.Context, name, preset string) (*transcoder.Transform, error)
	CreateOrUpdateAsset(ctx context.Context, name string) (*transcoder.Asset, error)
	GetAsset(ctx context.Context, name string) (*transcoder.Asset, error)
	DeleteAsset(ctx context.Context, name string) error
	CreateJob(ctx context.Context, transform, name, inputURL, outputAsset string) (*transcoder.Job, error)
	GetJob(ctx context.Context, transform, name string) (*transcoder.Job, error)
	CreateStreamingLocator(ctx context.Context, name, asset, policy string) (*transcoder.StreamingLocator, error)
	GetStreamingEndpoint(ctx context.Context, name string) (*transcoder.StreamingEndpoint, error)
	ListPaths(ctx context.Context, locator string) (*transcoder.ListPathsResponse, error)
}

// Dispatcher runs work in the background. *scheduler.Dispatcher satisfies it.
type Dispatcher interface {
	Submit(name string, fn scheduler.Task) error
}

// Clock abstracts time for the job poller.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

// inlineDispatcher runs tasks synchronously. Used when no dispatcher is wired.
type inlineDispatcher struct{}

func (inlineDispatcher) Submit(_ string, fn scheduler.Task) error {
	fn(context.Background())
	return nil
}
