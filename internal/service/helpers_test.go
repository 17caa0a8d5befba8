package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/notify"
	"github.com/jmylchreest/vodarr/internal/repository"
	"github.com/jmylchreest/vodarr/internal/scheduler"
	"github.com/jmylchreest/vodarr/internal/transcoder"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func setupTestRepo(t *testing.T) repository.VideoRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Video{}))
	return repository.NewVideoRepository(db)
}

func notFound(op string) error {
	return &transcoder.APIError{Op: op, StatusCode: http.StatusNotFound, Code: "NotFound"}
}

func conflict(op string) error {
	return &transcoder.APIError{Op: op, StatusCode: http.StatusConflict, Code: "Conflict"}
}

func unavailable(op string) error {
	return &transcoder.APIError{Op: op, StatusCode: http.StatusServiceUnavailable}
}

// fakeTranscoder implements Transcoder for testing.
type fakeTranscoder struct {
	mu    sync.Mutex
	calls []string

	transformErr   error
	createAssetErr error
	createJobErr   error
	getJobErr      error
	// getJobOutages fails that many GetJob calls as unavailable first.
	getJobOutages  int
	locatorErr     error
	endpointErr    error
	pathsErr       error
	getAssetErr    error
	deleteAssetErr error

	endpoint transcoder.StreamingEndpoint
	paths    transcoder.ListPathsResponse

	// jobStates is consumed one state per GetJob; the last state repeats.
	jobStates map[string][]transcoder.JobState
	jobErrors map[string]*transcoder.JobError

	assets        map[string]*transcoder.Asset
	deletedAssets []string
	createdJobs   map[string]string // job name -> input URL
}

func newFakeTranscoder() *fakeTranscoder {
	return &fakeTranscoder{
		endpoint: transcoder.StreamingEndpoint{
			Name: "default",
			Properties: transcoder.StreamingEndpointProperties{
				HostName:      "media.example.net",
				ResourceState: transcoder.EndpointRunning,
			},
		},
		paths: transcoder.ListPathsResponse{
			StreamingPaths: []transcoder.StreamingPath{
				{StreamingProtocol: "Hls", Paths: []string{"/loc/video.ism/manifest(format=m3u8-cmaf)"}},
				{StreamingProtocol: "Dash", Paths: []string{"/loc/video.ism/manifest(format=mpd-time-cmaf)"}},
			},
		},
		jobStates:   make(map[string][]transcoder.JobState),
		jobErrors:   make(map[string]*transcoder.JobError),
		assets:      make(map[string]*transcoder.Asset),
		createdJobs: make(map[string]string),
	}
}

func (f *fakeTranscoder) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTranscoder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTranscoder) CreateOrUpdateTransform(_ context.Context, name, preset string) (*transcoder.Transform, error) {
	f.record("CreateOrUpdateTransform " + name)
	if f.transformErr != nil {
		return nil, f.transformErr
	}
	return &transcoder.Transform{Name: name}, nil
}

func (f *fakeTranscoder) CreateOrUpdateAsset(_ context.Context, name string) (*transcoder.Asset, error) {
	f.record("CreateOrUpdateAsset " + name)
	if f.createAssetErr != nil {
		return nil, f.createAssetErr
	}
	a := &transcoder.Asset{Name: name, Properties: transcoder.AssetProperties{Container: "asset-" + name}}
	f.mu.Lock()
	f.assets[name] = a
	f.mu.Unlock()
	return a, nil
}

func (f *fakeTranscoder) GetAsset(_ context.Context, name string) (*transcoder.Asset, error) {
	f.record("GetAsset " + name)
	if f.getAssetErr != nil {
		return nil, f.getAssetErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[name]
	if !ok {
		return nil, notFound("getting asset")
	}
	return a, nil
}

func (f *fakeTranscoder) DeleteAsset(_ context.Context, name string) error {
	f.record("DeleteAsset " + name)
	if f.deleteAssetErr != nil {
		return f.deleteAssetErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.assets, name)
	f.deletedAssets = append(f.deletedAssets, name)
	return nil
}

func (f *fakeTranscoder) CreateJob(_ context.Context, transform, name, inputURL, outputAsset string) (*transcoder.Job, error) {
	f.record("CreateJob " + name)
	if f.createJobErr != nil {
		return nil, f.createJobErr
	}
	f.mu.Lock()
	f.createdJobs[name] = inputURL
	if _, ok := f.jobStates[name]; !ok {
		f.jobStates[name] = []transcoder.JobState{transcoder.JobStateFinished}
	}
	f.mu.Unlock()
	return &transcoder.Job{Name: name, Properties: transcoder.JobProperties{
		State:   transcoder.JobStateQueued,
		Outputs: []transcoder.JobOutput{{AssetName: outputAsset}},
	}}, nil
}

func (f *fakeTranscoder) GetJob(_ context.Context, transform, name string) (*transcoder.Job, error) {
	f.record("GetJob " + name)
	if f.getJobErr != nil {
		return nil, f.getJobErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getJobOutages > 0 {
		f.getJobOutages--
		return nil, unavailable("getting job")
	}
	states, ok := f.jobStates[name]
	if !ok || len(states) == 0 {
		return nil, notFound("getting job")
	}
	state := states[0]
	if len(states) > 1 {
		f.jobStates[name] = states[1:]
	}
	out := transcoder.JobOutput{State: state, Error: f.jobErrors[name]}
	return &transcoder.Job{Name: name, Properties: transcoder.JobProperties{
		State:   state,
		Outputs: []transcoder.JobOutput{out},
	}}, nil
}

func (f *fakeTranscoder) CreateStreamingLocator(_ context.Context, name, asset, policy string) (*transcoder.StreamingLocator, error) {
	f.record("CreateStreamingLocator " + name)
	if f.locatorErr != nil {
		return nil, f.locatorErr
	}
	return &transcoder.StreamingLocator{Name: name, Properties: transcoder.StreamingLocatorProperties{
		AssetName:           asset,
		StreamingPolicyName: policy,
	}}, nil
}

func (f *fakeTranscoder) GetStreamingEndpoint(_ context.Context, name string) (*transcoder.StreamingEndpoint, error) {
	f.record("GetStreamingEndpoint " + name)
	if f.endpointErr != nil {
		return nil, f.endpointErr
	}
	ep := f.endpoint
	return &ep, nil
}

func (f *fakeTranscoder) ListPaths(_ context.Context, locator string) (*transcoder.ListPathsResponse, error) {
	f.record("ListPaths " + locator)
	if f.pathsErr != nil {
		return nil, f.pathsErr
	}
	p := f.paths
	return &p, nil
}

// fakeStore implements blobstore.Store for testing.
type fakeStore struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (s *fakeStore) DeleteContainer(_ context.Context, container string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, container)
	return nil
}

func (s *fakeStore) Name() string { return "fake" }

// fakeNotifier implements notify.Notifier for testing.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

// fakeClock advances instantly when waited on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// recordingDispatcher queues tasks until Drain.
type recordingDispatcher struct {
	mu    sync.Mutex
	names []string
	tasks []scheduler.Task
	err   error
}

func (d *recordingDispatcher) Submit(name string, fn scheduler.Task) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = append(d.names, name)
	d.tasks = append(d.tasks, fn)
	return nil
}

func (d *recordingDispatcher) Drain(ctx context.Context) int {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()
	for _, fn := range tasks {
		fn(ctx)
	}
	return len(tasks)
}

// fixedTokens returns a token generator yielding the given values in order.
func fixedTokens(tokens ...string) func() string {
	i := 0
	return func() string {
		tok := tokens[i%len(tokens)]
		if i >= len(tokens) {
			tok = fmt.Sprintf("%s-%d", tok, i)
		}
		i++
		return tok
	}
}

func newVideo(t *testing.T, repo repository.VideoRepository, owner models.ULID) *models.Video {
	t.Helper()
	v := &models.Video{
		OwnerID:    owner,
		OwnerEmail: "owner@example.com",
		Name:       "Holiday",
		BlobURL:    "https://store.example.com/uploads/holiday.mp4",
	}
	require.NoError(t, repo.Create(context.Background(), v))
	return v
}

func getVideo(t *testing.T, repo repository.VideoRepository, id models.ULID) *models.Video {
	t.Helper()
	v, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, v)
	return v
}
