// Package scheduler runs vodarr's background work: a bounded dispatcher for
// pollers and async webhook handling, and a cron-driven reconciler.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweeper performs one reconciliation pass.
type Sweeper interface {
	Reconcile(ctx context.Context) error
}

// Reconciler runs a Sweeper on a cron schedule. Overlapping runs are skipped.
type Reconciler struct {
	mu sync.Mutex

	sweeper Sweeper
	spec    string
	logger  *slog.Logger

	// cron parser for validating schedules; accepts descriptors like @every 5m
	parser cron.Parser

	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.Mutex
}

// NewReconciler creates a reconciler for the given schedule.
func NewReconciler(sweeper Sweeper, spec string) *Reconciler {
	return &Reconciler{
		sweeper: sweeper,
		spec:    spec,
		logger:  slog.Default(),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// WithLogger sets a custom logger.
func (r *Reconciler) WithLogger(logger *slog.Logger) *Reconciler {
	r.logger = logger
	return r
}

// ValidateSpec checks that spec is a usable schedule.
func (r *Reconciler) ValidateSpec(spec string) error {
	if _, err := r.parser.Parse(spec); err != nil {
		return fmt.Errorf("parsing reconcile schedule %q: %w", spec, err)
	}
	return nil
}

// Start schedules the sweep.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return fmt.Errorf("reconciler already started")
	}

	sched, err := r.parser.Parse(r.spec)
	if err != nil {
		return fmt.Errorf("parsing reconcile schedule %q: %w", r.spec, err)
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.cron = cron.New(cron.WithParser(r.parser))
	r.cron.Schedule(sched, cron.FuncJob(func() { r.RunOnce() }))
	r.cron.Start()

	r.logger.Info("reconciler started", slog.String("schedule", r.spec))
	return nil
}

// Stop cancels an in-flight sweep and waits for it to return.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	c := r.cron
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	r.mu.Lock()
	r.ctx = nil
	r.cancel = nil
	r.cron = nil
	r.mu.Unlock()

	r.logger.Info("reconciler stopped")
}

// RunOnce runs a single sweep unless one is already in progress. It reports
// whether the sweep ran.
func (r *Reconciler) RunOnce() bool {
	if !r.running.TryLock() {
		r.logger.Debug("reconcile already running, skipping")
		return false
	}
	defer r.running.Unlock()

	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := r.sweeper.Reconcile(ctx); err != nil {
		r.logger.Error("reconcile failed", slog.Any("error", err))
	}
	return true
}
