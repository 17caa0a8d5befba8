package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueFull is returned by Submit when every queue slot is taken.
var ErrQueueFull = errors.New("dispatcher queue full")

// ErrNotRunning is returned by Submit before Start or after Stop.
var ErrNotRunning = errors.New("dispatcher not running")

// Task is a unit of background work. The context is cancelled on Stop.
type Task func(ctx context.Context)

type queuedTask struct {
	name string
	fn   Task
}

// Dispatcher runs background tasks on a fixed pool of workers fed by a
// bounded queue.
type Dispatcher struct {
	mu sync.RWMutex

	logger *slog.Logger

	// Configuration
	workerCount int
	queueSize   int
	taskTimeout time.Duration

	// Running state
	queue   chan queuedTask
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  atomic.Int64
	done    atomic.Int64
	dropped atomic.Int64
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	// WorkerCount is the number of concurrent workers.
	// Default: 4
	WorkerCount int

	// QueueSize is how many tasks may wait for a worker.
	// Default: 256
	QueueSize int

	// TaskTimeout bounds a single task. Zero means no limit beyond Stop.
	TaskTimeout time.Duration
}

// DefaultDispatcherConfig returns the default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		WorkerCount: 4,
		QueueSize:   256,
	}
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher() *Dispatcher {
	config := DefaultDispatcherConfig()
	return &Dispatcher{
		logger:      slog.Default(),
		workerCount: config.WorkerCount,
		queueSize:   config.QueueSize,
	}
}

// WithLogger sets a custom logger.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	d.logger = logger
	return d
}

// WithConfig applies configuration to the dispatcher.
func (d *Dispatcher) WithConfig(config DispatcherConfig) *Dispatcher {
	if config.WorkerCount > 0 {
		d.workerCount = config.WorkerCount
	}
	if config.QueueSize > 0 {
		d.queueSize = config.QueueSize
	}
	if config.TaskTimeout > 0 {
		d.taskTimeout = config.TaskTimeout
	}
	return d
}

// Start launches the workers.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx != nil {
		return fmt.Errorf("dispatcher already started")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.queue = make(chan queuedTask, d.queueSize)

	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	d.logger.Info("dispatcher started",
		slog.Int("workers", d.workerCount),
		slog.Int("queue_size", d.queueSize))

	return nil
}

// Stop cancels running tasks, discards queued ones and waits for workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	d.wg.Wait()

	d.mu.Lock()
	d.ctx = nil
	d.cancel = nil
	d.queue = nil
	d.mu.Unlock()

	d.logger.Info("dispatcher stopped")
}

// Submit queues fn without blocking.
func (d *Dispatcher) Submit(name string, fn Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.ctx == nil || d.ctx.Err() != nil {
		return ErrNotRunning
	}

	select {
	case d.queue <- queuedTask{name: name, fn: fn}:
		return nil
	default:
		d.dropped.Add(1)
		d.logger.Warn("dispatcher queue full, dropping task", slog.String("task", name))
		return fmt.Errorf("submitting %s: %w", name, ErrQueueFull)
	}
}

// worker is the main worker loop.
func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()

	d.logger.Debug("worker started", slog.Int("worker", n))

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debug("worker stopping", slog.Int("worker", n))
			return
		case t := <-d.queue:
			d.run(t)
		}
	}
}

// run executes a single task, recovering panics so one bad task cannot
// take a worker down.
func (d *Dispatcher) run(t queuedTask) {
	d.active.Add(1)
	defer d.active.Add(-1)
	defer d.done.Add(1)

	ctx := d.ctx
	if d.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.taskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked",
				slog.String("task", t.name),
				slog.Any("panic", r))
		}
	}()

	start := time.Now()
	t.fn(ctx)
	d.logger.Debug("task completed",
		slog.String("task", t.name),
		slog.Duration("duration", time.Since(start)))
}

// GetStatus returns the current dispatcher status.
func (d *Dispatcher) GetStatus() DispatcherStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DispatcherStatus{
		Running:     d.ctx != nil && d.ctx.Err() == nil,
		WorkerCount: d.workerCount,
		Queued:      len(d.queue),
		Active:      d.active.Load(),
		Completed:   d.done.Load(),
		Dropped:     d.dropped.Load(),
	}
}

// DispatcherStatus represents the current state of the dispatcher.
type DispatcherStatus struct {
	Running     bool  `json:"running"`
	WorkerCount int   `json:"worker_count"`
	Queued      int   `json:"queued"`
	Active      int64 `json:"active"`
	Completed   int64 `json:"completed"`
	Dropped     int64 `json:"dropped"`
}
