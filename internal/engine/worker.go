package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/metrics"
	"github.com/censor-ci/censor/pkg/store"
	"github.com/censor-ci/censor/pkg/types"
)

// BuildExecutor executes a stored build
type BuildExecutor interface {
	Execute(ctx context.Context, buildID int64) (types.Status, error)
}

// Worker executes queued builds, at most concurrency at a time
type Worker struct {
	executor    BuildExecutor
	store       store.Store
	concurrency int
	queue       chan int64
	running     atomic.Int32
	recorder    metrics.Recorder
	logger      logger.Logger
}

// WorkerOption customises a Worker
type WorkerOption func(*Worker)

// WithWorkerRecorder reports the number of running builds to r
func WithWorkerRecorder(r metrics.Recorder) WorkerOption {
	return func(w *Worker) {
		if r != nil {
			w.recorder = r
		}
	}
}

// WithQueueSize sets how many builds may wait before Enqueue blocks
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan int64, n)
		}
	}
}

// NewWorker creates a worker
func NewWorker(executor BuildExecutor, st store.Store, concurrency int, log logger.Logger, opts ...WorkerOption) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	w := &Worker{
		executor:    executor,
		store:       st,
		concurrency: concurrency,
		queue:       make(chan int64, 64),
		recorder:    metrics.NoopRecorder{},
		logger:      log.WithScope("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit creates a pending build for req, persists it and queues it
func (w *Worker) Submit(ctx context.Context, req types.BuildRequest) (*build.Record, error) {
	rec, err := NewRecord(req, time.Now())
	if err != nil {
		return nil, err
	}
	if err := w.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create build: %w", err)
	}
	w.logger.Info("Build queued",
		logger.WithField("build", rec.ID()),
		logger.WithField("project", rec.ProjectID()),
		logger.WithField("source", rec.Source()))

	if err := w.Enqueue(ctx, rec.ID()); err != nil {
		return rec, err
	}
	return rec, nil
}

// Enqueue queues an existing build id
func (w *Worker) Enqueue(ctx context.Context, buildID int64) error {
	select {
	case w.queue <- buildID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running returns the number of builds currently executing
func (w *Worker) Running() int {
	return int(w.running.Load())
}

// Run executes queued builds until ctx is cancelled, then waits for the
// running builds to finish. Builds run under a context that keeps ctx's
// values but not its cancellation, so shutting down never fails a build
// halfway. Build failures and panics are logged, not returned.
func (w *Worker) Run(ctx context.Context) error {
	group, gctx := NewSafeGroup(ctx, w.logger)
	group.SetLimit(w.concurrency)
	buildCtx := context.WithoutCancel(ctx)

	w.logger.Info("Worker started", logger.WithField("concurrency", w.concurrency))
	defer w.logger.Info("Worker stopped")

	for {
		select {
		case <-gctx.Done():
			return group.Wait()
		case id := <-w.queue:
			group.Go(func() error {
				w.execute(buildCtx, id)
				return nil
			})
		}
	}
}

func (w *Worker) execute(ctx context.Context, id int64) {
	w.recorder.SetRunningBuilds(int(w.running.Add(1)))
	defer func() {
		w.recorder.SetRunningBuilds(int(w.running.Add(-1)))
	}()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Build panicked",
				logger.WithField("build", id),
				logger.WithField("panic", r),
				logger.WithField("stack_trace", string(debug.Stack())))
		}
	}()

	status, err := w.executor.Execute(ctx, id)
	if err != nil {
		w.logger.Error("Build execution failed",
			logger.WithField("build", id),
			logger.WithField("error", err))
		return
	}
	w.logger.Info("Build finished",
		logger.WithField("build", id),
		logger.WithField("status", status))
}
