package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/store"
	"github.com/censor-ci/censor/pkg/types"
)

// fakeExecutor records executed ids and the peak number of parallel builds
type fakeExecutor struct {
	delay time.Duration
	fail  map[int64]bool

	mu       sync.Mutex
	executed []int64
	current  atomic.Int32
	peak     atomic.Int32
}

func (f *fakeExecutor) Execute(ctx context.Context, id int64) (types.Status, error) {
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
	}

	f.mu.Lock()
	f.executed = append(f.executed, id)
	f.mu.Unlock()

	if f.fail[id] {
		return types.StatusFailed, errors.New("store unavailable")
	}
	return types.StatusSuccess, nil
}

func (f *fakeExecutor) ids() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.executed...)
}

type executorFunc func(ctx context.Context, id int64) (types.Status, error)

func (f executorFunc) Execute(ctx context.Context, id int64) (types.Status, error) {
	return f(ctx, id)
}

type runningRecorder struct {
	*testRecorder
	mu   sync.Mutex
	seen []int
}

func (r *runningRecorder) SetRunningBuilds(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

func newTestWorker(t *testing.T, exec BuildExecutor, concurrency int, opts ...WorkerOption) (*Worker, *store.FileStore) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewWorker(exec, st, concurrency, logger.Nop(), opts...), st
}

func runWorker(t *testing.T, w *Worker) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestWorker_SubmitPersistsAndExecutes(t *testing.T) {
	exec := &fakeExecutor{}
	w, st := newTestWorker(t, exec, 1)
	cancel, done := runWorker(t, w)

	rec, err := w.Submit(context.Background(), types.BuildRequest{ProjectID: 3, Branch: "feature"})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID())

	stored, err := st.Load(context.Background(), rec.ID())
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, stored.Status())
	assert.Equal(t, "feature", stored.Branch())
	assert.Equal(t, types.SourceManual, stored.Source())

	assert.Eventually(t, func() bool { return len(exec.ids()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{rec.ID()}, exec.ids())

	cancel()
	require.NoError(t, <-done)
}

func TestWorker_SubmitRejectsInvalidRequests(t *testing.T) {
	w, _ := newTestWorker(t, &fakeExecutor{}, 1)

	_, err := w.Submit(context.Background(), types.BuildRequest{})
	assert.Error(t, err)

	_, err = w.Submit(context.Background(), types.BuildRequest{ProjectID: 1, Source: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestWorker_RespectsConcurrencyLimit(t *testing.T) {
	exec := &fakeExecutor{delay: 30 * time.Millisecond}
	w, _ := newTestWorker(t, exec, 2)
	cancel, done := runWorker(t, w)

	for id := int64(1); id <= 6; id++ {
		require.NoError(t, w.Enqueue(context.Background(), id))
	}

	assert.Eventually(t, func() bool { return len(exec.ids()) == 6 }, 5*time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, exec.peak.Load(), int32(2))
	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5, 6}, exec.ids())

	cancel()
	require.NoError(t, <-done)
}

func TestWorker_ExecutionErrorsDoNotStopTheWorker(t *testing.T) {
	exec := &fakeExecutor{fail: map[int64]bool{1: true}}
	w, _ := newTestWorker(t, exec, 1)
	cancel, done := runWorker(t, w)

	require.NoError(t, w.Enqueue(context.Background(), 1))
	require.NoError(t, w.Enqueue(context.Background(), 2))

	assert.Eventually(t, func() bool { return len(exec.ids()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWorker_PanickingBuildDoesNotAffectOthers(t *testing.T) {
	explode := make(chan struct{})
	release := make(chan struct{})
	siblingCtxErr := make(chan error, 1)
	var laterRan atomic.Bool

	exec := executorFunc(func(ctx context.Context, id int64) (types.Status, error) {
		switch id {
		case 1:
			<-explode
			panic("checkout exploded")
		case 2:
			<-release
			siblingCtxErr <- ctx.Err()
		case 3:
			laterRan.Store(true)
		}
		return types.StatusSuccess, nil
	})
	w, _ := newTestWorker(t, exec, 2)
	cancel, done := runWorker(t, w)

	require.NoError(t, w.Enqueue(context.Background(), 2))
	require.NoError(t, w.Enqueue(context.Background(), 1))

	require.Eventually(t, func() bool { return w.Running() == 2 }, 2*time.Second, 10*time.Millisecond)
	close(explode)
	// only the sibling is left once the panicking build is gone
	require.Eventually(t, func() bool { return w.Running() == 1 }, 2*time.Second, 10*time.Millisecond)
	close(release)
	assert.NoError(t, <-siblingCtxErr)

	require.NoError(t, w.Enqueue(context.Background(), 3))
	assert.Eventually(t, laterRan.Load, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWorker_ShutdownWaitsForRunningBuilds(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan error, 1)

	exec := executorFunc(func(ctx context.Context, id int64) (types.Status, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished <- ctx.Err()
		return types.StatusSuccess, nil
	})
	w, _ := newTestWorker(t, exec, 1)
	cancel, done := runWorker(t, w)

	require.NoError(t, w.Enqueue(context.Background(), 1))
	<-started
	cancel()
	require.NoError(t, <-done)

	select {
	case err := <-finished:
		assert.NoError(t, err, "the running build keeps an uncancelled context")
	default:
		t.Fatal("Run returned before the running build finished")
	}
}

func TestWorker_ReportsRunningBuilds(t *testing.T) {
	rec := &runningRecorder{testRecorder: newTestRecorder()}
	exec := &fakeExecutor{delay: 20 * time.Millisecond}
	w, _ := newTestWorker(t, exec, 1, WithWorkerRecorder(rec))
	cancel, done := runWorker(t, w)

	require.NoError(t, w.Enqueue(context.Background(), 1))
	assert.Eventually(t, func() bool { return len(exec.ids()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return w.Running() == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{1, 0}, rec.seen)
}

func TestWorker_EnqueueHonoursContext(t *testing.T) {
	w, _ := newTestWorker(t, &fakeExecutor{}, 1, WithQueueSize(1))
	require.NoError(t, w.Enqueue(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Enqueue(ctx, 2), context.DeadlineExceeded)
}
