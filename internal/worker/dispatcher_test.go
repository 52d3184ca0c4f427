package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcam-service/internal/config"
	"dashcam-service/internal/pipeline"
)

type recordingRunner struct {
	mu      *sync.Mutex
	ran     *[]string
	started chan string
	release chan struct{}
}

func (r recordingRunner) Run(ctx context.Context, id string) pipeline.RunReport {
	if r.started != nil {
		r.started <- id
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return pipeline.RunReport{IncidentID: id, Err: ctx.Err()}
		}
	}
	if id == "boom" {
		panic("runner blew up")
	}
	r.mu.Lock()
	*r.ran = append(*r.ran, id)
	r.mu.Unlock()
	return pipeline.RunReport{IncidentID: id}
}

type harness struct {
	mu      sync.Mutex
	ran     []string
	runners atomic.Int32
	started chan string
	release chan struct{}
}

func (h *harness) factory() Runner {
	h.runners.Add(1)
	return recordingRunner{mu: &h.mu, ran: &h.ran, started: h.started, release: h.release}
}

func (h *harness) done() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ran...)
}

func newDispatcher(t *testing.T, h *harness, count, size int) *Dispatcher {
	t.Helper()
	d := New(config.WorkerConfig{Count: count, QueueSize: size}, h.factory, zerolog.Nop())
	require.NoError(t, d.Start(context.Background()))
	return d
}

func TestDispatcher_RunsEverything(t *testing.T) {
	h := &harness{}
	d := newDispatcher(t, h, 3, 10)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, d.Enqueue(id))
	}
	require.NoError(t, d.Stop(context.Background()))

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, h.done())
	assert.EqualValues(t, 3, h.runners.Load())
}

func TestDispatcher_DeduplicatesScheduledIncidents(t *testing.T) {
	h := &harness{started: make(chan string, 4), release: make(chan struct{})}
	d := newDispatcher(t, h, 1, 4)

	require.NoError(t, d.Enqueue("a"))
	assert.Equal(t, "a", <-h.started)

	// "a" is running, "b" is queued: neither is scheduled again.
	require.NoError(t, d.Enqueue("a"))
	require.NoError(t, d.Enqueue("b"))
	require.NoError(t, d.Enqueue("b"))
	assert.Equal(t, 1, d.Len())

	close(h.release)
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, []string{"a", "b"}, h.done())
}

func TestDispatcher_RescheduleAfterFinish(t *testing.T) {
	h := &harness{}
	d := newDispatcher(t, h, 1, 4)

	require.NoError(t, d.Enqueue("a"))
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(h.done()) == 1 && len(d.scheduled) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Enqueue("a"))
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, []string{"a", "a"}, h.done())
}

func TestDispatcher_QueueFull(t *testing.T) {
	h := &harness{started: make(chan string, 4), release: make(chan struct{})}
	d := newDispatcher(t, h, 1, 1)

	require.NoError(t, d.Enqueue("a"))
	<-h.started
	require.NoError(t, d.Enqueue("b"))
	assert.ErrorIs(t, d.Enqueue("c"), ErrQueueFull)

	close(h.release)
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, []string{"a", "b"}, h.done())
}

func TestDispatcher_EnqueueAfterStop(t *testing.T) {
	h := &harness{}
	d := newDispatcher(t, h, 1, 1)
	require.NoError(t, d.Stop(context.Background()))

	assert.ErrorIs(t, d.Enqueue("a"), ErrStopped)
	assert.NoError(t, d.Stop(context.Background()))
	assert.ErrorIs(t, d.Start(context.Background()), ErrStopped)
}

func TestDispatcher_StopDeadlineCancelsRuns(t *testing.T) {
	h := &harness{started: make(chan string, 1), release: make(chan struct{})}
	d := newDispatcher(t, h, 1, 1)

	require.NoError(t, d.Enqueue("slow"))
	<-h.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Stop(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.done())
}

func TestDispatcher_SurvivesPanickingRun(t *testing.T) {
	h := &harness{}
	d := newDispatcher(t, h, 1, 4)

	require.NoError(t, d.Enqueue("boom"))
	require.NoError(t, d.Enqueue("after"))
	require.NoError(t, d.Stop(context.Background()))

	assert.Equal(t, []string{"after"}, h.done())
}
