package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"dashcam-service/internal/config"
	"dashcam-service/internal/pipeline"
)

var (
	ErrQueueFull = errors.New("processing queue is full")
	ErrStopped   = errors.New("dispatcher is stopped")
)

// Runner processes one incident.
type Runner interface {
	Run(ctx context.Context, incidentID string) pipeline.RunReport
}

// Dispatcher runs incidents on a fixed set of workers fed by a bounded
// queue. Each worker owns one Runner for its whole lifetime, and an incident
// that is queued or running is never scheduled a second time.
type Dispatcher struct {
	queue     chan string
	count     int
	newRunner func() Runner
	log       zerolog.Logger

	mu        sync.Mutex
	scheduled map[string]struct{}
	started   bool
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.WorkerConfig, newRunner func() Runner, log zerolog.Logger) *Dispatcher {
	count := cfg.Count
	if count < 1 {
		count = 1
	}
	size := cfg.QueueSize
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		queue:     make(chan string, size),
		count:     count,
		newRunner: newRunner,
		scheduled: make(map[string]struct{}),
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// Start launches the workers. Runs are not bound to ctx cancellation; use
// Stop to shut down.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("dispatcher already started")
	}
	if d.stopped {
		return ErrStopped
	}
	d.started = true
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < d.count; i++ {
		d.wg.Add(1)
		go d.work(i, d.newRunner())
	}
	d.log.Info().Int("workers", d.count).Int("queue_size", cap(d.queue)).Msg("dispatcher started")
	return nil
}

// Enqueue schedules a run for incidentID and returns immediately. Scheduling
// an incident that is already queued or running is a no-op.
func (d *Dispatcher) Enqueue(incidentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	if _, ok := d.scheduled[incidentID]; ok {
		d.log.Debug().Str("incident_id", incidentID).Msg("incident already scheduled")
		return nil
	}

	select {
	case d.queue <- incidentID:
		d.scheduled[incidentID] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of incidents waiting for a worker.
func (d *Dispatcher) Len() int {
	return len(d.queue)
}

// Stop refuses new work and waits for queued and running incidents to
// finish. If ctx expires first, running incidents are cancelled and ctx's
// error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.log.Info().Msg("dispatcher drained")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		d.log.Warn().Err(ctx.Err()).Msg("dispatcher stopped before queue drained")
		return ctx.Err()
	}
}

func (d *Dispatcher) work(id int, runner Runner) {
	defer d.wg.Done()
	log := d.log.With().Int("worker", id).Logger()

	for incidentID := range d.queue {
		d.run(log, runner, incidentID)
	}
}

func (d *Dispatcher) run(log zerolog.Logger, runner Runner, incidentID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("incident_id", incidentID).Msg("run panicked")
		}
		d.mu.Lock()
		delete(d.scheduled, incidentID)
		d.mu.Unlock()
	}()

	report := runner.Run(d.ctx, incidentID)
	log.Debug().
		Str("incident_id", incidentID).
		Str("status", string(report.Status)).
		Dur("duration", report.Duration).
		Msg("run done")
}
