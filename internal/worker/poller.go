package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"dashcam-service/internal/config"
)

// PendingSource lists incidents waiting to be processed.
type PendingSource interface {
	ListPendingIDs(ctx context.Context, limit int) ([]string, error)
}

// Poller feeds pending incidents into a Dispatcher. Incidents created by the
// upload flow reach the pipeline this way; the dispatcher drops duplicates.
type Poller struct {
	source   PendingSource
	queue    *Dispatcher
	interval time.Duration
	batch    int
	log      zerolog.Logger
}

func NewPoller(source PendingSource, queue *Dispatcher, cfg config.WorkerConfig, log zerolog.Logger) *Poller {
	batch := cfg.PollBatch
	if batch < 1 {
		batch = 1
	}
	return &Poller{
		source:   source,
		queue:    queue,
		interval: cfg.PollInterval,
		batch:    batch,
		log:      log.With().Str("component", "poller").Logger(),
	}
}

// Run polls until ctx is done. A non-positive interval disables polling.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.log.Info().Msg("pending poller disabled")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll enqueues one batch of pending incidents and returns how many were
// accepted.
func (p *Poller) Poll(ctx context.Context) int {
	ids, err := p.source.ListPendingIDs(ctx, p.batch)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error().Err(err).Msg("failed to list pending incidents")
		}
		return 0
	}

	accepted := 0
	for _, id := range ids {
		err := p.queue.Enqueue(id)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrQueueFull):
			p.log.Debug().Int("remaining", len(ids)-accepted).Msg("queue full, deferring to next poll")
			return accepted
		default:
			p.log.Warn().Err(err).Str("incident_id", id).Msg("failed to enqueue incident")
			return accepted
		}
	}
	return accepted
}
