package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/progress"
	"go.uber.org/zap"
)

// Tracker mirrors job progress into a JobStore from a single writer
// goroutine, so pipeline checkpoints never wait on the store.
type Tracker struct {
	store   JobStore
	updates chan JobStatus
	logger  *logger.Logger
	timeout time.Duration
	dropped atomic.Int64
}

// NewTracker creates a tracker with room for buffer pending updates
func NewTracker(store JobStore, buffer int, log *logger.Logger) *Tracker {
	if buffer < 1 {
		buffer = 256
	}
	return &Tracker{
		store:   store,
		updates: make(chan JobStatus, buffer),
		logger:  log.WithComponent("job_tracker"),
		timeout: 2 * time.Second,
	}
}

// Run writes queued updates until ctx is cancelled
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-t.updates:
			t.write(ctx, status)
		}
	}
}

func (t *Tracker) write(ctx context.Context, status JobStatus) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.store.Put(ctx, status); err != nil {
		t.logger.Warn("Failed to store job status",
			zap.String("job_id", status.ID),
			zap.Error(err),
		)
	}
}

// Sink returns a progress sink that records checkpoints for base.ID. Updates
// are dropped when the queue is full.
func (t *Tracker) Sink(base JobStatus) progress.Sink {
	return progress.Func(func(e progress.Event) {
		status := base
		status.State = JobRunning
		status.Message = e.Message
		status.Progress = e.Percent

		select {
		case t.updates <- status:
		default:
			t.dropped.Add(1)
		}
	})
}

// Finish queues the terminal status behind any pending checkpoints. It waits
// for queue space because the final state must not be lost.
func (t *Tracker) Finish(ctx context.Context, status JobStatus) {
	select {
	case t.updates <- status:
	case <-ctx.Done():
		t.logger.Warn("Dropped final job status", zap.String("job_id", status.ID), zap.Error(ctx.Err()))
	}
}

// Dropped returns how many checkpoints were discarded
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

type statsReporter interface {
	GetStats(ctx context.Context) (Stats, error)
}

// Stats reports store statistics when the backing store keeps them, plus
// the checkpoints this tracker dropped
func (t *Tracker) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if r, ok := t.store.(statsReporter); ok {
		s, err := r.GetStats(ctx)
		if err != nil {
			return Stats{Dropped: t.dropped.Load()}, err
		}
		stats = s
	}
	stats.Dropped = t.dropped.Load()
	return stats, nil
}

// Get reads a job status straight from the store
func (t *Tracker) Get(ctx context.Context, id string) (JobStatus, bool, error) {
	return t.store.Get(ctx, id)
}
