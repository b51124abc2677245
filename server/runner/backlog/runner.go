// Package backlog periodically re-schedules items stuck in non-terminal
// processing states. Enqueued jobs can be lost to crashes or a full queue;
// this sweep is what makes delivery to the index effectively at-least-once.
package backlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/glimpse-dev/glimpse/server/runner/processor"
	"github.com/glimpse-dev/glimpse/store"
)

const (
	// defaultSchedule is used when the profile leaves the schedule empty.
	defaultSchedule = "@every 2h"
	// defaultGrace keeps freshly updated items out of the sweep so it does
	// not race jobs that are legitimately in flight.
	defaultGrace = 10 * time.Minute
	// batchSize caps one sweep. A huge backlog drains across several runs
	// instead of flooding the processing queue in one shot.
	batchSize = 256
)

// Runner scans for unprocessed items and feeds them back to the processor.
type Runner struct {
	store     *store.Store
	processor *processor.Runner
	schedule  string
	grace     time.Duration
}

func NewRunner(st *store.Store, proc *processor.Runner, schedule string, grace time.Duration) *Runner {
	if schedule == "" {
		schedule = defaultSchedule
	}
	if grace <= 0 {
		grace = defaultGrace
	}
	return &Runner{
		store:     st,
		processor: proc,
		schedule:  schedule,
		grace:     grace,
	}
}

// Run sweeps once at startup, then on the configured cron schedule until ctx
// is cancelled. The startup sweep picks up items left behind by a previous
// process that died mid-job.
func (r *Runner) Run(ctx context.Context) {
	if err := r.RunOnce(ctx); err != nil {
		slog.Error("startup backlog sweep failed", "error", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() {
		if err := r.RunOnce(ctx); err != nil {
			slog.Error("backlog sweep failed", "error", err)
		}
	}); err != nil {
		slog.Error("invalid backlog schedule, reconciliation disabled", "schedule", r.schedule, "error", err)
		return
	}
	c.Start()
	slog.Info("backlog runner started", "schedule", r.schedule)

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	slog.Info("backlog runner stopped")
}

// RunOnce re-enqueues one batch of stale pending, processing and failed
// items. Items updated inside the grace window are skipped.
func (r *Runner) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-r.grace).Unix()
	limit := batchSize
	items, err := r.store.ListItems(ctx, &store.FindItem{
		ProcessingStatuses: []store.ProcessingStatus{
			store.StatusPending,
			store.StatusProcessing,
			store.StatusFailed,
		},
		UpdatedBefore: &cutoff,
		Limit:         &limit,
	})
	if err != nil {
		return errors.Wrap(err, "failed to list backlog items")
	}
	if len(items) == 0 {
		return nil
	}

	slog.Info("re-enqueueing backlog items", "count", len(items))
	for _, item := range items {
		r.processor.Enqueue(item.ID)
	}
	return nil
}
