// Package warmer keeps the reference-set cache populated on a schedule so
// eligibility checks rarely pay for a remote fetch.
package warmer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Refresher reloads the reference set and reports how many handles it holds.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

type Warmer struct {
	refresher Refresher
	cron      *cron.Cron
	logger    *slog.Logger
}

// New schedules refresher on spec, a standard cron expression or a
// descriptor such as "@every 30m".
func New(refresher Refresher, spec string, logger *slog.Logger) (*Warmer, error) {
	if refresher == nil {
		return nil, errors.New("refresher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Warmer{
		refresher: refresher,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:    logger,
	}
	if _, err := w.cron.AddFunc(spec, func() { w.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}
	return w, nil
}

// RunOnce refreshes immediately. Failures are logged; the previous cache
// entry stays in place.
func (w *Warmer) RunOnce(ctx context.Context) {
	n, err := w.refresher.Refresh(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "reference set refresh failed", "error", err)
		return
	}
	w.logger.InfoContext(ctx, "reference set refreshed", "handles", n)
}

// Start warms the cache once, then runs the schedule until Stop.
func (w *Warmer) Start(ctx context.Context) {
	w.RunOnce(ctx)
	w.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to finish or ctx
// to end.
func (w *Warmer) Stop(ctx context.Context) {
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
	}
}
