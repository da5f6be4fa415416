package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wesm/repo-pulse/internal/logging"
	"github.com/wesm/repo-pulse/internal/models"
)

// RefreshTimeout bounds one scheduled refresh
const RefreshTimeout = 5 * time.Minute

// Refresher refreshes the current aggregate on a cron schedule
type Refresher struct {
	c       *cron.Cron
	current func() *Aggregate
	logger  *slog.Logger
}

// NewRefresher schedules refreshes of whatever aggregate current returns.
// schedule is a standard five-field cron expression or a descriptor such as "@every 10m".
func NewRefresher(schedule string, current func() *Aggregate, logger *slog.Logger) (*Refresher, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	r := &Refresher{c: c, current: current, logger: logger}
	if _, err := c.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("failed to parse refresh schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start runs the schedule in the background
func (r *Refresher) Start() { r.c.Start() }

// Stop halts the schedule and waits for a running refresh to finish
func (r *Refresher) Stop() { <-r.c.Stop().Done() }

func (r *Refresher) tick() {
	agg := r.current()
	if agg == nil || agg.Status() != models.StatusReady {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), RefreshTimeout)
	defer cancel()

	owner, name, _ := agg.Selection()
	r.logger.Info("scheduled refresh", "repo", owner+"/"+name)
	if err := agg.Refresh(ctx); err != nil {
		r.logger.Error("scheduled refresh failed", "repo", owner+"/"+name, "err", err)
	}
}
