package scheduler

import (
	"context"
	"time"

	"grimm.is/fwplan/internal/clock"
	"grimm.is/fwplan/internal/deploy"
	"grimm.is/fwplan/internal/logging"
)

// DriftChecker compares routers against their last deployment.
type DriftChecker interface {
	Check(ctx context.Context) ([]deploy.DriftReport, error)
}

// Pruner deletes finished deployments older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewDriftTask creates a task that runs a drift check every interval.
// Reports go to onReport when it is set.
func NewDriftTask(checker DriftChecker, interval time.Duration, onReport func([]deploy.DriftReport)) *Task {
	return &Task{
		ID:          "drift-check",
		Name:        "Drift Check",
		Description: "Compare running router configuration with the last deployment",
		Schedule:    Every(interval),
		Enabled:     true,
		RunOnStart:  true,
		Timeout:     interval,
		Func: func(ctx context.Context) error {
			reports, err := checker.Check(ctx)
			if onReport != nil && len(reports) > 0 {
				onReport(reports)
			}
			return err
		},
	}
}

// NewPruneTask creates a task that prunes deployment history older than
// retain once a day at 03:00.
func NewPruneTask(store Pruner, retain time.Duration, clk clock.Clock, logger *logging.Logger) *Task {
	return &Task{
		ID:          "history-prune",
		Name:        "History Prune",
		Description: "Delete finished deployments past the retention period",
		Schedule:    Daily(3, 0),
		Enabled:     true,
		Timeout:     time.Minute,
		Func: func(ctx context.Context) error {
			n, err := store.Prune(ctx, clk.Now().Add(-retain))
			if err != nil {
				return err
			}
			if n > 0 && logger != nil {
				logger.Info("pruned deployment history", "deleted", n)
			}
			return nil
		},
	}
}
