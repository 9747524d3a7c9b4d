package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/fwplan/internal/clock"
	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/metrics"
	"grimm.is/fwplan/internal/router"
)

// Baseline supplies the configurations last deployed successfully to a
// router, one per planned scope. It returns nil when the router has never
// been deployed.
type Baseline interface {
	LastSucceeded(ctx context.Context, routerName string) ([]*configtree.ConfigTree, error)
}

// DriftReport describes how far a router has moved from its last deployed
// configuration.
type DriftReport struct {
	Router     string                 `json:"router"`
	CheckedAt  time.Time              `json:"checked_at"`
	Operations []configtree.Operation `json:"operations"`
	Diff       string                 `json:"diff,omitempty"`
}

// Drifted reports whether any change was found.
func (r DriftReport) Drifted() bool {
	return len(r.Operations) > 0
}

// DriftDetector compares live router configuration against the last
// successful deployment.
type DriftDetector struct {
	orch     *Orchestrator
	baseline Baseline
	clock    clock.Clock
	metrics  *metrics.Registry
	logger   *logging.Logger
}

// NewDriftDetector creates a detector over the orchestrator's routers.
// It reuses the orchestrator's clock, metrics and lock table.
func NewDriftDetector(orch *Orchestrator, baseline Baseline) *DriftDetector {
	return &DriftDetector{
		orch:     orch,
		baseline: baseline,
		clock:    orch.clock,
		metrics:  orch.metrics,
		logger:   orch.logger.WithComponent("drift"),
	}
}

// Check inspects every router that has a baseline. Routers busy with a
// deployment are skipped. Per-router failures are joined into the returned
// error; reports for the other routers are still returned.
func (dd *DriftDetector) Check(ctx context.Context) ([]DriftReport, error) {
	var reports []DriftReport
	var errs []error
	for _, name := range dd.orch.RouterNames() {
		report, err := dd.CheckRouter(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if report != nil {
			reports = append(reports, *report)
		}
	}
	return reports, errors.Join(errs...)
}

// CheckRouter inspects one router. It returns nil without error when the
// router has no baseline or is locked by a running deployment.
func (dd *DriftDetector) CheckRouter(ctx context.Context, name string) (*DriftReport, error) {
	r, ok := dd.orch.Router(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRouter, name)
	}

	planned, err := dd.baseline.LastSucceeded(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("baseline %s: %w", name, err)
	}
	if len(planned) == 0 {
		return nil, nil
	}

	release, ok := dd.orch.locks.TryAcquire([]string{name})
	if !ok {
		dd.logger.Debug("router busy, skipping drift check", "router", name)
		return nil, nil
	}
	defer release()

	live, err := r.GetConfig(ctx)
	dd.metrics.RecordFetch(name, err)
	if err != nil {
		return nil, err
	}

	now := dd.clock.Now()
	report := &DriftReport{Router: name, CheckedAt: now}
	for _, tree := range planned {
		ops, err := router.Reconcile(live, tree)
		if err != nil {
			return nil, fmt.Errorf("diff %s: %w", name, err)
		}
		if len(ops) == 0 {
			continue
		}
		report.Operations = append(report.Operations, ops...)
		diff, err := UnifiedDiff(live, tree)
		if err != nil {
			return nil, err
		}
		report.Diff += diff
	}

	if report.Drifted() {
		dd.logger.Warn("configuration drift detected", "router", name, "operations", len(report.Operations))
		dd.logger.Debug("drift detail", "router", name, "diff", report.Diff)
	}
	dd.metrics.RecordDrift(name, len(report.Operations), now)
	return report, nil
}

// UnifiedDiff renders the planned subtree and the matching live subtree and
// diffs them line by line, from deployed to running.
func UnifiedDiff(live, planned *configtree.ConfigTree) (string, error) {
	current, err := liveSubtree(live, planned.Context())
	if err != nil {
		return "", err
	}
	return unifiedDiff("deployed", planned, "running", current)
}

// PlanDiff is UnifiedDiff in the direction of a pending deployment, from
// running to planned.
func PlanDiff(live, planned *configtree.ConfigTree) (string, error) {
	current, err := liveSubtree(live, planned.Context())
	if err != nil {
		return "", err
	}
	return unifiedDiff("running", current, "planned", planned)
}

// liveSubtree returns live at context; a missing context counts as empty.
func liveSubtree(live *configtree.ConfigTree, context configtree.Path) (*configtree.ConfigTree, error) {
	current, err := live.SubConfig(context)
	if err != nil {
		var notFound *configtree.PathNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		current = configtree.Empty(context...)
	}
	return current, nil
}

func unifiedDiff(fromName string, from *configtree.ConfigTree, toName string, to *configtree.ConfigTree) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(configtree.Format(from)),
		B:        difflib.SplitLines(configtree.Format(to)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
}
