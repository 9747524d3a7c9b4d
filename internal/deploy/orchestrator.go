package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"grimm.is/fwplan/internal/clock"
	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/metrics"
	"grimm.is/fwplan/internal/router"
)

var tracer = otel.Tracer("grimm.is/fwplan/internal/deploy")

// DefaultGracePeriod is the wait between a push and the liveness check.
const DefaultGracePeriod = 10 * time.Second

// DefaultRollbackTimeout bounds the whole rollback phase.
const DefaultRollbackTimeout = 2 * time.Minute

// ErrUnknownRouter is returned when a deployment names a router the
// orchestrator does not manage.
var ErrUnknownRouter = errors.New("unknown router")

// Observer is told about every state change of a deployment, after the change.
type Observer func(d *Deployment)

// Orchestrator runs deployments.
type Orchestrator struct {
	routers         map[string]router.Router
	clock           clock.Clock
	liveness        LivenessChecker
	locks           *LockTable
	metrics         *metrics.Registry
	logger          *logging.Logger
	gracePeriod     time.Duration
	rollbackTimeout time.Duration
	observer        Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the time source used for timestamps and the grace period.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLiveness sets the post-push reachability check.
func WithLiveness(l LivenessChecker) Option {
	return func(o *Orchestrator) { o.liveness = l }
}

// WithLocks shares a lock table between orchestrators.
func WithLocks(t *LockTable) Option {
	return func(o *Orchestrator) { o.locks = t }
}

// WithMetrics records deployment metrics.
func WithMetrics(m *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithGracePeriod sets the wait between push and liveness check.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Orchestrator) { o.gracePeriod = d }
}

// WithRollbackTimeout bounds the rollback phase.
func WithRollbackTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.rollbackTimeout = d }
}

// WithObserver registers a state change callback.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// NewOrchestrator creates an orchestrator managing routers.
func NewOrchestrator(routers []router.Router, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		routers:         make(map[string]router.Router, len(routers)),
		clock:           &clock.RealClock{},
		liveness:        DefaultPingChecker(),
		locks:           NewLockTable(),
		gracePeriod:     DefaultGracePeriod,
		rollbackTimeout: DefaultRollbackTimeout,
	}
	for _, r := range routers {
		o.routers[r.Name()] = r
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	o.logger = o.logger.WithComponent("orchestrator")
	return o
}

// Router returns the managed router with the given name.
func (o *Orchestrator) Router(name string) (router.Router, bool) {
	r, ok := o.routers[name]
	return r, ok
}

// RouterNames returns the managed router names, sorted.
func (o *Orchestrator) RouterNames() []string {
	names := make([]string, 0, len(o.routers))
	for name := range o.routers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes a ready deployment to completion. On return d is in a
// terminal state; the returned error is the failure cause, if any.
func (o *Orchestrator) Run(ctx context.Context, d *Deployment) (err error) {
	if d.State != StateReady {
		return &InvalidTransitionError{From: d.State, To: StateRunning}
	}
	log := o.logger.WithFields(map[string]any{"deployment": d.ID})

	names := d.Routers()
	ctx, span := tracer.Start(ctx, "deployment", trace.WithAttributes(
		attribute.String("deployment.id", d.ID),
		attribute.StringSlice("deployment.routers", names),
	))
	defer func() {
		span.SetAttributes(attribute.String("deployment.state", string(d.State)))
		endSpan(span, err)
	}()

	routers := make(map[string]router.Router, len(names))
	for _, name := range names {
		r, ok := o.routers[name]
		if !ok {
			return o.finish(d, fmt.Errorf("%w: %s", ErrUnknownRouter, name), log)
		}
		routers[name] = r
	}

	lockStart := o.clock.Now()
	release, err := o.locks.Acquire(ctx, names)
	if err != nil {
		return o.finish(d, fmt.Errorf("waiting for router locks: %w", err), log)
	}
	defer release()
	for _, name := range names {
		o.metrics.RecordLockWait(name, o.clock.Since(lockStart))
	}

	if err := d.Transition(StateRunning, o.clock.Now()); err != nil {
		return err
	}
	o.notify(d)
	if o.metrics != nil {
		o.metrics.DeploymentsActive.Inc()
		defer o.metrics.DeploymentsActive.Dec()
	}
	log.Info("deployment running", "routers", len(names), "configs", len(d.Configs))

	originals, err := o.fetchAll(ctx, names, routers)
	if err != nil {
		log.Error("fetching live configuration failed, no router touched", "error", err)
		return o.finish(d, err, log)
	}

	changed, err := o.applyAll(ctx, d, routers, originals, log)
	if err != nil {
		log.Error("deployment step failed, rolling back", "error", err, "changed", len(changed))
		var result *multierror.Error
		result = multierror.Append(result, err)
		if rbErr := o.rollback(ctx, d, changed, routers, originals, log); rbErr != nil {
			result = multierror.Append(result, rbErr.Errors...)
		}
		return o.finish(d, result.ErrorOrNil(), log)
	}

	return o.finish(d, nil, log)
}

// fetchAll retrieves every router's live configuration concurrently. The
// first failure cancels the remaining fetches.
func (o *Orchestrator) fetchAll(ctx context.Context, names []string, routers map[string]router.Router) (map[string]*configtree.ConfigTree, error) {
	fetched := make([]*configtree.ConfigTree, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		r := routers[name]
		g.Go(func() error {
			live, err := r.GetConfig(gctx)
			o.metrics.RecordFetch(name, err)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", name, err)
			}
			fetched[i] = live
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	originals := make(map[string]*configtree.ConfigTree, len(names))
	for i, name := range names {
		originals[name] = fetched[i]
	}
	return originals, nil
}

// applyAll pushes each planned config in order. It returns the names of
// routers that were changed, in the order they were first changed.
func (o *Orchestrator) applyAll(ctx context.Context, d *Deployment, routers map[string]router.Router, originals map[string]*configtree.ConfigTree, log *logging.Logger) ([]string, error) {
	var changed []string
	isChanged := make(map[string]bool)

	for _, rc := range d.Configs {
		r := routers[rc.Router]
		rlog := log.WithFields(map[string]any{"router": r.Name(), "context": rc.Config.Context().String()})

		if err := router.CheckPlatform(r, rc.Config); err != nil {
			return changed, err
		}
		ops, err := router.Reconcile(originals[rc.Router], rc.Config)
		if err != nil {
			return changed, fmt.Errorf("diff %s: %w", r.Name(), err)
		}

		d.Changes = append(d.Changes, RouterChange{Router: r.Name(), Context: rc.Config.Context(), Operations: ops})
		if len(ops) == 0 {
			rlog.Info("router already matches planned configuration")
			continue
		}

		pushed, err := o.push(ctx, r, rc.Config.Context(), ops, rlog)
		if pushed && !isChanged[r.Name()] {
			isChanged[r.Name()] = true
			changed = append(changed, r.Name())
		}
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// push sends ops to r, waits out the grace period and checks liveness. It
// reports whether the device accepted the commands.
func (o *Orchestrator) push(ctx context.Context, r router.Router, at configtree.Path, ops []configtree.Operation, rlog *logging.Logger) (pushed bool, err error) {
	sets, deletes := countOps(ops)
	ctx, span := tracer.Start(ctx, "push", trace.WithAttributes(
		attribute.String("router.name", r.Name()),
		attribute.String("router.context", at.String()),
		attribute.Int("push.sets", sets),
		attribute.Int("push.deletes", deletes),
	))
	defer func() { endSpan(span, err) }()

	err = r.Configure(ctx, ops)
	o.metrics.RecordPush(r.Name(), sets, deletes, err)
	if err != nil {
		return false, fmt.Errorf("push %s: %w", r.Name(), err)
	}
	rlog.Info("configuration pushed", "sets", sets, "deletes", deletes)

	select {
	case <-o.clock.After(o.gracePeriod):
	case <-ctx.Done():
		return true, fmt.Errorf("grace period for %s: %w", r.Name(), ctx.Err())
	}
	span.AddEvent("grace period over")

	if err := o.liveness.Check(ctx, r.Host()); err != nil {
		o.metrics.RecordLivenessFailure(r.Name())
		return true, fmt.Errorf("liveness %s (%s): %w", r.Name(), r.Host(), err)
	}
	return true, nil
}

// rollback restores every changed router to the configuration fetched before
// any push. Each router is attempted regardless of earlier failures.
func (o *Orchestrator) rollback(ctx context.Context, d *Deployment, changed []string, routers map[string]router.Router, originals map[string]*configtree.ConfigTree, log *logging.Logger) *multierror.Error {
	// the deployment context may be what failed
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.rollbackTimeout)
	defer cancel()

	rctx, span := tracer.Start(rctx, "rollback", trace.WithAttributes(attribute.StringSlice("rollback.routers", changed)))
	defer span.End()

	var result *multierror.Error
	for _, name := range changed {
		err := routers[name].PutConfig(rctx, originals[name])
		o.metrics.RecordRollback(name, err)

		if err != nil {
			log.Critical("rollback failed, router left in unknown state", "router", name, "error", err)
			span.RecordError(err, trace.WithAttributes(attribute.String("router.name", name)))
			span.SetStatus(codes.Error, "rollback incomplete")
			result = multierror.Append(result, fmt.Errorf("rollback %s: %w", name, err))
		} else {
			log.Warn("router rolled back", "router", name)
		}
		for i := range d.Changes {
			if d.Changes[i].Router != name {
				continue
			}
			if err != nil {
				d.Changes[i].RollbackError = err.Error()
			} else {
				d.Changes[i].RolledBack = true
			}
		}
	}
	return result
}

// finish moves d to its terminal state. Deployments that never reached
// running go straight to failed from ready.
func (o *Orchestrator) finish(d *Deployment, cause error, log *logging.Logger) error {
	now := o.clock.Now()
	if cause != nil {
		if err := d.Fail(cause, now); err != nil {
			return err
		}
	} else if err := d.Transition(StateSucceed, now); err != nil {
		return err
	}
	o.notify(d)
	o.metrics.RecordDeployment(string(d.State), d.Duration())
	log.Audit("deploy", "deployment:"+d.ID, map[string]any{"state": string(d.State), "routers": len(d.Configs)})
	return cause
}

func (o *Orchestrator) notify(d *Deployment) {
	if o.observer != nil {
		o.observer(d)
	}
}

func countOps(ops []configtree.Operation) (sets, deletes int) {
	for _, op := range ops {
		if op.Op == configtree.OpDelete {
			deletes++
		} else {
			sets++
		}
	}
	return sets, deletes
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
