package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"grimm.is/fwplan/internal/logging"
)

// ErrQueueFull is returned by Enqueue when the worker is saturated.
var ErrQueueFull = errors.New("deployment queue is full")

// ErrWorkerStopped is returned by Enqueue after Stop.
var ErrWorkerStopped = errors.New("deployment worker stopped")

// Store is the persistence the worker needs: read a deployment, write its
// state back.
type Store interface {
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	SaveDeployment(ctx context.Context, d *Deployment) error
}

// Worker runs queued deployments one at a time. It is the only writer of a
// deployment's state while that deployment runs.
type Worker struct {
	store   Store
	orch    *Orchestrator
	logger  *logging.Logger
	timeout time.Duration

	queue   chan string
	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker creates a worker with a queue of queueSize deployment IDs. Each
// deployment runs under timeout; zero means no limit.
func NewWorker(store Store, orch *Orchestrator, queueSize int, timeout time.Duration, logger *logging.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 16
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		store:   store,
		orch:    orch,
		logger:  logger.WithComponent("worker"),
		timeout: timeout,
		queue:   make(chan string, queueSize),
	}
}

// Pending returns the number of queued deployments and the queue capacity.
func (w *Worker) Pending() (queued, capacity int) {
	return len(w.queue), cap(w.queue)
}

// Enqueue schedules a ready deployment.
func (w *Worker) Enqueue(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrWorkerStopped
	}
	select {
	case w.queue <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start begins processing the queue until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-w.queue:
				if err := w.Process(ctx, id); err != nil {
					w.logger.Warn("deployment not completed", "deployment", id, "error", err)
				}
			}
		}
	}()
	w.logger.Info("worker started")
}

// Stop refuses new work, cancels the running deployment and waits for the
// loop to exit. A cancelled deployment is rolled back before Stop returns.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// Process loads, runs and persists one deployment.
func (w *Worker) Process(ctx context.Context, id string) error {
	d, err := w.store.GetDeployment(ctx, id)
	if err != nil {
		return fmt.Errorf("load deployment %s: %w", id, err)
	}
	if d.State != StateReady {
		return fmt.Errorf("deployment %s is %s, not %s", id, d.State, StateReady)
	}

	runCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	// persist every transition; the final save must survive cancellation
	saveCtx := context.WithoutCancel(ctx)
	var saveErr error
	orch := *w.orch
	orch.observer = func(d *Deployment) {
		if err := w.store.SaveDeployment(saveCtx, d); err != nil {
			saveErr = err
			w.logger.Error("failed to save deployment", "deployment", d.ID, "state", d.State, "error", err)
		}
		if w.orch.observer != nil {
			w.orch.observer(d)
		}
	}

	runErr := orch.Run(runCtx, d)
	if saveErr != nil {
		return fmt.Errorf("save deployment %s: %w", id, saveErr)
	}
	return runErr
}
