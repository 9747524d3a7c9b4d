// Package scheduler runs periodic background jobs such as drift checks and
// history pruning.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"grimm.is/fwplan/internal/clock"
	"grimm.is/fwplan/internal/logging"
)

// TaskFunc is a function that performs a scheduled task.
// It receives a context that will be cancelled if the scheduler stops.
type TaskFunc func(ctx context.Context) error

// Schedule defines when a task should run.
type Schedule interface {
	// Next returns the next time the task should run after the given time.
	Next(after time.Time) time.Time
	String() string
}

// Interval runs a task a fixed duration after the previous run finished.
type Interval time.Duration

// Every returns an Interval schedule.
func Every(d time.Duration) Interval { return Interval(d) }

func (i Interval) Next(after time.Time) time.Time { return after.Add(time.Duration(i)) }
func (i Interval) String() string                 { return "every " + time.Duration(i).String() }

// DailyAt runs a task once a day at Hour:Minute in the clock's location.
type DailyAt struct {
	Hour, Minute int
}

// Daily returns a DailyAt schedule.
func Daily(hour, minute int) DailyAt { return DailyAt{Hour: hour, Minute: minute} }

func (d DailyAt) Next(after time.Time) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), d.Hour, d.Minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d DailyAt) String() string { return fmt.Sprintf("daily at %02d:%02d", d.Hour, d.Minute) }

func checkSchedule(s Schedule) error {
	switch v := s.(type) {
	case nil:
		return fmt.Errorf("task schedule is required")
	case Interval:
		if v <= 0 {
			return fmt.Errorf("interval %s never advances", time.Duration(v))
		}
	case DailyAt:
		if v.Hour < 0 || v.Hour > 23 || v.Minute < 0 || v.Minute > 59 {
			return fmt.Errorf("invalid time of day %02d:%02d", v.Hour, v.Minute)
		}
	}
	return nil
}

// Task represents a scheduled task.
type Task struct {
	ID          string
	Name        string
	Description string
	Schedule    Schedule
	Func        TaskFunc
	Enabled     bool
	RunOnStart  bool // Run immediately when scheduler starts
	Timeout     time.Duration
}

// TaskStatus represents the current status of a task.
type TaskStatus struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Schedule     string        `json:"schedule"`
	Enabled      bool          `json:"enabled"`
	Running      bool          `json:"running"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
	RunCount     int64         `json:"run_count"`
	ErrorCount   int64         `json:"error_count"`
}

// Scheduler manages and runs scheduled tasks. A task never overlaps with
// itself; a run that is still going when the task comes due again is not
// doubled up.
type Scheduler struct {
	tasks   map[string]*taskEntry
	mu      sync.RWMutex
	clock   clock.Clock
	logger  *logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wake    chan struct{}
	wg      sync.WaitGroup
}

type taskEntry struct {
	task    *Task
	status  TaskStatus
	nextRun time.Time
	active  bool
}

// New creates a new scheduler.
func New(clk clock.Clock, logger *logging.Logger) *Scheduler {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		tasks:  make(map[string]*taskEntry),
		clock:  clk,
		logger: logger.WithComponent("scheduler"),
		wake:   make(chan struct{}, 1),
	}
}

// AddTask adds a task to the scheduler.
func (s *Scheduler) AddTask(task *Task) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if err := checkSchedule(task.Schedule); err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}
	if task.Func == nil {
		return fmt.Errorf("task function is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}

	entry := &taskEntry{
		task: task,
		status: TaskStatus{
			ID:          task.ID,
			Name:        task.Name,
			Description: task.Description,
			Schedule:    task.Schedule.String(),
			Enabled:     task.Enabled,
		},
	}
	if task.Enabled {
		entry.nextRun = task.Schedule.Next(s.clock.Now())
		entry.status.NextRun = entry.nextRun
	}
	s.tasks[task.ID] = entry
	s.logger.Info("task added", "id", task.ID, "name", task.Name)
	s.poke()
	return nil
}

// EnableTask enables or disables a task.
func (s *Scheduler) EnableTask(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("task %s not found", id)
	}
	entry.task.Enabled = enabled
	entry.status.Enabled = enabled
	if enabled {
		entry.nextRun = entry.task.Schedule.Next(s.clock.Now())
	} else {
		entry.nextRun = time.Time{}
	}
	entry.status.NextRun = entry.nextRun
	s.poke()
	return nil
}

// RunTask runs a task immediately, regardless of schedule. It is a no-op if
// the task is already running.
func (s *Scheduler) RunTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("task %s not found", id)
	}
	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}
	s.launch(entry)
	return nil
}

// GetStatus returns the status of all tasks, sorted by name.
func (s *Scheduler) GetStatus() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]TaskStatus, 0, len(s.tasks))
	for _, entry := range s.tasks {
		statuses = append(statuses, entry.status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

// GetTaskStatus returns the status of a specific task.
func (s *Scheduler) GetTaskStatus(id string) (TaskStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.tasks[id]
	if !exists {
		return TaskStatus{}, false
	}
	return entry.status, true
}

// Start starts the scheduler. Tasks run under ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	for _, entry := range s.tasks {
		if entry.task.Enabled && entry.task.RunOnStart {
			s.launch(entry)
		}
	}
	s.mu.Unlock()

	s.logger.Info("scheduler started")
	s.wg.Add(1)
	go s.run()
}

// Stop stops the scheduler and waits for running tasks to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// run sleeps until the earliest due task, launches everything due, and
// repeats. Changes to the task set wake it early.
func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		var due <-chan time.Time
		if next := s.nextDue(); !next.IsZero() {
			due = s.clock.After(next.Sub(s.clock.Now()))
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case now := <-due:
			s.launchDue(now)
		}
	}
}

func (s *Scheduler) nextDue() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next time.Time
	for _, entry := range s.tasks {
		if !entry.task.Enabled || entry.active || entry.nextRun.IsZero() {
			continue
		}
		if next.IsZero() || entry.nextRun.Before(next) {
			next = entry.nextRun
		}
	}
	return next
}

func (s *Scheduler) launchDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.tasks {
		if !entry.task.Enabled || entry.nextRun.IsZero() {
			continue
		}
		if !entry.nextRun.After(now) {
			s.launch(entry)
		}
	}
}

// launch starts entry in the background. Callers hold s.mu.
func (s *Scheduler) launch(entry *taskEntry) {
	if entry.active {
		return
	}
	entry.active = true
	entry.status.Running = true
	s.wg.Add(1)
	go s.executeTask(entry)
}

// executeTask runs a single task.
func (s *Scheduler) executeTask(entry *taskEntry) {
	defer s.wg.Done()

	task := entry.task
	s.logger.Debug("executing task", "id", task.ID, "name", task.Name)

	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, task.Timeout)
	}
	start := s.clock.Now()
	err := task.Func(ctx)
	cancel()
	duration := s.clock.Since(start)

	s.mu.Lock()
	entry.active = false
	entry.status.Running = false
	entry.status.LastRun = start
	entry.status.LastDuration = duration
	entry.status.RunCount++
	if err != nil {
		entry.status.LastError = err.Error()
		entry.status.ErrorCount++
		s.logger.Warn("task failed", "id", task.ID, "error", err, "duration", duration)
	} else {
		entry.status.LastError = ""
		s.logger.Debug("task completed", "id", task.ID, "duration", duration)
	}
	if task.Enabled {
		entry.nextRun = task.Schedule.Next(s.clock.Now())
		entry.status.NextRun = entry.nextRun
	}
	s.poke()
	s.mu.Unlock()
}

// poke wakes the run loop so it recomputes the next due time.
func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
