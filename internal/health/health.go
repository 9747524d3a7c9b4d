// Package health aggregates readiness checks for the serve command.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"grimm.is/fwplan/internal/clock"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// Report represents the overall health report.
type Report struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// Checker runs registered checks, caching the report for ttl.
type Checker struct {
	clock  clock.Clock
	mu     sync.RWMutex
	checks map[string]CheckFunc
	cache  *Report
	ttl    time.Duration
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) Check

// NewChecker creates a checker with no checks registered.
func NewChecker(clk clock.Clock, ttl time.Duration) *Checker {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	return &Checker{
		clock:  clk,
		checks: make(map[string]CheckFunc),
		ttl:    ttl,
	}
}

// Register adds a health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
	c.cache = nil
}

// Check runs all health checks and returns a report.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	if c.cache != nil && c.clock.Since(c.cache.Timestamp) < c.ttl {
		report := *c.cache
		c.mu.RUnlock()
		return report
	}
	checkFuncs := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checkFuncs[name] = fn
	}
	c.mu.RUnlock()

	checks := make(map[string]Check, len(checkFuncs))
	overallStatus := StatusHealthy

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, fn := range checkFuncs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := c.clock.Now()
			check := fn(ctx)
			check.Name = name
			check.LastChecked = start
			check.Duration = c.clock.Since(start)

			mu.Lock()
			defer mu.Unlock()
			checks[name] = check
			if check.Status == StatusUnhealthy {
				overallStatus = StatusUnhealthy
			} else if check.Status == StatusDegraded && overallStatus != StatusUnhealthy {
				overallStatus = StatusDegraded
			}
		}()
	}
	wg.Wait()

	report := Report{
		Status:    overallStatus,
		Checks:    checks,
		Timestamp: c.clock.Now(),
	}

	c.mu.Lock()
	c.cache = &report
	c.mu.Unlock()

	return report
}

// Handler serves the full report as JSON. Unhealthy reports get 503.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		report := c.Check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler returns a simple liveness probe handler.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// ReadinessHandler returns a readiness probe handler.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if c.Check(ctx).Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	}
}

// FromError turns a probe into a check: any error is unhealthy.
func FromError(probe func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Check {
		if err := probe(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy}
	}
}

// CheckDirWritable verifies a file can be created in dir. Failure is
// degraded; deployments already recorded can still be read.
func CheckDirWritable(dir string) CheckFunc {
	return func(ctx context.Context) Check {
		f, err := os.CreateTemp(dir, ".health_check")
		if err != nil {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("write failed: %v", err)}
		}
		f.Close()
		os.Remove(f.Name())
		return Check{Status: StatusHealthy, Message: "writable"}
	}
}

// CheckQueue reports degraded while the deployment queue is full.
func CheckQueue(pending func() (queued, capacity int)) CheckFunc {
	return func(ctx context.Context) Check {
		queued, capacity := pending()
		msg := fmt.Sprintf("%d/%d queued", queued, capacity)
		if queued >= capacity {
			return Check{Status: StatusDegraded, Message: msg}
		}
		return Check{Status: StatusHealthy, Message: msg}
	}
}
