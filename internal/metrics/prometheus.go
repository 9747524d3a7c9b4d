package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all deployment metrics.
type Registry struct {
	// Deployment metrics
	DeploymentsTotal   *prometheus.CounterVec
	DeploymentDuration prometheus.Histogram
	DeploymentsActive  prometheus.Gauge

	// Per-router metrics
	FetchTotal       *prometheus.CounterVec
	PushTotal        *prometheus.CounterVec
	OperationsTotal  *prometheus.CounterVec
	RollbackTotal    *prometheus.CounterVec
	LivenessFailures *prometheus.CounterVec
	LockWait         *prometheus.HistogramVec

	// Drift detection
	DriftOperations *prometheus.GaugeVec
	DriftLastCheck  *prometheus.GaugeVec

	// System metrics
	Uptime       prometheus.Gauge
	ConfigReload *prometheus.CounterVec
	APIRequests  *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New(prometheus.DefaultRegisterer)
	})
	return registry
}

// New creates a registry whose collectors are registered with reg.
// Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	r := &Registry{}

	r.DeploymentsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "fwplan_deployments_total",
		Help: "Deployments finished, by final state",
	}, []string{"state"})

	r.DeploymentDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "fwplan_deployment_duration_seconds",
		Help:    "Wall time from running to a terminal state",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	r.DeploymentsActive = f.NewGauge(prometheus.GaugeOpts{
		Name: "fwplan_deployments_active",
		Help: "Deployments currently running",
	})

	r.FetchTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "fwplan_router_fetch_total",
		Help: "Live configuration retrievals",
	}, []string{"router", "result"})

	r.PushTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "fwplan_router_push_total",
		Help: "Configuration pushes",
	}, []string{"router", "result"})

	r.OperationsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "fwplan_router_operations_total",
		Help: "Set and delete operations sent to routers",
	}, []string{"router", "op"})

	r.RollbackTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "fwplan_router_rollback_total",
		Help: "Rollback attempts",
	}, []string{"router", "result"})

	r.LivenessFailures = f.NewCounterVec(prometheus.CounterOpts{
		Name: "fwplan_router_liveness_failures_total",
		Help: "Failed reachability checks after a push",
	}, []string{"router"})

	r.LockWait = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fwplan_router_lock_wait_seconds",
		Help:    "Time spent waiting for a router lock",
		Buckets: prometheus.DefBuckets,
	}, []string{"router"})

	r.DriftOperations = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fwplan_router_drift_operations",
		Help: "Operations needed to bring a router back to its last deployed configuration",
	}, []string{"router"})

	r.DriftLastCheck = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fwplan_router_drift_last_check_timestamp",
		Help: "Unix timestamp of the last drift check",
	}, []string{"router"})

	r.Uptime = f.NewGauge(prometheus.GaugeOpts{
		Name: "fwplan_uptime_seconds",
		Help: "Seconds since the daemon started",
	})

	r.ConfigReload = f.NewCounterVec(prometheus.CounterOpts{
		Name: "fwplan_config_reload_total",
		Help: "Configuration loads",
	}, []string{"result"})

	r.APIRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "fwplan_api_requests_total",
		Help: "HTTP requests served",
	}, []string{"method", "path", "status"})

	return r
}

// RecordDeployment records a deployment reaching a terminal state.
func (r *Registry) RecordDeployment(state string, duration time.Duration) {
	if r == nil {
		return
	}
	r.DeploymentsTotal.WithLabelValues(state).Inc()
	r.DeploymentDuration.Observe(duration.Seconds())
}

// RecordFetch records a live configuration retrieval.
func (r *Registry) RecordFetch(router string, err error) {
	if r == nil {
		return
	}
	r.FetchTotal.WithLabelValues(router, result(err)).Inc()
}

// RecordPush records a configuration push and the operations it carried.
func (r *Registry) RecordPush(router string, sets, deletes int, err error) {
	if r == nil {
		return
	}
	r.PushTotal.WithLabelValues(router, result(err)).Inc()
	if err == nil {
		r.OperationsTotal.WithLabelValues(router, "set").Add(float64(sets))
		r.OperationsTotal.WithLabelValues(router, "delete").Add(float64(deletes))
	}
}

// RecordRollback records a rollback attempt.
func (r *Registry) RecordRollback(router string, err error) {
	if r == nil {
		return
	}
	r.RollbackTotal.WithLabelValues(router, result(err)).Inc()
}

// RecordLivenessFailure records a failed reachability check.
func (r *Registry) RecordLivenessFailure(router string) {
	if r == nil {
		return
	}
	r.LivenessFailures.WithLabelValues(router).Inc()
}

// RecordLockWait records how long a deployment waited for a router lock.
func (r *Registry) RecordLockWait(router string, d time.Duration) {
	if r == nil {
		return
	}
	r.LockWait.WithLabelValues(router).Observe(d.Seconds())
}

// RecordDrift records the outcome of a drift check.
func (r *Registry) RecordDrift(router string, operations int, at time.Time) {
	if r == nil {
		return
	}
	r.DriftOperations.WithLabelValues(router).Set(float64(operations))
	r.DriftLastCheck.WithLabelValues(router).Set(float64(at.Unix()))
}

// SetUptime updates the uptime gauge.
func (r *Registry) SetUptime(d time.Duration) {
	if r == nil {
		return
	}
	r.Uptime.Set(d.Seconds())
}

// RecordConfigReload records a configuration reload attempt.
func (r *Registry) RecordConfigReload(err error) {
	if r == nil {
		return
	}
	r.ConfigReload.WithLabelValues(result(err)).Inc()
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int) {
	if r == nil {
		return
	}
	r.APIRequests.WithLabelValues(method, path, statusString(status)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// statusString converts an HTTP status code to string.
func statusString(status int) string {
	return fmt.Sprintf("%d", status)
}
