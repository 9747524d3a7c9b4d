package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"grimm.is/fwplan/internal/clock"
	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/deploy"
	"grimm.is/fwplan/internal/events"
	"grimm.is/fwplan/internal/i18n"
	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/metrics"
	"grimm.is/fwplan/internal/ratelimit"
	"grimm.is/fwplan/internal/router"
	"grimm.is/fwplan/internal/scheduler"
	"grimm.is/fwplan/internal/state"
)

// Planner turns configuration into planned trees and deployments.
type Planner interface {
	Plan(routerName string) ([]*configtree.ConfigTree, error)
	Prepare(routers []string, now time.Time) (*deploy.Deployment, error)
}

// Store is the deployment history the API reads and writes.
type Store interface {
	SaveDeployment(ctx context.Context, d *deploy.Deployment) error
	GetDeployment(ctx context.Context, id string) (*deploy.Deployment, error)
	ListDeployments(ctx context.Context, opts state.ListOptions) ([]*deploy.Deployment, error)
}

// Queue accepts ready deployments for execution.
type Queue interface {
	Enqueue(id string) error
}

// RouterSet lists the managed routers.
type RouterSet interface {
	RouterNames() []string
	Router(name string) (router.Router, bool)
}

// DriftChecker compares routers against their last deployment.
type DriftChecker interface {
	Check(ctx context.Context) ([]deploy.DriftReport, error)
	CheckRouter(ctx context.Context, name string) (*deploy.DriftReport, error)
}

// Tasks exposes the background scheduler.
type Tasks interface {
	GetStatus() []scheduler.TaskStatus
	RunTask(id string) error
}

// Options configures a Server. Routers, Planner, Store and Queue are
// required; the rest may be left nil.
type Options struct {
	Routers RouterSet
	Planner Planner
	Store   Store
	Queue   Queue
	Drift   DriftChecker
	Tasks   Tasks
	Hub     *events.Hub
	Clock   clock.Clock
	Logger  *logging.Logger
	Metrics *metrics.Registry

	// TokenHash is a bcrypt hash of the bearer token. Empty disables auth.
	TokenHash string
	// Per client IP, per minute.
	DeployRate int
	AuthRate   int
}

// Server is the HTTP API of the serve command.
type Server struct {
	routers   RouterSet
	store     Store
	queue     Queue
	drift     DriftChecker
	tasks     Tasks
	hub       *events.Hub
	clock     clock.Clock
	logger    *logging.Logger
	metrics   *metrics.Registry
	tokenHash []byte

	deployLimiter *ratelimit.Limiter
	authLimiter   *ratelimit.Limiter

	mu          sync.RWMutex
	planner     Planner
	driftReport []deploy.DriftReport
	driftAt     time.Time
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Hub == nil {
		opts.Hub = events.NewHub(opts.Clock)
	}
	s := &Server{
		routers:       opts.Routers,
		planner:       opts.Planner,
		store:         opts.Store,
		queue:         opts.Queue,
		drift:         opts.Drift,
		tasks:         opts.Tasks,
		hub:           opts.Hub,
		clock:         opts.Clock,
		logger:        opts.Logger.WithComponent("api"),
		metrics:       opts.Metrics,
		deployLimiter: ratelimit.NewLimiter(opts.Clock, opts.DeployRate, time.Minute),
		authLimiter:   ratelimit.NewLimiter(opts.Clock, opts.AuthRate, time.Minute),
	}
	if opts.TokenHash != "" {
		s.tokenHash = []byte(opts.TokenHash)
	}
	return s
}

// SetPlanner swaps the planner used for new plans and deployments.
func (s *Server) SetPlanner(p Planner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planner = p
}

func (s *Server) currentPlanner() Planner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.planner
}

// RecordDrift stores the latest drift reports for GET /api/drift.
func (s *Server) RecordDrift(reports []deploy.DriftReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driftReport = reports
	s.driftAt = s.clock.Now()
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(i18n.Middleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/routers", s.handleListRouters)
		r.Get("/routers/{name}/plan", s.handlePlan)
		r.Get("/routers/{name}/drift", s.handleRouterDrift)

		r.Get("/deployments", s.handleListDeployments)
		r.Post("/deployments", s.handleCreateDeployment)
		r.Get("/deployments/{id}", s.handleGetDeployment)

		r.Get("/drift", s.handleGetDrift)
		r.Post("/drift", s.handleCheckDrift)

		r.Get("/tasks", s.handleListTasks)
		r.Post("/tasks/{id}/run", s.handleRunTask)

		r.Get("/events", s.handleEvents)
	})
	return r
}

// CleanupLimiters drops rate limiter entries idle for longer than maxIdle.
func (s *Server) CleanupLimiters(maxIdle time.Duration) {
	s.deployLimiter.Cleanup(maxIdle)
	s.authLimiter.Cleanup(maxIdle)
}
