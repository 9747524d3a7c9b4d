package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"grimm.is/fwplan/internal/api"
	"grimm.is/fwplan/internal/brand"
	"grimm.is/fwplan/internal/clock"
	"grimm.is/fwplan/internal/deploy"
	"grimm.is/fwplan/internal/events"
	"grimm.is/fwplan/internal/health"
	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/metrics"
	"grimm.is/fwplan/internal/notification"
	"grimm.is/fwplan/internal/plan"
	"grimm.is/fwplan/internal/scheduler"
	"grimm.is/fwplan/internal/tracing"
	"grimm.is/fwplan/internal/vyos"
)

// ServeOptions configures RunServe.
type ServeOptions struct {
	ConfigFile string
	Listen     string // overrides server.listen
	Simulate   bool   // deploy to in-memory routers instead of devices
	Verbose    bool

	// OnListen is called with the bound address once the API accepts
	// connections.
	OnListen func(addr net.Addr)
}

// RunServe runs the deployment worker, the background scheduler and the
// HTTP API until ctx is done or SIGINT/SIGTERM arrives. SIGHUP reloads the
// configuration, as does any change to the file.
func RunServe(ctx context.Context, opts ServeOptions) error {
	if opts.ConfigFile == "" {
		opts.ConfigFile = brand.ConfigPath()
	}
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, opts.Verbose)
	log := logger.WithComponent("serve")
	clk := &clock.RealClock{}
	started := clk.Now()
	m := metrics.Get()
	hub := events.NewHub(clk)

	if cfg.Tracing.Enabled {
		tp, err := tracing.Setup(cfg.Tracing.ServiceName, nil)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(sctx); err != nil {
				log.Warn("trace flush failed", "error", err)
			}
		}()
	}

	var urls map[string]string
	extra := []deploy.Option{deploy.WithObserver(hub.EmitDeployment)}
	if opts.Simulate {
		sims, err := startSimulators(cfg)
		if err != nil {
			return err
		}
		defer sims.Close()
		urls = sims.URLs()
		extra = append(extra, deploy.WithLiveness(deploy.AlwaysAlive))
		log.Warn("deploying to simulated routers", "routers", len(urls))
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	planner, err := plan.New(cfg, vyos.Platform, logger)
	if err != nil {
		return err
	}
	orch := buildOrchestrator(cfg, buildRouters(cfg, logger, urls), logger, extra...)
	worker := deploy.NewWorker(store, orch, cfg.Deployment.QueueSize, cfg.Deployment.TimeoutDuration(), logger)
	detector := deploy.NewDriftDetector(orch, store)
	sched := scheduler.New(clk, logger)

	srv := api.NewServer(api.Options{
		Routers:    orch,
		Planner:    planner,
		Store:      store,
		Queue:      worker,
		Drift:      detector,
		Tasks:      sched,
		Hub:        hub,
		Clock:      clk,
		Logger:     logger,
		Metrics:    m,
		TokenHash:  cfg.Server.TokenHash,
		DeployRate: cfg.Server.DeployRate,
		AuthRate:   cfg.Server.AuthRate,
	})

	if cfg.Drift.Enabled {
		task := scheduler.NewDriftTask(detector, cfg.Drift.IntervalDuration(), func(reports []deploy.DriftReport) {
			srv.RecordDrift(reports)
			hub.EmitDrift(reports)
		})
		if err := sched.AddTask(task); err != nil {
			return err
		}
	}
	for _, task := range []*scheduler.Task{
		scheduler.NewPruneTask(store, cfg.State.RetainDuration(), clk, logger),
		{
			ID:       "limiter-cleanup",
			Name:     "Rate Limiter Cleanup",
			Schedule: scheduler.Every(10 * time.Minute),
			Enabled:  true,
			Timeout:  time.Minute,
			Func: func(context.Context) error {
				srv.CleanupLimiters(time.Hour)
				return nil
			},
		},
		{
			ID:         "uptime",
			Name:       "Uptime Gauge",
			Schedule:   scheduler.Every(15 * time.Second),
			Enabled:    true,
			RunOnStart: true,
			Timeout:    time.Second,
			Func: func(context.Context) error {
				m.SetUptime(clk.Since(started))
				return nil
			},
		},
	} {
		if err := sched.AddTask(task); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Events != nil {
		fwd, err := events.DialNATS(hub, cfg.Events.NATSURL, cfg.Events.Subject, logger)
		if err != nil {
			return err
		}
		defer fwd.Close()
		go fwd.Run(runCtx)
	}

	notifier := notification.NewDispatcher(cfg.Notify, logger)
	go notifier.Run(runCtx, hub)

	worker.Start(runCtx)
	defer worker.Stop()
	sched.Start(runCtx)
	defer sched.Stop()

	rl := &reloader{
		path:     opts.ConfigFile,
		routers:  cfg.RouterNames(),
		server:   srv,
		notifier: notifier,
		hub:      hub,
		metrics:  m,
		logger:   log,
	}
	go func() {
		if err := rl.watch(runCtx, 500*time.Millisecond); err != nil {
			log.Warn("config file watch disabled", "error", err)
		}
	}()

	checker := health.NewChecker(clk, 5*time.Second)
	checker.Register("state", health.FromError(store.Ping))
	checker.Register("queue", health.CheckQueue(worker.Pending))
	if cfg.State.Path != ":memory:" {
		checker.Register("state_dir", health.CheckDirWritable(filepath.Dir(cfg.State.Path)))
	}

	root := chi.NewRouter()
	root.Handle("/metrics", promhttp.Handler())
	root.Get("/health/live", health.LivenessHandler())
	root.Get("/health/ready", checker.ReadinessHandler())
	root.Get("/health/checks", checker.Handler())
	root.Mount("/", srv.Handler())

	listen := cfg.Server.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listen, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}
	httpSrv := &http.Server{
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	log.Info("API listening", "addr", ln.Addr().String(), "routers", len(cfg.Routers))
	if opts.OnListen != nil {
		opts.OnListen(ln.Addr())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return shutdown(httpSrv, log)
		case err := <-serveErr:
			return fmt.Errorf("API server: %w", err)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				log.Info("received SIGHUP, reloading configuration")
				rl.reload()
				continue
			}
			log.Info("shutting down", "signal", sig.String())
			return shutdown(httpSrv, log)
		}
	}
}

func shutdown(srv *http.Server, log *logging.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("API shutdown incomplete", "error", err)
		return err
	}
	return nil
}
