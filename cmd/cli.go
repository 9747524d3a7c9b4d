package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"grimm.is/fwplan/internal/brand"
	"grimm.is/fwplan/internal/config"
	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/deploy"
	"grimm.is/fwplan/internal/i18n"
	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/metrics"
	"grimm.is/fwplan/internal/plan"
	"grimm.is/fwplan/internal/router"
	"grimm.is/fwplan/internal/state"
	"grimm.is/fwplan/internal/vyos"
)

var Printer = i18n.NewCLIPrinter()

// Output streams, replaced in tests.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	setStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = brand.ConfigPath()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging block. verbose
// forces debug level.
func newLogger(cfg *config.Config, verbose bool) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	if verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{Level: level, JSON: cfg.Logging.JSON, Output: Stderr})
	logging.SetDefault(logger)
	return logger
}

// buildRouters creates a VyOS router per router block. urls overrides the
// configured URL by router name.
func buildRouters(cfg *config.Config, logger *logging.Logger, urls map[string]string) []router.Router {
	routers := make([]router.Router, 0, len(cfg.Routers))
	for i := range cfg.Routers {
		rc := &cfg.Routers[i]
		url := rc.URL
		if u, ok := urls[rc.Name]; ok {
			url = u
		}
		routers = append(routers, vyos.NewRouter(rc.Name, url, logger,
			vyos.WithAPIKey(rc.ResolveAPIKey()),
			vyos.WithTLSVerify(rc.TLSVerify()),
			vyos.WithTimeout(rc.TimeoutDuration()),
		))
	}
	return routers
}

// buildOrchestrator applies the deployment policy. extra options are applied
// last and win.
func buildOrchestrator(cfg *config.Config, routers []router.Router, logger *logging.Logger, extra ...deploy.Option) *deploy.Orchestrator {
	policy := cfg.Deployment
	var liveness deploy.LivenessChecker = deploy.AlwaysAlive
	if policy.Ping.IsEnabled() {
		liveness = &deploy.PingChecker{
			Count:      policy.Ping.Count,
			Timeout:    policy.Ping.TimeoutDuration(),
			Privileged: policy.Ping.Privileged,
		}
	}
	opts := []deploy.Option{
		deploy.WithLogger(logger),
		deploy.WithMetrics(metrics.Get()),
		deploy.WithLiveness(liveness),
		deploy.WithGracePeriod(policy.GracePeriodDuration()),
		deploy.WithRollbackTimeout(policy.RollbackTimeoutDuration()),
	}
	return deploy.NewOrchestrator(routers, append(opts, extra...)...)
}

func openStore(cfg *config.Config) (*state.Store, error) {
	if cfg.State.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return state.Open(state.DefaultOptions(cfg.State.Path))
}

// selectRouters returns names, or every router when names is empty.
func selectRouters(cfg *config.Config, names []string) ([]string, error) {
	if len(names) == 0 {
		return cfg.RouterNames(), nil
	}
	for _, name := range names {
		if _, ok := cfg.Router(name); !ok {
			return nil, fmt.Errorf("unknown router %s", name)
		}
	}
	return names, nil
}

// SplitList parses a comma separated flag value.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// routerPreview is what a deployment would change on one router.
type routerPreview struct {
	Router     string
	Operations []configtree.Operation
	Diff       string
}

// previewChanges fetches each router's live configuration and reconciles it
// against the plan. Routers that cannot be reached or planned are reported
// in the joined error; the others are still previewed.
func previewChanges(ctx context.Context, p *plan.Planner, routers []router.Router, names []string) ([]routerPreview, error) {
	byName := make(map[string]router.Router, len(routers))
	for _, r := range routers {
		byName[r.Name()] = r
	}

	var out []routerPreview
	var errs []error
	for _, name := range names {
		trees, err := p.Plan(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		live, err := byName[name].GetConfig(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		pv := routerPreview{Router: name}
		for _, tree := range trees {
			ops, err := router.Reconcile(live, tree)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			if len(ops) == 0 {
				continue
			}
			pv.Operations = append(pv.Operations, ops...)
			diff, err := deploy.PlanDiff(live, tree)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			pv.Diff += diff
		}
		out = append(out, pv)
	}
	return out, errors.Join(errs...)
}

func countPreviewOps(previews []routerPreview) int {
	n := 0
	for _, pv := range previews {
		n += len(pv.Operations)
	}
	return n
}

// printOperations writes the set/delete lines of each preview.
func printOperations(w io.Writer, previews []routerPreview) {
	for _, pv := range previews {
		if len(pv.Operations) == 0 {
			fmt.Fprintln(w, faintStyle.Render(Printer.Sprintf("No changes for %s", pv.Router)))
			continue
		}
		fmt.Fprintln(w, headerStyle.Render(Printer.Sprintf("%d change(s) for %s", len(pv.Operations), pv.Router)))
		for _, op := range pv.Operations {
			style := setStyle
			if op.Op == configtree.OpDelete {
				style = deleteStyle
			}
			fmt.Fprintln(w, "  "+style.Render(op.String()))
		}
	}
}
