package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"

	"grimm.is/fwplan/internal/clock"
	"grimm.is/fwplan/internal/deploy"
	"grimm.is/fwplan/internal/plan"
	"grimm.is/fwplan/internal/vyos"
)

// DeployOptions configures RunDeploy.
type DeployOptions struct {
	ConfigFile string
	Routers    []string // empty = all routers
	Yes        bool     // skip the confirmation prompt
	Verbose    bool
}

// confirm asks the operator before anything is pushed.
var confirm = func(title string) (bool, error) {
	ok := false
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Deploy").
		Negative("Cancel").
		Value(&ok).
		Run()
	return ok, err
}

// RunDeploy previews the changes, asks for confirmation, then runs one
// deployment to completion. The deployment is recorded in the history
// database whether it succeeds or not.
func RunDeploy(ctx context.Context, opts DeployOptions) error {
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	names, err := selectRouters(cfg, opts.Routers)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, opts.Verbose)
	p, err := plan.New(cfg, vyos.Platform, logger)
	if err != nil {
		return err
	}
	routers := buildRouters(cfg, logger, nil)

	previews, err := previewChanges(ctx, p, routers, names)
	if err != nil {
		return err
	}
	printOperations(Stdout, previews)

	if total := countPreviewOps(previews); total > 0 && !opts.Yes {
		ok, err := confirm(Printer.Sprintf("Apply %d change(s) to %d router(s)?", total, len(names)))
		if err != nil {
			return err
		}
		if !ok {
			Printer.Fprintf(Stdout, "Deployment aborted\n")
			return nil
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	d, planErr := p.Prepare(names, clock.Now())
	if d == nil {
		return planErr
	}
	if err := store.SaveDeployment(ctx, d); err != nil {
		return fmt.Errorf("save deployment: %w", err)
	}
	if planErr != nil {
		return planErr
	}

	orch := buildOrchestrator(cfg, routers, logger)
	worker := deploy.NewWorker(store, orch, 1, cfg.Deployment.TimeoutDuration(), logger)
	runErr := worker.Process(ctx, d.ID)

	if final, err := store.GetDeployment(ctx, d.ID); err == nil {
		printDeployment(final)
	}
	return runErr
}

func printDeployment(d *deploy.Deployment) {
	style := setStyle
	if d.State != deploy.StateSucceed {
		style = deleteStyle
	}
	Printer.Fprint(Stdout, Printer.Sprintf("Deployment %s finished: %s\n", d.ID, style.Render(string(d.State))))
	if d.Errors != "" {
		Printer.Fprintf(Stdout, "  %s\n", d.Errors)
	}
	for _, c := range d.Changes {
		status := ""
		switch {
		case c.RollbackError != "":
			status = " (rollback failed: " + c.RollbackError + ")"
		case c.RolledBack:
			status = " (rolled back)"
		}
		Printer.Fprintf(Stdout, "  %s %s: %d operation(s)%s\n", c.Router, c.Context, len(c.Operations), status)
	}
}
