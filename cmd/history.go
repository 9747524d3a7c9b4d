package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"grimm.is/fwplan/internal/deploy"
	"grimm.is/fwplan/internal/state"
)

// HistoryOptions configures RunHistory.
type HistoryOptions struct {
	ConfigFile string
	Router     string
	State      string
	Limit      int
	ID         string // show one deployment in detail
}

// RunHistory lists recorded deployments, newest first.
func RunHistory(ctx context.Context, opts HistoryOptions) error {
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.ID != "" {
		d, err := store.GetDeployment(ctx, opts.ID)
		if err != nil {
			return err
		}
		printDeploymentDetail(d)
		return nil
	}

	filter := state.ListOptions{Router: opts.Router, State: deploy.State(opts.State), Limit: opts.Limit}
	if filter.State != "" && !filter.State.Valid() {
		return fmt.Errorf("invalid state %q", opts.State)
	}
	list, err := store.ListDeployments(ctx, filter)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		Printer.Fprintf(Stdout, "No deployments recorded\n")
		return nil
	}

	w := tabwriter.NewWriter(Stdout, 0, 0, 3, ' ', 0)
	Printer.Fprintln(w, "ID\tSTATE\tROUTERS\tCREATED\tDURATION")
	for _, d := range list {
		duration := "-"
		if d.State.Terminal() && !d.StartedAt.IsZero() {
			duration = d.Duration().Round(time.Millisecond).String()
		}
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.State, strings.Join(d.Routers(), ","), d.CreatedAt.Local().Format(time.DateTime), duration)
	}
	return w.Flush()
}

func printDeploymentDetail(d *deploy.Deployment) {
	printDeployment(d)
	Printer.Fprintf(Stdout, "  created:  %s\n", d.CreatedAt.Local().Format(time.RFC3339))
	if !d.StartedAt.IsZero() {
		Printer.Fprintf(Stdout, "  started:  %s\n", d.StartedAt.Local().Format(time.RFC3339))
	}
	if !d.FinishedAt.IsZero() {
		Printer.Fprintf(Stdout, "  finished: %s\n", d.FinishedAt.Local().Format(time.RFC3339))
	}
	for _, c := range d.Changes {
		Printer.Fprintln(Stdout, headerStyle.Render(c.Router+" "+c.Context.String()))
		for _, op := range c.Operations {
			Printer.Fprintln(Stdout, "  "+op.String())
		}
	}
}
