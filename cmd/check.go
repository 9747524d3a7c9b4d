package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"grimm.is/fwplan/internal/config"
	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/plan"
	"grimm.is/fwplan/internal/vyos"
)

// RunCheck validates the configuration file and plans every router so that
// composition errors surface before a deployment.
func RunCheck(configFile string, verbose bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				Printer.Fprintf(Stderr, "  %s\n", e.Error())
			}
			return fmt.Errorf("configuration invalid: %d error(s)", len(verrs))
		}
		return err
	}

	p, err := plan.New(cfg, vyos.Platform, logging.Discard())
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	w := tabwriter.NewWriter(Stdout, 0, 0, 3, ' ', 0)
	if verbose {
		Printer.Fprintln(w, "ROUTER\tURL\tCONTEXTS")
	}
	for _, rc := range cfg.Routers {
		trees, err := p.Plan(rc.Name)
		if err != nil {
			return fmt.Errorf("router %s: %w", rc.Name, err)
		}
		if verbose {
			contexts := make([]string, 0, len(trees))
			for _, t := range trees {
				contexts = append(contexts, t.Context().String())
			}
			Printer.Fprintf(w, "%s\t%s\t%s\n", rc.Name, rc.URL, strings.Join(contexts, ", "))
		}
	}
	if verbose {
		Printer.Fprintln(w)
	}
	w.Flush()

	Printer.Fprintf(Stdout, "Configuration is valid (%d routers)\n", len(cfg.Routers))
	return nil
}
