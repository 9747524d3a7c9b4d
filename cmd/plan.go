package cmd

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v2"

	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/plan"
	"grimm.is/fwplan/internal/vyos"
)

// Output formats accepted by RunPlan.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// RunPlan prints the planned configuration of the named routers, or of
// every router when routers is empty. No device is contacted.
func RunPlan(configFile string, routers []string, format string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	names, err := selectRouters(cfg, routers)
	if err != nil {
		return err
	}
	p, err := plan.New(cfg, vyos.Platform, logging.Discard())
	if err != nil {
		return err
	}

	planned := make(map[string][]*configtree.ConfigTree, len(names))
	for _, name := range names {
		trees, err := p.Plan(name)
		if err != nil {
			return fmt.Errorf("router %s: %w", name, err)
		}
		planned[name] = trees
	}

	switch format {
	case FormatText, "":
		for _, name := range names {
			Printer.Fprintln(Stdout, headerStyle.Render("# "+name))
			for _, tree := range planned[name] {
				Printer.Fprintln(Stdout, faintStyle.Render("## "+tree.Context().String()))
				Printer.Fprint(Stdout, configtree.Format(tree))
			}
		}
		return nil

	case FormatJSON:
		data, err := json.MarshalIndent(planned, "", "  ")
		if err != nil {
			return err
		}
		Printer.Fprintln(Stdout, string(data))
		return nil

	case FormatYAML:
		// YAML goes through the JSON form so the tree encoding stays in one place
		data, err := json.Marshal(planned)
		if err != nil {
			return err
		}
		var plain map[string]any
		if err := json.Unmarshal(data, &plain); err != nil {
			return err
		}
		out, err := yaml.Marshal(plain)
		if err != nil {
			return err
		}
		Printer.Fprint(Stdout, string(out))
		return nil

	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}
