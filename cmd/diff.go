package cmd

import (
	"context"
	"fmt"
	"strings"

	"grimm.is/fwplan/internal/plan"
	"grimm.is/fwplan/internal/vyos"
)

// RunDiff fetches the live configuration of the selected routers and shows
// what a deployment would change, as commands and as a unified diff.
func RunDiff(ctx context.Context, configFile string, routers []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	names, err := selectRouters(cfg, routers)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, false)
	p, err := plan.New(cfg, vyos.Platform, logger)
	if err != nil {
		return err
	}

	previews, err := previewChanges(ctx, p, buildRouters(cfg, logger, nil), names)
	printOperations(Stdout, previews)
	for _, pv := range previews {
		if pv.Diff == "" {
			continue
		}
		Printer.Fprintln(Stdout)
		for _, line := range strings.SplitAfter(strings.TrimSuffix(pv.Diff, "\n"), "\n") {
			text := strings.TrimSuffix(line, "\n")
			switch {
			case strings.HasPrefix(text, "+++"), strings.HasPrefix(text, "---"):
				text = headerStyle.Render(text)
			case strings.HasPrefix(text, "+"):
				text = setStyle.Render(text)
			case strings.HasPrefix(text, "-"):
				text = deleteStyle.Render(text)
			}
			fmt.Fprintln(Stdout, text)
		}
	}
	return err
}
