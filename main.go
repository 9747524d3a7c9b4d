package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/fwplan/cmd"
	"grimm.is/fwplan/internal/brand"
	"grimm.is/fwplan/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	defaultConfig := brand.ConfigPath()

	switch os.Args[1] {
	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "List the planned contexts of every router")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := defaultConfig
		if checkFlags.NArg() > 0 {
			configFile = checkFlags.Arg(0)
		}
		if err := cmd.RunCheck(configFile, *verbose); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "plan":
		planFlags := flag.NewFlagSet("plan", flag.ExitOnError)
		configFile := planFlags.String("config", defaultConfig, "Configuration file")
		planFlags.StringVar(configFile, "c", defaultConfig, "Configuration file (short)")
		routers := planFlags.String("routers", "", "Comma separated routers (default: all)")
		format := planFlags.String("format", cmd.FormatText, "Output format: text, json or yaml")
		planFlags.StringVar(format, "o", cmd.FormatText, "Output format (short)")
		planFlags.Parse(os.Args[2:])

		if err := cmd.RunPlan(*configFile, cmd.SplitList(*routers), *format); err != nil {
			printer.Fprintf(os.Stderr, "Plan failed: %v\n", err)
			os.Exit(1)
		}

	case "diff":
		diffFlags := flag.NewFlagSet("diff", flag.ExitOnError)
		configFile := diffFlags.String("config", defaultConfig, "Configuration file")
		diffFlags.StringVar(configFile, "c", defaultConfig, "Configuration file (short)")
		routers := diffFlags.String("routers", "", "Comma separated routers (default: all)")
		diffFlags.Parse(os.Args[2:])

		ctx, stop := signalContext()
		defer stop()
		if err := cmd.RunDiff(ctx, *configFile, cmd.SplitList(*routers)); err != nil {
			printer.Fprintf(os.Stderr, "Diff failed: %v\n", err)
			os.Exit(1)
		}

	case "deploy":
		deployFlags := flag.NewFlagSet("deploy", flag.ExitOnError)
		configFile := deployFlags.String("config", defaultConfig, "Configuration file")
		deployFlags.StringVar(configFile, "c", defaultConfig, "Configuration file (short)")
		routers := deployFlags.String("routers", "", "Comma separated routers (default: all)")
		yes := deployFlags.Bool("yes", false, "Deploy without asking for confirmation")
		deployFlags.BoolVar(yes, "y", false, "Deploy without confirmation (short)")
		verbose := deployFlags.Bool("verbose", false, "Debug logging")
		deployFlags.BoolVar(verbose, "v", false, "Debug logging (short)")
		deployFlags.Parse(os.Args[2:])

		// a cancelled deployment still rolls back before RunDeploy returns
		ctx, stop := signalContext()
		defer stop()
		err := cmd.RunDeploy(ctx, cmd.DeployOptions{
			ConfigFile: *configFile,
			Routers:    cmd.SplitList(*routers),
			Yes:        *yes,
			Verbose:    *verbose,
		})
		if err != nil {
			printer.Fprintf(os.Stderr, "Deploy failed: %v\n", err)
			os.Exit(1)
		}

	case "history":
		historyFlags := flag.NewFlagSet("history", flag.ExitOnError)
		configFile := historyFlags.String("config", defaultConfig, "Configuration file")
		historyFlags.StringVar(configFile, "c", defaultConfig, "Configuration file (short)")
		router := historyFlags.String("router", "", "Only deployments touching this router")
		state := historyFlags.String("state", "", "Only deployments in this state")
		limit := historyFlags.Int("n", 20, "Number of deployments")
		historyFlags.Parse(os.Args[2:])

		opts := cmd.HistoryOptions{ConfigFile: *configFile, Router: *router, State: *state, Limit: *limit}
		if historyFlags.NArg() > 0 {
			opts.ID = historyFlags.Arg(0)
		}
		if err := cmd.RunHistory(context.Background(), opts); err != nil {
			printer.Fprintf(os.Stderr, "History failed: %v\n", err)
			os.Exit(1)
		}

	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		configFile := serveFlags.String("config", defaultConfig, "Configuration file")
		serveFlags.StringVar(configFile, "c", defaultConfig, "Configuration file (short)")
		listen := serveFlags.String("listen", "", "Listen address (overrides server.listen)")
		simulate := serveFlags.Bool("simulate", false, "Deploy to in-memory simulated routers")
		verbose := serveFlags.Bool("verbose", false, "Debug logging")
		serveFlags.BoolVar(verbose, "v", false, "Debug logging (short)")
		serveFlags.Parse(os.Args[2:])

		err := cmd.RunServe(context.Background(), cmd.ServeOptions{
			ConfigFile: *configFile,
			Listen:     *listen,
			Simulate:   *simulate,
			Verbose:    *verbose,
		})
		if err != nil {
			printer.Fprintf(os.Stderr, "Serve failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "-v", "--version":
		cmd.RunVersion()

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  check     Validate the configuration and plan every router
            Options: --verbose (-v)
  plan      Print planned configuration without contacting devices
            Options: --config (-c) <file>, --routers <a,b>, --format (-o) text|json|yaml
  diff      Show what a deployment would change on the live routers
            Options: --config (-c) <file>, --routers <a,b>
  deploy    Deploy planned configuration with automatic rollback
            Options: --config (-c) <file>, --routers <a,b>, --yes (-y), --verbose (-v)
  history   List recorded deployments, or show one by ID
            Options: --config (-c) <file>, --router <name>, --state <state>, -n <count>
  serve     Run the deployment API, drift checks and history pruning
            Options: --config (-c) <file>, --listen <addr>, --simulate, --verbose (-v)
  version   Show build information

Examples:
  %s check -v %s
  %s plan -o yaml --routers edge1
  %s deploy --routers edge1,edge2
  %s serve --listen :8088
`,
		brand.Name, brand.Description,
		brand.BinaryName,
		brand.BinaryName, brand.ConfigPath(),
		brand.BinaryName, brand.BinaryName, brand.BinaryName)
}
