package cmd

import (
	"runtime"

	"grimm.is/fwplan/internal/brand"
)

// RunVersion prints build information.
func RunVersion() {
	Printer.Fprintf(Stdout, "%s %s\n", brand.Name, brand.Version)
	Printer.Fprintf(Stdout, "  commit: %s\n", brand.GitCommit)
	Printer.Fprintf(Stdout, "  built:  %s\n", brand.BuildTime)
	Printer.Fprintf(Stdout, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
