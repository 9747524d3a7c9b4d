package main

import (
	"flag"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"grimm.is/fwplan/internal/brand"
	"grimm.is/fwplan/internal/config"
	"grimm.is/fwplan/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

// reference is the generated document.
type reference struct {
	Name          string             `yaml:"name"`
	Version       string             `yaml:"version"`
	SchemaVersion string             `yaml:"schema_version"`
	File          string             `yaml:"file"`
	Root          config.BlockSchema `yaml:"root"`
}

func main() {
	out := flag.String("o", "docs/config-schema.yaml", "Output file")
	flag.Parse()

	doc := reference{
		Name:          brand.Name,
		Version:       brand.Version,
		SchemaVersion: config.CurrentSchemaVersion,
		File:          brand.ConfigFileName,
		Root:          config.Schema(),
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		printer.Printf("Failed to create dir: %v\n", err)
		os.Exit(1)
	}
	f, err := os.Create(*out)
	if err != nil {
		printer.Printf("Failed to create file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		printer.Printf("Failed to encode YAML: %v\n", err)
		os.Exit(1)
	}
	if err := enc.Close(); err != nil {
		printer.Printf("Failed to encode YAML: %v\n", err)
		os.Exit(1)
	}

	printer.Printf("Successfully generated %s\n", *out)
}
