package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/saveweb/solar-tracker/internal/config"
	"github.com/saveweb/solar-tracker/internal/printer"
)

//go:embed templates/*
var templatesFS embed.FS

// ConfigFile is the file Initialize writes.
const ConfigFile = "archivist.yml"

// Options fill the generated configuration.
type Options struct {
	Project       string
	ClientVersion string
	Archivist     string // optional
	Preset        string // production (default) or test
}

// Initialize writes archivist.yml into dir and returns its path. An existing
// file is only replaced when force is true.
func Initialize(dir string, opts Options, force bool) (string, error) {
	path := filepath.Join(dir, ConfigFile)

	if !force {
		if err := CheckExisting(dir); err != nil {
			return "", err
		}
	}

	content, err := render(opts)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	// Validate created file
	if _, err := config.Load(path, func(string) string { return "" }); err != nil {
		return "", fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}
	return path, nil
}

// render fills the embedded template.
func render(opts Options) ([]byte, error) {
	if opts.Preset == "" {
		opts.Preset = config.NodesProduction
	}

	raw, err := templatesFS.ReadFile("templates/archivist.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read archivist.yml template: %w", err)
	}
	tmpl, err := template.New(ConfigFile).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse archivist.yml template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, opts); err != nil {
		return nil, fmt.Errorf("failed to render archivist.yml: %w", err)
	}
	return buf.Bytes(), nil
}

// PrintSuccess prints the success message and next steps
func PrintSuccess(path string) {
	printer.Success("Created %s\n", path)
	printer.Println("\nNext steps:")
	printer.Println("  1. Check the tracker nodes with 'archivist ping'")
	printer.Println("  2. Inspect the project with 'archivist project'")
	printer.Println("  3. Start archiving with 'archivist run'")
}
