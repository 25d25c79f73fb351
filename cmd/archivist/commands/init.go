package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/saveweb/solar-tracker/internal/config"
	"github.com/saveweb/solar-tracker/internal/printer"
	"github.com/saveweb/solar-tracker/internal/scaffold"
)

var (
	forceInit         bool
	initDir           string
	initProject       string
	initClientVersion string
	initArchivist     string
	initPreset        string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter archivist.yml",
	Long: `Write a commented archivist.yml for one project.

--project and --client-version fall back to SOLAR_PROJECT and
SOLAR_CLIENT_VERSION. The generated file is validated before init returns.

Use --force to overwrite an existing archivist.yml.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing archivist.yml")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write archivist.yml into")
	initCmd.Flags().StringVar(&initProject, "project", "", "Project identifier")
	initCmd.Flags().StringVar(&initClientVersion, "client-version", "", "Client version the project expects")
	initCmd.Flags().StringVar(&initArchivist, "archivist", "", "Archivist name (required for the journal)")
	initCmd.Flags().StringVar(&initPreset, "preset", config.NodesProduction, "Tracker node preset: production or test")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	opts := scaffold.Options{
		Project:       firstNonEmpty(initProject, os.Getenv(config.EnvProject)),
		ClientVersion: firstNonEmpty(initClientVersion, os.Getenv(config.EnvClientVersion)),
		Archivist:     firstNonEmpty(initArchivist, os.Getenv(config.EnvArchivist)),
		Preset:        initPreset,
	}
	if opts.Project == "" || opts.ClientVersion == "" {
		return printer.Error(
			"Missing project",
			"init needs a project identifier and its client version.",
			[]string{"archivist init --project <id> --client-version <version>"},
		)
	}

	// Check for existing files (unless --force)
	if !forceInit {
		if err := scaffold.CheckExisting(initDir); err != nil {
			return printer.Error("Already initialized", err.Error(), nil)
		}
	}

	path, err := scaffold.Initialize(initDir, opts, forceInit)
	if err != nil {
		return printer.Error("Initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(path)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
