package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saveweb/solar-tracker/internal/config"
	"github.com/saveweb/solar-tracker/internal/printer"
	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// DefaultConfigFile is read from the working directory when --config is not
// given. archivist.toml is tried next.
const DefaultConfigFile = "archivist.yml"

var defaultConfigFiles = []string{DefaultConfigFile, "archivist.toml"}

var (
	version string
	commit  string
	date    string

	configPath string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "archivist",
	Short: "Archivist - claim and archive tasks from a saveweb tracker",
	Long: `Archivist is a worker for saveweb trackers. It picks the fastest tracker
node, claims tasks for one project, archives them and reports items and task
statuses back.

Configuration is read from archivist.yml (or --config) and can be overridden
with SOLAR_PROJECT, SOLAR_ARCHIVIST, SOLAR_CLIENT_VERSION, SOLAR_TRACKER_URL
and REDIS_URL.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to archivist.yml or .toml (default: ./archivist.yml or ./archivist.toml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show every tracker request")
}

// loadConfig reads the configuration file, if any, and the environment.
func loadConfig() (*config.ArchivistConfig, error) {
	path := configPath
	if path == "" {
		for _, candidate := range defaultConfigFiles {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	cfg, err := config.Load(path, os.Getenv)
	if err != nil {
		var verr *tracker.ValidationError
		suggestions := []string{
			"Check " + DefaultConfigFile + " or pass --config",
			"Set SOLAR_PROJECT and SOLAR_CLIENT_VERSION in the environment",
		}
		if errors.As(err, &verr) {
			suggestions = []string{"Identifiers may only contain letters, digits, '_' and '-'"}
		}
		return nil, printer.Error("Invalid configuration", err.Error(), suggestions)
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// connect opens a tracker session for the configured project.
func connect(ctx context.Context, cfg *config.ArchivistConfig) (*tracker.Tracker, error) {
	tcfg, opts := cfg.TrackerOptions()
	opts = append(opts, tracker.WithTracer(printer.ConsoleTracer{Verbose: cfg.Verbose}))

	tr, err := tracker.New(ctx, tcfg, opts...)
	if err != nil {
		return nil, printer.Explain("connect to the tracker", err)
	}
	return tr, nil
}
