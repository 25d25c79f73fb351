package commands

import (
	"github.com/spf13/cobra"

	"github.com/saveweb/solar-tracker/internal/listing"
	"github.com/saveweb/solar-tracker/internal/printer"
	"github.com/saveweb/solar-tracker/pkg/tracker"
)

var (
	projectsAll  bool
	projectsJSON bool
	projectJSON  bool
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects known to the tracker",
	Long: `List the tracker's projects as a table, or as one JSON object per line
with --json. Private projects are only listed with --all.`,
	Args: cobra.NoArgs,
	RunE: runProjects,
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Show the configured project",
	Args:  cobra.NoArgs,
	RunE:  runProject,
}

func init() {
	projectsCmd.Flags().BoolVarP(&projectsAll, "all", "a", false, "Include private projects")
	projectsCmd.Flags().BoolVar(&projectsJSON, "json", false, "Output JSONL")
	projectCmd.Flags().BoolVar(&projectJSON, "json", false, "Output JSON")

	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(projectCmd)
}

func runProjects(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tr, err := connect(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	var opts []tracker.ListOption
	if projectsAll {
		opts = append(opts, tracker.IncludePrivate())
	}
	projects, err := tr.ListProjects(cmd.Context(), opts...)
	if err != nil {
		return printer.Explain("list projects", err)
	}

	if projectsJSON {
		return listing.FormatProjectsJSONL(printer.Stdout, projects)
	}
	listing.FormatProjects(printer.Stdout, projects)
	return nil
}

func runProject(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tr, err := connect(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	project, err := tr.Project(cmd.Context())
	if err != nil {
		return printer.Explain("fetch the project", err)
	}

	if projectJSON {
		return listing.FormatProjectJSON(printer.Stdout, project)
	}
	listing.FormatProject(printer.Stdout, project)
	printer.Printf("  %-15s %s\n", "Tracker:", tr.BaseURL())
	printer.Printf("  %-15s %s\n", "Archivist:", tr.Archivist())
	return nil
}
