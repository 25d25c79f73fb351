package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saveweb/solar-tracker/internal/listing"
	"github.com/saveweb/solar-tracker/internal/printer"
	"github.com/saveweb/solar-tracker/pkg/tracker"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure latency to every tracker node",
	Long: `Probe every configured tracker node and print them from fastest to
slowest. The node marked with * is the one 'archivist run' would use.`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	nodes := cfg.Nodes()
	printer.Step("Probing %d tracker node(s)...\n", len(nodes))

	ranking, err := tracker.NewSelector(tracker.HTTPProber{}).Select(cmd.Context(), nodes)
	if err != nil {
		return printer.Explain("probe tracker nodes", err)
	}
	listing.FormatRanking(printer.Stdout, ranking)

	best, _ := ranking.Best()
	if !best.Healthy() {
		return printer.ErrorWithContext(
			"No tracker reachable",
			"Every tracker node failed the ping probe.",
			map[string]string{"Nodes": fmt.Sprint(nodes)},
			[]string{"Check your network, or pin a node with SOLAR_TRACKER_URL"},
		)
	}
	printer.Success("Fastest tracker: %s\n", best.URL)
	return nil
}
