package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/saveweb/solar-tracker/internal/journal"
	"github.com/saveweb/solar-tracker/internal/listing"
	"github.com/saveweb/solar-tracker/internal/printer"
	"github.com/saveweb/solar-tracker/internal/timespec"
)

var journalClaimedBefore string

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show tasks in flight and outcome counters",
	Long: `Show the tasks this archivist has claimed but not yet reported, and how
many tasks it has completed per outcome. Requires a configured journal.

Examples:
  # Tasks claimed more than 10 minutes ago, probably stuck
  archivist journal --claimed-before=10m`,
	Args: cobra.NoArgs,
	RunE: runJournal,
}

func init() {
	journalCmd.Flags().StringVar(&journalClaimedBefore, "claimed-before", "", "Only show tasks claimed before this time (duration or RFC3339)")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	now := time.Now()
	var cutoff time.Time
	if journalClaimedBefore != "" {
		if cutoff, err = timespec.Parse(journalClaimedBefore, now); err != nil {
			return printer.Error("Invalid --claimed-before", err.Error(), nil)
		}
	}

	if !cfg.JournalEnabled() {
		return printer.Error(
			"No journal configured",
			"The journal keeps track of claimed tasks in Redis.",
			[]string{"Set journal.redis_url in archivist.yml or REDIS_URL in the environment"},
		)
	}

	j, err := openJournal(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	pending, err := j.Pending(cmd.Context())
	if err != nil {
		return printer.Explain("read the journal", err)
	}
	if !cutoff.IsZero() {
		pending = claimedBefore(pending, cutoff)
	}
	stats, err := j.Stats(cmd.Context())
	if err != nil {
		return printer.Explain("read the journal", err)
	}

	printer.Printf("Journal for %s/%s\n\n", cfg.Project, cfg.Archivist)
	listing.FormatPending(printer.Stdout, pending, now)
	printer.Printf("\nCompleted:\n")
	listing.FormatStats(printer.Stdout, stats)
	return nil
}

func claimedBefore(entries []*journal.Entry, cutoff time.Time) []*journal.Entry {
	var out []*journal.Entry
	for _, e := range entries {
		if e.ClaimedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}
