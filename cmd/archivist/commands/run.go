package commands

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/saveweb/solar-tracker/internal/archivist"
	"github.com/saveweb/solar-tracker/internal/config"
	"github.com/saveweb/solar-tracker/internal/journal"
	"github.com/saveweb/solar-tracker/internal/printer"
)

var (
	runOnce       bool
	runMax        int
	runExitIdle   bool
	runHealthPort int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Claim and archive tasks until interrupted",
	Long: `Claim tasks from the configured project, archive each one and report
the result back to the tracker. The built-in handler stores every task
document as its own item, which is enough to exercise a tracker end to end.

When a journal is configured (journal.redis_url or REDIS_URL), tasks left in
flight by a previous run are handed back to the tracker before claiming.

Stops on SIGINT/SIGTERM after the current task has been reported.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Process at most one task, exit if none is available")
	runCmd.Flags().IntVar(&runMax, "max", 0, "Stop after this many tasks (0 = worker.max_tasks)")
	runCmd.Flags().BoolVar(&runExitIdle, "exit-when-idle", false, "Exit instead of waiting when no task is available")
	runCmd.Flags().IntVar(&runHealthPort, "health-port", 0, "Serve /healthz on this port (0 = worker.health_port)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, err := connect(ctx, cfg)
	if err != nil {
		return err
	}

	opts := engineOptions(cfg)
	var j *journal.Journal
	if cfg.JournalEnabled() {
		if j, err = openJournal(ctx, cfg); err != nil {
			return err
		}
		defer func() {
			if err := j.Close(); err != nil {
				log.Printf("[ERROR] Error closing journal: %v", err)
			}
		}()
		opts.Journal = j
	}

	engine := archivist.New(tr, archivist.EchoHandler(), opts)

	if n, err := engine.Recover(ctx); err != nil {
		return printer.Explain("recover in-flight tasks", err)
	} else if n > 0 {
		printer.Success("Handed %d in-flight task(s) back to the tracker\n", n)
	}

	if port := healthPort(cfg); port > 0 {
		checks := []archivist.Check{{
			Name: "tracker",
			Ping: func(ctx context.Context) error {
				_, err := tr.Ping(ctx)
				return err
			},
		}}
		if j != nil {
			checks = append(checks, archivist.Check{Name: "journal", Ping: j.Ping})
		}
		hs := archivist.NewHealthServer(port, engine.Stats, checks...)
		addr, err := hs.Start()
		if err != nil {
			return printer.Error("Failed to start health server", err.Error(), []string{"Pick another port with --health-port"})
		}
		printer.Step("Health endpoint on %s/healthz\n", addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := hs.Shutdown(shutdownCtx); err != nil {
				log.Printf("[ERROR] Health server shutdown: %v", err)
			}
		}()
	}

	printer.Step("Archiving %s as %s via %s\n", tr.ProjectID(), tr.Archivist(), tr.BaseURL())
	if err := engine.Run(ctx); err != nil {
		return printer.Explain("run the archivist", err)
	}

	s := engine.Stats()
	printer.Success("Done: %d claimed, %d done, %d failed, %d requeued\n", s.Claimed, s.Done, s.Failed, s.Requeued)
	return nil
}

// engineOptions merges worker settings from the config with command-line flags.
func engineOptions(cfg *config.ArchivistConfig) archivist.Options {
	opts := archivist.Options{
		IdleInterval:  cfg.Worker.IdleInterval,
		DoneStatus:    cfg.Worker.DoneStatus,
		FailStatus:    cfg.Worker.FailStatus,
		RequeueStatus: cfg.Worker.RequeueStatus,
		MaxTasks:      cfg.Worker.MaxTasks,
		ExitWhenIdle:  runExitIdle,
	}
	if runMax > 0 {
		opts.MaxTasks = runMax
	}
	if runOnce {
		opts.MaxTasks = 1
		opts.ExitWhenIdle = true
	}
	return opts
}

func healthPort(cfg *config.ArchivistConfig) int {
	if runHealthPort > 0 {
		return runHealthPort
	}
	return cfg.Worker.HealthPort
}

// openJournal connects to the configured Redis and verifies it answers.
func openJournal(ctx context.Context, cfg *config.ArchivistConfig) (*journal.Journal, error) {
	j, err := journal.Open(cfg.Journal.RedisURL, cfg.Project, cfg.Archivist)
	if err != nil {
		return nil, printer.Error("Invalid journal configuration", err.Error(), []string{"Use a redis://host:port/db URL"})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := j.Ping(pingCtx); err != nil {
		_ = j.Close()
		return nil, printer.ErrorWithContext(
			"Journal unreachable",
			err.Error(),
			map[string]string{"Redis": cfg.Journal.RedisURL},
			[]string{"Start Redis, or remove journal.redis_url to run without a journal"},
		)
	}
	return j, nil
}
