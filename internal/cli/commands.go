package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BartekS5/ticketflow/internal/etl"
	"github.com/BartekS5/ticketflow/internal/scheduler"
	"github.com/BartekS5/ticketflow/internal/server"
	"github.com/BartekS5/ticketflow/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func newRunCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run extract, upload and load once",
		RunE: func(c *cobra.Command, args []string) error {
			return runStages(c.Context(), opts, "cli", etl.AllStages...)
		},
	}
}

func newStageCmd(opts *Options, stage etl.Stage, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(stage),
		Short: short,
		RunE: func(c *cobra.Command, args []string) error {
			return runStages(c.Context(), opts, "cli", stage)
		},
	}
}

func newServeCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP trigger",
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return server.New(a.pipeline, a.ledger, a.cfg.HTTPPort).Start(ctx)
		},
	}
}

func newScheduleCmd(opts *Options) *cobra.Command {
	var runOnStart bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline every SCHEDULE_INTERVAL until interrupted",
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			s := scheduler.New(a.pipeline, a.locker, scheduler.Config{
				Interval:   a.cfg.ScheduleInterval,
				RunOnStart: runOnStart,
				LockWait:   time.Second,
			})
			if err := s.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return s.Stop(stopCtx)
		},
	}

	cmd.Flags().BoolVar(&runOnStart, "now", true, "Run once immediately instead of waiting a full interval")
	return cmd
}

func newRunsCmd(opts *Options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Print the most recent runs from the ledger as JSON",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp(c.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			reports, err := a.ledger.Recent(c.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func runStages(ctx context.Context, opts *Options, trigger string, stages ...etl.Stage) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.pipeline.RunStages(ctx, trigger, stages...)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, etl.Summary(report))
	if n := report.FailedFiles(); n > 0 {
		logger.Warnf("%d files failed; they will be retried on the next run", n)
	}
	return nil
}
