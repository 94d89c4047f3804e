// Package cli wires configuration and backends into cobra commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/ticketflow/internal/etl"
)

// Options are the flags shared by every command.
type Options struct {
	FiltersFile string
}

func NewRootCmd() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "ticketflow",
		Short: "ticketflow - event API to warehouse pipeline",
		Long: `ticketflow extracts upcoming events from the Ticketmaster Discovery API,
stages them as CSV files in a bucket and merges them into a historical
warehouse table that keeps every version of an event (SCD2).`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.FiltersFile, "filters", "f", "", "Path to a JSON file of API filter params (replaces the defaults)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newStageCmd(opts, etl.StageExtract, "Fetch events and write a staged CSV file"),
		newStageCmd(opts, etl.StageUpload, "Upload staged files to the bucket"),
		newStageCmd(opts, etl.StageLoad, "Merge today's bucket files into the historical table"),
		newProvisionCmd(opts),
		newServeCmd(opts),
		newScheduleCmd(opts),
		newRunsCmd(opts),
	)

	return rootCmd
}
