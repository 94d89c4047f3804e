package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/ticketflow/pkg/logger"
)

// newProvisionCmd creates the bucket and the historical table up front.
// Both steps are idempotent and also run at the start of each stage.
func newProvisionCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the bucket and the historical table if missing",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp(c.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.uploader.Prepare(c.Context()); err != nil {
				return err
			}
			if err := a.loader.Prepare(c.Context()); err != nil {
				return err
			}
			logger.Infof("Provisioned bucket %s and table %s", a.cfg.BucketName, a.cfg.HistoricalTable)
			return nil
		},
	}
}
