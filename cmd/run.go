package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Take one snapshot and publish it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, err := a.Pipeline().Run(ctx)
			if err != nil {
				return fmt.Errorf("snapshot run: %w", err)
			}
			a.Logger().Info("snapshot published",
				zap.String("run_id", report.RunID),
				zap.String("file_id", report.FileID),
				zap.Int("rows", report.Rows),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "published %s: %d rows, %d/%d accounts fetched\n",
				report.FileID, report.Rows, report.Fetched, len(report.Accounts))
			return nil
		},
	}
}
