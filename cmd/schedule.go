package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-snapshot/internal/api"
	"github.com/JakeFAU/follower-snapshot/internal/scheduler"
)

func newScheduleCmd() *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run snapshots on a cron schedule and serve the admin endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config()
			logger := a.Logger()

			loc, err := time.LoadLocation(cfg.ScheduleTimezone())
			if err != nil {
				return fmt.Errorf("load schedule timezone: %w", err)
			}
			sched, err := scheduler.New(cfg.Schedule.Cron, loc, a.Pipeline(), logger.Named("scheduler"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           api.NewServer(sched, api.Options{APIKey: cfg.Server.APIKey}, logger.Named("api")).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logger.Info("admin server started", zap.Int("port", cfg.Server.Port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("admin server error", zap.Error(err))
					stop()
				}
			}()

			sched.Start()
			if runOnStart {
				go func() {
					if _, err := sched.RunNow(ctx); err != nil {
						logger.Error("startup run failed", zap.Error(err))
					}
				}()
			}

			<-ctx.Done()
			logger.Info("shutdown initiated")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			// Stopping the scheduler first cancels any run a POST /v1/runs handler is waiting on.
			stopErr := sched.Stop(shutdownCtx)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("admin server shutdown error", zap.Error(err))
			}
			return stopErr
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "take a snapshot immediately before waiting for the schedule")
	return cmd
}
