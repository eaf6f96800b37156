package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"paperboy/internal/logging"
	"paperboy/internal/runlock"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run digest batches on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runOnce := func() {
				if err := runBatchLocked(runCtx, ctx); err != nil {
					if errors.Is(err, runlock.ErrHeld) {
						logger.Warn("batch already running, skipping scheduled run")
						return
					}
					if runCtx.Err() != nil {
						return
					}
					logger.Error("scheduled batch failed", logging.Error(err))
				}
			}

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(cfg.Workflow.Schedule, runOnce); err != nil {
				return fmt.Errorf("parse schedule %q: %w", cfg.Workflow.Schedule, err)
			}

			logger.Info("daemon started", logging.String("schedule", cfg.Workflow.Schedule))
			if runNow {
				runOnce()
			}

			scheduler.Start()
			<-runCtx.Done()

			logger.Info("daemon stopping")
			<-scheduler.Stop().Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&runNow, "now", false, "Run one batch immediately on startup")
	return cmd
}
