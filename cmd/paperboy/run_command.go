package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"paperboy/internal/runlock"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch, classify, summarize, and email one batch of papers",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stats, err := executeBatch(runCtx, ctx)
			if err != nil {
				if errors.Is(err, runlock.ErrHeld) {
					return errors.New("another paperboy run is in progress")
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Batch complete: %d candidates, %d emailed, %d below threshold, %d failed, %d already handled\n",
				stats.Candidates, stats.Emailed, stats.SkippedByGate, stats.Failed, stats.SkippedIntake)
			if stats.RetriedFailed > 0 {
				fmt.Fprintf(out, "Retried %d previously failed papers\n", stats.RetriedFailed)
			}
			return nil
		},
	}
}

func runBatchLocked(ctx context.Context, cmdCtx *commandContext) error {
	_, err := executeBatch(ctx, cmdCtx)
	return err
}
