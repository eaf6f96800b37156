package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"paperboy/internal/store"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Clear failed papers so the next fetch re-enters them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			removed, err := st.ClearFailed(cmd.Context())
			if err != nil {
				return fmt.Errorf("clear failed papers: %w", err)
			}

			out := cmd.OutOrStdout()
			if removed == 0 {
				fmt.Fprintln(out, "No failed papers to retry")
				return nil
			}
			fmt.Fprintf(out, "Cleared %d failed papers; they re-enter the pipeline when next fetched\n", removed)
			return nil
		},
	}
}
