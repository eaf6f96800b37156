package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"paperboy/internal/config"
	"paperboy/internal/topics"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigCheckCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create sample configuration and topics files",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			topicsPath := filepath.Join(filepath.Dir(target), "topics.yaml")
			if _, err := os.Stat(topicsPath); os.IsNotExist(err) || overwrite {
				if err := topics.CreateSample(topicsPath); err != nil {
					return fmt.Errorf("create sample topics: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintf(out, "Wrote sample topics to %s\n", topicsPath)
			fmt.Fprintf(out, "Set llm.api_key (or export %s) and the email section before running.\n", config.EnvLLMAPIKey)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing files if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path:       %s\n", ctx.configPath)
			fmt.Fprintf(out, "Database:          %s\n", cfg.Storage.DBPath)
			fmt.Fprintf(out, "Topics:            %s\n", cfg.Storage.TopicsPath)
			fmt.Fprintf(out, "PDF dir:           %s\n", cfg.Storage.PDFDir)
			fmt.Fprintf(out, "Categories:        %s\n", strings.Join(cfg.Arxiv.Categories, ", "))
			fmt.Fprintf(out, "Days back:         %d\n", cfg.Arxiv.DaysBack)
			fmt.Fprintf(out, "Semantic Scholar:  %s\n", yesNo(cfg.SemanticScholar.Enabled))
			fmt.Fprintf(out, "Model:             %s\n", cfg.LLM.Model)
			fmt.Fprintf(out, "API key set:       %s\n", yesNo(cfg.LLM.APIKey != ""))
			fmt.Fprintf(out, "Relevance gate:    %.2f\n", cfg.Thresholds.Relevance)
			fmt.Fprintf(out, "Email to:          %s\n", cfg.Email.ToAddr)
			fmt.Fprintf(out, "Schedule:          %s\n", cfg.Workflow.Schedule)
			fmt.Fprintf(out, "Retry failed:      %s\n", yesNo(cfg.Workflow.RetryFailed))
			return nil
		},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and topics files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			topicList, err := topics.Load(cfg.Storage.TopicsPath)
			if err != nil {
				return fmt.Errorf("load topics: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			fmt.Fprintf(out, "Topics: %d defined\n", len(topicList))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the model endpoint responds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			client := newModelClient(cfg)
			if err := client.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("model endpoint check failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Model %s reachable\n", cfg.LLM.Model)
			return nil
		},
	}
}
