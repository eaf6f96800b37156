package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"paperboy/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var showFailed bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status counts",
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

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("read stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderStatusTable(stats, shouldColorize(out)))

			if showFailed {
				failed, err := st.ListByStatus(cmd.Context(), store.StatusFailed)
				if err != nil {
					return fmt.Errorf("list failed papers: %w", err)
				}
				if len(failed) == 0 {
					fmt.Fprintln(out, "No failed papers")
					return nil
				}
				fmt.Fprintln(out, renderFailedTable(failed, shouldColorize(out)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showFailed, "failed", false, "List failed papers with their error messages")
	return cmd
}

func renderStatusTable(stats map[store.Status]int, colorize bool) string {
	tw := newTableWriter(colorize)
	tw.AppendHeader(table.Row{"Status", "Papers"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
	})

	total := 0
	for _, status := range store.Statuses() {
		count := stats[status]
		if count == 0 {
			continue
		}
		total += count
		tw.AppendRow(table.Row{statusLabel(status), strconv.Itoa(count)})
	}
	tw.AppendFooter(table.Row{"Total", strconv.Itoa(total)})
	return tw.Render()
}

func renderFailedTable(records []*store.Record, colorize bool) string {
	tw := newTableWriter(colorize)
	tw.AppendHeader(table.Row{"Paper", "Title", "Error"})
	for _, record := range records {
		tw.AppendRow(table.Row{record.ID, truncateCell(record.Title, 48), truncateCell(record.ErrorMessage, 64)})
	}
	return tw.Render()
}

func newTableWriter(colorize bool) table.Writer {
	tw := table.NewWriter()
	if colorize {
		tw.SetStyle(table.StyleColoredBright)
	} else {
		tw.SetStyle(table.StyleRounded)
	}
	return tw
}

// statusLabel turns a stored status into a display label, e.g.
// "stage1_relevant" becomes "Stage1 Relevant".
func statusLabel(status store.Status) string {
	words := strings.ReplaceAll(string(status), "_", " ")
	return cases.Title(language.Und).String(words)
}

func truncateCell(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
