package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rollscan/internal/journal"
	"rollscan/internal/pipeline"
)

const journalTimeFormat = "2006-01-02 15:04:05"

func newJournalCommand(ctx *commandContext) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect recorded processing runs",
	}

	journalCmd.AddCommand(newJournalListCommand(ctx))
	journalCmd.AddCommand(newJournalInvocationsCommand(ctx))
	journalCmd.AddCommand(newJournalClearCommand(ctx))

	return journalCmd
}

func newJournalListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded roll runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := journal.Open(ctx.configValue())
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No recorded runs")
				return nil
			}

			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortRunID(run.RunID),
					run.Druid,
					run.RollType,
					statusCell(pipeline.Status(run.Status), colorize),
					strings.Join(run.StagesRun, ","),
					run.StartedAt.Local().Format(journalTimeFormat),
					runDuration(run),
					truncateCell(run.Error, 56),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Druid", "Type", "Status", "Stages Run", "Started", "Duration", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum runs to list")
	return cmd
}

func newJournalInvocationsCommand(ctx *commandContext) *cobra.Command {
	var druid string
	var limit int

	cmd := &cobra.Command{
		Use:   "invocations",
		Short: "List recorded external tool invocations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := journal.Open(ctx.configValue())
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			invocations, err := store.ListInvocations(cmd.Context(), druid, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(invocations) == 0 {
				fmt.Fprintln(out, "No recorded invocations")
				return nil
			}

			rows := make([][]string, 0, len(invocations))
			for _, inv := range invocations {
				rows = append(rows, []string{
					shortRunID(inv.RunID),
					inv.Druid,
					inv.Stage,
					inv.Binary,
					strconv.Itoa(inv.ExitCode),
					inv.Duration.Round(time.Millisecond).String(),
					inv.StartedAt.Local().Format(journalTimeFormat),
					truncateCell(inv.Error, 56),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Druid", "Stage", "Binary", "Exit", "Duration", "Started", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&druid, "druid", "", "Only invocations for this DRUID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum invocations to list")
	return cmd
}

func newJournalClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded runs and invocations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := journal.Open(ctx.configValue())
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Journal cleared")
			return nil
		},
	}
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

func runDuration(run journal.RollRun) string {
	if run.FinishedAt == nil {
		return ""
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
