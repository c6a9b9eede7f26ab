package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sheetmail/sheetmail/internal/history"
	"github.com/sheetmail/sheetmail/internal/report"
)

var historyListLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Run history commands",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past mailing runs",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show run details",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run_id>",
	Short: "Delete a run from history",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyReportOut string

var historyReportCmd = &cobra.Command{
	Use:   "report <run_id>",
	Short: "Re-compile the delivery report for a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryReport,
}

func init() {
	historyListCmd.Flags().IntVar(&historyListLimit, "limit", 50, "Maximum number of runs to show")
	historyReportCmd.Flags().StringVar(&historyReportOut, "out", "", "Output directory (default: from config)")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyReportCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistoryStore() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := history.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(context.Background(), historyListLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACCOUNT\tSTARTED\tSENT\tFAILED\tDUPLICATES")
	fmt.Fprintln(w, "--\t-------\t-------\t----\t------\t----------")
	for _, run := range runs {
		stats := run.Stats()
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			truncateID(run.ID),
			run.Account,
			run.StartedAt.Format("2006-01-02 15:04"),
			stats.Sent,
			stats.Failed,
			stats.Duplicates,
		)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", args[0])
	}

	stats := run.Stats()
	fmt.Printf("Run:        %s\n", run.ID)
	fmt.Printf("Account:    %s\n", run.Account)
	fmt.Printf("Started:    %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Finished:   %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Sent:       %d\n", stats.Sent)
	fmt.Printf("Failed:     %d\n", stats.Failed)
	fmt.Printf("Duplicates: %d\n", stats.Duplicates)
	if run.ReportPath != "" {
		fmt.Printf("Report:     %s\n", run.ReportPath)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tSTATUS\tEMAIL\tERROR")
	fmt.Fprintln(w, "---\t------\t-----\t-----")
	for _, out := range run.Outcomes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", out.RowNumber, out.Status, out.Email, out.Error)
	}
	return w.Flush()
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	fmt.Printf("Run %s deleted\n", args[0])
	return nil
}

func runHistoryReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	run, err := store.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", args[0])
	}

	dir := historyReportOut
	if dir == "" {
		dir = cfg.Report.OutputDir
	}

	path, err := report.NewCompiler(dir).Compile(run.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to compile report: %w", err)
	}

	fmt.Printf("Report written to %s\n", path)
	return nil
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
