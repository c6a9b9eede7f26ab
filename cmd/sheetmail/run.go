package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetmail/sheetmail/internal/app"
	"github.com/sheetmail/sheetmail/internal/history"
	"github.com/sheetmail/sheetmail/internal/mailer"
	"github.com/sheetmail/sheetmail/internal/pipeline"
)

var (
	runSheet          string
	runAccount        string
	runSubject        string
	runBody           string
	runBodyFile       string
	runFrom           string
	runNameColumn     string
	runContactColumn  string
	runAttachments    []string
	runHeaders        []string
	runSendDuplicates bool
	runDryRun         bool
	runPauseMin       time.Duration
	runPauseMax       time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Send a mailing from a spreadsheet",
	Long: `Send templated emails to every contact row of an xlsx spreadsheet,
pacing sends with a randomized pause, then compile the delivery report.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "Path to the xlsx contact list (required)")
	runCmd.Flags().StringVar(&runAccount, "account", "", "Account label from the config (default: the only account)")
	runCmd.Flags().StringVar(&runSubject, "subject", "", "Subject template, {{name}} style variables")
	runCmd.Flags().StringVar(&runBody, "body", "", "HTML body template")
	runCmd.Flags().StringVar(&runBodyFile, "body-file", "", "Read the HTML body template from a file")
	runCmd.Flags().StringVar(&runFrom, "from", "", "From address (default: account user)")
	runCmd.Flags().StringVar(&runNameColumn, "name-column", "", "Header of the organization name column (default: guessed)")
	runCmd.Flags().StringVar(&runContactColumn, "contact-column", "", "Header of the contacts column (default: guessed)")
	runCmd.Flags().StringArrayVar(&runAttachments, "attach", nil, "File to attach (repeatable)")
	runCmd.Flags().StringArrayVar(&runHeaders, "header", nil, "Extra message header, Name: Value (repeatable)")
	runCmd.Flags().BoolVar(&runSendDuplicates, "send-duplicates", false, "Send to repeated addresses instead of skipping them")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Capture rendered messages instead of sending them")
	runCmd.Flags().DurationVar(&runPauseMin, "pause-min", 0, "Minimum pause between sends (default: from config)")
	runCmd.Flags().DurationVar(&runPauseMax, "pause-max", 0, "Maximum pause between sends (default: from config)")
	runCmd.MarkFlagRequired("sheet")

	rootCmd.AddCommand(runCmd)
}

func buildRunRequest() (mailer.RunRequest, error) {
	body := runBody
	if runBodyFile != "" {
		data, err := os.ReadFile(runBodyFile)
		if err != nil {
			return mailer.RunRequest{}, fmt.Errorf("failed to read body file: %w", err)
		}
		body = string(data)
	}

	var headers map[string]string
	if len(runHeaders) > 0 {
		headers = make(map[string]string, len(runHeaders))
		for _, h := range runHeaders {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return mailer.RunRequest{}, fmt.Errorf("invalid header %q, expected Name: Value", h)
			}
			headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}

	return mailer.RunRequest{
		Account:        runAccount,
		SheetPath:      runSheet,
		NameColumn:     runNameColumn,
		ContactColumn:  runContactColumn,
		Subject:        runSubject,
		Body:           body,
		Attachments:    runAttachments,
		Headers:        headers,
		From:           runFrom,
		SendDuplicates: runSendDuplicates,
		DryRun:         runDryRun,
		PauseMin:       runPauseMin,
		PauseMax:       runPauseMax,
	}, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := buildRunRequest()
	if err != nil {
		return err
	}
	if req.Subject == "" && req.Body == "" {
		return fmt.Errorf("subject or body template is required")
	}

	logger := app.SetupLogger(cfg.Logging)

	store, err := history.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	req.Progress = func(out pipeline.Outcome) {
		switch out.Status {
		case pipeline.StatusOK:
			fmt.Printf("row %d  %-12s %s\n", out.RowNumber, out.Status, out.Email)
		case pipeline.StatusDuplicate:
			fmt.Printf("row %d  %-12s %s\n", out.RowNumber, out.Status, out.Email)
		default:
			fmt.Printf("row %d  %-12s %s  %s\n", out.RowNumber, out.Status, out.Email, out.Error)
		}
	}

	m := mailer.NewMailer(cfg, store, nil, logger)
	run, err := m.Execute(context.Background(), req)
	if err != nil {
		return err
	}

	stats := run.Stats()
	fmt.Printf("\nRun %s finished\n", run.ID)
	fmt.Printf("  Sent:       %d\n", stats.Sent)
	fmt.Printf("  Failed:     %d\n", stats.Failed)
	fmt.Printf("  Duplicates: %d\n", stats.Duplicates)
	fmt.Printf("  Report:     %s\n", run.ReportPath)

	return nil
}
