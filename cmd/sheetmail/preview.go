package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sheetmail/sheetmail/internal/app"
	"github.com/sheetmail/sheetmail/internal/mailer"
)

var previewVerifyMX bool

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Classify spreadsheet rows without sending",
	Long:  `Import the spreadsheet and show which rows would send, fail or be skipped as duplicates.`,
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().StringVar(&runSheet, "sheet", "", "Path to the xlsx contact list (required)")
	previewCmd.Flags().StringVar(&runNameColumn, "name-column", "", "Header of the organization name column (default: guessed)")
	previewCmd.Flags().StringVar(&runContactColumn, "contact-column", "", "Header of the contacts column (default: guessed)")
	previewCmd.Flags().BoolVar(&previewVerifyMX, "verify-mx", false, "Flag rows whose email domain has no MX records")
	previewCmd.MarkFlagRequired("sheet")

	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m := mailer.NewMailer(cfg, nil, nil, app.SetupLogger(cfg.Logging))
	outcomes, err := m.Preview(context.Background(), mailer.RunRequest{
		SheetPath:     runSheet,
		NameColumn:    runNameColumn,
		ContactColumn: runContactColumn,
		VerifyMX:      previewVerifyMX,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tSTATUS\tNAME\tEMAIL\tNOTE")
	fmt.Fprintln(w, "---\t------\t----\t-----\t----")
	for _, out := range outcomes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", out.RowNumber, out.Status, out.Name, out.Email, out.Error)
	}
	return w.Flush()
}
