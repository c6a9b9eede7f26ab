package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sheetmail/sheetmail/internal/dnscheck"
)

var (
	checkDomain   string
	checkSelector string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check sending domain DNS records",
	Long: `Probe the MX, SPF, DKIM and DMARC records of the sending domain.
Run this before a bulk mailing; missing records land messages in spam.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkDomain, "domain", "", "Domain to check (default: DKIM domain from config)")
	checkCmd.Flags().StringVar(&checkSelector, "selector", "", "DKIM selector (default: from config)")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	domain := checkDomain
	selector := checkSelector

	// Without an explicit domain fall back to the configured DKIM identity
	if domain == "" || selector == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if domain == "" {
			domain = cfg.DKIM.Domain
		}
		if selector == "" {
			selector = cfg.DKIM.Selector
		}
	}
	if domain == "" {
		return fmt.Errorf("domain is required (use --domain or configure dkim.domain)")
	}

	report, err := dnscheck.NewChecker().Run(context.Background(), domain, selector)
	if err != nil {
		return err
	}

	fmt.Printf("DNS checks for %s\n\n", report.Domain)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDETAILS")
	fmt.Fprintln(w, "-----\t------\t-------")
	for _, c := range report.Checks {
		details := c.Message
		if details == "" {
			details = c.Value
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Status, details)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !report.Passed() {
		return fmt.Errorf("DNS checks failed")
	}
	return nil
}
