package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Account commands",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured SMTP accounts",
	RunE:  runAccountsList,
}

func init() {
	accountsCmd.AddCommand(accountsListCmd)
	rootCmd.AddCommand(accountsCmd)
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(cfg.Accounts) == 0 {
		fmt.Println("No accounts configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tHOST\tPORT\tUSER\tTLS")
	fmt.Fprintln(w, "-----\t----\t----\t----\t---")
	for _, a := range cfg.Accounts {
		tls := "STARTTLS"
		if a.Secure {
			tls = "implicit"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", a.Label, a.Host, a.Port, a.User, tls)
	}
	return w.Flush()
}
