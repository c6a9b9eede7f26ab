package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sheetmail/sheetmail/internal/sandbox"
)

var (
	sandboxListRun   string
	sandboxListLimit int
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Inspect messages captured by dry runs",
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured messages",
	RunE:  runSandboxList,
}

var sandboxShowCmd = &cobra.Command{
	Use:   "show <message_id>",
	Short: "Print a captured message as raw RFC 5322 data",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxShow,
}

var sandboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all captured messages",
	RunE:  runSandboxClear,
}

func init() {
	sandboxListCmd.Flags().StringVar(&sandboxListRun, "run", "", "Filter by run ID")
	sandboxListCmd.Flags().IntVar(&sandboxListLimit, "limit", 50, "Maximum number of messages to show")

	sandboxCmd.AddCommand(sandboxListCmd, sandboxShowCmd, sandboxClearCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func openSandboxStorage() (*sandbox.Storage, func() error, error) {
	store, err := openHistoryStore()
	if err != nil {
		return nil, nil, err
	}

	captures, err := sandbox.NewStorage(store.DB())
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return captures, store.Close, nil
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	captures, closeStorage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer closeStorage()

	messages, err := captures.List(context.Background(), sandboxListRun, sandboxListLimit)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("No captured messages")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRUN\tTO\tSUBJECT\tCAPTURED")
	fmt.Fprintln(w, "--\t---\t--\t-------\t--------")
	for _, msg := range messages {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(msg.ID),
			truncateID(msg.RunID),
			msg.To,
			msg.Subject,
			msg.CapturedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runSandboxShow(cmd *cobra.Command, args []string) error {
	captures, closeStorage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer closeStorage()

	msg, err := captures.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("message %s not found", args[0])
	}

	os.Stdout.Write(msg.Data)
	return nil
}

func runSandboxClear(cmd *cobra.Command, args []string) error {
	captures, closeStorage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer closeStorage()

	if err := captures.Clear(context.Background()); err != nil {
		return fmt.Errorf("failed to clear sandbox: %w", err)
	}

	fmt.Println("Sandbox cleared")
	return nil
}
