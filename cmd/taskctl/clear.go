package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// newClearCmd builds the clear subcommand, which drops every task record.
func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all task records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !yes && !confirm("This will delete all tasks in database, are you sure? [y/N]: ") {
				return fmt.Errorf("command cancelled")
			}

			taskStore, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			deleted, err := taskStore.DeleteAll(ctx)
			if err != nil {
				return fmt.Errorf("clear failed: %w", err)
			}

			fmt.Printf("Deleted %d task(s)\n", deleted)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Continue without asking confirmation")

	return cmd
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
