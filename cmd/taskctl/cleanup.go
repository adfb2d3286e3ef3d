package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newCleanupCmd builds the cleanup subcommand: the age-based sweep over
// complete task records.
func newCleanupCmd() *cobra.Command {
	var (
		maxAgeSeconds int64
		includeUnseen bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete complete task records older than the given age",
		Long: `Deletes task records that are complete (done, failed, or skipped) and
older than --max-age seconds. By default only records already marked
seen are deleted; pass --include-unseen to delete regardless of the
seen flag. Records still enqueued, delayed, or running are never
touched, regardless of age.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			taskStore, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			maxAge := time.Duration(maxAgeSeconds) * time.Second
			deleted, err := taskStore.DeleteExpired(ctx, maxAge, !includeUnseen)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}

			fmt.Printf("Deleted %d task(s)\n", deleted)
			return nil
		},
	}

	cmd.Flags().Int64Var(&maxAgeSeconds, "max-age", 604800,
		"Maximum record age in seconds, measured from creation")
	cmd.Flags().BoolVar(&includeUnseen, "include-unseen", false,
		"Also delete complete records that were never marked seen")

	return cmd
}
