package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netlens/netlens/internal/core/snapstore"
)

var (
	snapshotResetAll     bool
	snapshotResetService string
	snapshotResetPrefix  string
)

var snapshotResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete persisted limiter state",
	Long: `Delete persisted limiter state for the selected services.

A running serve process keeps its in-memory state; reset affects what the
next process start restores.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := snapstore.Query{
			All:     snapshotResetAll,
			Service: strings.TrimSpace(snapshotResetService),
			Prefix:  strings.TrimSpace(snapshotResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close() // nolint:errcheck // best-effort cleanup

		removed, err := store.Reset(cmd.Context(), query)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed state for %d service(s)\n", removed)
		return nil
	},
}

func init() {
	snapshotResetCmd.Flags().BoolVar(&snapshotResetAll, "all", false, "Reset all services")
	snapshotResetCmd.Flags().StringVar(&snapshotResetService, "service", "", "Reset one service")
	snapshotResetCmd.Flags().StringVar(&snapshotResetPrefix, "prefix", "", "Reset services with matching prefix")
}
