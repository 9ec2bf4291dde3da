package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netlens/netlens/internal/core/snapstore"
	"github.com/netlens/netlens/internal/output"
)

var (
	snapshotListOutput  string
	snapshotListAll     bool
	snapshotListService string
	snapshotListPrefix  string
)

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted limiter state per service",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(snapshotListOutput)
		if err != nil {
			return err
		}

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close() // nolint:errcheck // best-effort cleanup

		query := snapstore.Query{
			All:     snapshotListAll,
			Service: strings.TrimSpace(snapshotListService),
			Prefix:  strings.TrimSpace(snapshotListPrefix),
		}
		if !query.All && query.Service == "" && query.Prefix == "" {
			query.All = true
		}

		entries, err := store.List(cmd.Context(), query)
		if err != nil {
			return err
		}

		rendered, err := output.FormatSnapshotEntries(format, entries)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return nil
	},
}

func init() {
	snapshotListCmd.Flags().StringVar(&snapshotListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	snapshotListCmd.Flags().BoolVar(&snapshotListAll, "all", false, "List all services")
	snapshotListCmd.Flags().StringVar(&snapshotListService, "service", "", "List one service")
	snapshotListCmd.Flags().StringVar(&snapshotListPrefix, "prefix", "", "List services with matching prefix")
}
