package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/core/governor"
	"github.com/netlens/netlens/internal/core/snapstore"
	"github.com/netlens/netlens/internal/output"
)

var (
	usageOutput  string
	usageService string
	usageMetrics bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show rate limit usage from persisted state",
	Long: `Show window occupancy and counters as of the last checkpoint.

The command restores the persisted snapshot into an offline governor, so it
reflects state as written by the most recent serve or demo run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(usageOutput)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := snapstore.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer store.Close() // nolint:errcheck // best-effort cleanup

		snap, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}

		gov := governor.New(governor.Options{
			Policies: cfg.Policies(),
			Margin:   cfg.Governor.Margin,
		})
		gov.Restore(snap)

		if usageMetrics {
			services := gov.Services()
			rendered, err := output.FormatMetrics(format, services, gov.AllMetrics())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return nil
		}

		usages := gov.AllUsage()
		if usageService != "" {
			usages = []core.Usage{gov.Usage(usageService)}
		}
		rendered, err := output.FormatUsage(format, usages)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().StringVar(&usageOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	usageCmd.Flags().StringVar(&usageService, "service", "", "Show a single service")
	usageCmd.Flags().BoolVar(&usageMetrics, "metrics", false, "Show acquisition counters instead of window occupancy")
}
