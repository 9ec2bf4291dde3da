package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/output"
)

var (
	policyOutput string

	policySetServer    string
	policySetPerMinute int
	policySetPerHour   int
	policySetBurst     int
	policySetWindow    time.Duration
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and update rate limit policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the effective rate limit policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(policyOutput)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		merged := cfg.Policies()
		policies := make([]core.ServicePolicy, 0, len(merged))
		for _, policy := range merged {
			policies = append(policies, policy)
		}
		sort.Slice(policies, func(i, j int) bool { return policies[i].Service < policies[j].Service })

		rendered, err := output.FormatPolicies(format, policies)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return nil
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set <service>",
	Short: "Update a service policy on a running server",
	Long: `Update the rate limit policy for one service on a running serve
process. The change applies immediately to new acquisitions; admissions
already recorded are re-evaluated against the new limits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		service := args[0]

		body := map[string]any{
			"requests_per_minute": policySetPerMinute,
			"requests_per_hour":   policySetPerHour,
			"burst_limit":         policySetBurst,
		}
		if policySetWindow > 0 {
			body["burst_window"] = policySetWindow.String()
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		url := fmt.Sprintf("%s/api/v1/policies/%s", policySetServer, service)
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPut, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("update policy: %w", err)
		}
		defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("update policy: server returned %s: %s", resp.Status, bytes.TrimSpace(respBody))
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(bytes.TrimSpace(respBody)))
		return nil
	},
}

func init() {
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policySetCmd)
	rootCmd.AddCommand(policyCmd)

	policyListCmd.Flags().StringVar(&policyOutput, "output-format", string(output.FormatTable), "Output format: table|json")

	policySetCmd.Flags().StringVar(&policySetServer, "server", "http://localhost:8080", "Status server base URL")
	policySetCmd.Flags().IntVar(&policySetPerMinute, "per-minute", 0, "Requests allowed per minute")
	policySetCmd.Flags().IntVar(&policySetPerHour, "per-hour", 0, "Requests allowed per hour")
	policySetCmd.Flags().IntVar(&policySetBurst, "burst", 0, "Requests allowed per burst window")
	policySetCmd.Flags().DurationVar(&policySetWindow, "burst-window", 0, "Burst window length (max 1m)")
}
