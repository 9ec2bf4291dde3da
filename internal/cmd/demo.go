package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/core/governor"
	"github.com/netlens/netlens/internal/output"
)

// demoClock is a virtual clock whose sleeps advance time instead of blocking,
// so the demo exercises real limiter waits without taking real time.
type demoClock struct {
	mu  sync.Mutex
	now time.Time
}

func newDemoClock() *demoClock {
	return &demoClock{now: time.Now().UTC()}
}

func (c *demoClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *demoClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		c.mu.Lock()
		c.now = c.now.Add(d)
		c.mu.Unlock()
	}
	return nil
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Demonstrate rate limiting, backoff, and metrics",
	Long: `Run a self-contained demonstration of the traffic governor.

Limiter waits run against a virtual clock, so the demo finishes immediately
while still exercising the real admission, backoff, and metrics paths. No
network calls are made.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		clock := newDemoClock()
		gov := governor.New(governor.Options{
			Policies: cfg.Policies(),
			Clock:    clock.Now,
			Sleep:    clock.Sleep,
		})

		fmt.Fprintln(out, "== Basic rate limiting ==")
		policy := gov.Policy("bgp_he_net")
		fmt.Fprintf(out, "bgp_he_net policy: %d/min, %d/hour, burst %d per %s\n",
			policy.RequestsPerMinute, policy.RequestsPerHour, policy.BurstLimit, policy.BurstWindow)

		for i := 1; i <= 3; i++ {
			permit, err := gov.Acquire(cmd.Context(), "bgp_he_net", fmt.Sprintf("demo_call_%d", i), time.Minute)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  call %d allowed (waited %s)\n", i, permit.Waited().Round(time.Millisecond))
			permit.Release(core.OutcomeSuccess)
		}

		fmt.Fprintln(out, "\n== Hitting the limit ==")
		if err := gov.SetPolicy(core.ServicePolicy{
			Service:           "demo_service",
			RequestsPerMinute: 2,
			RequestsPerHour:   10,
			BurstLimit:        1,
		}); err != nil {
			return err
		}
		fmt.Fprintln(out, "demo_service policy: 2/min, burst 1")

		for i := 1; i <= 5; i++ {
			permit, err := gov.Acquire(cmd.Context(), "demo_service", fmt.Sprintf("demo_call_%d", i), 12*time.Second)
			if err != nil {
				fmt.Fprintf(out, "  call %d denied: %v\n", i, err)
				continue
			}
			fmt.Fprintf(out, "  call %d allowed (waited %s)\n", i, permit.Waited().Round(time.Millisecond))
			permit.Release(core.OutcomeSuccess)
		}

		fmt.Fprintln(out, "\n== Backoff with retries ==")
		attempts := 0
		err = gov.DoPreset(cmd.Context(), "demo_service", "flaky_call", "api", func(ctx context.Context) error {
			attempts++
			fmt.Fprintf(out, "  attempt %d\n", attempts)
			if attempts <= 2 {
				return core.RateLimited(fmt.Errorf("simulated rate limit on attempt %d", attempts), time.Second)
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(out, "  failed after retries: %v\n", err)
		} else {
			fmt.Fprintf(out, "  succeeded on attempt %d\n", attempts)
		}

		fmt.Fprintln(out, "\n== Usage ==")
		usageTable, err := output.FormatUsage(output.FormatTable, gov.AllUsage())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, usageTable)

		fmt.Fprintln(out, "\n== Metrics ==")
		metricsTable, err := output.FormatMetrics(output.FormatTable, gov.Services(), gov.AllMetrics())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, metricsTable)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
