package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/core/snapstore"
)

// FormatUsage renders per-service window occupancy.
func FormatUsage(format Format, usages []core.Usage) (string, error) {
	if format == FormatJSON {
		return renderJSON(usages)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Service", "Minute", "Hour", "Burst", "Breaker"})

	for _, u := range usages {
		t.AppendRow(table.Row{
			u.Service,
			fmt.Sprintf("%d/%d", u.MinuteUsed, u.MinuteLimit),
			fmt.Sprintf("%d/%d", u.HourUsed, u.HourLimit),
			fmt.Sprintf("%d/%d per %s", u.BurstUsed, u.BurstLimit, u.BurstWindow),
			u.BreakerStatus,
		})
	}

	return t.Render(), nil
}

// FormatMetrics renders per-service acquisition counters. Services supplies
// the row order.
func FormatMetrics(format Format, services []string, metrics map[string]core.MetricsSnapshot) (string, error) {
	if format == FormatJSON {
		return renderJSON(metrics)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Service", "Total", "Immediate", "After Wait", "Denied", "Avg Wait", "Max Wait"})

	for _, service := range services {
		m, ok := metrics[service]
		if !ok {
			continue
		}
		t.AppendRow(table.Row{
			service,
			m.Total,
			m.GrantedImmediate,
			m.GrantedAfterWait,
			m.Denied,
			m.AverageWait().Round(time.Millisecond),
			m.MaxWait.Round(time.Millisecond),
		})
	}

	return t.Render(), nil
}

// FormatPolicies renders the effective rate limit policies.
func FormatPolicies(format Format, policies []core.ServicePolicy) (string, error) {
	if format == FormatJSON {
		return renderJSON(policies)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Service", "Per Minute", "Per Hour", "Burst", "Burst Window"})

	for _, p := range policies {
		t.AppendRow(table.Row{
			p.Service,
			p.RequestsPerMinute,
			p.RequestsPerHour,
			p.BurstLimit,
			p.BurstWindow,
		})
	}

	return t.Render(), nil
}

// FormatSnapshotEntries renders persisted limiter state per service.
func FormatSnapshotEntries(format Format, entries []snapstore.Entry) (string, error) {
	if format == FormatJSON {
		return renderJSON(entries)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Service", "Saved Timestamps", "Total Requests", "Denied", "Last Request"})

	for _, e := range entries {
		last := "-"
		if e.State.Metrics.LastRequestAt != nil {
			last = e.State.Metrics.LastRequestAt.UTC().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{
			e.Service,
			len(e.State.Timestamps),
			e.State.Metrics.Total,
			e.State.Metrics.Denied,
			last,
		})
	}

	return t.Render(), nil
}
