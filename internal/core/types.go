package core

import (
	"fmt"
	"strings"
	"time"
)

// ServicePolicy captures the rate limits applied to a single upstream service.
// A policy is read as an immutable snapshot per acquisition and replaced
// atomically on update.
type ServicePolicy struct {
	Service           string        `json:"service" mapstructure:"service"`
	RequestsPerMinute int           `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	RequestsPerHour   int           `json:"requests_per_hour" mapstructure:"requests_per_hour"`
	BurstLimit        int           `json:"burst_limit" mapstructure:"burst_limit"`
	BurstWindow       time.Duration `json:"burst_window" mapstructure:"burst_window"`
}

// Validate checks the policy parameters against their allowed ranges.
func (p ServicePolicy) Validate() error {
	if strings.TrimSpace(p.Service) == "" {
		return &ConfigInvalidError{Reason: "service is required"}
	}
	if p.RequestsPerMinute <= 0 {
		return &ConfigInvalidError{Service: p.Service, Reason: "requests_per_minute must be positive"}
	}
	if p.RequestsPerHour <= 0 {
		return &ConfigInvalidError{Service: p.Service, Reason: "requests_per_hour must be positive"}
	}
	if p.RequestsPerHour < p.RequestsPerMinute {
		return &ConfigInvalidError{Service: p.Service, Reason: "requests_per_hour must be at least requests_per_minute"}
	}
	if p.BurstLimit <= 0 {
		return &ConfigInvalidError{Service: p.Service, Reason: "burst_limit must be positive"}
	}
	if p.BurstWindow <= 0 {
		return &ConfigInvalidError{Service: p.Service, Reason: "burst_window must be positive"}
	}
	if p.BurstWindow > time.Minute {
		return &ConfigInvalidError{Service: p.Service, Reason: "burst_window must not exceed one minute"}
	}
	return nil
}

// DefaultBurstWindow applies when a policy does not set one.
const DefaultBurstWindow = 10 * time.Second

// DefaultPolicies provides conservative defaults for the public data sources
// the discovery modules query.
var DefaultPolicies = map[string]ServicePolicy{
	"bgp_he_net":     {Service: "bgp_he_net", RequestsPerMinute: 30, RequestsPerHour: 1000, BurstLimit: 5, BurstWindow: DefaultBurstWindow},
	"crt_sh":         {Service: "crt_sh", RequestsPerMinute: 60, RequestsPerHour: 2000, BurstLimit: 10, BurstWindow: DefaultBurstWindow},
	"dnsdumpster":    {Service: "dnsdumpster", RequestsPerMinute: 10, RequestsPerHour: 100, BurstLimit: 3, BurstWindow: DefaultBurstWindow},
	"shodan":         {Service: "shodan", RequestsPerMinute: 10, RequestsPerHour: 100, BurstLimit: 2, BurstWindow: DefaultBurstWindow},
	"virustotal":     {Service: "virustotal", RequestsPerMinute: 4, RequestsPerHour: 500, BurstLimit: 1, BurstWindow: DefaultBurstWindow},
	"censys":         {Service: "censys", RequestsPerMinute: 10, RequestsPerHour: 1000, BurstLimit: 3, BurstWindow: DefaultBurstWindow},
	"securitytrails": {Service: "securitytrails", RequestsPerMinute: 10, RequestsPerHour: 1000, BurstLimit: 3, BurstWindow: DefaultBurstWindow},
	"alienvault_otx": {Service: "alienvault_otx", RequestsPerMinute: 30, RequestsPerHour: 2000, BurstLimit: 5, BurstWindow: DefaultBurstWindow},
	"dns_resolution": {Service: "dns_resolution", RequestsPerMinute: 120, RequestsPerHour: 5000, BurstLimit: 20, BurstWindow: DefaultBurstWindow},
}

// FallbackPolicy returns the policy used for services without an explicit
// configuration.
func FallbackPolicy(service string) ServicePolicy {
	return ServicePolicy{
		Service:           service,
		RequestsPerMinute: 30,
		RequestsPerHour:   1000,
		BurstLimit:        5,
		BurstWindow:       DefaultBurstWindow,
	}
}

// Outcome classifies a completed external call. Classification is the
// caller's responsibility, since only the discovery module understands each
// upstream's response semantics.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeTransient
	OutcomePermanent
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransient:
		return "transient_network"
	case OutcomePermanent:
		return "permanent"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Retryable reports whether a call with this outcome may be retried.
func (o Outcome) Retryable() bool {
	return o == OutcomeRateLimited || o == OutcomeTransient
}

// Usage is a read-only view of a service's current window occupancy.
type Usage struct {
	Service       string        `json:"service"`
	MinuteUsed    int           `json:"requests_last_minute"`
	MinuteLimit   int           `json:"limit_per_minute"`
	HourUsed      int           `json:"requests_last_hour"`
	HourLimit     int           `json:"limit_per_hour"`
	BurstUsed     int           `json:"requests_in_burst_window"`
	BurstLimit    int           `json:"burst_limit"`
	BurstWindow   time.Duration `json:"burst_window"`
	BreakerStatus string        `json:"breaker_status"`
	AsOf          time.Time     `json:"as_of"`
}

// AvailableMinute returns the remaining per-minute headroom.
func (u Usage) AvailableMinute() int {
	return maxInt(0, u.MinuteLimit-u.MinuteUsed)
}

// AvailableHour returns the remaining per-hour headroom.
func (u Usage) AvailableHour() int {
	return maxInt(0, u.HourLimit-u.HourUsed)
}

// MetricsSnapshot is a consistent copy of a service's acquisition counters.
type MetricsSnapshot struct {
	Total            int64         `json:"total"`
	GrantedImmediate int64         `json:"granted_immediate"`
	GrantedAfterWait int64         `json:"granted_after_wait"`
	Denied           int64         `json:"denied"`
	SumWait          time.Duration `json:"sum_wait"`
	MaxWait          time.Duration `json:"max_wait"`
	LastRequestAt    *time.Time    `json:"last_request_at,omitempty"`
	LastDeniedAt     *time.Time    `json:"last_denied_at,omitempty"`
}

// AverageWait returns the mean wait across granted-after-wait acquisitions.
func (m MetricsSnapshot) AverageWait() time.Duration {
	if m.GrantedAfterWait == 0 {
		return 0
	}
	return m.SumWait / time.Duration(m.GrantedAfterWait)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
