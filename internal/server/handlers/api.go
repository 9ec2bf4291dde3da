// Package handlers implements the HTTP status server endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/core/governor"
	apperrors "github.com/netlens/netlens/internal/errors"
)

// API serves governor state over HTTP: window occupancy, counters, and
// policy administration.
type API struct {
	gov *governor.Governor
}

// NewAPI creates the governor API handler set.
func NewAPI(gov *governor.Governor) *API {
	return &API{gov: gov}
}

// Usage handles GET /api/v1/usage
func (a *API) Usage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.gov.AllUsage())
}

// ServiceUsage handles GET /api/v1/usage/{service}
func (a *API) ServiceUsage(w http.ResponseWriter, r *http.Request) {
	service := strings.TrimSpace(chi.URLParam(r, "service"))
	if service == "" {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("service is required"))
		return
	}
	writeJSON(w, http.StatusOK, a.gov.Usage(service))
}

// Metrics handles GET /api/v1/metrics
func (a *API) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.gov.AllMetrics())
}

// ServiceMetrics handles GET /api/v1/metrics/{service}
func (a *API) ServiceMetrics(w http.ResponseWriter, r *http.Request) {
	service := strings.TrimSpace(chi.URLParam(r, "service"))
	if service == "" {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("service is required"))
		return
	}
	writeJSON(w, http.StatusOK, a.gov.Metrics(service))
}

// ResetMetrics handles POST /api/v1/metrics/reset. An empty or missing
// service parameter resets every service.
func (a *API) ResetMetrics(w http.ResponseWriter, r *http.Request) {
	service := strings.TrimSpace(r.URL.Query().Get("service"))
	a.gov.ResetMetrics(service)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Policies handles GET /api/v1/policies
func (a *API) Policies(w http.ResponseWriter, r *http.Request) {
	policies := make([]core.ServicePolicy, 0)
	for _, service := range a.gov.Services() {
		policies = append(policies, a.gov.Policy(service))
	}
	writeJSON(w, http.StatusOK, policies)
}

// ServicePolicy handles GET /api/v1/policies/{service}
func (a *API) ServicePolicy(w http.ResponseWriter, r *http.Request) {
	service := strings.TrimSpace(chi.URLParam(r, "service"))
	if service == "" {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("service is required"))
		return
	}
	writeJSON(w, http.StatusOK, a.gov.Policy(service))
}

// policyRequest is the PUT body for policy updates. BurstWindow accepts a
// duration string like "10s".
type policyRequest struct {
	RequestsPerMinute int    `json:"requests_per_minute"`
	RequestsPerHour   int    `json:"requests_per_hour"`
	BurstLimit        int    `json:"burst_limit"`
	BurstWindow       string `json:"burst_window,omitempty"`
}

// SetPolicy handles PUT /api/v1/policies/{service}
func (a *API) SetPolicy(w http.ResponseWriter, r *http.Request) {
	service := strings.TrimSpace(chi.URLParam(r, "service"))
	if service == "" {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("service is required"))
		return
	}

	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("invalid policy body: "+err.Error()))
		return
	}

	policy := core.ServicePolicy{
		Service:           service,
		RequestsPerMinute: req.RequestsPerMinute,
		RequestsPerHour:   req.RequestsPerHour,
		BurstLimit:        req.BurstLimit,
	}
	if strings.TrimSpace(req.BurstWindow) != "" {
		window, err := time.ParseDuration(req.BurstWindow)
		if err != nil {
			apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("invalid burst_window: "+err.Error()))
			return
		}
		policy.BurstWindow = window
	}

	if err := a.gov.SetPolicy(policy); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.gov.Policy(service))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
