// Package errors adapts internal error types to gofulmen error envelopes
// for the HTTP status server boundary.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/observability"
	"github.com/netlens/netlens/internal/server/middleware"
)

// User errors (400-level)

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INVALID_INPUT", message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("NOT_FOUND", message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("METHOD_NOT_ALLOWED", message)
}

func NewValidationError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("VALIDATION_FAILED", message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("CONFIG_INVALID", message)
}

// Traffic-governance errors

func NewRateLimitedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("RATE_LIMITED", message)
}

func NewCircuitOpenError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("CIRCUIT_OPEN", message)
}

// Server errors (500-level)

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INTERNAL_ERROR", message)
}

func NewStoreError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("STORE_ERROR", message)
}

// WrapInternal attaches correlation metadata and the wrapped error text.
func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = withWrappedError(envelope, err)
	return envelope
}

// extractCorrelationID gets correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope,
// translating the governor's typed errors to their API codes.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	var limited *core.RateLimitedError
	if stderrors.As(err, &limited) {
		env := NewRateLimitedError(limited.Error())
		env, _ = env.WithContext(map[string]interface{}{
			"service":     limited.Service,
			"retry_after": limited.Wait.String(),
		})
		return env
	}

	var open *core.CircuitOpenError
	if stderrors.As(err, &open) {
		env := NewCircuitOpenError(open.Error())
		env, _ = env.WithContext(map[string]interface{}{
			"service":  open.Service,
			"retry_in": open.RetryIn.String(),
		})
		return env
	}

	var invalid *core.ConfigInvalidError
	if stderrors.As(err, &invalid) {
		return NewConfigInvalidError(invalid.Error())
	}

	env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected error")
	env, _ = env.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}

	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}

	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case "INVALID_INPUT", "VALIDATION_FAILED", "CONFIG_INVALID":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "METHOD_NOT_ALLOWED":
		return http.StatusMethodNotAllowed
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	case "CIRCUIT_OPEN":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// ResponseDetails constructs API-safe details map by merging envelope details and context.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{})

	for key, value := range envelope.Details {
		details[key] = value
	}

	for key, value := range envelope.Context {
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}

	if len(details) == 0 {
		return nil
	}

	return details
}

// HTTPErrorDetail captures the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope finalizes the provided envelope and writes it as JSON.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}

	statusCode := HTTPStatusFromEnvelope(envelope)

	response := HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   ResponseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	}

	logHTTPError(envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}

	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}
