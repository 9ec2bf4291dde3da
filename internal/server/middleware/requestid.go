package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID on both request and response.
const RequestIDHeader = "X-Request-ID"

// requestIDContextKey is a custom type to avoid context key collisions
type requestIDContextKey string

const RequestIDContextKey requestIDContextKey = "request_id"

// RequestID assigns each request the ID used for error correlation. A
// caller-supplied X-Request-ID is honored; otherwise a UUID is generated.
// The ID is echoed on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from ctx, or "" when none was set.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return requestID
	}
	return ""
}
