// Package tracing carries request identity through contexts and wraps
// OpenTelemetry span handling.
package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader is read from inbound requests and echoed on responses.
const RequestIDHeader = "X-Request-ID"

type requestKey struct{}

// requestInfo is what the HTTP middleware knows about the request in flight.
type requestInfo struct {
	id    string
	start time.Time
}

// GenerateRequestID returns "req_" followed by a random UUID.
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// BeginRequest tags ctx with the request id and the time it was received.
func BeginRequest(ctx context.Context, requestID string, start time.Time) context.Context {
	return context.WithValue(ctx, requestKey{}, requestInfo{id: requestID, start: start})
}

// RequestID returns the id set by BeginRequest, or "" outside a request.
func RequestID(ctx context.Context) string {
	info, _ := ctx.Value(requestKey{}).(requestInfo)
	return info.id
}

// Elapsed is the time since BeginRequest, or 0 outside a request.
func Elapsed(ctx context.Context) time.Duration {
	info, ok := ctx.Value(requestKey{}).(requestInfo)
	if !ok || info.start.IsZero() {
		return 0
	}
	return time.Since(info.start)
}
