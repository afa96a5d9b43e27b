package main

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"wamirror/internal/metrics"
	"wamirror/internal/service"
	"wamirror/internal/tracing"
)

// handleMetrics returns current application metrics
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := tracing.RequestID(r.Context())
		traceID := tracing.TraceID(r.Context())

		snapshot := metrics.GetRegistry().Snapshot()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		if err := encoder.Encode(snapshot); err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: requestID,
				service.LogFieldTraceID:   traceID,
			}).WithError(err).Error("Failed to encode metrics response")

			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		s.logger.WithFields(logrus.Fields{
			service.LogFieldRequestID: requestID,
			service.LogFieldTraceID:   traceID,
			service.LogFieldEndpoint:  "/metrics",
		}).Debug("Metrics endpoint served")
	}
}
