package http

import (
	"context"
	"net/http"
	"time"

	"moneytrack/internal/log"
)

const readyTimeout = 5 * time.Second

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks the dependencies behind the Ready hook.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			NewJSONResponse().Status(http.StatusServiceUnavailable).
				Body(map[string]string{"status": "not_ready", "error": err.Error()}).
				Write(w)
			return
		}
	}

	lm := s.limiter.GetMetrics()
	dm := s.detector.GetMetrics()
	tm := s.tracer.GetMetrics()
	NewJSONResponse().Body(map[string]any{
		"status": "ready",
		"metrics": map[string]int64{
			"total_requests":       tm.TotalRequests,
			"avg_response_micros":  tm.AverageResponseTime,
			"rate_limited":         lm.TotalHits,
			"rate_limit_clients":   lm.ClientCount,
			"suspicious_requests":  dm.SuspiciousRequests,
			"invalid_ip_forwarded": dm.InvalidIPAttempts,
		},
	}).Write(w)
}
