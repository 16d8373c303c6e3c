package api

import (
	"net/http"
)

// handleMetrics serves Prometheus metrics, or the JSON snapshot when the
// client asks for ?format=json.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		s.writeError(w, http.StatusNotFound, "metrics disabled")
		return
	}

	if r.URL.Query().Get("format") == "json" {
		s.writeJSON(w, http.StatusOK, s.metrics.GetMetrics())
		return
	}
	s.metrics.PrometheusHandler().ServeHTTP(w, r)
}
