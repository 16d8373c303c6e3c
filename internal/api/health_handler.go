package api

import (
	"context"
	"net/http"
	"time"
)

// healthProbeTimeout bounds the ledger probe made by /health.
const healthProbeTimeout = 5 * time.Second

// HealthResponse is the JSON response for the /health endpoint
type HealthResponse struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	Version          string `json:"version"`
	WebSocketClients int    `json:"websocket_clients"`
	Reason           string `json:"reason,omitempty"`
}

// handleHealthCheck handles GET /health for load balancer probes. It reports
// unhealthy when the server is stopped or the ledger cannot be read.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	startedAt := s.startedAt
	s.mu.RUnlock()

	resp := HealthResponse{
		Status:  "healthy",
		Version: s.version,
	}
	if s.wsHub != nil {
		resp.WebSocketClients = s.wsHub.ClientCount()
	}

	if !running {
		resp.Status = "unhealthy"
		resp.Reason = "server not running"
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Uptime = time.Since(startedAt).Round(time.Second).String()

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()
	if _, err := s.reads.ContractStats(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Reason = "ledger unreachable"
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}
