package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// readTimeout bounds every ledger read made on behalf of a request.
const readTimeout = 20 * time.Second

// PendingResponse is returned with 202 while a composite read is still
// resolving. Clients retry.
type PendingResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ResolveResponse maps a wallet to its user ID.
type ResolveResponse struct {
	Address string       `json:"address"`
	UserID  types.UserID `json:"user_id"`
}

// PayoutResponse carries the total payout of one stake in base units.
type PayoutResponse struct {
	UserID types.UserID `json:"user_id"`
	Index  uint64       `json:"index"`
	Payout *big.Int     `json:"payout"`
}

func (s *Server) readContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), readTimeout)
}

// userIDParam parses the {id} path segment.
func (s *Server) userIDParam(w http.ResponseWriter, r *http.Request) (types.UserID, bool) {
	id, err := ledger.ParseUserID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return types.UserID{}, false
	}
	return id, true
}

// writeReadError maps ledger read errors onto HTTP statuses.
func (s *Server) writeReadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrPending):
		s.writeJSON(w, http.StatusAccepted, PendingResponse{Status: "pending", Reason: err.Error()})
	case errors.Is(err, ledger.ErrNotEnabled):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotRegistered):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "ledger read timed out")
	default:
		logging.Warn("ledger read failed",
			"path", r.URL.Path,
			logging.Err(err),
			logging.Component("api"))
		s.writeError(w, http.StatusBadGateway, "ledger read failed")
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.readContext(r)
	defer cancel()

	cfg, err := s.reads.ContractConfig(ctx)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.readContext(r)
	defer cancel()

	stats, err := s.reads.ContractStats(ctx)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePartners(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.readContext(r)
	defer cancel()

	partners, err := s.reads.Partners(ctx)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	if partners == nil {
		partners = []types.Partner{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"partners": partners,
		"count":    len(partners),
	})
}

// handleDashboard serves the assembled dashboard of one user.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.readContext(r)
	defer cancel()

	d, err := s.dashboards.Load(ctx, id)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	if d == nil {
		s.writeError(w, http.StatusNotFound, "user not registered")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.readContext(r)
	defer cancel()

	summary, err := s.reads.LevelsSummary(ctx, id)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleLevelUsers lists one downline level. Levels are numbered 1..20.
func (s *Server) handleLevelUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	level, err := strconv.Atoi(r.PathValue("level"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "level must be a number")
		return
	}
	ctx, cancel := s.readContext(r)
	defer cancel()

	users, err := s.reads.LevelUsers(ctx, id, level)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.readContext(r)
	defer cancel()

	progress, err := s.reads.RewardProgress(ctx, id)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleStakePayout(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "stake index must be a non-negative number")
		return
	}
	ctx, cancel := s.readContext(r)
	defer cancel()

	payout, err := s.reads.StakePayout(ctx, id, index)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PayoutResponse{UserID: id, Index: index, Payout: payout})
}

// handleResolve maps a wallet address to its user ID. Unregistered wallets
// are 404.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(r.PathValue("address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := s.readContext(r)
	defer cancel()

	id, err := s.reads.ResolveUserID(ctx, addr)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	if id.IsZero() {
		s.writeError(w, http.StatusNotFound, "address not registered")
		return
	}
	s.writeJSON(w, http.StatusOK, ResolveResponse{Address: addr.Hex(), UserID: id})
}

// writeJSON writes JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("response encode failed", logging.Err(err), logging.Component("api"))
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
