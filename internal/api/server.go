package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/stakedeck/stakedeck/internal/config"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/internal/metrics"
	"github.com/stakedeck/stakedeck/internal/util"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// Reads is the ledger read surface served over HTTP. *ledger.Gateway
// implements it.
type Reads interface {
	ContractConfig(ctx context.Context) (*types.ContractConfig, error)
	ContractStats(ctx context.Context) (*types.ContractStats, error)
	Partners(ctx context.Context) ([]types.Partner, error)
	LevelsSummary(ctx context.Context, id types.UserID) (*types.LevelsSummary, error)
	LevelUsers(ctx context.Context, id types.UserID, level int) (*types.LevelUsers, error)
	RewardProgress(ctx context.Context, id types.UserID) (*types.RewardProgress, error)
	StakePayout(ctx context.Context, id types.UserID, index uint64) (*big.Int, error)
	ResolveUserID(ctx context.Context, addr common.Address) (types.UserID, error)
}

// Dashboards loads assembled dashboards and fans out invalidations.
// *dashboard.Service implements it.
type Dashboards interface {
	Load(ctx context.Context, id types.UserID) (*types.UserDashboard, error)
	Invalidate(id types.UserID)
	Subscribe(fn func(types.UserID)) (cancel func())
}

// Server is the read-only HTTP API server
type Server struct {
	config     *ServerConfig
	reads      Reads
	dashboards Dashboards
	metrics    *metrics.PrometheusCollector
	version    string

	httpServer *http.Server
	listener   net.Listener
	mu         sync.RWMutex
	running    bool
	startedAt  time.Time

	wsHub       *WebSocketHub
	unsubscribe func()

	// Per-IP rate limiters
	rateLimiters sync.Map

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// rateLimiterEntry holds a rate limiter and the last time it was used
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	Addr string

	// Rate limiting, per client IP
	RateLimit      int // Requests per minute, 0 disables
	RateLimitBurst int

	// Proxy trust (only enable behind a trusted reverse proxy)
	TrustProxy bool

	AllowedOrigins []string

	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	EnableWebSocket bool
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:              "127.0.0.1:8545",
		RateLimit:         120,
		RateLimitBurst:    20,
		AllowedOrigins:    []string{"*"},
		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		EnableWebSocket:   true,
	}
}

// ServerConfigFrom maps the api section of the application config.
func ServerConfigFrom(cfg config.APIConfig) *ServerConfig {
	sc := DefaultServerConfig()
	sc.Addr = cfg.ListenAddr
	sc.AllowedOrigins = append([]string(nil), cfg.CORSOrigins...)
	sc.EnableWebSocket = cfg.WebSocketEnabled
	if cfg.RateLimitWindowSecs > 0 {
		sc.RateLimit = cfg.RateLimitRequests * 60 / cfg.RateLimitWindowSecs
	} else {
		sc.RateLimit = cfg.RateLimitRequests
	}
	sc.RateLimitBurst = max(1, sc.RateLimit/6)
	if cfg.ReadTimeoutSecs > 0 {
		sc.ReadHeaderTimeout = time.Duration(cfg.ReadTimeoutSecs) * time.Second
	}
	if cfg.WriteTimeoutSecs > 0 {
		sc.WriteTimeout = time.Duration(cfg.WriteTimeoutSecs) * time.Second
	}
	if cfg.IdleTimeoutSecs > 0 {
		sc.IdleTimeout = time.Duration(cfg.IdleTimeoutSecs) * time.Second
	}
	return sc
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes collector on /metrics and records per-route counts.
func WithMetrics(collector *metrics.PrometheusCollector) Option {
	return func(s *Server) { s.metrics = collector }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new HTTP API server
func NewServer(cfg *ServerConfig, reads Reads, dashboards Dashboards, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}

	s := &Server{
		config:     cfg,
		reads:      reads,
		dashboards: dashboards,
		version:    "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.EnableWebSocket {
		s.wsHub = NewWebSocketHub()
		if s.metrics != nil {
			s.wsHub.onConnect = s.metrics.IncrementConnections
			s.wsHub.onDisconnect = s.metrics.DecrementConnections
		}
	}

	return s
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.listener = ln
	s.running = true
	s.startedAt = time.Now()

	if s.config.RateLimit > 0 {
		s.wg.Add(1)
		util.SafeGoWithName("api-ratelimit-cleanup", func() {
			defer s.wg.Done()
			s.rateLimiterCleanup(ctx)
		})
	}

	if s.wsHub != nil {
		s.wg.Add(1)
		util.SafeGoWithName("api-websocket-hub", func() {
			defer s.wg.Done()
			s.wsHub.Run(ctx)
		})
		s.unsubscribe = s.dashboards.Subscribe(s.broadcastInvalidation)
	}

	// WriteTimeout stays 0 so websocket connections survive; REST handlers
	// are bounded by the request context deadline instead.
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	s.wg.Add(1)
	util.SafeGoWithName("api-http", func() {
		defer s.wg.Done()
		logging.Info("HTTP API server starting",
			"addr", ln.Addr().String(),
			logging.Component("api"))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTP server error", logging.Err(err), logging.Component("api"))
		}
	})

	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down and waits for background goroutines.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("HTTP server shutdown: %w", shutdownErr)
		}
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()
	s.wg.Wait()

	logging.Info("API server stopped", logging.Component("api"))
	return err
}

// ApplyConfig swaps in reloaded rate limit and CORS settings. Listen address
// and timeouts need a restart.
func (s *Server) ApplyConfig(cfg *ServerConfig) {
	s.mu.Lock()
	next := *s.config
	next.RateLimit = cfg.RateLimit
	next.RateLimitBurst = cfg.RateLimitBurst
	next.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	next.TrustProxy = cfg.TrustProxy
	s.config = &next
	s.mu.Unlock()

	s.rateLimiters.Range(func(key, _ any) bool {
		s.rateLimiters.Delete(key)
		return true
	})
	logging.Info("API settings reloaded",
		"rate_limit", cfg.RateLimit,
		"origins", strings.Join(cfg.AllowedOrigins, ","),
		logging.Component("api"))
}

func (s *Server) settings() *ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Handler builds the router with all middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealthCheck)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /v1/config", s.withMiddleware(s.handleConfig))
	mux.HandleFunc("GET /v1/stats", s.withMiddleware(s.handleStats))
	mux.HandleFunc("GET /v1/partners", s.withMiddleware(s.handlePartners))
	mux.HandleFunc("GET /v1/users/{id}/dashboard", s.withMiddleware(s.handleDashboard))
	mux.HandleFunc("GET /v1/users/{id}/levels", s.withMiddleware(s.handleLevels))
	mux.HandleFunc("GET /v1/users/{id}/levels/{level}", s.withMiddleware(s.handleLevelUsers))
	mux.HandleFunc("GET /v1/users/{id}/rewards", s.withMiddleware(s.handleRewards))
	mux.HandleFunc("GET /v1/users/{id}/stakes/{index}/payout", s.withMiddleware(s.handleStakePayout))
	mux.HandleFunc("GET /v1/resolve/{address}", s.withMiddleware(s.handleResolve))

	if s.wsHub != nil {
		mux.HandleFunc("GET /v1/ws", s.withMiddleware(s.handleWebSocket))
	}

	return s.globalCORSMiddleware(mux)
}

// globalCORSMiddleware wraps the handler tree with CORS headers so preflight
// requests and error responses always carry them.
func (s *Server) globalCORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withMiddleware applies per-IP rate limiting and response accounting.
func (s *Server) withMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if s.metrics != nil {
			defer func() {
				s.metrics.RecordHTTP(r.Pattern, fmt.Sprintf("%d", rec.status))
			}()
		}

		cfg := s.settings()
		if cfg.RateLimit > 0 {
			ip := s.extractClientIP(r, cfg.TrustProxy)
			if !s.getRateLimiter(ip, cfg).Allow() {
				logging.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					logging.Component("api"))
				rec.Header().Set("Retry-After", "60")
				s.writeError(rec, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		handler(rec, r)
	}
}

// statusRecorder captures the status code for metrics. It forwards Hijack
// so websocket upgrades still work.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// getRateLimiter returns the rate limiter for the given IP address,
// creating one on first use.
func (s *Server) getRateLimiter(ip string, cfg *ServerConfig) *rate.Limiter {
	now := time.Now()

	if val, ok := s.rateLimiters.Load(ip); ok {
		entry := val.(*rateLimiterEntry)
		entry.lastSeen = now
		return entry.limiter
	}

	// Requests per minute to requests per second
	rps := rate.Limit(float64(cfg.RateLimit) / 60.0)
	entry := &rateLimiterEntry{
		limiter:  rate.NewLimiter(rps, max(1, cfg.RateLimitBurst)),
		lastSeen: now,
	}
	actual, _ := s.rateLimiters.LoadOrStore(ip, entry)
	return actual.(*rateLimiterEntry).limiter
}

// extractClientIP uses proxy headers only when trustProxy is set.
func (s *Server) extractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if cfIP := r.Header.Get("CF-Connecting-IP"); cfIP != "" {
			return strings.TrimSpace(cfIP)
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (s *Server) rateLimiterCleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupRateLimiters(time.Now().Add(-10 * time.Minute))
		}
	}
}

// cleanupRateLimiters removes limiters not seen since staleBefore
func (s *Server) cleanupRateLimiters(staleBefore time.Time) int {
	var cleaned int
	s.rateLimiters.Range(func(key, value any) bool {
		if value.(*rateLimiterEntry).lastSeen.Before(staleBefore) {
			s.rateLimiters.Delete(key)
			cleaned++
		}
		return true
	})

	if cleaned > 0 {
		logging.Debug("cleaned up stale rate limiters",
			"count", cleaned,
			logging.Component("api"))
	}
	return cleaned
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.settings().AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// setCORSHeaders sets CORS headers on the response
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	if !s.originAllowed(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "86400")
	if origin != "*" {
		w.Header().Add("Vary", "Origin")
	}
}
