package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/internal/config"
	"github.com/stakedeck/stakedeck/internal/dashboard"
	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/metrics"
	"github.com/stakedeck/stakedeck/internal/units"
	"github.com/stakedeck/stakedeck/pkg/types"
)

var (
	testOwner  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	rootWallet = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	userWallet = common.HexToAddress("0x00000000000000000000000000000000000000a2")

	rootID = types.MustUserID("ROOT1")
	userID = types.MustUserID("AB12")
)

type testEnv struct {
	server   *Server
	mock     *ledger.MockPlatform
	service  *dashboard.Service
	registry *metrics.PrometheusCollector
}

// newTestEnv builds a server over a mock ledger holding ROOT1 with one
// direct referral AB12.
func newTestEnv(t *testing.T, cfg *ServerConfig) *testEnv {
	t.Helper()
	m := ledger.NewMockPlatform(testOwner)
	if err := m.SeedUser(rootID, rootWallet, types.UserID{}); err != nil {
		t.Fatal(err)
	}
	if err := m.SeedUser(userID, userWallet, rootID); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := m.AddStake(rootID, units.MustFixedPoint("100"), now.Add(-48*time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	collector := metrics.NewPrometheusCollector(metrics.NewCollector())
	gw := ledger.NewGateway(m, ledger.WithObserver(collector))
	svc := dashboard.NewService(gw)
	if cfg == nil {
		cfg = DefaultServerConfig()
		cfg.RateLimit = 0
	}
	s := NewServer(cfg, gw, svc, WithMetrics(collector), WithVersion("test"))
	return &testEnv{server: s, mock: m, service: svc, registry: collector}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		setup    func(m *ledger.MockPlatform)
		wantCode int
		wantBody string
	}{
		{name: "config", path: "/v1/config", wantCode: http.StatusOK, wantBody: `"min_withdrawal"`},
		{
			name:     "config pending on failed getter",
			path:     "/v1/config",
			setup:    func(m *ledger.MockPlatform) { m.FailNext(ledger.GetterTier1, errors.New("rpc down")) },
			wantCode: http.StatusAccepted,
			wantBody: `"pending"`,
		},
		{name: "stats", path: "/v1/stats", wantCode: http.StatusOK},
		{
			name:     "stats upstream failure",
			path:     "/v1/stats",
			setup:    func(m *ledger.MockPlatform) { m.FailNext("getContractStats", errors.New("rpc down")) },
			wantCode: http.StatusBadGateway,
		},
		{name: "partners", path: "/v1/partners", wantCode: http.StatusOK, wantBody: `"count":0`},
		{name: "dashboard", path: "/v1/users/ROOT1/dashboard", wantCode: http.StatusOK, wantBody: `"ROOT1"`},
		{name: "dashboard unknown user", path: "/v1/users/ZZZZ/dashboard", wantCode: http.StatusNotFound},
		{name: "dashboard malformed id", path: "/v1/users/TOOLONG/dashboard", wantCode: http.StatusBadRequest},
		{name: "levels", path: "/v1/users/ROOT1/levels", wantCode: http.StatusOK},
		{name: "level users", path: "/v1/users/ROOT1/levels/1", wantCode: http.StatusOK, wantBody: `"AB12"`},
		{name: "level out of range", path: "/v1/users/ROOT1/levels/21", wantCode: http.StatusBadRequest},
		{name: "level zero", path: "/v1/users/ROOT1/levels/0", wantCode: http.StatusBadRequest},
		{name: "level not a number", path: "/v1/users/ROOT1/levels/one", wantCode: http.StatusBadRequest},
		{name: "rewards", path: "/v1/users/AB12/rewards", wantCode: http.StatusOK},
		{name: "stake payout", path: "/v1/users/ROOT1/stakes/0/payout", wantCode: http.StatusOK, wantBody: `"payout":`},
		{name: "stake payout bad index", path: "/v1/users/ROOT1/stakes/-1/payout", wantCode: http.StatusBadRequest},
		{name: "resolve", path: "/v1/resolve/" + userWallet.Hex(), wantCode: http.StatusOK, wantBody: `"user_id":"AB12"`},
		{name: "resolve unregistered", path: "/v1/resolve/0x00000000000000000000000000000000000000b9", wantCode: http.StatusNotFound},
		{name: "resolve zero address", path: "/v1/resolve/0x0000000000000000000000000000000000000000", wantCode: http.StatusBadRequest},
		{name: "resolve malformed", path: "/v1/resolve/0xnothex", wantCode: http.StatusBadRequest},
		{name: "unknown route", path: "/v1/nothing", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			if tt.setup != nil {
				tt.setup(env.mock)
			}

			rec := env.get(t, tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("GET %s = %d, want %d (body %s)", tt.path, rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandleDashboardShape(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get(t, "/v1/users/ROOT1/dashboard")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var d types.UserDashboard
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Profile.UserID != rootID {
		t.Errorf("user = %s, want %s", d.Profile.UserID, rootID)
	}
	if len(d.Stakes) != 1 {
		t.Errorf("stakes = %d, want 1", len(d.Stakes))
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.RateLimit = 60
	cfg.RateLimitBurst = 2
	env := newTestEnv(t, cfg)

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, env.get(t, "/v1/partners").Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("first requests = %v, want 200s within burst", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", codes[2])
	}

	rec := env.get(t, "/v1/partners")
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on 429")
	}

	// health is not rate limited
	if code := env.get(t, "/health").Code; code == http.StatusTooManyRequests {
		t.Error("health endpoint must not be rate limited")
	}
}

func TestApplyConfigResetsLimiters(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.RateLimit = 60
	cfg.RateLimitBurst = 1
	env := newTestEnv(t, cfg)

	env.get(t, "/v1/partners")
	if code := env.get(t, "/v1/partners").Code; code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 before reload, got %d", code)
	}

	next := DefaultServerConfig()
	next.RateLimit = 0
	next.AllowedOrigins = []string{"https://app.example"}
	env.server.ApplyConfig(next)

	if code := env.get(t, "/v1/partners").Code; code != http.StatusOK {
		t.Fatalf("expected 200 after disabling limits, got %d", code)
	}
	if !env.server.originAllowed("https://app.example") || env.server.originAllowed("https://evil.example") {
		t.Error("origins not reloaded")
	}
}

func TestCORS(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.RateLimit = 0
	cfg.AllowedOrigins = []string{"https://app.example"}
	env := newTestEnv(t, cfg)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantCode   int
	}{
		{"allowed origin", http.MethodGet, "https://app.example", "https://app.example", http.StatusOK},
		{"foreign origin", http.MethodGet, "https://evil.example", "", http.StatusOK},
		{"preflight", http.MethodOptions, "https://app.example", "https://app.example", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/partners", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestExtractClientIP(t *testing.T) {
	s := NewServer(DefaultServerConfig(), nil, nil)

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"remote addr", "10.0.0.1:5555", nil, false, "10.0.0.1"},
		{"ignores proxy headers when untrusted", "10.0.0.1:5555", map[string]string{"X-Forwarded-For": "1.2.3.4"}, false, "10.0.0.1"},
		{"forwarded for", "10.0.0.1:5555", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.2"}, true, "1.2.3.4"},
		{"cloudflare first", "10.0.0.1:5555", map[string]string{"CF-Connecting-IP": "5.6.7.8", "X-Forwarded-For": "1.2.3.4"}, true, "5.6.7.8"},
		{"real ip", "10.0.0.1:5555", map[string]string{"X-Real-IP": "9.9.9.9"}, true, "9.9.9.9"},
		{"no port", "10.0.0.1", nil, false, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := s.extractClientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("extractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanupRateLimiters(t *testing.T) {
	s := NewServer(DefaultServerConfig(), nil, nil)
	cfg := s.settings()

	s.getRateLimiter("1.1.1.1", cfg)
	s.getRateLimiter("2.2.2.2", cfg)
	if v, ok := s.rateLimiters.Load("1.1.1.1"); ok {
		v.(*rateLimiterEntry).lastSeen = time.Now().Add(-time.Hour)
	}

	if n := s.cleanupRateLimiters(time.Now().Add(-10 * time.Minute)); n != 1 {
		t.Fatalf("cleaned %d, want 1", n)
	}
	if _, ok := s.rateLimiters.Load("2.2.2.2"); !ok {
		t.Error("fresh limiter was removed")
	}
}

func TestServerConfigFrom(t *testing.T) {
	api := config.DefaultAPIConfig()
	api.ListenAddr = "0.0.0.0:9000"
	api.RateLimitRequests = 30
	api.RateLimitWindowSecs = 30
	api.CORSOrigins = []string{"https://a.example"}
	api.WebSocketEnabled = false
	api.ReadTimeoutSecs = 5

	sc := ServerConfigFrom(api)
	if sc.Addr != "0.0.0.0:9000" {
		t.Errorf("Addr = %q", sc.Addr)
	}
	if sc.RateLimit != 60 {
		t.Errorf("RateLimit = %d, want 60 per minute", sc.RateLimit)
	}
	if sc.RateLimitBurst != 10 {
		t.Errorf("RateLimitBurst = %d, want 10", sc.RateLimitBurst)
	}
	if sc.EnableWebSocket {
		t.Error("EnableWebSocket should follow config")
	}
	if sc.ReadHeaderTimeout != 5*time.Second {
		t.Errorf("ReadHeaderTimeout = %v", sc.ReadHeaderTimeout)
	}
	if len(sc.AllowedOrigins) != 1 || sc.AllowedOrigins[0] != "https://a.example" {
		t.Errorf("AllowedOrigins = %v", sc.AllowedOrigins)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.get(t, "/v1/stats")

	rec := env.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"stakedeck_ledger_reads_total",
		`stakedeck_http_requests_total{code="200",route="GET /v1/stats"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}

	rec = env.get(t, "/metrics?format=json")
	var m metrics.Metrics
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode json metrics: %v", err)
	}
	if m.ReadCounts["getContractStats"] == 0 {
		t.Errorf("read_counts = %v, want getContractStats", m.ReadCounts)
	}
}

func TestMetricsDisabled(t *testing.T) {
	s := NewServer(DefaultServerConfig(), nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStartStop(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Addr = "127.0.0.1:0"
	env := newTestEnv(t, cfg)

	ctx := context.Background()
	if err := env.server.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := env.server.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	resp, err := http.Get("http://" + env.server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d", resp.StatusCode)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := env.server.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := env.server.Stop(stopCtx); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}

func TestStartBindError(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Addr = "127.0.0.1:0"
	first := newTestEnv(t, cfg)
	if err := first.server.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer first.server.Stop(context.Background())

	cfg2 := DefaultServerConfig()
	cfg2.Addr = first.server.Addr()
	second := newTestEnv(t, cfg2)
	if err := second.server.Start(context.Background()); err == nil {
		second.server.Stop(context.Background())
		t.Fatal("expected bind error on a used port")
	}
}
