package config

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testPlatform = "0x1111111111111111111111111111111111111111"
	testToken    = "0x2222222222222222222222222222222222222222"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Contracts.Platform = testPlatform
	cfg.Contracts.StableToken = testToken
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Chain.ChainID != 56 {
		t.Errorf("expected chain ID 56, got %d", cfg.Chain.ChainID)
	}
	if len(cfg.Chain.RPCURLs) != 1 {
		t.Errorf("expected one default rpc url, got %v", cfg.Chain.RPCURLs)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected default log format 'json', got %s", cfg.Log.Format)
	}
	if cfg.ShareGate.Backend != "memory" {
		t.Errorf("expected memory sharegate backend, got %s", cfg.ShareGate.Backend)
	}
	if cfg.ShareGate.DailyLimit != 3 {
		t.Errorf("expected daily limit 3, got %d", cfg.ShareGate.DailyLimit)
	}
	if cfg.Mock {
		t.Error("mock should be off by default")
	}

	reserve, err := cfg.MinGasReserve()
	if err != nil {
		t.Fatalf("MinGasReserve() error: %v", err)
	}
	if reserve.Cmp(big.NewInt(3e15)) != 0 {
		t.Errorf("expected reserve 3e15 wei, got %s", reserve)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing contracts without mock",
			modify:  func(c *Config) { c.Contracts = ContractsConfig{} },
			wantErr: true,
		},
		{
			name: "missing contracts with mock",
			modify: func(c *Config) {
				c.Contracts = ContractsConfig{}
				c.Mock = true
			},
			wantErr: false,
		},
		{
			name:    "platform without 0x",
			modify:  func(c *Config) { c.Contracts.Platform = testPlatform[2:] },
			wantErr: true,
		},
		{
			name:    "platform too short",
			modify:  func(c *Config) { c.Contracts.Platform = "0x1234" },
			wantErr: true,
		},
		{
			name:    "token bad hex",
			modify:  func(c *Config) { c.Contracts.StableToken = "0xZZ22222222222222222222222222222222222222" },
			wantErr: true,
		},
		{
			name:    "zero address",
			modify:  func(c *Config) { c.Contracts.Platform = "0x0000000000000000000000000000000000000000" },
			wantErr: true,
		},
		{
			name:    "bad wallet address",
			modify:  func(c *Config) { c.Wallet.Address = "nope" },
			wantErr: true,
		},
		{
			name:    "no rpc urls",
			modify:  func(c *Config) { c.Chain.RPCURLs = nil },
			wantErr: true,
		},
		{
			name:    "zero chain id",
			modify:  func(c *Config) { c.Chain.ChainID = 0 },
			wantErr: true,
		},
		{
			name:    "negative confirmations",
			modify:  func(c *Config) { c.Chain.BlockConfirmations = -1 },
			wantErr: true,
		},
		{
			name:    "negative rpc rate limit",
			modify:  func(c *Config) { c.Chain.RPCRateLimit = -1 },
			wantErr: true,
		},
		{
			name:    "bad gas reserve",
			modify:  func(c *Config) { c.Guards.MinGasReserve = "abc" },
			wantErr: true,
		},
		{
			name:    "empty gas reserve uses guard default",
			modify:  func(c *Config) { c.Guards.MinGasReserve = "" },
			wantErr: false,
		},
		{
			name:    "unknown sharegate backend",
			modify:  func(c *Config) { c.ShareGate.Backend = "etcd" },
			wantErr: true,
		},
		{
			name:    "redis backend without url",
			modify:  func(c *Config) { c.ShareGate.Backend = "redis" },
			wantErr: true,
		},
		{
			name: "redis backend with url",
			modify: func(c *Config) {
				c.ShareGate.Backend = "redis"
				c.ShareGate.RedisURL = "redis://localhost:6379/0"
			},
			wantErr: false,
		},
		{
			name:    "zero daily limit",
			modify:  func(c *Config) { c.ShareGate.DailyLimit = 0 },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := validConfig()
	cfg.Chain.ChainID = 97
	cfg.API.ListenAddr = "0.0.0.0:9999"
	cfg.ShareGate.DailyLimit = 5

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Config file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected file permissions 0600, got %o", perm)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Chain.ChainID != 97 {
		t.Errorf("expected chain id 97, got %d", loaded.Chain.ChainID)
	}
	if loaded.API.ListenAddr != "0.0.0.0:9999" {
		t.Errorf("expected listen addr to round trip, got %s", loaded.API.ListenAddr)
	}
	if loaded.ShareGate.DailyLimit != 5 {
		t.Errorf("expected daily limit 5, got %d", loaded.ShareGate.DailyLimit)
	}
	if loaded.Contracts.Platform != testPlatform {
		t.Errorf("expected platform %s, got %s", testPlatform, loaded.Contracts.Platform)
	}
}

func TestSaveNeverWritesPassword(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	cfg := validConfig()
	cfg.Wallet.Password = "hunter2"
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Error("saved config contains the wallet password")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() of nonexistent file should not error, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Chain.ChainID != 56 {
		t.Errorf("expected default chain id 56, got %d", cfg.Chain.ChainID)
	}
}

func TestLoadMockDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("mock: true\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Mock {
		t.Error("expected mock mode")
	}
	if cfg.Chain.ChainID != 56 {
		t.Errorf("expected defaults to fill missing fields, got chain id %d", cfg.Chain.ChainID)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	if err := os.WriteFile(configPath, []byte("{{{{invalid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := validConfig()
	cfg.Chain.RPCURLs = []string{"https://a.example", "https://b.example"}
	if err := cfg.Save(configPath); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvRPCURL, "https://b.example")
	t.Setenv(EnvWalletPassword, "from-env")

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := []string{"https://b.example", "https://a.example"}
	if len(loaded.Chain.RPCURLs) != len(want) {
		t.Fatalf("rpc urls = %v, want %v", loaded.Chain.RPCURLs, want)
	}
	for i := range want {
		if loaded.Chain.RPCURLs[i] != want[i] {
			t.Errorf("rpc urls[%d] = %s, want %s", i, loaded.Chain.RPCURLs[i], want[i])
		}
	}
	if loaded.Wallet.Password != "from-env" {
		t.Errorf("expected password from env, got %q", loaded.Wallet.Password)
	}
}

func TestChainClientConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.WSEndpoint = "wss://example"
	cfg.Chain.MaxGasPriceGwei = 5
	cfg.Chain.BlockConfirmations = 3

	cc := cfg.ChainClientConfig()
	if cc.ChainID != 56 || cc.WSEndpoint != "wss://example" || cc.BlockConfirmations != 3 {
		t.Errorf("unexpected chain config: %+v", cc)
	}
	if cc.MaxGasPrice.Cmp(big.NewInt(5e9)) != 0 {
		t.Errorf("max gas price = %s, want 5e9", cc.MaxGasPrice)
	}

	cfg.Chain.MaxGasPriceGwei = 0
	if cfg.ChainClientConfig().MaxGasPrice != nil {
		t.Error("expected no gas price cap when max_gas_price_gwei is 0")
	}

	cc.RPCURLs[0] = "mutated"
	if cfg.Chain.RPCURLs[0] == "mutated" {
		t.Error("ChainClientConfig must copy the rpc url slice")
	}
}

func TestPollInterval(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.PollInterval(); got != 15*time.Second {
		t.Errorf("PollInterval() = %v, want 15s", got)
	}
	cfg.Chain.PollIntervalSecs = 0
	if got := cfg.PollInterval(); got != 15*time.Second {
		t.Errorf("PollInterval() with 0 = %v, want 15s", got)
	}
	cfg.Chain.PollIntervalSecs = 4
	if got := cfg.PollInterval(); got != 4*time.Second {
		t.Errorf("PollInterval() = %v, want 4s", got)
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(homeDir, "test")},
		{"~/.stakedeck", filepath.Join(homeDir, ".stakedeck")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := expandPath(tt.input); got != tt.expected {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Wallet.KeystoreDir = filepath.Join(t.TempDir(), "a", "keystore")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() error: %v", err)
	}
	info, err := os.Stat(cfg.Wallet.KeystoreDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("keystore dir not created: %v", err)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("expected config.yaml, got %s", path)
	}
	if filepath.Base(filepath.Dir(path)) != ".stakedeck" {
		t.Errorf("expected .stakedeck directory, got %s", path)
	}
}

func TestWatchReloads(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := validConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, configPath, func(c *Config) { reloaded <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	cfg.ShareGate.DailyLimit = 9
	if err := cfg.Save(configPath); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-reloaded:
		if c.ShareGate.DailyLimit != 9 {
			t.Errorf("reloaded daily limit = %d, want 9", c.ShareGate.DailyLimit)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error: %v", err)
	}
}

func TestWatchSkipsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := validConfig().Save(configPath); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, configPath, func(c *Config) { reloaded <- c })
	}()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configPath, []byte("log:\n  format: xml\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-reloaded:
		t.Errorf("invalid config should not be delivered, got %+v", c)
	case <-time.After(time.Second):
	}

	cancel()
	<-done
}
