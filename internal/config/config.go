package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stakedeck/stakedeck/internal/chain"
	"github.com/stakedeck/stakedeck/internal/units"
)

// Environment overrides applied after the file is parsed.
const (
	EnvRPCURL         = "STAKEDECK_RPC_URL"
	EnvWalletPassword = "STAKEDECK_WALLET_PASSWORD"
)

// Config represents the complete client configuration
type Config struct {
	Chain     ChainConfig     `yaml:"chain"`
	Contracts ContractsConfig `yaml:"contracts"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Guards    GuardsConfig    `yaml:"guards"`
	API       APIConfig       `yaml:"api"`
	ShareGate ShareGateConfig `yaml:"sharegate"`
	Log       LogConfig       `yaml:"log"`
	Mock      bool            `yaml:"mock"` // Use the in-memory ledger instead of the chain
}

// ChainConfig contains RPC and transaction settings
type ChainConfig struct {
	RPCURLs            []string `yaml:"rpc_urls"`
	WSEndpoint         string   `yaml:"ws_endpoint"` // Optional; events fall back to log polling
	ChainID            int64    `yaml:"chain_id"`
	BlockConfirmations int      `yaml:"block_confirmations"`
	MaxGasPriceGwei    int64    `yaml:"max_gas_price_gwei"` // 0 = unlimited
	PollIntervalSecs   int      `yaml:"poll_interval_secs"`
	RPCRateLimit       float64  `yaml:"rpc_rate_limit"` // Reads per second through the gateway, 0 = unlimited
}

// ContractsConfig contains deployed contract addresses
type ContractsConfig struct {
	Platform    string `yaml:"platform"`
	StableToken string `yaml:"stable_token"`
}

// WalletConfig contains keystore settings
type WalletConfig struct {
	KeystoreDir  string `yaml:"keystore_dir"`
	Address      string `yaml:"address"`
	PasswordFile string `yaml:"password_file"`

	// Password is only ever populated from the environment.
	Password string `yaml:"-"`
}

// GuardsConfig contains pre-transaction guard settings
type GuardsConfig struct {
	MinGasReserve string `yaml:"min_gas_reserve"` // Native coin, decimal string
}

// APIConfig contains read API server settings
type APIConfig struct {
	ListenAddr          string   `yaml:"listen_addr"`
	RateLimitRequests   int      `yaml:"rate_limit_requests"`    // Max requests per window per IP
	RateLimitWindowSecs int      `yaml:"rate_limit_window_secs"` // Window duration in seconds
	CORSOrigins         []string `yaml:"cors_origins"`
	WebSocketEnabled    bool     `yaml:"websocket_enabled"`
	ReadTimeoutSecs     int      `yaml:"read_timeout_secs"`
	WriteTimeoutSecs    int      `yaml:"write_timeout_secs"`
	IdleTimeoutSecs     int      `yaml:"idle_timeout_secs"`
}

// ShareGateConfig contains settings for the daily share counter
type ShareGateConfig struct {
	Backend    string `yaml:"backend"` // memory or redis
	RedisURL   string `yaml:"redis_url"`
	DailyLimit int    `yaml:"daily_limit"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// DefaultAPIConfig returns the default API configuration
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		ListenAddr:          "127.0.0.1:8545",
		RateLimitRequests:   120,
		RateLimitWindowSecs: 60,
		CORSOrigins:         []string{"*"},
		WebSocketEnabled:    true,
		ReadTimeoutSecs:     30,
		WriteTimeoutSecs:    30,
		IdleTimeoutSecs:     120,
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".stakedeck")

	return &Config{
		Chain: ChainConfig{
			RPCURLs:            []string{"https://bsc-dataseed.binance.org"},
			ChainID:            56,
			BlockConfirmations: 1,
			MaxGasPriceGwei:    20,
			PollIntervalSecs:   15,
			RPCRateLimit:       20,
		},
		Wallet: WalletConfig{
			KeystoreDir: filepath.Join(dataDir, "keystore"),
		},
		Guards: GuardsConfig{
			MinGasReserve: "0.003",
		},
		API: DefaultAPIConfig(),
		ShareGate: ShareGateConfig{
			Backend:    "memory",
			DailyLimit: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from file. A missing file yields the defaults
// unvalidated, so callers can still switch on mock mode before Validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Mock && len(c.Chain.RPCURLs) == 0 {
		return fmt.Errorf("at least one rpc_url is required")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("invalid chain_id: %d", c.Chain.ChainID)
	}
	if c.Chain.BlockConfirmations < 0 {
		return fmt.Errorf("block_confirmations must not be negative")
	}
	if c.Chain.MaxGasPriceGwei < 0 {
		return fmt.Errorf("max_gas_price_gwei must not be negative")
	}
	if c.Chain.RPCRateLimit < 0 {
		return fmt.Errorf("rpc_rate_limit must not be negative")
	}

	if _, err := c.MinGasReserve(); err != nil {
		return err
	}

	if c.API.RateLimitRequests < 0 || c.API.RateLimitWindowSecs < 0 {
		return fmt.Errorf("api rate limit must not be negative")
	}

	switch c.ShareGate.Backend {
	case "memory":
	case "redis":
		if c.ShareGate.RedisURL == "" {
			return fmt.Errorf("sharegate redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid sharegate backend: %s", c.ShareGate.Backend)
	}
	if c.ShareGate.DailyLimit < 1 {
		return fmt.Errorf("sharegate daily_limit must be at least 1")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	if !c.Mock {
		addrs := []struct{ name, addr string }{
			{"contracts.platform", c.Contracts.Platform},
			{"contracts.stable_token", c.Contracts.StableToken},
		}
		for _, a := range addrs {
			if err := validateEthAddress(a.name, a.addr); err != nil {
				return err
			}
		}
	}
	if c.Wallet.Address != "" {
		if err := validateEthAddress("wallet.address", c.Wallet.Address); err != nil {
			return err
		}
	}

	return nil
}

// MinGasReserve parses the guard reserve into wei.
func (c *Config) MinGasReserve() (*big.Int, error) {
	if c.Guards.MinGasReserve == "" {
		return nil, nil
	}
	v, err := units.ToFixedPoint(c.Guards.MinGasReserve)
	if err != nil {
		return nil, fmt.Errorf("invalid guards.min_gas_reserve: %w", err)
	}
	return v, nil
}

// ChainClientConfig converts the chain section into a chain.Config.
func (c *Config) ChainClientConfig() *chain.Config {
	cc := chain.DefaultConfig()
	cc.RPCURLs = append([]string(nil), c.Chain.RPCURLs...)
	cc.WSEndpoint = c.Chain.WSEndpoint
	cc.ChainID = c.Chain.ChainID
	cc.BlockConfirmations = c.Chain.BlockConfirmations
	if c.Chain.MaxGasPriceGwei > 0 {
		cc.MaxGasPrice = new(big.Int).Mul(big.NewInt(c.Chain.MaxGasPriceGwei), big.NewInt(1e9))
	} else {
		cc.MaxGasPrice = nil
	}
	return cc
}

// PollInterval returns the event poll interval.
func (c *Config) PollInterval() time.Duration {
	if c.Chain.PollIntervalSecs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Chain.PollIntervalSecs) * time.Second
}

// applyEnv overlays environment overrides. The RPC override is placed first
// so it wins endpoint ranking ties.
func (c *Config) applyEnv() {
	if url := strings.TrimSpace(os.Getenv(EnvRPCURL)); url != "" {
		urls := []string{url}
		for _, u := range c.Chain.RPCURLs {
			if u != url {
				urls = append(urls, u)
			}
		}
		c.Chain.RPCURLs = urls
	}
	if pw := os.Getenv(EnvWalletPassword); pw != "" {
		c.Wallet.Password = pw
	}
}

// validateEthAddress checks that an Ethereum address is 0x-prefixed, 40 hex chars, and non-zero.
func validateEthAddress(name, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s is required when mock is false", name)
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("%s must start with 0x, got %q", name, addr)
	}
	hexPart := addr[2:]
	if len(hexPart) != 40 {
		return fmt.Errorf("%s must be 42 characters (0x + 40 hex), got %d", name, len(addr))
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return fmt.Errorf("%s contains invalid hex characters: %w", name, err)
	}
	if strings.Trim(hexPart, "0") == "" {
		return fmt.Errorf("%s must not be the zero address", name)
	}
	return nil
}

// expandPaths expands ~ in all path fields
func (c *Config) expandPaths() {
	c.Wallet.KeystoreDir = expandPath(c.Wallet.KeystoreDir)
	c.Wallet.PasswordFile = expandPath(c.Wallet.PasswordFile)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".stakedeck", "config.yaml")
}

// EnsureDirectories creates the keystore directory
func (c *Config) EnsureDirectories() error {
	if c.Wallet.KeystoreDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Wallet.KeystoreDir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Wallet.KeystoreDir, err)
	}
	return nil
}
