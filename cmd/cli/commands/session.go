package commands

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/internal/chain"
	"github.com/stakedeck/stakedeck/internal/config"
	"github.com/stakedeck/stakedeck/internal/dashboard"
	"github.com/stakedeck/stakedeck/internal/guard"
	"github.com/stakedeck/stakedeck/internal/identity"
	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/internal/staking"
	"github.com/stakedeck/stakedeck/internal/units"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// Mock ledger fixtures. The root account is the referrer every new mock
// wallet can register under.
var (
	MockRootID     = types.MustUserID("ROOT1")
	mockRootWallet = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	mockDemoWallet = common.HexToAddress("0x00000000000000000000000000000000000000d0")

	mockStableFunding = units.MustFixedPoint("10000")
	mockNativeFunding = units.MustFixedPoint("1")
)

// Session is the wiring shared by every command: config, the ledger behind
// the gateway, and the wallet acting on it.
type Session struct {
	Config     *config.Config
	Context    chain.Context
	Platform   common.Address
	Gateway    *ledger.Gateway
	Dashboards *dashboard.Service

	Tx     ledger.Transactor
	Admin  ledger.Admin
	Token  ledger.Token
	Native guard.NativeReader

	Wallet *identity.Wallet
	client *chain.Client
	mock   *ledger.MockPlatform
}

// loadConfig reads the config file, applies --mock and sets up logging.
func loadConfig() (*config.Config, error) {
	path := ConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if MockMode {
		cfg.Mock = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	logging.Configure(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	return cfg, nil
}

// openSession builds a read session. With signer set the wallet is unlocked
// so actions can be submitted; the mock ledger never needs a key.
func openSession(ctx context.Context, signer bool) (*Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	w, err := identity.OpenWallet(cfg.Wallet.KeystoreDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}
	s := &Session{Config: cfg, Wallet: w}

	if cfg.Mock {
		s.openMock()
		return s, nil
	}

	var key *ecdsa.PrivateKey
	if signer {
		if w == nil {
			return nil, fmt.Errorf("no wallet in %s; create one with: stakedeck wallet create", cfg.Wallet.KeystoreDir)
		}
		if key, err = unlockWallet(cfg, w); err != nil {
			return nil, err
		}
	}

	client, err := chain.NewClient(cfg.ChainClientConfig(), key)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to chain: %w", err)
	}
	s.client = client

	platformAddr := common.HexToAddress(cfg.Contracts.Platform)
	platform, err := ledger.NewPlatformContract(client, platformAddr)
	if err != nil {
		client.Close()
		return nil, err
	}
	token, err := ledger.NewTokenContract(client, common.HexToAddress(cfg.Contracts.StableToken))
	if err != nil {
		client.Close()
		return nil, err
	}

	owner := w.Address()
	if owner == (common.Address{}) && cfg.Wallet.Address != "" {
		owner = common.HexToAddress(cfg.Wallet.Address)
	}
	s.Context = chain.NewContext(owner, cfg.Chain.ChainID)
	s.Platform = platformAddr
	s.Tx = platform
	s.Admin = platform
	s.Token = token
	s.Native = client
	s.Gateway = ledger.NewGateway(platform, ledger.WithRateLimit(cfg.Chain.RPCRateLimit, max(1, int(cfg.Chain.RPCRateLimit))))
	s.Dashboards = dashboard.NewService(s.Gateway)
	return s, nil
}

// openMock stands up an in-memory ledger with a referral root and a funded
// wallet.
func (s *Session) openMock() {
	owner := s.Wallet.Address()
	if owner == (common.Address{}) {
		owner = mockDemoWallet
	}

	m := ledger.NewMockPlatform(owner)
	if err := m.SeedUser(MockRootID, mockRootWallet, types.UserID{}); err != nil {
		logging.Warn("mock seed failed", logging.Err(err))
	}
	m.SetStableBalance(owner, mockStableFunding)
	m.SetNativeBalance(owner, mockNativeFunding)

	s.mock = m
	s.Context = chain.NewContext(owner, s.Config.Chain.ChainID)
	s.Platform = m.Address()
	s.Tx = m
	s.Admin = m
	s.Token = m
	s.Native = m
	s.Gateway = ledger.NewGateway(m)
	s.Dashboards = dashboard.NewService(s.Gateway)
}

// walletPassword resolves the password non-interactively and falls back to
// a prompt on a terminal.
func walletPassword(cfg *config.Config) (string, string, error) {
	pw, source, err := identity.ResolvePassword(identity.PasswordSources{
		Env:  cfg.Wallet.Password,
		File: cfg.Wallet.PasswordFile,
	})
	if errors.Is(err, identity.ErrNoPassword) && isStdinTTY() {
		fmt.Fprint(os.Stderr, "Enter wallet password: ")
		pw, err = readPasswordNoEcho()
		fmt.Fprintln(os.Stderr)
		source = "prompt"
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to get wallet password: %w", err)
	}
	return pw, source, nil
}

func unlockWallet(cfg *config.Config, w *identity.Wallet) (*ecdsa.PrivateKey, error) {
	pw, source, err := walletPassword(cfg)
	if err != nil {
		return nil, err
	}
	key, err := w.Unlock(pw)
	if err != nil {
		return nil, err
	}
	logging.Debug("wallet unlocked", logging.Wallet(w.Address().Hex()), "source", source)
	return key, nil
}

// Close releases the chain connection and drops the unlocked key.
func (s *Session) Close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.Wallet != nil {
		s.Wallet.Lock()
	}
}

// Mocked reports whether the session runs on the in-memory ledger.
func (s *Session) Mocked() bool { return s.mock != nil }

// MinGasReserve returns the configured reserve, or nil for the guard default.
func (s *Session) MinGasReserve() *big.Int {
	v, err := s.Config.MinGasReserve()
	if err != nil {
		logging.Warn("ignoring invalid guards.min_gas_reserve", logging.Err(err))
		return nil
	}
	return v
}

// Guards builds fresh allowance and balance guards for the session wallet.
func (s *Session) Guards() (*guard.Allowance, *guard.Balances) {
	owner := s.Context.Owner
	return guard.NewAllowance(s.Token, owner, s.Platform),
		guard.NewBalances(s.Native, s.Token, owner, s.MinGasReserve())
}

// Orchestrator wires the action orchestrator. Confirmed actions invalidate
// the affected dashboard.
func (s *Session) Orchestrator(onStep staking.StepFunc) *staking.Orchestrator {
	allowance, balances := s.Guards()
	return staking.NewOrchestrator(s.Context, s.Gateway, s.Tx, allowance, balances,
		staking.WithStepFunc(onStep),
		staking.WithOnConfirmed(func(_ context.Context, _ staking.Action, id types.UserID) {
			if !id.IsZero() {
				s.Dashboards.Invalidate(id)
			}
		}),
	)
}

// ResolveSelf returns the user ID of the session wallet.
func (s *Session) ResolveSelf(ctx context.Context) (types.UserID, error) {
	if !s.Context.Connected() {
		return types.UserID{}, fmt.Errorf("no wallet configured; pass a user ID or create a wallet")
	}
	id, err := s.Gateway.ResolveUserID(ctx, s.Context.Owner)
	if err != nil {
		return types.UserID{}, err
	}
	if id.IsZero() {
		return types.UserID{}, fmt.Errorf("wallet %s is not registered", s.Context.Owner.Hex())
	}
	return id, nil
}

// userArg parses an optional user ID argument, defaulting to the wallet's.
func (s *Session) userArg(ctx context.Context, args []string, pos int) (types.UserID, error) {
	if len(args) > pos {
		return ledger.ParseUserID(args[pos])
	}
	return s.ResolveSelf(ctx)
}
