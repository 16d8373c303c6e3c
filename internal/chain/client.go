package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/internal/util"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrNoSigner        = errors.New("no private key configured")
	ErrNoSubscriptions = errors.New("no websocket endpoint configured")
)

// Config holds RPC and transaction settings.
type Config struct {
	RPCURLs            []string
	WSEndpoint         string
	ChainID            int64
	BlockConfirmations int
	GasLimitMultiplier float64
	MaxGasPrice        *big.Int
	PollInterval       time.Duration
	RetryConfig        *util.RetryConfig
}

// DefaultConfig targets BNB Smart Chain mainnet.
func DefaultConfig() *Config {
	return &Config{
		RPCURLs:            []string{"https://bsc-dataseed.binance.org"},
		ChainID:            56,
		BlockConfirmations: 1,
		GasLimitMultiplier: 1.2,
		MaxGasPrice:        big.NewInt(20e9),
		PollInterval:       2 * time.Second,
		RetryConfig:        util.DefaultRetryConfig(),
	}
}

// Client is an ethclient with multi-endpoint failover, retried reads,
// nonce tracking and confirmation waiting. It satisfies bind.ContractBackend
// and bind.DeployBackend so contract bindings can be built on top of it.
type Client struct {
	config    *Config
	endpoints *Endpoints
	signer    *ecdsa.PrivateKey
	address   common.Address
	chainID   *big.Int

	mu        sync.RWMutex
	rpc       *ethclient.Client
	rpcURL    string
	ws        *ethclient.Client
	connected bool

	nonceMu      sync.Mutex
	pendingNonce uint64
}

var (
	_ bind.ContractBackend = (*Client)(nil)
	_ bind.DeployBackend   = (*Client)(nil)
)

// NewClient creates an unconnected client. signer may be nil for read-only use.
func NewClient(config *Config, signer *ecdsa.PrivateKey) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.RPCURLs) == 0 {
		return nil, errors.New("at least one RPC URL is required")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.GasLimitMultiplier <= 0 {
		config.GasLimitMultiplier = 1.2
	}

	c := &Client{
		config:    config,
		endpoints: NewEndpoints(config.RPCURLs),
		signer:    signer,
		chainID:   big.NewInt(config.ChainID),
	}
	if signer != nil {
		c.address = crypto.PubkeyToAddress(signer.PublicKey)
	}
	return c, nil
}

// Connect dials the best ranked endpoint, verifies the chain ID and primes
// the nonce. The websocket endpoint is optional.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	for _, url := range c.endpoints.Ranked() {
		if err := c.dial(ctx, url); err != nil {
			lastErr = err
			logging.Warn("rpc endpoint unavailable",
				"url", logging.RedactURL(url),
				logging.Err(err),
				logging.Component("chain"))
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return fmt.Errorf("failed to connect to any RPC endpoint: %w", lastErr)
	}

	if c.config.WSEndpoint != "" {
		ws, err := ethclient.DialContext(ctx, c.config.WSEndpoint)
		if err != nil {
			logging.Warn("websocket endpoint unavailable, event subscriptions disabled",
				"url", logging.RedactURL(c.config.WSEndpoint),
				logging.Err(err),
				logging.Component("chain"))
		} else {
			c.mu.Lock()
			c.ws = ws
			c.mu.Unlock()
		}
	}

	if c.signer != nil {
		if err := c.SyncNonce(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) dial(ctx context.Context, url string) error {
	start := time.Now()
	client, result := util.RetryWithValue(ctx, util.ConnectRetryConfig(), func() (*ethclient.Client, error) {
		return ethclient.DialContext(ctx, url)
	})
	if result.LastError != nil {
		c.endpoints.RecordError(url)
		return result.LastError
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		c.endpoints.RecordError(url)
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	if chainID.Cmp(c.chainID) != 0 {
		client.Close()
		c.endpoints.RecordError(url)
		return fmt.Errorf("chain ID mismatch: expected %s, got %s", c.chainID, chainID)
	}
	c.endpoints.RecordSuccess(url, time.Since(start))

	c.mu.Lock()
	old := c.rpc
	c.rpc = client
	c.rpcURL = url
	c.connected = true
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	logging.Info("connected to rpc endpoint",
		"url", logging.RedactURL(url),
		"chain_id", chainID.String(),
		logging.Component("chain"))
	return nil
}

// failover switches to the next ranked endpoint after url misbehaved.
func (c *Client) failover(ctx context.Context, url string) {
	next, ok := c.endpoints.Next(url)
	if !ok {
		return
	}
	if err := c.dial(ctx, next); err != nil {
		logging.Warn("rpc failover failed",
			"from", logging.RedactURL(url),
			"to", logging.RedactURL(next),
			logging.Err(err),
			logging.Component("chain"))
	}
}

// Close releases the RPC and websocket connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.connected = false
}

// IsConnected reports whether an RPC endpoint is attached.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Address returns the signer's address, or the zero address when read-only.
func (c *Client) Address() common.Address {
	return c.address
}

// ChainID returns the configured chain ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Context returns the wallet/chain context for this client.
func (c *Client) Context() Context {
	return NewContext(c.address, c.config.ChainID)
}

// Endpoints exposes endpoint health for status reporting.
func (c *Client) Endpoints() *Endpoints {
	return c.endpoints
}

func (c *Client) current() (*ethclient.Client, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rpc, c.rpcURL
}

// read runs fn against the active endpoint with retry. Transient failures are
// charged to the endpoint and trigger failover before the next attempt.
func read[T any](ctx context.Context, c *Client, fn func(*ethclient.Client) (T, error)) (T, error) {
	val, result := util.RetryWithValue(ctx, c.config.RetryConfig, func() (T, error) {
		var zero T
		client, url := c.current()
		if client == nil {
			return zero, util.MarkNonRetryable(ErrNotConnected)
		}

		start := time.Now()
		v, err := fn(client)
		if err != nil {
			if util.IsTransientRPCError(err) {
				c.endpoints.RecordError(url)
				c.failover(ctx, url)
			}
			return zero, err
		}
		c.endpoints.RecordSuccess(url, time.Since(start))
		return v, nil
	})
	return val, result.LastError
}

// NativeBalance returns the native coin balance of addr.
func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := read(ctx, c, func(ec *ethclient.Client) (*big.Int, error) {
		return ec.BalanceAt(ctx, addr, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return read(ctx, c, func(ec *ethclient.Client) (uint64, error) {
		return ec.BlockNumber(ctx)
	})
}

// TransactOpts builds signing options with a managed nonce and a capped gas price.
func (c *Client) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	gasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if c.config.MaxGasPrice != nil && gasPrice.Cmp(c.config.MaxGasPrice) > 0 {
		gasPrice = new(big.Int).Set(c.config.MaxGasPrice)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(c.signer, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	auth.GasPrice = gasPrice

	c.nonceMu.Lock()
	auth.Nonce = new(big.Int).SetUint64(c.pendingNonce)
	c.pendingNonce++
	c.nonceMu.Unlock()

	return auth, nil
}

// SyncNonce reloads the pending nonce from the network, used after a
// submission error leaves the local counter ahead of the chain.
func (c *Client) SyncNonce(ctx context.Context) error {
	if c.signer == nil {
		return ErrNoSigner
	}
	nonce, err := c.PendingNonceAt(ctx, c.address)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}

	c.nonceMu.Lock()
	c.pendingNonce = nonce
	c.nonceMu.Unlock()
	return nil
}

// WaitForTransaction blocks until tx is mined and has the configured number
// of confirmations. A reverted receipt is returned together with an error.
func (c *Client) WaitForTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	receipt, err := bind.WaitMined(ctx, c, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for transaction: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("transaction reverted: %s", tx.Hash().Hex())
	}

	if c.config.BlockConfirmations <= 1 {
		return receipt, nil
	}

	target := receipt.BlockNumber.Uint64() + uint64(c.config.BlockConfirmations) - 1
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return receipt, ctx.Err()
		case <-ticker.C:
			current, err := c.BlockNumber(ctx)
			if err != nil {
				continue
			}
			if current >= target {
				return receipt, nil
			}
		}
	}
}

// bind.ContractBackend / bind.DeployBackend

func (c *Client) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return read(ctx, c, func(ec *ethclient.Client) ([]byte, error) {
		return ec.CodeAt(ctx, contract, blockNumber)
	})
}

func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return read(ctx, c, func(ec *ethclient.Client) ([]byte, error) {
		return ec.CallContract(ctx, call, blockNumber)
	})
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return read(ctx, c, func(ec *ethclient.Client) (*types.Header, error) {
		return ec.HeaderByNumber(ctx, number)
	})
}

func (c *Client) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return read(ctx, c, func(ec *ethclient.Client) ([]byte, error) {
		return ec.PendingCodeAt(ctx, account)
	})
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return read(ctx, c, func(ec *ethclient.Client) (uint64, error) {
		return ec.PendingNonceAt(ctx, account)
	})
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return read(ctx, c, func(ec *ethclient.Client) (*big.Int, error) {
		return ec.SuggestGasPrice(ctx)
	})
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return read(ctx, c, func(ec *ethclient.Client) (*big.Int, error) {
		return ec.SuggestGasTipCap(ctx)
	})
}

// EstimateGas pads the node's estimate by GasLimitMultiplier.
func (c *Client) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	gas, err := read(ctx, c, func(ec *ethclient.Client) (uint64, error) {
		return ec.EstimateGas(ctx, call)
	})
	if err != nil {
		return 0, err
	}
	return uint64(float64(gas) * c.config.GasLimitMultiplier), nil
}

// SendTransaction broadcasts tx once. Submissions are never retried.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	client, _ := c.current()
	if client == nil {
		return ErrNotConnected
	}
	return client.SendTransaction(ctx, tx)
}

func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return read(ctx, c, func(ec *ethclient.Client) ([]types.Log, error) {
		return ec.FilterLogs(ctx, query)
	})
}

// SubscribeFilterLogs requires the websocket endpoint.
func (c *Client) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.mu.RLock()
	ws := c.ws
	c.mu.RUnlock()

	if ws == nil {
		return nil, ErrNoSubscriptions
	}
	return ws.SubscribeFilterLogs(ctx, query, ch)
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	client, _ := c.current()
	if client == nil {
		return nil, ErrNotConnected
	}
	// WaitMined polls this and expects ethereum.NotFound until the tx lands.
	return client.TransactionReceipt(ctx, txHash)
}
