package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestNewClient_RequiresURL(t *testing.T) {
	if _, err := NewClient(&Config{ChainID: 56}, nil); err == nil {
		t.Fatal("expected error without RPC URLs")
	}
}

func TestNewClient_SignerAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	c, err := NewClient(DefaultConfig(), key)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	want := crypto.PubkeyToAddress(key.PublicKey)
	if c.Address() != want {
		t.Errorf("address = %s, want %s", c.Address().Hex(), want.Hex())
	}
	if got := c.Context(); got.Owner != want || got.ChainID != 56 {
		t.Errorf("unexpected context %v", got)
	}
	if c.IsConnected() {
		t.Error("client should not be connected before Connect")
	}
}

func TestClient_NotConnected(t *testing.T) {
	ctx := context.Background()

	readOnly, _ := NewClient(DefaultConfig(), nil)
	if _, err := readOnly.TransactOpts(ctx); !errors.Is(err, ErrNoSigner) {
		t.Errorf("expected ErrNoSigner, got %v", err)
	}
	if _, err := readOnly.NativeBalance(ctx, common.Address{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := readOnly.SubscribeFilterLogs(ctx, ethereumQuery(), nil); !errors.Is(err, ErrNoSubscriptions) {
		t.Errorf("expected ErrNoSubscriptions, got %v", err)
	}

	key, _ := crypto.GenerateKey()
	signer, _ := NewClient(DefaultConfig(), key)
	if _, err := signer.TransactOpts(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestContext(t *testing.T) {
	var empty Context
	if empty.Connected() {
		t.Error("zero context should not be connected")
	}

	c := NewContext(common.HexToAddress("0x00000000000000000000000000000000000000aa"), 97)
	if !c.Connected() {
		t.Error("context with owner should be connected")
	}
	if c.String() != c.Owner.Hex()+"@97" {
		t.Errorf("unexpected String(): %s", c.String())
	}
}

func ethereumQuery() ethereum.FilterQuery {
	return ethereum.FilterQuery{}
}
