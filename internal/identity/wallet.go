package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrWalletExists = errors.New("wallet already exists")

// Scrypt parameters for new keystore files. Tests lower them.
var (
	scryptN = keystore.StandardScryptN
	scryptP = keystore.StandardScryptP
)

// Wallet is the single signing account kept in an encrypted keystore
// directory. The decrypted key is cached after the first Unlock.
type Wallet struct {
	keystore *keystore.KeyStore
	dir      string
	account  accounts.Account

	mu  sync.Mutex
	key *ecdsa.PrivateKey
}

func openKeystore(dir string) (*keystore.KeyStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	return keystore.NewKeyStore(dir, scryptN, scryptP), nil
}

// OpenWallet loads the first account in dir.
// Returns (nil, nil) when the directory holds no wallet, which callers treat
// as read-only mode.
func OpenWallet(dir string) (*Wallet, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	accts := ks.Accounts()
	if len(accts) == 0 {
		return nil, nil
	}
	return &Wallet{keystore: ks, dir: dir, account: accts[0]}, nil
}

// CreateWallet generates a new key in dir encrypted with password.
func CreateWallet(dir, password string) (*Wallet, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if len(ks.Accounts()) > 0 {
		return nil, fmt.Errorf("%w in %s", ErrWalletExists, dir)
	}

	account, err := ks.NewAccount(password)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &Wallet{keystore: ks, dir: dir, account: account}, nil
}

// ImportWallet stores a hex private key (with or without 0x) in dir.
func ImportWallet(dir, privKeyHex, password string) (*Wallet, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}

	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if len(ks.Accounts()) > 0 {
		return nil, fmt.Errorf("%w in %s", ErrWalletExists, dir)
	}

	account, err := ks.ImportECDSA(privateKey, password)
	if err != nil {
		return nil, fmt.Errorf("failed to import key: %w", err)
	}
	return &Wallet{keystore: ks, dir: dir, account: account}, nil
}

// Address returns the wallet address. The zero address for a nil wallet.
func (w *Wallet) Address() common.Address {
	if w == nil {
		return common.Address{}
	}
	return w.account.Address
}

// KeystoreDir returns the path to the keystore directory
func (w *Wallet) KeystoreDir() string {
	return w.dir
}

// KeyFile returns the path of the encrypted key file.
func (w *Wallet) KeyFile() string {
	return w.account.URL.Path
}

// Unlock decrypts the key with password, or returns the cached key.
func (w *Wallet) Unlock(password string) (*ecdsa.PrivateKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.key != nil {
		return w.key, nil
	}

	keyJSON, err := os.ReadFile(w.account.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key: %w", err)
	}

	w.key = key.PrivateKey
	return w.key, nil
}

// Unlocked reports whether a decrypted key is cached.
func (w *Wallet) Unlocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key != nil
}

// Lock zeros and drops the cached key.
func (w *Wallet) Lock() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key != nil {
		w.key.D.SetUint64(0)
		w.key = nil
	}
}

// SignText produces an EIP-191 personal_sign signature over text.
func (w *Wallet) SignText(text, password string) ([]byte, error) {
	key, err := w.Unlock(password)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(text)), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// VerifyText reports whether sig is addr's personal_sign signature over text.
func VerifyText(addr common.Address, text string, sig []byte) bool {
	if len(sig) != crypto.SignatureLength {
		return false
	}
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == addr
}
