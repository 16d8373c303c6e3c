package identity

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/99designs/keyring"
)

const (
	keyringServiceName = "stakedeck"
	walletPasswordKey  = "wallet-password"
)

// openRing is swapped for an in-memory ring in tests.
var openRing = openPlatformKeyring

// StoreWalletPassword stores the wallet password in the platform keyring.
// Returns the backend name on success (e.g. "macOS Keychain").
func StoreWalletPassword(password string) (string, error) {
	ring, backend, err := openRing()
	if err != nil {
		return "", err
	}

	err = ring.Set(keyring.Item{
		Key:         walletPasswordKey,
		Data:        []byte(password),
		Label:       "Stakedeck Wallet Password",
		Description: "Password for the stakedeck wallet keystore",
	})
	if err != nil {
		return "", fmt.Errorf("failed to store in %s: %w", backend, err)
	}
	return backend, nil
}

// RetrieveWalletPassword retrieves the wallet password from the platform keyring.
// Returns ("", nil) if the keyring is available but holds no password.
func RetrieveWalletPassword() (string, error) {
	ring, _, err := openRing()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(walletPasswordKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

// DeleteWalletPassword removes the wallet password from the platform keyring.
func DeleteWalletPassword() error {
	ring, _, err := openRing()
	if err != nil {
		return err
	}
	if err := ring.Remove(walletPasswordKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

func openPlatformKeyring() (keyring.Keyring, string, error) {
	var (
		backends []keyring.BackendType
		name     string
	)
	switch runtime.GOOS {
	case "darwin":
		backends = []keyring.BackendType{keyring.KeychainBackend}
		name = "macOS Keychain"
	case "linux":
		backends = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend}
		name = "Secret Service"
	case "windows":
		backends = []keyring.BackendType{keyring.WinCredBackend}
		name = "Windows Credential Manager"
	default:
		return nil, "", fmt.Errorf("no keyring backend available on %s", runtime.GOOS)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    keyringServiceName,
		AllowedBackends:                backends,
		KeychainTrustApplication:       true,
		KeychainAccessibleWhenUnlocked: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, name, nil
}
