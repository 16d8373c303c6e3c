//go:build linux

package identity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const kernelKeyName = "stakedeck-wallet"

// StoreKernelKeyring caches the password in the user kernel keyring.
// The entry lives in kernel memory only and is gone after reboot.
func StoreKernelKeyring(password string) error {
	if _, err := unix.AddKey("user", kernelKeyName, []byte(password), unix.KEY_SPEC_USER_KEYRING); err != nil {
		return fmt.Errorf("add_key failed: %w", err)
	}
	return nil
}

// RetrieveKernelKeyring reads the cached password.
func RetrieveKernelKeyring() (string, error) {
	id, err := unix.KeyctlSearch(unix.KEY_SPEC_USER_KEYRING, "user", kernelKeyName, 0)
	if err != nil {
		return "", fmt.Errorf("keyctl search failed: %w", err)
	}

	size, err := unix.KeyctlBuffer(unix.KEYCTL_READ, id, nil, 0)
	if err != nil {
		return "", fmt.Errorf("keyctl read failed: %w", err)
	}
	buf := make([]byte, size)
	n, err := unix.KeyctlBuffer(unix.KEYCTL_READ, id, buf, 0)
	if err != nil {
		return "", fmt.Errorf("keyctl read failed: %w", err)
	}
	return string(buf[:min(n, size)]), nil
}
