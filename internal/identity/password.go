package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/stakedeck/stakedeck/internal/logging"
)

// ErrNoPassword means no non-interactive source held a wallet password.
var ErrNoPassword = errors.New("no wallet password available")

// Password sources, in lookup order.
const (
	SourceEnv           = "environment"
	SourceFile          = "password file"
	SourceKeyring       = "keyring"
	SourceKernelKeyring = "kernel keyring"
)

var kernelLookup = RetrieveKernelKeyring

// PasswordSources holds the explicitly configured password inputs.
type PasswordSources struct {
	Env  string // value already read from the environment
	File string // path to a file holding the password
}

// ResolvePassword walks env, file, platform keyring and kernel keyring and
// returns the first password found together with its source. Keyring
// failures are logged and skipped.
func ResolvePassword(src PasswordSources) (string, string, error) {
	if src.Env != "" {
		return src.Env, SourceEnv, nil
	}

	if src.File != "" {
		data, err := os.ReadFile(src.File)
		if err != nil {
			return "", "", fmt.Errorf("failed to read password file: %w", err)
		}
		if pw := strings.TrimRight(string(data), "\r\n"); pw != "" {
			return pw, SourceFile, nil
		}
	}

	pw, err := RetrieveWalletPassword()
	if err != nil {
		logging.Debug("keyring unavailable", logging.Component("identity"), logging.Err(err))
	} else if pw != "" {
		return pw, SourceKeyring, nil
	}

	if pw, err := kernelLookup(); err == nil && pw != "" {
		return pw, SourceKernelKeyring, nil
	}

	return "", "", ErrNoPassword
}
