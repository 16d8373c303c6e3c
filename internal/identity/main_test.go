package identity

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// Light scrypt keeps keystore round trips fast.
	scryptN = keystore.LightScryptN
	scryptP = keystore.LightScryptP

	// NewKeyStore starts an fsnotify watcher with no Close method.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/ethereum/go-ethereum/accounts/keystore.(*watcher).loop"),
		goleak.IgnoreAnyFunction("github.com/fsnotify/fsnotify.(*Watcher).readEvents"),
	)
}
