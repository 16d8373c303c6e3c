package identity

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestOpenWallet_EmptyDir(t *testing.T) {
	w, err := OpenWallet(t.TempDir())
	if err != nil {
		t.Fatalf("OpenWallet on empty dir: %v", err)
	}
	if w != nil {
		t.Fatal("expected nil Wallet for empty keystore dir")
	}
}

func TestOpenWallet_NonExistentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nonexistent", "keystore")

	w, err := OpenWallet(dir)
	if err != nil {
		t.Fatalf("OpenWallet on non-existent dir: %v", err)
	}
	if w != nil {
		t.Fatal("expected nil Wallet for non-existent dir")
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("expected directory to be created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("expected keystore dir permissions 0700, got %04o", perm)
	}
}

func TestCreateWallet_ThenOpen(t *testing.T) {
	dir := t.TempDir()

	created, err := CreateWallet(dir, "test-password-123")
	if err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	if created.Address() == (common.Address{}) {
		t.Error("expected non-zero address")
	}
	if created.KeystoreDir() != dir {
		t.Errorf("expected KeystoreDir=%s, got %s", dir, created.KeystoreDir())
	}
	if filepath.Dir(created.KeyFile()) != dir {
		t.Errorf("key file %s not in %s", created.KeyFile(), dir)
	}

	opened, err := OpenWallet(dir)
	if err != nil {
		t.Fatalf("OpenWallet: %v", err)
	}
	if opened == nil {
		t.Fatal("expected wallet after create")
	}
	if opened.Address() != created.Address() {
		t.Errorf("address mismatch: created=%s opened=%s", created.Address().Hex(), opened.Address().Hex())
	}
}

func TestCreateWallet_AlreadyExists(t *testing.T) {
	dir := t.TempDir()

	if _, err := CreateWallet(dir, "password1234"); err != nil {
		t.Fatalf("first CreateWallet: %v", err)
	}
	_, err := CreateWallet(dir, "password5678")
	if !errors.Is(err, ErrWalletExists) {
		t.Fatalf("expected ErrWalletExists, got %v", err)
	}
}

func TestUnlock(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateWallet(dir, "correct-password")
	if err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	if _, err := w.Unlock("wrong-password"); err == nil {
		t.Fatal("expected error with wrong password")
	}
	if w.Unlocked() {
		t.Fatal("failed unlock must not cache a key")
	}

	key, err := w.Unlock("correct-password")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey) != w.Address() {
		t.Error("unlocked key does not match wallet address")
	}

	cached, err := w.Unlock("")
	if err != nil {
		t.Fatalf("cached Unlock: %v", err)
	}
	if !key.Equal(cached) {
		t.Error("cached key doesn't match first key")
	}

	w.Lock()
	if w.Unlocked() {
		t.Error("expected Lock to drop the cached key")
	}
	if _, err := w.Unlock(""); err == nil {
		t.Error("expected password to be required again after Lock")
	}
}

func TestImportWallet(t *testing.T) {
	tests := []struct {
		name   string
		format func(b []byte) string
	}{
		{"bare hex", func(b []byte) string { return hex.EncodeToString(b) }},
		{"0x prefix", func(b []byte) string { return "0x" + hex.EncodeToString(b) }},
		{"trailing newline", func(b []byte) string { return hex.EncodeToString(b) + "\n" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig, err := crypto.GenerateKey()
			if err != nil {
				t.Fatal(err)
			}

			w, err := ImportWallet(t.TempDir(), tt.format(crypto.FromECDSA(orig)), "import-password")
			if err != nil {
				t.Fatalf("ImportWallet: %v", err)
			}
			if w.Address() != crypto.PubkeyToAddress(orig.PublicKey) {
				t.Errorf("address mismatch")
			}

			key, err := w.Unlock("import-password")
			if err != nil {
				t.Fatalf("Unlock: %v", err)
			}
			if !orig.Equal(key) {
				t.Error("unlocked key doesn't match imported key")
			}
		})
	}
}

func TestImportWallet_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ImportWallet(dir, "not-valid-hex", "password1234"); err == nil {
		t.Fatal("expected error with invalid hex key")
	}

	if _, err := CreateWallet(dir, "password1234"); err != nil {
		t.Fatal(err)
	}
	key, _ := crypto.GenerateKey()
	_, err := ImportWallet(dir, hex.EncodeToString(crypto.FromECDSA(key)), "password5678")
	if !errors.Is(err, ErrWalletExists) {
		t.Fatalf("expected ErrWalletExists, got %v", err)
	}
}

func TestNilWalletAddress(t *testing.T) {
	var w *Wallet
	if w.Address() != (common.Address{}) {
		t.Error("nil wallet should report the zero address")
	}
}

func TestSignAndVerifyText(t *testing.T) {
	w, err := CreateWallet(t.TempDir(), "pw")
	if err != nil {
		t.Fatal(err)
	}

	const msg = "stakedeck referral 3ABCD"
	sig, err := w.SignText(msg, "pw")
	if err != nil {
		t.Fatalf("SignText: %v", err)
	}
	if len(sig) != crypto.SignatureLength {
		t.Fatalf("signature length = %d", len(sig))
	}

	if !VerifyText(w.Address(), msg, sig) {
		t.Error("expected signature to verify")
	}

	// Wallet-style v of 27/28 is accepted too.
	shifted := append([]byte(nil), sig...)
	shifted[crypto.RecoveryIDOffset] += 27
	if !VerifyText(w.Address(), msg, shifted) {
		t.Error("expected signature with v+27 to verify")
	}

	if VerifyText(w.Address(), msg+"!", sig) {
		t.Error("signature must not verify over a different message")
	}
	if VerifyText(common.HexToAddress("0x01"), msg, sig) {
		t.Error("signature must not verify for a different address")
	}
	if VerifyText(w.Address(), msg, sig[:10]) {
		t.Error("short signature must not verify")
	}
}
