package commands

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stakedeck/stakedeck/internal/config"
	"github.com/stakedeck/stakedeck/internal/identity"
	"github.com/stakedeck/stakedeck/internal/logging"
)

const minPasswordLength = 8

// NewWalletCmd creates the wallet command group
func NewWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the staking wallet",
		Long: `Manage the Ethereum wallet that signs registrations, stakes, claims
and withdrawals.

The wallet is stored as an encrypted keystore file (geth V3 format) in
wallet.keystore_dir. Its password can be kept in the platform keyring:
  macOS:           Keychain
  Linux (desktop): GNOME Keyring / KDE Wallet
  Linux (server):  kernel keyring (volatile, lost on reboot)

Examples:
  stakedeck wallet create   # Generate a new wallet
  stakedeck wallet import   # Import from a private key
  stakedeck wallet show     # Show address and registration`,
	}

	cmd.AddCommand(newWalletCreateCmd())
	cmd.AddCommand(newWalletImportCmd())
	cmd.AddCommand(newWalletShowCmd())
	cmd.AddCommand(newWalletForgetPasswordCmd())

	return cmd
}

// storePasswordInKeyring stores the wallet password in the best available
// keyring, falling back to printed instructions.
func storePasswordInKeyring(password string) {
	if backend, err := identity.StoreWalletPassword(password); err == nil {
		fmt.Printf("  Password saved to %s\n", backend)
		return
	}

	if err := identity.StoreKernelKeyring(password); err == nil {
		fmt.Println("  Password saved to kernel keyring (in-memory, lost on reboot)")
		return
	}

	fmt.Println("  Could not store password in system keyring.")
	fmt.Println("  For automatic wallet unlock, set one of:")
	fmt.Println("    - " + config.EnvWalletPassword + " environment variable")
	fmt.Println("    - wallet.password_file in config.yaml")
}

// promptNewPassword asks for a password twice, up to three attempts.
func promptNewPassword() (string, error) {
	const maxAttempts = 3
	for range maxAttempts {
		fmt.Fprint(os.Stderr, "Enter wallet password: ")
		password, err := readPasswordNoEcho()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)

		if len(password) < minPasswordLength {
			Warning(fmt.Sprintf("Password must be at least %d characters. Try again.", minPasswordLength))
			continue
		}

		fmt.Fprint(os.Stderr, "Confirm wallet password: ")
		confirm, err := readPasswordNoEcho()
		if err != nil {
			return "", fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Fprintln(os.Stderr)

		if password != confirm {
			Warning("Passwords do not match. Try again.")
			continue
		}
		return password, nil
	}
	return "", fmt.Errorf("too many failed attempts")
}

func newWalletCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new wallet",
		Long:  "Create a new Ethereum wallet with a password-encrypted keystore file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir := cfg.Wallet.KeystoreDir

			existing, err := identity.OpenWallet(dir)
			if err != nil {
				return fmt.Errorf("failed to check keystore: %w", err)
			}
			if existing != nil {
				return fmt.Errorf("wallet already exists at %s (address: %s)", dir, existing.Address().Hex())
			}

			password, err := promptNewPassword()
			if err != nil {
				return err
			}
			w, err := identity.CreateWallet(dir, password)
			if err != nil {
				return fmt.Errorf("failed to create wallet: %w", err)
			}
			logging.Audit(logging.AuditEvent{
				Operation: "wallet_create",
				Actor:     w.Address().Hex(),
				Result:    "success",
			})

			fmt.Println()
			Success("Wallet created!")
			fmt.Println(StatusBox("Wallet", [][2]string{
				{"Address", w.Address().Hex()},
				{"Keystore", dir},
			}))
			storePasswordInKeyring(password)
			fmt.Println()
			Warning("Back up your keystore directory and remember your password.")
			fmt.Println(Hint("Register with: stakedeck register <referrer-id> --amount <amount>"))
			return nil
		},
	}
}

func newWalletImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import a wallet from a private key",
		Long:  "Import an existing Ethereum private key into an encrypted keystore file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir := cfg.Wallet.KeystoreDir

			existing, err := identity.OpenWallet(dir)
			if err != nil {
				return fmt.Errorf("failed to check keystore: %w", err)
			}
			if existing != nil {
				return fmt.Errorf("wallet already exists at %s (address: %s)", dir, existing.Address().Hex())
			}

			const maxAttempts = 3
			var privKeyHex string
			for range maxAttempts {
				fmt.Fprint(os.Stderr, "Enter private key (hex, with or without 0x prefix): ")
				input, err := readPasswordNoEcho()
				if err != nil {
					return fmt.Errorf("failed to read private key: %w", err)
				}
				fmt.Fprintln(os.Stderr)

				input = strings.TrimPrefix(strings.TrimSpace(input), "0x")
				if len(input) != 64 {
					Warning(fmt.Sprintf("Private key must be 64 hex characters (32 bytes), got %d. Try again.", len(input)))
					continue
				}
				privKeyHex = input
				break
			}
			if privKeyHex == "" {
				return fmt.Errorf("too many failed attempts")
			}

			password, err := promptNewPassword()
			if err != nil {
				return err
			}
			w, err := identity.ImportWallet(dir, privKeyHex, password)
			if err != nil {
				return fmt.Errorf("failed to import wallet: %w", err)
			}
			logging.Audit(logging.AuditEvent{
				Operation: "wallet_import",
				Actor:     w.Address().Hex(),
				Result:    "success",
			})

			fmt.Println()
			Success("Wallet imported!")
			fmt.Println(StatusBox("Wallet", [][2]string{
				{"Address", w.Address().Hex()},
				{"Keystore", dir},
			}))
			storePasswordInKeyring(password)
			return nil
		},
	}
}

// WalletInfo is the JSON shape of wallet show.
type WalletInfo struct {
	Address  string `json:"address"`
	Keystore string `json:"keystore"`
	UserID   string `json:"user_id,omitempty"`
	Password string `json:"password"`
}

func newWalletShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show wallet address and registration",
		Long:  "Display the wallet address, keystore directory and the user ID it is registered as. No password needed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.Wallet == nil {
				if JSONOutput {
					return printJSON(cmd.OutOrStdout(), WalletInfo{Keystore: s.Config.Wallet.KeystoreDir, Password: "none"})
				}
				Info("No wallet found.")
				fmt.Println(Hint("Create one with: stakedeck wallet create"))
				return nil
			}

			info := WalletInfo{
				Address:  s.Wallet.Address().Hex(),
				Keystore: s.Wallet.KeystoreDir(),
				Password: "not stored",
			}
			if pw, err := identity.RetrieveWalletPassword(); err == nil && pw != "" {
				info.Password = "platform keyring"
			} else if pw, err := identity.RetrieveKernelKeyring(); err == nil && pw != "" {
				info.Password = "kernel keyring"
			}
			if id, err := s.Gateway.ResolveUserID(ctx, s.Wallet.Address()); err == nil && !id.IsZero() {
				info.UserID = id.String()
			}

			if JSONOutput {
				return printJSON(cmd.OutOrStdout(), info)
			}
			userID := info.UserID
			if userID == "" {
				userID = "not registered"
			}
			fmt.Fprintln(cmd.OutOrStdout(), StatusBox("Wallet", [][2]string{
				{"Address", info.Address},
				{"User ID", userID},
				{"Keystore", info.Keystore},
				{"Password", info.Password},
			}))
			return nil
		},
	}
}

func newWalletForgetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget-password",
		Short: "Remove the wallet password from the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := identity.DeleteWalletPassword(); err != nil {
				fmt.Println("No stored password found in the platform keyring.")
				return nil
			}
			fmt.Println("Removed password from platform keyring")
			return nil
		},
	}
}

// readPasswordNoEcho reads a line from stdin with echo disabled.
func readPasswordNoEcho() (string, error) {
	password, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return string(password), nil
}
