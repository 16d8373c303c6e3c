package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/stakedeck/stakedeck/internal/config"
	"github.com/stakedeck/stakedeck/internal/identity"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/internal/sharegate"
	"github.com/stakedeck/stakedeck/pkg/types"
)

const defaultShareBase = "https://stakedeck.app/register"

// ShareOutput is the JSON shape of the share command.
type ShareOutput struct {
	UserID    types.UserID     `json:"user_id"`
	Wallet    common.Address   `json:"wallet"`
	Link      string           `json:"link"`
	Message   string           `json:"message"`
	Signature string           `json:"signature"`
	Gate      sharegate.Status `json:"gate"`
}

// NewShareCmd creates the referral share command.
func NewShareCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "share [user-id]",
		Short: "Create a signed referral link",
		Long: `Create a referral link for a user ID and sign it with the wallet so
recipients can verify who shared it.

Shares are counted per wallet and limited per UTC day (sharegate.daily_limit).
With the redis backend the counter is shared across processes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.Wallet == nil {
				return fmt.Errorf("sharing needs a wallet to sign with; create one with: stakedeck wallet create")
			}
			id, err := s.userArg(ctx, args, 0)
			if err != nil {
				return err
			}
			if addr, err := s.Gateway.ResolveAddress(ctx, id); err != nil {
				return fmt.Errorf("cannot share %s: %w", id, err)
			} else if addr == (common.Address{}) {
				return fmt.Errorf("cannot share %s: not registered", id)
			}

			gate, closeStore, err := openShareGate(ctx, s.Config.ShareGate)
			if err != nil {
				return err
			}
			defer closeStore()

			wallet := s.Wallet.Address()
			status, err := gate.Consume(ctx, wallet)
			if errors.Is(err, sharegate.ErrLimitReached) {
				return fmt.Errorf("daily share limit of %d reached; resets at %s",
					status.Limit, status.ResetsAt.Format(time.RFC3339))
			}
			if err != nil {
				return err
			}

			link, err := referralLink(baseURL, id)
			if err != nil {
				return err
			}
			message := ReferralMessage(id, link)

			pw, _, err := walletPassword(s.Config)
			if err != nil {
				return err
			}
			sig, err := s.Wallet.SignText(message, pw)
			if err != nil {
				return fmt.Errorf("failed to sign referral: %w", err)
			}
			logging.Info("referral shared",
				logging.UserID(id.String()),
				logging.Wallet(wallet.Hex()),
				"remaining", status.Remaining)

			res := ShareOutput{
				UserID:    id,
				Wallet:    wallet,
				Link:      link,
				Message:   message,
				Signature: hexutil.Encode(sig),
				Gate:      status,
			}
			out := cmd.OutOrStdout()
			if JSONOutput {
				return printJSON(out, res)
			}
			fmt.Fprintln(out, StatusBox("Referral", [][2]string{
				{"User ID", id.String()},
				{"Link", link},
				{"Signed by", wallet.Hex()},
				{"Signature", FormatAddress(res.Signature)},
				{"Shares left", fmt.Sprintf("%d of %d today", status.Remaining, status.Limit)},
			}))
			fmt.Fprintln(out, Hint(message))
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", defaultShareBase, "Registration page the link points to")
	return cmd
}

// ReferralMessage is the text signed when sharing a referral link.
func ReferralMessage(id types.UserID, link string) string {
	return fmt.Sprintf("Join me with referrer ID %s: %s", id, link)
}

func referralLink(base string, id types.UserID) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid --base-url %q", base)
	}
	q := u.Query()
	q.Set("ref", id.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// openShareGate builds the gate on the configured store.
func openShareGate(ctx context.Context, cfg config.ShareGateConfig) (*sharegate.Gate, func(), error) {
	if cfg.Backend != "redis" {
		return sharegate.New(sharegate.NewMemoryStore(), cfg.DailyLimit), func() {}, nil
	}
	client, err := sharegate.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return sharegate.New(sharegate.NewRedisStore(client), cfg.DailyLimit), func() { client.Close() }, nil
}

// NewVerifyShareCmd checks a referral signature produced by share.
func NewVerifyShareCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "verify-share <wallet> <user-id> <signature>",
		Short: "Verify that a wallet signed a referral link",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid wallet address %q", args[0])
			}
			wallet := common.HexToAddress(args[0])
			id, err := types.EncodeUserID(args[1])
			if err != nil {
				return err
			}
			sig, err := hexutil.Decode(args[2])
			if err != nil {
				return fmt.Errorf("invalid signature: %w", err)
			}
			link, err := referralLink(baseURL, id)
			if err != nil {
				return err
			}

			valid := identity.VerifyText(wallet, ReferralMessage(id, link), sig)
			out := cmd.OutOrStdout()
			if JSONOutput {
				if err := printJSON(out, map[string]any{"wallet": wallet, "user_id": id, "link": link, "valid": valid}); err != nil {
					return err
				}
			} else if valid {
				Success(fmt.Sprintf("%s signed the referral link for %s", wallet.Hex(), id))
			}
			if !valid {
				return fmt.Errorf("signature does not match %s", wallet.Hex())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", defaultShareBase, "Registration page the link points to")
	return cmd
}
