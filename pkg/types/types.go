package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// UserIDLength is the fixed on-chain width of a user identifier.
const UserIDLength = 5

// ErrInvalidUserID is returned for identifiers that cannot be packed into a UserID.
var ErrInvalidUserID = errors.New("invalid user id")

// UserID is the 5-byte identifier bound to a wallet at registration.
// The all-zero value means "not registered".
type UserID [UserIDLength]byte

// EncodeUserID packs 1-5 ASCII alphanumeric characters left-aligned into a
// UserID, zero padding the remainder. Case is preserved.
func EncodeUserID(s string) (UserID, error) {
	var id UserID
	if s == "" || len(s) > UserIDLength {
		return id, fmt.Errorf("%w: %q must be 1-%d characters", ErrInvalidUserID, s, UserIDLength)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isAlphanumeric(c) {
			return id, fmt.Errorf("%w: %q contains %q", ErrInvalidUserID, s, c)
		}
		id[i] = c
	}
	return id, nil
}

// MustUserID is EncodeUserID for constants and tests.
func MustUserID(s string) UserID {
	id, err := EncodeUserID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func isAlphanumeric(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// String decodes the identifier, dropping the zero padding.
func (id UserID) String() string {
	return strings.TrimRight(string(id[:]), "\x00")
}

// IsZero reports whether id is the unregistered sentinel.
func (id UserID) IsZero() bool {
	return id == UserID{}
}

// Valid reports whether id decodes back to a well-formed identifier. Values
// read off-chain may carry bytes that EncodeUserID would never produce.
func (id UserID) Valid() bool {
	if id.IsZero() {
		return false
	}
	decoded, err := EncodeUserID(id.String())
	return err == nil && decoded == id
}

// MarshalText renders the identifier as its human string.
func (id UserID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the human string form. An empty string decodes to
// the zero identifier.
func (id *UserID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = UserID{}
		return nil
	}
	parsed, err := EncodeUserID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// TimeFromChain converts a uint256 unix timestamp to time.Time. Nil and
// zero map to the zero time.
func TimeFromChain(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

// UserProfile is the registration record of a user.
type UserProfile struct {
	UserID       UserID         `json:"user_id"`
	Wallet       common.Address `json:"wallet"`
	Referrer     common.Address `json:"referrer"`
	RegisteredAt time.Time      `json:"registered_at"`
	IsActive     bool           `json:"is_active"`
}

// TeamSummary aggregates a user's referral tree as computed by the contract.
type TeamSummary struct {
	DirectReferrals         []UserID `json:"direct_referrals"`
	DirectCount             uint64   `json:"direct_count"`
	QualifiedDirectCount    uint64   `json:"qualified_direct_count"`
	DirectBusiness          *big.Int `json:"direct_business"`
	QualifiedDirectBusiness *big.Int `json:"qualified_direct_business"`
	TeamSize                uint64   `json:"team_size"`
	TeamBusiness            *big.Int `json:"team_business"`
	UnlockedLevels          uint64   `json:"unlocked_levels"`
}

// IncomeLedger is a user's income breakdown.
type IncomeLedger struct {
	DirectIncome          *big.Int `json:"direct_income"`
	LevelIncome           *big.Int `json:"level_income"`
	StakingIncome         *big.Int `json:"staking_income"`
	LifetimeRewardIncome  *big.Int `json:"lifetime_reward_income"`
	TotalIncome           *big.Int `json:"total_income"`
	AvailableBalance      *big.Int `json:"available_balance"`
	TotalWithdrawn        *big.Int `json:"total_withdrawn"`
	LastClaimedRewardTier uint64   `json:"last_claimed_reward_tier"`
}

// Sum adds the four income sources. Nil components count as zero.
func (l IncomeLedger) Sum() *big.Int {
	sum := new(big.Int)
	for _, v := range []*big.Int{l.DirectIncome, l.LevelIncome, l.StakingIncome, l.LifetimeRewardIncome} {
		if v != nil {
			sum.Add(sum, v)
		}
	}
	return sum
}

// Consistent reports whether TotalIncome equals Sum and AvailableBalance
// does not exceed TotalIncome - TotalWithdrawn.
func (l IncomeLedger) Consistent() bool {
	total := orZero(l.TotalIncome)
	if total.Cmp(l.Sum()) != 0 {
		return false
	}
	headroom := new(big.Int).Sub(total, orZero(l.TotalWithdrawn))
	return orZero(l.AvailableBalance).Cmp(headroom) <= 0
}

// StakingStats summarises a user's staking volume.
type StakingStats struct {
	TotalStaked        *big.Int `json:"total_staked"`
	ActiveStakedAmount *big.Int `json:"active_staked_amount"`
	StakeCount         uint64   `json:"stake_count"`
}

// Stake is a single stake position. Duration is the contract-reported lock
// length in seconds.
type Stake struct {
	ID           uint64    `json:"id"`
	Amount       *big.Int  `json:"amount"`
	Duration     *big.Int  `json:"duration"`
	InterestRate *big.Int  `json:"interest_rate"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	IsActive     bool      `json:"is_active"`
	IsClaimed    bool      `json:"is_claimed"`
}

// StakeView is a Stake with display quantities derived at a point in time.
type StakeView struct {
	Stake
	Index           int     `json:"index"`
	ProgressPercent float64 `json:"progress_percent"`
	DaysLeft        int64   `json:"days_left"`
	IsMatured       bool    `json:"is_matured"`
}

// RewardPreview describes the next lifetime reward tier a user can reach.
type RewardPreview struct {
	Tier     uint64   `json:"tier"`
	Eligible bool     `json:"eligible"`
	Amount   *big.Int `json:"amount"`
}

// RawDashboard is the composite record returned by getUserDashboard.
type RawDashboard struct {
	Profile        UserProfile   `json:"profile"`
	Team           TeamSummary   `json:"team"`
	Income         IncomeLedger  `json:"income"`
	Stats          StakingStats  `json:"stats"`
	Stakes         []Stake       `json:"stakes"`
	UnlockedLevels uint64        `json:"unlocked_levels"`
	LevelsUnlocked [20]bool      `json:"levels_unlocked"`
	NextReward     RewardPreview `json:"next_reward"`
}

// UserDashboard is the assembled view model.
type UserDashboard struct {
	Profile          UserProfile   `json:"profile"`
	Team             TeamSummary   `json:"team"`
	Income           IncomeLedger  `json:"income"`
	Stats            StakingStats  `json:"stats"`
	Stakes           []StakeView   `json:"stakes"`
	InProgress       []StakeView   `json:"in_progress"`
	ReadyToClaim     []StakeView   `json:"ready_to_claim"`
	TotalDistributed *big.Int      `json:"total_distributed"`
	UnlockedLevels   uint64        `json:"unlocked_levels"`
	LevelsUnlocked   [20]bool      `json:"levels_unlocked"`
	NextReward       RewardPreview `json:"next_reward"`
	AsOf             time.Time     `json:"as_of"`
}

// History returns the raw stake records in contract order.
func (d *UserDashboard) History() []Stake {
	out := make([]Stake, len(d.Stakes))
	for i, v := range d.Stakes {
		out[i] = v.Stake
	}
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
