// Package dashboard assembles raw contract reads into the user dashboard
// view model and derives the per-stake display quantities.
package dashboard

import (
	"time"

	"github.com/stakedeck/stakedeck/pkg/types"
)

const day = 24 * time.Hour

// NewStakeView derives progress, days left and maturity of s at now.
// A stake whose end is not after its start is matured.
func NewStakeView(s types.Stake, now time.Time) types.StakeView {
	view := types.StakeView{Stake: s}

	total := s.EndTime.Sub(s.StartTime)
	switch {
	case total <= 0:
		view.ProgressPercent = 100
	default:
		elapsed := now.Sub(s.StartTime)
		pct := float64(elapsed) / float64(total) * 100
		view.ProgressPercent = min(100, max(0, pct))
	}

	if remaining := s.EndTime.Sub(now); remaining > 0 {
		view.DaysLeft = int64((remaining + day - 1) / day)
	}
	view.IsMatured = view.ProgressPercent >= 100
	return view
}

// Assemble builds the dashboard view model from a raw record. A nil record
// means the read has not resolved and yields nil.
func Assemble(raw *types.RawDashboard, now time.Time) *types.UserDashboard {
	if raw == nil {
		return nil
	}

	d := &types.UserDashboard{
		Profile:          raw.Profile,
		Team:             raw.Team,
		Income:           raw.Income,
		Stats:            raw.Stats,
		Stakes:           make([]types.StakeView, 0, len(raw.Stakes)),
		InProgress:       []types.StakeView{},
		ReadyToClaim:     []types.StakeView{},
		TotalDistributed: raw.Income.Sum(),
		UnlockedLevels:   raw.UnlockedLevels,
		LevelsUnlocked:   raw.LevelsUnlocked,
		NextReward:       raw.NextReward,
		AsOf:             now,
	}

	for i, s := range raw.Stakes {
		view := NewStakeView(s, now)
		view.Index = i
		d.Stakes = append(d.Stakes, view)

		if !s.IsActive {
			continue
		}
		if view.IsMatured {
			d.ReadyToClaim = append(d.ReadyToClaim, view)
		} else {
			d.InProgress = append(d.InProgress, view)
		}
	}
	return d
}
