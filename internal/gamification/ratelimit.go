package gamification

import (
	"time"

	"github.com/practiceprep/backend/internal/config"
)

// BlockReason explains why a rewarded action was not processed. Empty means allowed.
type BlockReason string

const (
	ReasonTooFast      BlockReason = "too fast"
	ReasonItemCooldown BlockReason = "item cooldown"
	ReasonDailyCap     BlockReason = "daily cap reached"
	ReasonDuplicate    BlockReason = "already completed"
)

// RateLimiter decides whether an action may accrue rewards. It holds no state;
// all timestamps come from the caller.
type RateLimiter struct {
	MinInterval  time.Duration
	ItemCooldown time.Duration
	DailyCap     uint64
	CapEnabled   bool
}

func AnswerLimiter(s config.Settings) RateLimiter {
	return RateLimiter{
		MinInterval:  s.MinAnswerInterval,
		ItemCooldown: s.QuestionCooldown,
		DailyCap:     s.DailyXPCap,
		CapEnabled:   s.DailyCapEnabled,
	}
}

// ExamLimiter only applies the per-exam cooldown.
func ExamLimiter(s config.Settings) RateLimiter {
	return RateLimiter{ItemCooldown: s.ExamCooldown}
}

// Check applies the rules in order; the first match wins.
func (l RateLimiter) Check(now time.Time, lastAnswerAt, lastItemAt *time.Time, xpEarnedToday uint64) BlockReason {
	if lastAnswerAt != nil && now.Sub(*lastAnswerAt) < l.MinInterval {
		return ReasonTooFast
	}
	if lastItemAt != nil && now.Sub(*lastItemAt) < l.ItemCooldown {
		return ReasonItemCooldown
	}
	if l.CapEnabled && xpEarnedToday >= l.DailyCap {
		return ReasonDailyCap
	}
	return ""
}
