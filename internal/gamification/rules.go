package gamification

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/practiceprep/backend/internal/models"
)

// RuleContext carries the trigger-specific facts a condition is checked against.
type RuleContext struct {
	PercentCorrect float64
	Position       int
}

// Condition is a decoded rule predicate. A nil Condition always matches.
type Condition interface {
	Matches(RuleContext) bool
}

type MinPercentCondition struct {
	MinPercentCorrect float64 `json:"min_percent_correct"`
}

func (c MinPercentCondition) Matches(ctx RuleContext) bool {
	return ctx.PercentCorrect >= c.MinPercentCorrect
}

type RankingTopNCondition struct {
	TopN int `json:"top_n"`
}

func (c RankingTopNCondition) Matches(ctx RuleContext) bool {
	return ctx.Position >= 1 && ctx.Position <= c.TopN
}

// DecodeCondition turns a stored conditions document into the variant for the
// rule's trigger.
func DecodeCondition(trigger models.Trigger, raw []byte) (Condition, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("{}")) {
		return nil, nil
	}

	switch trigger {
	case models.TriggerExamCompleted:
		var c MinPercentCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode %s conditions: %w", trigger, err)
		}
		return c, nil
	case models.TriggerRankingWeeklyTopN, models.TriggerRankingMonthlyTopN:
		var c RankingTopNCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode %s conditions: %w", trigger, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCondition, trigger)
	}
}

// Matches treats a nil condition as always true.
func Matches(c Condition, ctx RuleContext) bool {
	if c == nil {
		return true
	}
	return c.Matches(ctx)
}
