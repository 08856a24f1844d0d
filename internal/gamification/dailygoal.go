package gamification

import (
	"time"

	"github.com/practiceprep/backend/internal/config"
	"github.com/practiceprep/backend/internal/models"
)

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RecordActivity counts one processed answer toward today's goal. The bonus is
// returned only on the call that first reaches the target.
func RecordActivity(g *models.DailyGoalRecord, xpGained int64, s config.Settings) *models.DailyGoalBonus {
	g.QuestionsSolvedToday++
	if xpGained > 0 {
		g.XPEarnedToday += uint64(xpGained)
	}

	if g.GoalReached || s.DailyGoalTarget == 0 || g.QuestionsSolvedToday < s.DailyGoalTarget {
		return nil
	}
	g.GoalReached = true
	g.XPEarnedToday += s.DailyGoalBonusXP
	return &models.DailyGoalBonus{XP: s.DailyGoalBonusXP}
}
