package gamification

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/practiceprep/backend/internal/models"
)

// Scheduler task names, one SchedulerLog row each.
const (
	TaskRankingWeekly  = "ranking_weekly"
	TaskRankingMonthly = "ranking_monthly"
)

var (
	weeklyKeyPattern  = regexp.MustCompile(`^\d{4}-W\d{2}$`)
	monthlyKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

func ParsePeriod(s string) (models.PeriodType, error) {
	switch models.PeriodType(s) {
	case models.PeriodWeekly, models.PeriodMonthly:
		return models.PeriodType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// ValidPeriodKey checks a key like "2026-W41" (weekly) or "2026-09" (monthly).
func ValidPeriodKey(period models.PeriodType, key string) bool {
	if period == models.PeriodWeekly {
		return weeklyKeyPattern.MatchString(key)
	}
	return monthlyKeyPattern.MatchString(key)
}

func taskFor(period models.PeriodType) string {
	if period == models.PeriodWeekly {
		return TaskRankingWeekly
	}
	return TaskRankingMonthly
}

func triggerFor(period models.PeriodType) models.Trigger {
	if period == models.PeriodWeekly {
		return models.TriggerRankingWeeklyTopN
	}
	return models.TriggerRankingMonthlyTopN
}

// Due reports whether the period job may run given its last run.
// Weekly needs seven full days since the last run; monthly needs a new calendar month.
func Due(period models.PeriodType, now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	if period == models.PeriodWeekly {
		return now.Sub(*lastRun) >= 7*24*time.Hour
	}
	ly, lm, _ := lastRun.UTC().Date()
	ny, nm, _ := now.UTC().Date()
	return ly != ny || lm != nm
}

// Window returns the [from, to) range and key of the period preceding now.
func Window(period models.PeriodType, now time.Time) (from, to time.Time, key string) {
	if period == models.PeriodWeekly {
		return PreviousWeek(now)
	}
	return PreviousMonth(now)
}

// PreviousWeek returns the ISO week before the one containing now.
func PreviousWeek(now time.Time) (from, to time.Time, key string) {
	today := DayOf(now)
	offset := (int(today.Weekday()) + 6) % 7 // days since Monday
	to = today.AddDate(0, 0, -offset)
	from = to.AddDate(0, 0, -7)
	year, week := from.ISOWeek()
	return from, to, fmt.Sprintf("%d-W%02d", year, week)
}

// PreviousMonth returns the calendar month before the one containing now.
func PreviousMonth(now time.Time) (from, to time.Time, key string) {
	y, m, _ := now.UTC().Date()
	to = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	from = to.AddDate(0, -1, 0)
	return from, to, fmt.Sprintf("%d-%02d", from.Year(), int(from.Month()))
}

// RankStandings orders eligible users by correct answers, then answered count,
// and assigns positions from 1. Users tied on both keys are ordered by id so
// repeated runs agree.
func RankStandings(period models.PeriodType, key string, standings []models.Standing, eligible func(userID int64) bool) []models.RankingSnapshot {
	ranked := make([]models.Standing, 0, len(standings))
	for _, s := range standings {
		if s.AnsweredCount == 0 || !eligible(s.UserID) {
			continue
		}
		ranked = append(ranked, s)
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.CorrectCount != b.CorrectCount {
			return a.CorrectCount > b.CorrectCount
		}
		if a.AnsweredCount != b.AnsweredCount {
			return a.AnsweredCount > b.AnsweredCount
		}
		return a.UserID < b.UserID
	})

	snapshots := make([]models.RankingSnapshot, len(ranked))
	for i, s := range ranked {
		snapshots[i] = models.RankingSnapshot{
			PeriodType:    period,
			PeriodKey:     key,
			Position:      i + 1,
			UserID:        s.UserID,
			CorrectCount:  s.CorrectCount,
			AnsweredCount: s.AnsweredCount,
		}
	}
	return snapshots
}
