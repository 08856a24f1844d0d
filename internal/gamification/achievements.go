package gamification

import "github.com/practiceprep/backend/internal/models"

// MinAnswersForAccuracy keeps accuracy milestones from unlocking on tiny samples.
const MinAnswersForAccuracy = 50

// Milestone is one row of a checker's table.
type Milestone struct {
	Key       string
	Threshold uint64
}

// UserState is what the checkers look at.
type UserState struct {
	Streak models.StreakRecord
	Stats  models.AnswerStats
}

type checker struct {
	name       string
	milestones []Milestone // ascending threshold
	value      func(UserState) uint64
}

var (
	streakMilestones = []Milestone{
		{Key: "streak_3", Threshold: 3},
		{Key: "streak_7", Threshold: 7},
		{Key: "streak_30", Threshold: 30},
	}
	volumeMilestones = []Milestone{
		{Key: "answers_10", Threshold: 10},
		{Key: "answers_100", Threshold: 100},
		{Key: "answers_500", Threshold: 500},
	}
	accuracyMilestones = []Milestone{
		{Key: "accuracy_70", Threshold: 70},
		{Key: "accuracy_90", Threshold: 90},
	}
)

// Evaluator runs the checkers in priority order: streak, volume, accuracy.
type Evaluator struct {
	checkers []checker
}

func NewEvaluator() *Evaluator {
	return &Evaluator{checkers: []checker{
		{
			name:       "streak",
			milestones: streakMilestones,
			value:      func(u UserState) uint64 { return uint64(u.Streak.CurrentStreak) },
		},
		{
			name:       "volume",
			milestones: volumeMilestones,
			value:      func(u UserState) uint64 { return uint64(u.Stats.Answered) },
		},
		{
			name:       "accuracy",
			milestones: accuracyMilestones,
			value: func(u UserState) uint64 {
				if u.Stats.Answered < MinAnswersForAccuracy {
					return 0
				}
				return uint64(u.Stats.Accuracy())
			},
		},
	}}
}

// Keys lists every milestone key the evaluator can award, in scan order.
func (e *Evaluator) Keys() []string {
	var keys []string
	for _, c := range e.checkers {
		for _, m := range c.milestones {
			keys = append(keys, m.Key)
		}
	}
	return keys
}

// Next returns the single achievement to unlock for this state, or nil.
// Milestones missing from the catalog, or whose prerequisites are not yet
// unlocked, are skipped.
func (e *Evaluator) Next(state UserState, unlocked map[string]bool, catalog map[string]models.Achievement) *models.Achievement {
	for _, c := range e.checkers {
		v := c.value(state)
		for _, m := range c.milestones {
			if v < m.Threshold {
				break
			}
			if unlocked[m.Key] {
				continue
			}
			a, ok := catalog[m.Key]
			if !ok {
				continue
			}
			if !prerequisitesMet(a, unlocked) {
				continue
			}
			return &a
		}
	}
	return nil
}

func prerequisitesMet(a models.Achievement, unlocked map[string]bool) bool {
	for _, p := range a.Prerequisites {
		if !unlocked[p] {
			return false
		}
	}
	return true
}
