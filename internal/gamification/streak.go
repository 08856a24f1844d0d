package gamification

import (
	"time"

	"github.com/practiceprep/backend/internal/models"
)

// UpdateStreak records practice on the day containing now. Returns false when
// the day was already counted.
func UpdateStreak(s *models.StreakRecord, now time.Time) bool {
	today := DayOf(now)

	if s.LastPracticeDate != nil {
		last := DayOf(*s.LastPracticeDate)
		if !today.After(last) {
			return false
		}
		if today.Sub(last) == 24*time.Hour {
			s.CurrentStreak++
		} else {
			s.CurrentStreak = 1
		}
	} else {
		s.CurrentStreak = 1
	}

	if s.CurrentStreak > s.MaxStreak {
		s.MaxStreak = s.CurrentStreak
	}
	s.LastPracticeDate = &today
	return true
}
