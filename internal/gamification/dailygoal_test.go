package gamification

import (
	"testing"
	"time"

	"github.com/practiceprep/backend/internal/config"
	"github.com/practiceprep/backend/internal/models"
)

func TestDayOf(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	got := DayOf(time.Date(2024, 2, 14, 2, 0, 0, 0, loc))
	want := time.Date(2024, 2, 13, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DayOf = %v, want %v", got, want)
	}
}

func TestRecordActivity(t *testing.T) {
	s := config.DefaultSettings()
	s.DailyGoalTarget = 3
	g := &models.DailyGoalRecord{}

	if b := RecordActivity(g, 10, s); b != nil {
		t.Fatal("bonus before target")
	}
	RecordActivity(g, -4, s)
	if g.XPEarnedToday != 10 {
		t.Errorf("negative XP changed earned total: %d", g.XPEarnedToday)
	}

	b := RecordActivity(g, 10, s)
	if b == nil || b.XP != 25 {
		t.Fatalf("bonus on reaching target = %+v, want 25", b)
	}
	if !g.GoalReached || g.XPEarnedToday != 45 {
		t.Errorf("goal state after bonus: %+v", g)
	}

	if b := RecordActivity(g, 10, s); b != nil {
		t.Error("bonus paid twice in one day")
	}
	if g.QuestionsSolvedToday != 4 {
		t.Errorf("QuestionsSolvedToday = %d, want 4", g.QuestionsSolvedToday)
	}
}

func TestRecordActivityDisabledGoal(t *testing.T) {
	s := config.DefaultSettings()
	s.DailyGoalTarget = 0
	g := &models.DailyGoalRecord{}
	for i := 0; i < 20; i++ {
		if RecordActivity(g, 10, s) != nil {
			t.Fatal("bonus with goal disabled")
		}
	}
}
