package gamification

import (
	"testing"
	"time"

	"github.com/practiceprep/backend/internal/models"
)

func TestRankStandings(t *testing.T) {
	standings := []models.Standing{
		{UserID: 1, CorrectCount: 5, AnsweredCount: 9}, // A
		{UserID: 2, CorrectCount: 8, AnsweredCount: 9}, // B
		{UserID: 3, CorrectCount: 5, AnsweredCount: 6}, // C
		{UserID: 4, CorrectCount: 9, AnsweredCount: 9}, // staff
		{UserID: 5, CorrectCount: 0, AnsweredCount: 0},
		{UserID: 6, CorrectCount: 5, AnsweredCount: 9}, // ties with A
	}
	eligible := func(id int64) bool { return id != 4 }

	got := RankStandings(models.PeriodWeekly, "2024-W06", standings, eligible)
	wantOrder := []int64{2, 1, 6, 3}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d rows, want %d: %+v", len(got), len(wantOrder), got)
	}
	for i, id := range wantOrder {
		if got[i].UserID != id || got[i].Position != i+1 {
			t.Errorf("row %d = user %d pos %d, want user %d pos %d", i, got[i].UserID, got[i].Position, id, i+1)
		}
		if got[i].PeriodKey != "2024-W06" || got[i].PeriodType != models.PeriodWeekly {
			t.Errorf("row %d has period %s %s", i, got[i].PeriodType, got[i].PeriodKey)
		}
	}
}

// Correct count outranks answered count: 8/10 places above 8/9.
func TestRankStandings_CorrectThenAnswered(t *testing.T) {
	standings := []models.Standing{
		{UserID: 1, CorrectCount: 8, AnsweredCount: 10},
		{UserID: 2, CorrectCount: 8, AnsweredCount: 9},
		{UserID: 3, CorrectCount: 5, AnsweredCount: 10},
	}
	all := func(int64) bool { return true }

	got := RankStandings(models.PeriodMonthly, "2024-01", standings, all)
	wantOrder := []int64{1, 2, 3}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d rows, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].UserID != id || got[i].Position != i+1 {
			t.Errorf("row %d = user %d pos %d, want user %d pos %d", i, got[i].UserID, got[i].Position, id, i+1)
		}
	}
}

func TestPreviousWeek(t *testing.T) {
	// Tuesday 2024-02-13 is in ISO week 7.
	from, to, key := PreviousWeek(time.Date(2024, 2, 13, 9, 0, 0, 0, time.UTC))
	if key != "2024-W06" {
		t.Errorf("key = %s, want 2024-W06", key)
	}
	if !from.Equal(time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("window = [%v, %v)", from, to)
	}

	// Sunday still belongs to the current ISO week.
	_, _, key = PreviousWeek(time.Date(2024, 2, 18, 23, 0, 0, 0, time.UTC))
	if key != "2024-W06" {
		t.Errorf("Sunday key = %s, want 2024-W06", key)
	}

	// Week 1 of 2025 starts on 2024-12-30.
	_, _, key = PreviousWeek(time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC))
	if key != "2025-W01" {
		t.Errorf("year boundary key = %s, want 2025-W01", key)
	}
}

func TestPreviousMonth(t *testing.T) {
	from, to, key := PreviousMonth(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	if key != "2023-12" {
		t.Errorf("key = %s, want 2023-12", key)
	}
	if !from.Equal(time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("window = [%v, %v)", from, to)
	}
}

func TestDue(t *testing.T) {
	now := time.Date(2024, 2, 13, 9, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		t := now.Add(-d)
		return &t
	}

	if !Due(models.PeriodWeekly, now, nil) || !Due(models.PeriodMonthly, now, nil) {
		t.Error("never-run tasks should be due")
	}
	if Due(models.PeriodWeekly, now, ago(6*24*time.Hour)) {
		t.Error("weekly due after six days")
	}
	if !Due(models.PeriodWeekly, now, ago(7*24*time.Hour)) {
		t.Error("weekly not due after seven days")
	}
	if Due(models.PeriodMonthly, now, ago(10*24*time.Hour)) {
		t.Error("monthly due within the same month")
	}
	if !Due(models.PeriodMonthly, now, ago(13*24*time.Hour)) {
		t.Error("monthly not due in a new month")
	}
}

func TestParsePeriodAndKey(t *testing.T) {
	if _, err := ParsePeriod("daily"); err == nil {
		t.Error("ParsePeriod(daily) should fail")
	}
	if p, err := ParsePeriod("monthly"); err != nil || p != models.PeriodMonthly {
		t.Errorf("ParsePeriod(monthly) = %v, %v", p, err)
	}
	if !ValidPeriodKey(models.PeriodWeekly, "2024-W06") || ValidPeriodKey(models.PeriodWeekly, "2024-02") {
		t.Error("weekly key validation")
	}
	if !ValidPeriodKey(models.PeriodMonthly, "2024-02") || ValidPeriodKey(models.PeriodMonthly, "2024-W06") {
		t.Error("monthly key validation")
	}
}
