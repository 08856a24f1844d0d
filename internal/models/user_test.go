package models

import "testing"

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"John Smith", "John S."},
		{"Ada", "Ada"},
		{"  María  José Núñez ", "María N."},
		{"", ""},
	}

	for _, tt := range tests {
		got := User{Name: tt.name}.DisplayName()
		if got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRankEligible(t *testing.T) {
	if !(User{IsActive: true}).RankEligible() {
		t.Error("active non-staff user should be eligible")
	}
	if (User{IsActive: true, IsStaff: true}).RankEligible() {
		t.Error("staff should not be eligible")
	}
	if (User{IsActive: false}).RankEligible() {
		t.Error("inactive user should not be eligible")
	}
}

func TestAnswerStatsAccuracy(t *testing.T) {
	if got := (AnswerStats{}).Accuracy(); got != 0 {
		t.Errorf("Accuracy() with no answers = %f, want 0", got)
	}
	if got := (AnswerStats{Answered: 8, Correct: 6}).Accuracy(); got != 75 {
		t.Errorf("Accuracy() = %f, want 75", got)
	}
}
