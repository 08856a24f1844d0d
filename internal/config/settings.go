package config

import (
	"errors"
	"fmt"
	"time"
)

// Exam XP modes.
const (
	ExamXPFixed   = "fixed"
	ExamXPDynamic = "dynamic"
)

// Settings is the versioned gamification configuration. It is loaded once and
// treated as an immutable value; engine operations take a copy per call.
type Settings struct {
	Version int `yaml:"version"`

	XPFirstTry      int64   `yaml:"xp_first_try"`
	XPRedemption    int64   `yaml:"xp_redemption"`
	XPRepeat        int64   `yaml:"xp_repeat"`
	XPWrong         int64   `yaml:"xp_wrong"`
	BonusThreshold  uint32  `yaml:"bonus_threshold"`
	BonusMultiplier float64 `yaml:"bonus_multiplier"`

	MinAnswerInterval time.Duration `yaml:"min_answer_interval"`
	QuestionCooldown  time.Duration `yaml:"question_cooldown"`
	ExamCooldown      time.Duration `yaml:"exam_cooldown"`
	DailyXPCap        uint64        `yaml:"daily_xp_cap"`
	DailyCapEnabled   bool          `yaml:"daily_cap_enabled"`

	DailyGoalTarget  uint32 `yaml:"daily_goal_target"`
	DailyGoalBonusXP uint64 `yaml:"daily_goal_bonus_xp"`

	ExamXPMode            string             `yaml:"exam_xp_mode"`
	ExamCompletionXP      int64              `yaml:"exam_completion_xp"`
	ExamXPCorrect         int64              `yaml:"exam_xp_correct"`
	ExamXPWrong           int64              `yaml:"exam_xp_wrong"`
	ExamCountWrong        bool               `yaml:"exam_count_wrong"`
	ExamXPMultiplier      float64            `yaml:"exam_xp_multiplier"`
	DifficultyMultipliers map[string]float64 `yaml:"difficulty_multipliers"`
}

// DefaultSettings returns the stock tuning.
func DefaultSettings() Settings {
	return Settings{
		Version:           1,
		XPFirstTry:        10,
		XPRedemption:      7,
		XPRepeat:          2,
		XPWrong:           0,
		BonusThreshold:    5,
		BonusMultiplier:   1.5,
		MinAnswerInterval: 10 * time.Second,
		QuestionCooldown:  time.Hour,
		ExamCooldown:      24 * time.Hour,
		DailyXPCap:        500,
		DailyCapEnabled:   true,
		DailyGoalTarget:   10,
		DailyGoalBonusXP:  25,
		ExamXPMode:        ExamXPDynamic,
		ExamCompletionXP:  50,
		ExamXPCorrect:     5,
		ExamXPWrong:       0,
		ExamCountWrong:    false,
		ExamXPMultiplier:  1.0,
		DifficultyMultipliers: map[string]float64{
			"easy":   1.0,
			"medium": 1.25,
			"hard":   1.5,
		},
	}
}

func (s *Settings) applyDefaults() {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.ExamXPMode == "" {
		s.ExamXPMode = ExamXPDynamic
	}
	if s.DifficultyMultipliers == nil {
		s.DifficultyMultipliers = DefaultSettings().DifficultyMultipliers
	}
}

// Validate rejects settings the engine cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if s.BonusMultiplier < 1 {
		errs = append(errs, fmt.Errorf("bonus_multiplier must be >= 1, got %v", s.BonusMultiplier))
	}
	if s.MinAnswerInterval < 0 || s.QuestionCooldown < 0 || s.ExamCooldown < 0 {
		errs = append(errs, errors.New("cooldowns must not be negative"))
	}
	if s.ExamXPMode != ExamXPFixed && s.ExamXPMode != ExamXPDynamic {
		errs = append(errs, fmt.Errorf("exam_xp_mode must be %q or %q, got %q", ExamXPFixed, ExamXPDynamic, s.ExamXPMode))
	}
	if s.ExamXPMultiplier < 0 {
		errs = append(errs, errors.New("exam_xp_multiplier must not be negative"))
	}
	for k, v := range s.DifficultyMultipliers {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("difficulty multiplier %q must be positive", k))
		}
	}
	return errors.Join(errs...)
}

// DifficultyMultiplier returns the multiplier for an official exam difficulty,
// 1.0 when the difficulty is not configured.
func (s Settings) DifficultyMultiplier(difficulty string) float64 {
	if m, ok := s.DifficultyMultipliers[difficulty]; ok {
		return m
	}
	return 1.0
}

// LongestCooldown bounds how long a cooldown entry can still matter.
func (s Settings) LongestCooldown() time.Duration {
	longest := s.QuestionCooldown
	if s.ExamCooldown > longest {
		longest = s.ExamCooldown
	}
	if s.MinAnswerInterval > longest {
		longest = s.MinAnswerInterval
	}
	return longest
}

// SettingsProvider hands out the current Settings value.
type SettingsProvider interface {
	Current() Settings
}

// StaticSettings serves one Settings value loaded at startup.
type StaticSettings struct {
	settings Settings
}

func NewStaticSettings(s Settings) *StaticSettings {
	// Copy the map so later mutation by the caller cannot leak in.
	mult := make(map[string]float64, len(s.DifficultyMultipliers))
	for k, v := range s.DifficultyMultipliers {
		mult[k] = v
	}
	s.DifficultyMultipliers = mult
	return &StaticSettings{settings: s}
}

func (p *StaticSettings) Current() Settings {
	return p.settings
}
