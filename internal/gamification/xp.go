package gamification

import (
	"math"

	"github.com/practiceprep/backend/internal/config"
	"github.com/practiceprep/backend/internal/models"
)

// XPRequirement is the cumulative XP needed to complete level L: 50·L² + 50·L.
// Persisted progress depends on this exact formula.
func XPRequirement(level uint32) uint64 {
	l := uint64(level)
	return 50*l*l + 50*l
}

// XPToNextLevel returns how much XP is missing before the current level completes.
func XPToNextLevel(xp uint64, level uint32) uint64 {
	req := XPRequirement(level)
	if xp >= req {
		return 0
	}
	return req - xp
}

// BaseAnswerXP picks the XP case for an answer.
func BaseAnswerXP(s config.Settings, correct, firstAttempt, wasWrongLastTime bool) int64 {
	switch {
	case !correct:
		return s.XPWrong
	case firstAttempt:
		return s.XPFirstTry
	case wasWrongLastTime:
		return s.XPRedemption
	default:
		return s.XPRepeat
	}
}

// ApplyBonus multiplies positive XP and floors the result.
func ApplyBonus(xp int64, multiplier float64) int64 {
	if xp <= 0 {
		return xp
	}
	return int64(math.Floor(float64(xp) * multiplier))
}

type AnswerResult struct {
	XPGained    int64
	BonusActive bool
	LevelUp     *models.LevelUp
}

// ApplyAnswer advances the progression state for one graded answer.
func ApplyAnswer(p *models.ProgressRecord, s config.Settings, correct, firstAttempt, wasWrongLastTime bool) AnswerResult {
	base := BaseAnswerXP(s, correct, firstAttempt, wasWrongLastTime)

	if correct {
		p.ConsecutiveCorrect++
		if p.ConsecutiveCorrect >= s.BonusThreshold {
			p.BonusActive = true
		}
	} else {
		p.ConsecutiveCorrect = 0
		p.BonusActive = false
	}

	gained := base
	if correct && p.BonusActive {
		gained = ApplyBonus(base, s.BonusMultiplier)
	}

	CreditXP(p, gained)
	return AnswerResult{
		XPGained:    gained,
		BonusActive: p.BonusActive,
		LevelUp:     ApplyLevelUps(p),
	}
}

// CreditXP adds delta to the record, never letting XP drop below zero.
func CreditXP(p *models.ProgressRecord, delta int64) {
	if delta >= 0 {
		p.XP += uint64(delta)
		return
	}
	loss := uint64(-delta)
	if loss > p.XP {
		p.XP = 0
		return
	}
	p.XP -= loss
}

// ApplyLevelUps raises the level while the cumulative XP covers the current
// level's requirement. Returns the final level when at least one level was gained.
func ApplyLevelUps(p *models.ProgressRecord) *models.LevelUp {
	if p.Level < 1 {
		p.Level = 1
	}
	start := p.Level
	for p.XP >= XPRequirement(p.Level) {
		p.Level++
	}
	if p.Level == start {
		return nil
	}
	return &models.LevelUp{NewLevel: p.Level}
}

// ExamXP computes the completion XP for a graded exam before rule bonuses.
func ExamXP(s config.Settings, exam models.ExamDefinition, correct, wrong int) int64 {
	var xp float64
	if s.ExamXPMode == config.ExamXPFixed {
		xp = float64(s.ExamCompletionXP)
	} else {
		raw := int64(correct) * s.ExamXPCorrect
		if s.ExamCountWrong {
			raw += int64(wrong) * s.ExamXPWrong
		}
		xp = float64(raw) * s.ExamXPMultiplier
	}
	if exam.Official {
		xp *= s.DifficultyMultiplier(string(exam.Difficulty))
	}
	return int64(math.Floor(xp))
}
