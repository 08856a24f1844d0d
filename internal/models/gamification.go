package models

import "time"

// ── Core Gamification Structs ─────────────────────────────

// Cooldown namespaces inside ProgressRecord.Cooldowns.
const (
	CooldownQuestion = "question"
	CooldownExam     = "exam"
)

type ProgressRecord struct {
	UserID             int64                           `json:"user_id"`
	XP                 uint64                          `json:"xp"`
	Level              uint32                          `json:"level"`
	ConsecutiveCorrect uint32                          `json:"consecutive_correct"`
	BonusActive        bool                            `json:"bonus_active"`
	LastAnswerAt       *time.Time                      `json:"last_answer_at,omitempty"`
	Cooldowns          map[string]map[string]time.Time `json:"cooldowns"`
	CreatedAt          time.Time                       `json:"created_at"`
	UpdatedAt          time.Time                       `json:"updated_at"`
}

// CooldownAt returns the last rewarded timestamp for an item in a namespace.
func (p *ProgressRecord) CooldownAt(namespace, itemID string) *time.Time {
	items, ok := p.Cooldowns[namespace]
	if !ok {
		return nil
	}
	t, ok := items[itemID]
	if !ok {
		return nil
	}
	return &t
}

func (p *ProgressRecord) SetCooldown(namespace, itemID string, at time.Time) {
	if p.Cooldowns == nil {
		p.Cooldowns = make(map[string]map[string]time.Time)
	}
	if p.Cooldowns[namespace] == nil {
		p.Cooldowns[namespace] = make(map[string]time.Time)
	}
	p.Cooldowns[namespace][itemID] = at
}

type DailyGoalRecord struct {
	UserID               int64     `json:"user_id"`
	Day                  time.Time `json:"day"`
	XPEarnedToday        uint64    `json:"xp_earned_today"`
	QuestionsSolvedToday uint32    `json:"questions_solved_today"`
	GoalReached          bool      `json:"goal_reached"`
}

type StreakRecord struct {
	UserID           int64      `json:"user_id"`
	CurrentStreak    uint32     `json:"current_streak"`
	MaxStreak        uint32     `json:"max_streak"`
	LastPracticeDate *time.Time `json:"last_practice_date,omitempty"`
}

type Achievement struct {
	Key           string   `json:"key"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Icon          string   `json:"icon"`
	Color         string   `json:"color"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

type AchievementUnlock struct {
	UserID         int64     `json:"user_id"`
	AchievementKey string    `json:"achievement_key"`
	UnlockedAt     time.Time `json:"unlocked_at"`
}

// AnswerStats are lifetime answer totals for one user.
type AnswerStats struct {
	Answered int64 `json:"answered"`
	Correct  int64 `json:"correct"`
}

// Accuracy returns the correct share in percent (0 when nothing was answered).
func (s AnswerStats) Accuracy() float64 {
	if s.Answered == 0 {
		return 0
	}
	return float64(s.Correct) * 100 / float64(s.Answered)
}

// ── Rewards ───────────────────────────────────────────────

type Trigger string

const (
	TriggerRankingWeeklyTopN  Trigger = "RANKING_WEEKLY_TOP_N"
	TriggerRankingMonthlyTopN Trigger = "RANKING_MONTHLY_TOP_N"
	TriggerExamCompleted      Trigger = "EXAM_COMPLETED"
	TriggerCommentPosted      Trigger = "COMMENT_POSTED"
	TriggerLikeGiven          Trigger = "LIKE_GIVEN"
)

var ValidTriggers = map[Trigger]bool{
	TriggerRankingWeeklyTopN:  true,
	TriggerRankingMonthlyTopN: true,
	TriggerExamCompleted:      true,
	TriggerCommentPosted:      true,
	TriggerLikeGiven:          true,
}

type ItemCategory string

const (
	CategoryAvatar ItemCategory = "avatar"
	CategoryBorder ItemCategory = "border"
	CategoryBanner ItemCategory = "banner"
)

// ItemRef identifies a collectible by its category slot and id.
type ItemRef struct {
	Category ItemCategory `json:"category"`
	ItemID   string       `json:"item_id"`
}

type RewardItem struct {
	ItemRef
	Name              string  `json:"name"`
	UnlockLevel       *uint32 `json:"unlock_level,omitempty"`
	UnlockAchievement *string `json:"unlock_achievement,omitempty"`
}

// CreateRewardItemRequest adds a collectible to the catalog. ItemID is derived
// from Name when omitted.
type CreateRewardItemRequest struct {
	Category          ItemCategory `json:"category"`
	ItemID            string       `json:"item_id,omitempty"`
	Name              string       `json:"name"`
	UnlockLevel       *uint32      `json:"unlock_level,omitempty"`
	UnlockAchievement *string      `json:"unlock_achievement,omitempty"`
}

// RewardRule is a stored rule. Conditions stays raw until the engine decodes it
// for the rule's trigger.
type RewardRule struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Active      bool      `json:"active"`
	Trigger     Trigger   `json:"trigger"`
	Conditions  []byte    `json:"conditions,omitempty"`
	XPBonus     uint64    `json:"xp_bonus"`
	RewardItems []ItemRef `json:"reward_items"`
}

type RewardGrant struct {
	UserID    int64     `json:"user_id"`
	Item      ItemRef   `json:"item"`
	GrantedAt time.Time `json:"granted_at"`
}

// ── Rankings ──────────────────────────────────────────────

type PeriodType string

const (
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
)

// Standing is one user's aggregate over a ranking window.
type Standing struct {
	UserID        int64 `json:"user_id"`
	CorrectCount  int64 `json:"correct_count"`
	AnsweredCount int64 `json:"answered_count"`
}

type RankingSnapshot struct {
	PeriodType    PeriodType `json:"period_type"`
	PeriodKey     string     `json:"period_key"`
	Position      int        `json:"position"`
	UserID        int64      `json:"user_id"`
	CorrectCount  int64      `json:"correct_count"`
	AnsweredCount int64      `json:"answered_count"`
}

// ── Content ───────────────────────────────────────────────

type ExamDefinition struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Official    bool       `json:"official"`
	Difficulty  Difficulty `json:"difficulty"`
	QuestionIDs []int64    `json:"question_ids"`
}

type ExamSession struct {
	ID         string           `json:"id"`
	UserID     int64            `json:"user_id"`
	ExamID     int64            `json:"exam_id"`
	Answers    map[int64]string `json:"answers"`
	FinishedAt time.Time        `json:"finished_at"`
}

// ── Request Types ─────────────────────────────────────────

type SubmitAnswerRequest struct {
	SelectedOption string `json:"selected_option"`
}

type CompleteExamRequest struct {
	ExamID  int64            `json:"exam_id"`
	Answers map[int64]string `json:"answers"`
}

// ── Response Types ────────────────────────────────────────

type LevelUp struct {
	NewLevel uint32 `json:"new_level"`
}

type DailyGoalBonus struct {
	XP uint64 `json:"xp"`
}

type SubmitAnswerResponse struct {
	Correct        bool            `json:"correct"`
	XPGained       int64           `json:"xp_gained"`
	BonusActive    bool            `json:"bonus_active"`
	LevelUp        *LevelUp        `json:"level_up,omitempty"`
	NewAchievement *Achievement    `json:"new_achievement,omitempty"`
	DailyGoalBonus *DailyGoalBonus `json:"daily_goal_bonus,omitempty"`
	UnlockedItems  []ItemRef       `json:"unlocked_items,omitempty"`
	BlockedReason  string          `json:"blocked_reason,omitempty"`
}

type CompleteExamResponse struct {
	XPGained       int64     `json:"xp_gained"`
	FiredRules     []string  `json:"fired_rules"`
	GrantedItems   []ItemRef `json:"granted_items"`
	LevelUp        *LevelUp  `json:"level_up,omitempty"`
	PercentCorrect float64   `json:"percent_correct"`
	BlockedReason  string    `json:"blocked_reason,omitempty"`
}

type RuleOutcome struct {
	GrantedItems []ItemRef `json:"granted_items"`
	TotalXPBonus uint64    `json:"total_xp_bonus"`
	FiredRules   []string  `json:"fired_rules"`
}

type LeaderboardEntry struct {
	Position      int    `json:"position"`
	UserID        int64  `json:"user_id"`
	DisplayName   string `json:"display_name"`
	CorrectCount  int64  `json:"correct_count"`
	AnsweredCount int64  `json:"answered_count"`
}

type LeaderboardResponse struct {
	PeriodType PeriodType         `json:"period_type"`
	PeriodKey  string             `json:"period_key"`
	Entries    []LeaderboardEntry `json:"entries"`
}

type PeriodRun struct {
	Ran           bool   `json:"ran"`
	PeriodKey     string `json:"period_key,omitempty"`
	RowsWritten   int    `json:"rows_written"`
	RewardedUsers int    `json:"rewarded_users"`
}

type AggregationReport struct {
	Weekly  PeriodRun `json:"weekly"`
	Monthly PeriodRun `json:"monthly"`
}

type ProgressResponse struct {
	XP            uint64          `json:"xp"`
	Level         uint32          `json:"level"`
	XPToNextLevel uint64          `json:"xp_to_next_level"`
	BonusActive   bool            `json:"bonus_active"`
	Streak        StreakRecord    `json:"streak"`
	DailyGoal     DailyGoalRecord `json:"daily_goal"`
	Achievements  []string        `json:"achievements"`
	OwnedItems    []ItemRef       `json:"owned_items"`
}

// ── Ledgers ───────────────────────────────────────────────

// AnswerRecord is one graded answer the engine processed.
type AnswerRecord struct {
	UserID         int64     `json:"user_id"`
	QuestionID     int64     `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
	Correct        bool      `json:"correct"`
	AnsweredAt     time.Time `json:"answered_at"`
}

type ExamCompletion struct {
	SessionID      string    `json:"session_id"`
	UserID         int64     `json:"user_id"`
	ExamID         int64     `json:"exam_id"`
	PercentCorrect float64   `json:"percent_correct"`
	XPGained       int64     `json:"xp_gained"`
	CompletedAt    time.Time `json:"completed_at"`
}

// AuditEvent is a security-relevant fact handed to the audit sink.
type AuditEvent struct {
	ID         string         `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	Target     string         `json:"target,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type SocialEventRequest struct {
	UserID  int64   `json:"user_id"`
	Trigger Trigger `json:"trigger"`
}
