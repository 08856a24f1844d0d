package gamification

import (
	"context"
	"time"

	"github.com/practiceprep/backend/internal/models"
)

// Repository is the engine's view of persistent state. Every per-user mutation
// happens inside InUserTx, which serializes the user's actions by locking
// their progress record.
type Repository interface {
	InUserTx(ctx context.Context, userID int64, fn func(tx UserTx) error) error
	InSchedulerTx(ctx context.Context, task string, fn func(tx SchedulerTx) error) error

	LatestPeriodKey(ctx context.Context, period models.PeriodType) (string, error)
	Snapshot(ctx context.Context, period models.PeriodType, key string) ([]models.RankingSnapshot, error)
	ProgressSummary(ctx context.Context, userID int64, day time.Time) (*models.ProgressResponse, error)
	DeleteAchievement(ctx context.Context, key string) error
	// CreateRewardItem fails with ErrItemExists when the slot is taken.
	CreateRewardItem(ctx context.Context, item models.RewardItem) error
}

// UserTx is one atomic unit of work on a single user's records.
type UserTx interface {
	// Progress locks the user's progress record, creating it on first use.
	Progress(ctx context.Context) (*models.ProgressRecord, error)
	SaveProgress(ctx context.Context, p *models.ProgressRecord) error
	DailyGoal(ctx context.Context, day time.Time) (*models.DailyGoalRecord, error)
	SaveDailyGoal(ctx context.Context, g *models.DailyGoalRecord) error
	Streak(ctx context.Context) (*models.StreakRecord, error)
	SaveStreak(ctx context.Context, s *models.StreakRecord) error

	// PreviousAnswer returns the latest answer to the question, nil if none.
	PreviousAnswer(ctx context.Context, questionID int64) (*models.AnswerRecord, error)
	RecordAnswer(ctx context.Context, a models.AnswerRecord) error
	AnswerStats(ctx context.Context) (models.AnswerStats, error)
	// RecordExamCompletion returns false when the session was already finalized.
	RecordExamCompletion(ctx context.Context, c models.ExamCompletion) (bool, error)

	AchievementCatalog(ctx context.Context) (map[string]models.Achievement, error)
	UnlockedAchievements(ctx context.Context) (map[string]bool, error)
	// UnlockAchievement returns false when the pair already existed.
	UnlockAchievement(ctx context.Context, key string, at time.Time) (bool, error)

	ActiveRules(ctx context.Context, trigger models.Trigger) ([]models.RewardRule, error)
	// GrantItem writes the ledger entry and ownership record together. It
	// returns false when the user already owned the item and
	// ErrItemNotCatalogued when the item is missing from the catalog.
	GrantItem(ctx context.Context, item models.ItemRef, ruleID *int64, at time.Time) (bool, error)
	ItemsUnlockedByLevel(ctx context.Context, level uint32) ([]models.ItemRef, error)
	ItemsUnlockedByAchievement(ctx context.Context, key string) ([]models.ItemRef, error)

	// Savepoint runs fn so that a failure undoes only fn's writes.
	Savepoint(ctx context.Context, name string, fn func() error) error
}

// SchedulerTx holds the task's SchedulerLog row lock for its lifetime.
type SchedulerTx interface {
	LastRun(ctx context.Context) (*time.Time, error)
	PeriodExists(ctx context.Context, period models.PeriodType, key string) (bool, error)
	Standings(ctx context.Context, from, to time.Time) ([]models.Standing, error)
	InsertSnapshots(ctx context.Context, rows []models.RankingSnapshot) error
	MarkRun(ctx context.Context, at time.Time) error
}

// AccountDirectory resolves user identities. Missing users wrap models.ErrNotFound.
type AccountDirectory interface {
	User(ctx context.Context, id int64) (*models.User, error)
	Users(ctx context.Context, ids []int64) (map[int64]models.User, error)
}

// ContentCatalog supplies answer keys and exam definitions. Missing records
// wrap models.ErrNotFound.
type ContentCatalog interface {
	AnswerKey(ctx context.Context, questionID int64) (*models.AnswerKey, error)
	AnswerKeys(ctx context.Context, questionIDs []int64) (map[int64]models.AnswerKey, error)
	Exam(ctx context.Context, examID int64) (*models.ExamDefinition, error)
}

// AuditSink receives security-relevant events. It is write-only.
type AuditSink interface {
	Record(ctx context.Context, event models.AuditEvent) error
}

// LeaderboardCache stores snapshot rows. Rows never change once written, so
// entries only need a TTL. Display names are not cached.
type LeaderboardCache interface {
	Get(ctx context.Context, period models.PeriodType, key string) ([]models.RankingSnapshot, error)
	Set(ctx context.Context, period models.PeriodType, key string, rows []models.RankingSnapshot) error
}
