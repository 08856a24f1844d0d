package gamification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/practiceprep/backend/internal/models"
)

// foreign_key_violation
const pqForeignKeyViolation = "23503"

var savepointName = regexp.MustCompile(`^[a-z_]+$`)

// Store is the Postgres Repository.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Transactions ────────────────────────────────────────

func (s *Store) InUserTx(ctx context.Context, userID int64, fn func(tx UserTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin user tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&userTx{tx: tx, userID: userID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit user tx: %w", err)
	}
	return nil
}

// InSchedulerTx locks the task's scheduler_log row before running fn, so
// concurrent runners of the same task queue behind each other.
func (s *Store) InSchedulerTx(ctx context.Context, task string, fn func(tx SchedulerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scheduler tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scheduler_log (task_name) VALUES ($1)
		 ON CONFLICT (task_name) DO NOTHING`,
		task,
	); err != nil {
		return fmt.Errorf("ensure scheduler log: %w", err)
	}

	var last sql.NullTime
	if err := tx.QueryRowContext(ctx,
		`SELECT last_run_at FROM scheduler_log WHERE task_name = $1 FOR UPDATE`,
		task,
	).Scan(&last); err != nil {
		return fmt.Errorf("lock scheduler log: %w", err)
	}

	st := &schedulerTx{tx: tx, task: task}
	if last.Valid {
		t := last.Time.UTC()
		st.lastRun = &t
	}
	if err := fn(st); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scheduler tx: %w", err)
	}
	return nil
}

// ── User Transaction ────────────────────────────────────

type userTx struct {
	tx     *sql.Tx
	userID int64
}

func (u *userTx) Progress(ctx context.Context) (*models.ProgressRecord, error) {
	if _, err := u.tx.ExecContext(ctx,
		`INSERT INTO user_progress (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		u.userID,
	); err != nil {
		return nil, fmt.Errorf("upsert progress: %w", err)
	}

	p := models.ProgressRecord{UserID: u.userID}
	var last sql.NullTime
	var cooldowns []byte
	err := u.tx.QueryRowContext(ctx,
		`SELECT xp, level, consecutive_correct, bonus_active, last_answer_at,
		        cooldowns, created_at, updated_at
		 FROM user_progress WHERE user_id = $1 FOR UPDATE`,
		u.userID,
	).Scan(&p.XP, &p.Level, &p.ConsecutiveCorrect, &p.BonusActive, &last,
		&cooldowns, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	if last.Valid {
		t := last.Time.UTC()
		p.LastAnswerAt = &t
	}
	if p.Cooldowns, err = decodeCooldowns(cooldowns); err != nil {
		return nil, fmt.Errorf("decode cooldowns: %w", err)
	}
	return &p, nil
}

func (u *userTx) SaveProgress(ctx context.Context, p *models.ProgressRecord) error {
	cooldowns, err := encodeCooldowns(p.Cooldowns)
	if err != nil {
		return fmt.Errorf("encode cooldowns: %w", err)
	}
	_, err = u.tx.ExecContext(ctx,
		`UPDATE user_progress SET
		    xp = $2, level = $3, consecutive_correct = $4, bonus_active = $5,
		    last_answer_at = $6, cooldowns = $7::jsonb, updated_at = NOW()
		 WHERE user_id = $1`,
		u.userID, p.XP, p.Level, p.ConsecutiveCorrect, p.BonusActive,
		p.LastAnswerAt, string(cooldowns),
	)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (u *userTx) DailyGoal(ctx context.Context, day time.Time) (*models.DailyGoalRecord, error) {
	if _, err := u.tx.ExecContext(ctx,
		`INSERT INTO daily_goals (user_id, day) VALUES ($1, $2)
		 ON CONFLICT (user_id, day) DO NOTHING`,
		u.userID, day,
	); err != nil {
		return nil, fmt.Errorf("upsert daily goal: %w", err)
	}

	g := models.DailyGoalRecord{UserID: u.userID}
	err := u.tx.QueryRowContext(ctx,
		`SELECT day, xp_earned, questions_solved, goal_reached
		 FROM daily_goals WHERE user_id = $1 AND day = $2 FOR UPDATE`,
		u.userID, day,
	).Scan(&g.Day, &g.XPEarnedToday, &g.QuestionsSolvedToday, &g.GoalReached)
	if err != nil {
		return nil, fmt.Errorf("get daily goal: %w", err)
	}
	return &g, nil
}

func (u *userTx) SaveDailyGoal(ctx context.Context, g *models.DailyGoalRecord) error {
	_, err := u.tx.ExecContext(ctx,
		`UPDATE daily_goals SET xp_earned = $3, questions_solved = $4, goal_reached = $5
		 WHERE user_id = $1 AND day = $2`,
		u.userID, g.Day, g.XPEarnedToday, g.QuestionsSolvedToday, g.GoalReached,
	)
	if err != nil {
		return fmt.Errorf("save daily goal: %w", err)
	}
	return nil
}

func (u *userTx) Streak(ctx context.Context) (*models.StreakRecord, error) {
	if _, err := u.tx.ExecContext(ctx,
		`INSERT INTO streaks (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		u.userID,
	); err != nil {
		return nil, fmt.Errorf("upsert streak: %w", err)
	}

	st := models.StreakRecord{UserID: u.userID}
	var last sql.NullTime
	err := u.tx.QueryRowContext(ctx,
		`SELECT current_streak, max_streak, last_practice_date
		 FROM streaks WHERE user_id = $1 FOR UPDATE`,
		u.userID,
	).Scan(&st.CurrentStreak, &st.MaxStreak, &last)
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	if last.Valid {
		t := last.Time.UTC()
		st.LastPracticeDate = &t
	}
	return &st, nil
}

func (u *userTx) SaveStreak(ctx context.Context, st *models.StreakRecord) error {
	_, err := u.tx.ExecContext(ctx,
		`UPDATE streaks SET current_streak = $2, max_streak = $3, last_practice_date = $4
		 WHERE user_id = $1`,
		u.userID, st.CurrentStreak, st.MaxStreak, st.LastPracticeDate,
	)
	if err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

// ── Answers & Exams ─────────────────────────────────────

func (u *userTx) PreviousAnswer(ctx context.Context, questionID int64) (*models.AnswerRecord, error) {
	a := models.AnswerRecord{UserID: u.userID, QuestionID: questionID}
	err := u.tx.QueryRowContext(ctx,
		`SELECT selected_option, correct, answered_at
		 FROM answers WHERE user_id = $1 AND question_id = $2
		 ORDER BY answered_at DESC, id DESC LIMIT 1`,
		u.userID, questionID,
	).Scan(&a.SelectedOption, &a.Correct, &a.AnsweredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get previous answer: %w", err)
	}
	return &a, nil
}

func (u *userTx) RecordAnswer(ctx context.Context, a models.AnswerRecord) error {
	_, err := u.tx.ExecContext(ctx,
		`INSERT INTO answers (user_id, question_id, selected_option, correct, answered_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.userID, a.QuestionID, a.SelectedOption, a.Correct, a.AnsweredAt,
	)
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

func (u *userTx) AnswerStats(ctx context.Context) (models.AnswerStats, error) {
	var st models.AnswerStats
	err := u.tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE correct)
		 FROM answers WHERE user_id = $1`,
		u.userID,
	).Scan(&st.Answered, &st.Correct)
	if err != nil {
		return st, fmt.Errorf("answer stats: %w", err)
	}
	return st, nil
}

func (u *userTx) RecordExamCompletion(ctx context.Context, c models.ExamCompletion) (bool, error) {
	res, err := u.tx.ExecContext(ctx,
		`INSERT INTO exam_completions (session_id, user_id, exam_id, percent_correct, xp_gained, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id) DO NOTHING`,
		c.SessionID, u.userID, c.ExamID, c.PercentCorrect, c.XPGained, c.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("record exam completion: %w", err)
	}
	return affectedOne(res)
}

// ── Achievements ────────────────────────────────────────

func (u *userTx) AchievementCatalog(ctx context.Context) (map[string]models.Achievement, error) {
	rows, err := u.tx.QueryContext(ctx,
		`SELECT a.key, a.name, a.description, a.icon, a.color,
		        COALESCE(array_agg(p.prerequisite_key) FILTER (WHERE p.prerequisite_key IS NOT NULL), '{}')
		 FROM achievements a
		 LEFT JOIN achievement_prerequisites p ON p.achievement_key = a.key
		 GROUP BY a.key`,
	)
	if err != nil {
		return nil, fmt.Errorf("get achievement catalog: %w", err)
	}
	defer rows.Close()

	catalog := make(map[string]models.Achievement)
	for rows.Next() {
		var a models.Achievement
		var prereqs pq.StringArray
		if err := rows.Scan(&a.Key, &a.Name, &a.Description, &a.Icon, &a.Color, &prereqs); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		a.Prerequisites = []string(prereqs)
		catalog[a.Key] = a
	}
	return catalog, rows.Err()
}

func (u *userTx) UnlockedAchievements(ctx context.Context) (map[string]bool, error) {
	rows, err := u.tx.QueryContext(ctx,
		`SELECT achievement_key FROM achievement_unlocks WHERE user_id = $1`,
		u.userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get unlocked achievements: %w", err)
	}
	defer rows.Close()

	unlocked := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		unlocked[key] = true
	}
	return unlocked, rows.Err()
}

func (u *userTx) UnlockAchievement(ctx context.Context, key string, at time.Time) (bool, error) {
	res, err := u.tx.ExecContext(ctx,
		`INSERT INTO achievement_unlocks (user_id, achievement_key, unlocked_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, achievement_key) DO NOTHING`,
		u.userID, key, at,
	)
	if err != nil {
		return false, fmt.Errorf("unlock achievement: %w", err)
	}
	return affectedOne(res)
}

// ── Rewards ─────────────────────────────────────────────

func (u *userTx) ActiveRules(ctx context.Context, trigger models.Trigger) ([]models.RewardRule, error) {
	rows, err := u.tx.QueryContext(ctx,
		`SELECT id, name, active, trigger, conditions, xp_bonus
		 FROM reward_rules WHERE active AND trigger = $1
		 ORDER BY id`,
		string(trigger),
	)
	if err != nil {
		return nil, fmt.Errorf("get active rules: %w", err)
	}
	defer rows.Close()

	var rules []models.RewardRule
	index := make(map[int64]int)
	var ids []int64
	for rows.Next() {
		var r models.RewardRule
		var trig string
		if err := rows.Scan(&r.ID, &r.Name, &r.Active, &trig, &r.Conditions, &r.XPBonus); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Trigger = models.Trigger(trig)
		index[r.ID] = len(rules)
		ids = append(ids, r.ID)
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	itemRows, err := u.tx.QueryContext(ctx,
		`SELECT rule_id, category, item_id FROM reward_rule_items
		 WHERE rule_id = ANY($1)
		 ORDER BY rule_id, category, item_id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("get rule items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var ruleID int64
		var ref models.ItemRef
		if err := itemRows.Scan(&ruleID, &ref.Category, &ref.ItemID); err != nil {
			return nil, fmt.Errorf("scan rule item: %w", err)
		}
		i := index[ruleID]
		rules[i].RewardItems = append(rules[i].RewardItems, ref)
	}
	return rules, itemRows.Err()
}

// GrantItem inserts the ledger row and the ownership row in one statement.
// The ledger insert only selects catalogued items, and a conflicting pair
// produces no ownership row, so racing callers see exactly one success.
// When nothing was inserted a catalog lookup tells the two cases apart.
func (u *userTx) GrantItem(ctx context.Context, item models.ItemRef, ruleID *int64, at time.Time) (bool, error) {
	res, err := u.tx.ExecContext(ctx,
		`WITH granted AS (
		    INSERT INTO reward_grants (user_id, category, item_id, rule_id, granted_at)
		    SELECT $1, ri.category, ri.item_id, $4, $5
		    FROM reward_items ri
		    WHERE ri.category = $2 AND ri.item_id = $3
		    ON CONFLICT (user_id, category, item_id) DO NOTHING
		    RETURNING user_id, category, item_id, granted_at
		 )
		 INSERT INTO owned_items (user_id, category, item_id, acquired_at)
		 SELECT user_id, category, item_id, granted_at FROM granted
		 ON CONFLICT (user_id, category, item_id) DO NOTHING`,
		u.userID, string(item.Category), item.ItemID, ruleID, at,
	)
	if err != nil {
		return false, fmt.Errorf("grant item: %w", err)
	}
	ok, err := affectedOne(res)
	if err != nil || ok {
		return ok, err
	}

	var exists bool
	if err := u.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reward_items WHERE category = $1 AND item_id = $2)`,
		string(item.Category), item.ItemID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check catalog item: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("%w: %s/%s", ErrItemNotCatalogued, item.Category, item.ItemID)
	}
	return false, nil
}

func (u *userTx) ItemsUnlockedByLevel(ctx context.Context, level uint32) ([]models.ItemRef, error) {
	return u.itemRefs(ctx,
		`SELECT category, item_id FROM reward_items
		 WHERE unlock_level IS NOT NULL AND unlock_level <= $1
		 ORDER BY unlock_level, category, item_id`,
		level,
	)
}

func (u *userTx) ItemsUnlockedByAchievement(ctx context.Context, key string) ([]models.ItemRef, error) {
	return u.itemRefs(ctx,
		`SELECT category, item_id FROM reward_items
		 WHERE unlock_achievement = $1
		 ORDER BY category, item_id`,
		key,
	)
}

func (u *userTx) itemRefs(ctx context.Context, query string, arg any) ([]models.ItemRef, error) {
	rows, err := u.tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("get reward items: %w", err)
	}
	defer rows.Close()
	return scanItemRefs(rows)
}

func (u *userTx) Savepoint(ctx context.Context, name string, fn func() error) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := u.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(); err != nil {
		if _, rbErr := u.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint %s: %w", name, rbErr))
		}
		return err
	}
	if _, err := u.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

// ── Scheduler Transaction ───────────────────────────────

type schedulerTx struct {
	tx      *sql.Tx
	task    string
	lastRun *time.Time
}

func (st *schedulerTx) LastRun(ctx context.Context) (*time.Time, error) {
	return st.lastRun, nil
}

func (st *schedulerTx) PeriodExists(ctx context.Context, period models.PeriodType, key string) (bool, error) {
	var exists bool
	err := st.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ranking_snapshots WHERE period_type = $1 AND period_key = $2)`,
		string(period), key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check period: %w", err)
	}
	return exists, nil
}

func (st *schedulerTx) Standings(ctx context.Context, from, to time.Time) ([]models.Standing, error) {
	rows, err := st.tx.QueryContext(ctx,
		`SELECT user_id, COUNT(*) FILTER (WHERE correct), COUNT(*)
		 FROM answers
		 WHERE answered_at >= $1 AND answered_at < $2
		 GROUP BY user_id`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate standings: %w", err)
	}
	defer rows.Close()

	var standings []models.Standing
	for rows.Next() {
		var s models.Standing
		if err := rows.Scan(&s.UserID, &s.CorrectCount, &s.AnsweredCount); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		standings = append(standings, s)
	}
	return standings, rows.Err()
}

// InsertSnapshots bulk-loads the period rows with COPY.
func (st *schedulerTx) InsertSnapshots(ctx context.Context, snapshots []models.RankingSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	stmt, err := st.tx.PrepareContext(ctx, pq.CopyIn("ranking_snapshots",
		"period_type", "period_key", "position", "user_id", "correct_count", "answered_count"))
	if err != nil {
		return fmt.Errorf("prepare snapshot copy: %w", err)
	}
	defer stmt.Close()

	for _, r := range snapshots {
		if _, err := stmt.ExecContext(ctx, string(r.PeriodType), r.PeriodKey, r.Position, r.UserID, r.CorrectCount, r.AnsweredCount); err != nil {
			return fmt.Errorf("copy snapshot row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush snapshot copy: %w", err)
	}
	return nil
}

func (st *schedulerTx) MarkRun(ctx context.Context, at time.Time) error {
	_, err := st.tx.ExecContext(ctx,
		`UPDATE scheduler_log SET last_run_at = $2 WHERE task_name = $1`,
		st.task, at,
	)
	if err != nil {
		return fmt.Errorf("mark run: %w", err)
	}
	return nil
}

// ── Snapshot Reads ──────────────────────────────────────

func (s *Store) LatestPeriodKey(ctx context.Context, period models.PeriodType) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT period_key FROM ranking_snapshots
		 WHERE period_type = $1
		 ORDER BY period_key DESC LIMIT 1`,
		string(period),
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", fmt.Errorf("latest period key: %w", err)
	}
	return key, nil
}

func (s *Store) Snapshot(ctx context.Context, period models.PeriodType, key string) ([]models.RankingSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, user_id, correct_count, answered_count
		 FROM ranking_snapshots
		 WHERE period_type = $1 AND period_key = $2
		 ORDER BY position`,
		string(period), key,
	)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	defer rows.Close()

	var snapshots []models.RankingSnapshot
	for rows.Next() {
		r := models.RankingSnapshot{PeriodType: period, PeriodKey: key}
		if err := rows.Scan(&r.Position, &r.UserID, &r.CorrectCount, &r.AnsweredCount); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, r)
	}
	return snapshots, rows.Err()
}

// ── Progress Summary ────────────────────────────────────

// ProgressSummary reads without locking or creating records; missing rows
// read as their defaults.
func (s *Store) ProgressSummary(ctx context.Context, userID int64, day time.Time) (*models.ProgressResponse, error) {
	resp := &models.ProgressResponse{
		Level:        1,
		Streak:       models.StreakRecord{UserID: userID},
		DailyGoal:    models.DailyGoalRecord{UserID: userID, Day: day},
		Achievements: []string{},
		OwnedItems:   []models.ItemRef{},
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT xp, level, bonus_active FROM user_progress WHERE user_id = $1`,
		userID,
	).Scan(&resp.XP, &resp.Level, &resp.BonusActive)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	var last sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT current_streak, max_streak, last_practice_date FROM streaks WHERE user_id = $1`,
		userID,
	).Scan(&resp.Streak.CurrentStreak, &resp.Streak.MaxStreak, &last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	if last.Valid {
		t := last.Time.UTC()
		resp.Streak.LastPracticeDate = &t
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT xp_earned, questions_solved, goal_reached FROM daily_goals WHERE user_id = $1 AND day = $2`,
		userID, day,
	).Scan(&resp.DailyGoal.XPEarnedToday, &resp.DailyGoal.QuestionsSolvedToday, &resp.DailyGoal.GoalReached)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get daily goal: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT achievement_key FROM achievement_unlocks WHERE user_id = $1 ORDER BY unlocked_at, achievement_key`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get achievements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		resp.Achievements = append(resp.Achievements, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx,
		`SELECT category, item_id FROM owned_items WHERE user_id = $1 ORDER BY acquired_at, category, item_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get owned items: %w", err)
	}
	defer itemRows.Close()
	items, err := scanItemRefs(itemRows)
	if err != nil {
		return nil, err
	}
	resp.OwnedItems = append(resp.OwnedItems, items...)
	return resp, nil
}

// ── Catalog Maintenance ─────────────────────────────────

func (s *Store) DeleteAchievement(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM achievements WHERE key = $1`, key)
	if err != nil {
		return classifyDeleteError(err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("achievement %q: %w", key, models.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateRewardItem(ctx context.Context, item models.RewardItem) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reward_items (category, item_id, name, unlock_level, unlock_achievement)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (category, item_id) DO NOTHING`,
		item.Category, item.ItemID, item.Name, item.UnlockLevel, item.UnlockAchievement,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
			return fmt.Errorf("%w: unknown unlock_achievement", ErrInvalidItem)
		}
		return fmt.Errorf("insert reward item: %w", err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrItemExists, item.Category, item.ItemID)
	}
	return nil
}

// ── Helpers ─────────────────────────────────────────────

func classifyDeleteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
		return fmt.Errorf("%w: %s", ErrAchievementInUse, pqErr.Constraint)
	}
	return fmt.Errorf("delete achievement: %w", err)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func scanItemRefs(rows *sql.Rows) ([]models.ItemRef, error) {
	var refs []models.ItemRef
	for rows.Next() {
		var ref models.ItemRef
		if err := rows.Scan(&ref.Category, &ref.ItemID); err != nil {
			return nil, fmt.Errorf("scan item ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func encodeCooldowns(c map[string]map[string]time.Time) ([]byte, error) {
	if len(c) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

func decodeCooldowns(raw []byte) (map[string]map[string]time.Time, error) {
	c := make(map[string]map[string]time.Time)
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return c, nil
}
