package gamification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"

	"github.com/practiceprep/backend/internal/config"
	"github.com/practiceprep/backend/internal/models"
)

// Audit actions emitted by the engine.
const (
	AuditAnswerRateLimited = "answer_rate_limited"
	AuditExamCooldown      = "exam_cooldown_blocked"
	AuditRankingGenerated  = "ranking_generated"
	AuditRewardGranted     = "reward_granted"
)

type Engine struct {
	repo      Repository
	accounts  AccountDirectory
	content   ContentCatalog
	settings  config.SettingsProvider
	audit     AuditSink
	cache     LeaderboardCache
	evaluator *Evaluator
	logger    *slog.Logger
	now       func() time.Time

	catalogCheck sync.Once
}

func NewEngine(repo Repository, accounts AccountDirectory, content ContentCatalog, settings config.SettingsProvider, logger *slog.Logger) *Engine {
	return &Engine{
		repo:      repo,
		accounts:  accounts,
		content:   content,
		settings:  settings,
		evaluator: NewEvaluator(),
		logger:    logger.With("component", "gamification"),
		now:       time.Now,
	}
}

func (e *Engine) SetAuditSink(sink AuditSink) {
	e.audit = sink
}

func (e *Engine) SetCache(cache LeaderboardCache) {
	e.cache = cache
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// ── Answer Submission ───────────────────────────────────

// SubmitAnswer grades the answer and, unless rate limited, records it and
// applies progression, daily goal, streak and achievement effects atomically.
func (e *Engine) SubmitAnswer(ctx context.Context, userID, questionID int64, selected string) (*models.SubmitAnswerResponse, error) {
	settings := e.settings.Current()
	if _, err := e.activeUser(ctx, userID); err != nil {
		return nil, err
	}

	key, err := e.content.AnswerKey(ctx, questionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownQuestion, questionID)
		}
		return nil, fmt.Errorf("get answer key: %w", err)
	}

	now := e.clock()
	correct := strings.EqualFold(strings.TrimSpace(selected), strings.TrimSpace(key.CorrectAnswerID))
	resp := &models.SubmitAnswerResponse{Correct: correct}
	var events []models.AuditEvent

	err = e.repo.InUserTx(ctx, userID, func(tx UserTx) error {
		resp = &models.SubmitAnswerResponse{Correct: correct}
		events = events[:0]

		progress, err := tx.Progress(ctx)
		if err != nil {
			return err
		}
		goal, err := tx.DailyGoal(ctx, DayOf(now))
		if err != nil {
			return err
		}

		qid := strconv.FormatInt(questionID, 10)
		reason := AnswerLimiter(settings).Check(now, progress.LastAnswerAt, progress.CooldownAt(models.CooldownQuestion, qid), goal.XPEarnedToday)
		if reason != "" {
			resp.BlockedReason = string(reason)
			resp.BonusActive = progress.BonusActive
			events = append(events, models.AuditEvent{
				ActorID: userID,
				Action:  AuditAnswerRateLimited,
				Target:  "question:" + qid,
				Details: map[string]any{"reason": string(reason)},
			})
			return errBlocked
		}

		prev, err := tx.PreviousAnswer(ctx, questionID)
		if err != nil {
			return err
		}
		if err := tx.RecordAnswer(ctx, models.AnswerRecord{
			UserID:         userID,
			QuestionID:     questionID,
			SelectedOption: selected,
			Correct:        correct,
			AnsweredAt:     now,
		}); err != nil {
			return err
		}

		result := ApplyAnswer(progress, settings, correct, prev == nil, prev != nil && !prev.Correct)
		progress.LastAnswerAt = &now
		progress.SetCooldown(models.CooldownQuestion, qid, now)
		resp.XPGained = result.XPGained
		resp.BonusActive = result.BonusActive
		resp.LevelUp = result.LevelUp

		if bonus := RecordActivity(goal, result.XPGained, settings); bonus != nil {
			CreditXP(progress, int64(bonus.XP))
			resp.DailyGoalBonus = bonus
			if lu := ApplyLevelUps(progress); lu != nil {
				resp.LevelUp = lu
			}
		}
		if err := tx.SaveDailyGoal(ctx, goal); err != nil {
			return err
		}

		streak, err := tx.Streak(ctx)
		if err != nil {
			return err
		}
		if UpdateStreak(streak, now) {
			if err := tx.SaveStreak(ctx, streak); err != nil {
				return err
			}
		}

		PruneCooldowns(progress, now, settings.LongestCooldown())
		if err := tx.SaveProgress(ctx, progress); err != nil {
			return err
		}

		// Auxiliary effects below never fail the answer.
		resp.NewAchievement = e.unlockNextAchievement(ctx, tx, *streak, now)
		if resp.LevelUp != nil {
			resp.UnlockedItems = append(resp.UnlockedItems, e.unlockItems(ctx, tx, "unlock_by_level", now, func() ([]models.ItemRef, error) {
				return tx.ItemsUnlockedByLevel(ctx, resp.LevelUp.NewLevel)
			})...)
		}
		if resp.NewAchievement != nil {
			key := resp.NewAchievement.Key
			resp.UnlockedItems = append(resp.UnlockedItems, e.unlockItems(ctx, tx, "unlock_by_achievement", now, func() ([]models.ItemRef, error) {
				return tx.ItemsUnlockedByAchievement(ctx, key)
			})...)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errBlocked) {
		return nil, fmt.Errorf("submit answer: %w", err)
	}

	e.recordAll(ctx, events)
	return resp, nil
}

// unlockNextAchievement runs the evaluator and unlocks at most one achievement.
func (e *Engine) unlockNextAchievement(ctx context.Context, tx UserTx, streak models.StreakRecord, now time.Time) *models.Achievement {
	var unlocked *models.Achievement
	e.bestEffort(ctx, tx, "achievements", func() error {
		stats, err := tx.AnswerStats(ctx)
		if err != nil {
			return err
		}
		catalog, err := tx.AchievementCatalog(ctx)
		if err != nil {
			return err
		}
		have, err := tx.UnlockedAchievements(ctx)
		if err != nil {
			return err
		}
		e.catalogCheck.Do(func() {
			for _, k := range e.evaluator.Keys() {
				if _, ok := catalog[k]; !ok {
					e.logger.Warn("achievement missing from catalog", "key", k)
				}
			}
		})

		next := e.evaluator.Next(UserState{Streak: streak, Stats: stats}, have, catalog)
		if next == nil {
			return nil
		}
		created, err := tx.UnlockAchievement(ctx, next.Key, now)
		if err != nil {
			return err
		}
		if created {
			unlocked = next
		}
		return nil
	})
	return unlocked
}

// unlockItems grants every item returned by list through the grant ledger.
func (e *Engine) unlockItems(ctx context.Context, tx UserTx, name string, now time.Time, list func() ([]models.ItemRef, error)) []models.ItemRef {
	var granted []models.ItemRef
	e.bestEffort(ctx, tx, name, func() error {
		items, err := list()
		if err != nil {
			return err
		}
		var fresh []models.ItemRef
		for _, item := range items {
			ok, err := tx.GrantItem(ctx, item, nil, now)
			if errors.Is(err, ErrItemNotCatalogued) {
				e.logger.Warn("unlock item missing from catalog", "category", item.Category, "item_id", item.ItemID)
				continue
			}
			if err != nil {
				return err
			}
			if ok {
				fresh = append(fresh, item)
			}
		}
		granted = fresh
		return nil
	})
	return granted
}

// ── Exam Completion ─────────────────────────────────────

// CompleteExam grades a finished session and credits exam XP plus any
// EXAM_COMPLETED rule bonuses. A cooldown or an already finalized session
// yields a zeroed result.
func (e *Engine) CompleteExam(ctx context.Context, session models.ExamSession) (*models.CompleteExamResponse, error) {
	settings := e.settings.Current()
	if strings.TrimSpace(session.ID) == "" || len(session.ID) > 64 {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidSession)
	}
	if _, err := e.activeUser(ctx, session.UserID); err != nil {
		return nil, err
	}

	exam, err := e.content.Exam(ctx, session.ExamID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownExam, session.ExamID)
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	keys, err := e.content.AnswerKeys(ctx, exam.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("get exam answer keys: %w", err)
	}

	correct, wrong := GradeExam(*exam, keys, session.Answers)
	percent := PercentCorrect(correct, len(exam.QuestionIDs))
	examXP := ExamXP(settings, *exam, correct, wrong)

	now := e.clock()
	eid := strconv.FormatInt(exam.ID, 10)
	var resp *models.CompleteExamResponse
	var events []models.AuditEvent

	err = e.repo.InUserTx(ctx, session.UserID, func(tx UserTx) error {
		resp = zeroExamResult(percent)
		events = events[:0]

		progress, err := tx.Progress(ctx)
		if err != nil {
			return err
		}

		if reason := ExamLimiter(settings).Check(now, nil, progress.CooldownAt(models.CooldownExam, eid), 0); reason != "" {
			resp.BlockedReason = string(reason)
			events = append(events, models.AuditEvent{
				ActorID: session.UserID,
				Action:  AuditExamCooldown,
				Target:  "exam:" + eid,
				Details: map[string]any{"session_id": session.ID},
			})
			return errBlocked
		}

		fresh, err := tx.RecordExamCompletion(ctx, models.ExamCompletion{
			SessionID:      session.ID,
			UserID:         session.UserID,
			ExamID:         exam.ID,
			PercentCorrect: percent,
			XPGained:       examXP,
			CompletedAt:    now,
		})
		if err != nil {
			return err
		}
		if !fresh {
			resp.BlockedReason = string(ReasonDuplicate)
			return errBlocked
		}

		var outcome models.RuleOutcome
		e.bestEffort(ctx, tx, "exam_rules", func() error {
			o, err := e.applyRules(ctx, tx, models.TriggerExamCompleted, RuleContext{PercentCorrect: percent}, now)
			if err != nil {
				return err
			}
			outcome = o
			return nil
		})

		total := examXP + int64(outcome.TotalXPBonus)
		CreditXP(progress, total)
		progress.SetCooldown(models.CooldownExam, eid, now)
		PruneCooldowns(progress, now, settings.LongestCooldown())

		resp.XPGained = total
		resp.LevelUp = ApplyLevelUps(progress)
		resp.FiredRules = outcome.FiredRules
		resp.GrantedItems = outcome.GrantedItems
		if err := tx.SaveProgress(ctx, progress); err != nil {
			return err
		}

		if resp.LevelUp != nil {
			level := resp.LevelUp.NewLevel
			resp.GrantedItems = append(resp.GrantedItems, e.unlockItems(ctx, tx, "unlock_by_level", now, func() ([]models.ItemRef, error) {
				return tx.ItemsUnlockedByLevel(ctx, level)
			})...)
		}
		events = append(events, grantEvents(session.UserID, outcome)...)
		return nil
	})
	if err != nil && !errors.Is(err, errBlocked) {
		return nil, fmt.Errorf("complete exam: %w", err)
	}

	e.recordAll(ctx, events)
	return resp, nil
}

func zeroExamResult(percent float64) *models.CompleteExamResponse {
	return &models.CompleteExamResponse{
		FiredRules:     []string{},
		GrantedItems:   []models.ItemRef{},
		PercentCorrect: percent,
	}
}

// GradeExam counts correct and wrong answers over the exam's questions.
// Unanswered questions count as wrong.
func GradeExam(exam models.ExamDefinition, keys map[int64]models.AnswerKey, answers map[int64]string) (correct, wrong int) {
	for _, qid := range exam.QuestionIDs {
		key, ok := keys[qid]
		given, answered := answers[qid]
		if ok && answered && strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(key.CorrectAnswerID)) {
			correct++
		} else {
			wrong++
		}
	}
	return correct, wrong
}

func PercentCorrect(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) * 100 / float64(total)
}

// ── Reward Rules ────────────────────────────────────────

// EvaluateAndGrant runs the active rules for trigger against the context in
// the user's own transaction and credits the XP bonus.
func (e *Engine) EvaluateAndGrant(ctx context.Context, userID int64, trigger models.Trigger, rctx RuleContext) (*models.RuleOutcome, error) {
	if !models.ValidTriggers[trigger] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTrigger, trigger)
	}

	now := e.clock()
	var outcome models.RuleOutcome
	err := e.repo.InUserTx(ctx, userID, func(tx UserTx) error {
		progress, err := tx.Progress(ctx)
		if err != nil {
			return err
		}
		outcome, err = e.applyRules(ctx, tx, trigger, rctx, now)
		if err != nil {
			return err
		}
		if outcome.TotalXPBonus == 0 {
			return nil
		}
		CreditXP(progress, int64(outcome.TotalXPBonus))
		if lu := ApplyLevelUps(progress); lu != nil {
			level := lu.NewLevel
			outcome.GrantedItems = append(outcome.GrantedItems, e.unlockItems(ctx, tx, "unlock_by_level", now, func() ([]models.ItemRef, error) {
				return tx.ItemsUnlockedByLevel(ctx, level)
			})...)
		}
		return tx.SaveProgress(ctx, progress)
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate rules: %w", err)
	}

	e.recordAll(ctx, grantEvents(userID, outcome))
	return &outcome, nil
}

// applyRules evaluates matching rules and grants their items. A rule counts as
// fired only when it gave XP or at least one item the user did not own yet.
func (e *Engine) applyRules(ctx context.Context, tx UserTx, trigger models.Trigger, rctx RuleContext, now time.Time) (models.RuleOutcome, error) {
	outcome := models.RuleOutcome{GrantedItems: []models.ItemRef{}, FiredRules: []string{}}

	rules, err := tx.ActiveRules(ctx, trigger)
	if err != nil {
		return outcome, err
	}

	for _, rule := range rules {
		if !rule.Active || rule.Trigger != trigger {
			continue
		}
		cond, err := DecodeCondition(rule.Trigger, rule.Conditions)
		if err != nil {
			e.logger.Warn("skipping reward rule", "rule", rule.Name, "error", err)
			continue
		}
		if !Matches(cond, rctx) {
			continue
		}

		var granted []models.ItemRef
		for _, item := range rule.RewardItems {
			ruleID := rule.ID
			ok, err := tx.GrantItem(ctx, item, &ruleID, now)
			if errors.Is(err, ErrItemNotCatalogued) {
				e.logger.Warn("reward rule item missing from catalog",
					"rule", rule.Name, "category", item.Category, "item_id", item.ItemID)
				continue
			}
			if err != nil {
				return outcome, fmt.Errorf("grant %s/%s: %w", item.Category, item.ItemID, err)
			}
			if ok {
				granted = append(granted, item)
			}
		}
		if rule.XPBonus == 0 && len(granted) == 0 {
			continue
		}

		outcome.FiredRules = append(outcome.FiredRules, rule.Name)
		outcome.TotalXPBonus += rule.XPBonus
		outcome.GrantedItems = append(outcome.GrantedItems, granted...)
	}
	return outcome, nil
}

func grantEvents(userID int64, outcome models.RuleOutcome) []models.AuditEvent {
	if len(outcome.FiredRules) == 0 {
		return nil
	}
	return []models.AuditEvent{{
		ActorID: userID,
		Action:  AuditRewardGranted,
		Details: map[string]any{
			"rules":    outcome.FiredRules,
			"items":    outcome.GrantedItems,
			"xp_bonus": outcome.TotalXPBonus,
		},
	}}
}

// RecordSocialEvent feeds a comment or like into the rule engine.
func (e *Engine) RecordSocialEvent(ctx context.Context, userID int64, trigger models.Trigger) (*models.RuleOutcome, error) {
	if trigger != models.TriggerCommentPosted && trigger != models.TriggerLikeGiven {
		return nil, fmt.Errorf("%w: %q is not a social trigger", ErrInvalidTrigger, trigger)
	}
	if _, err := e.activeUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.EvaluateAndGrant(ctx, userID, trigger, RuleContext{})
}

// ── Rankings ────────────────────────────────────────────

// RunScheduledAggregation generates whichever period snapshots are due and
// rewards the ranked users.
func (e *Engine) RunScheduledAggregation(ctx context.Context) (*models.AggregationReport, error) {
	now := e.clock()
	report := &models.AggregationReport{}

	weekly, err := e.runPeriod(ctx, models.PeriodWeekly, now)
	if err != nil {
		return report, fmt.Errorf("weekly ranking: %w", err)
	}
	report.Weekly = weekly

	monthly, err := e.runPeriod(ctx, models.PeriodMonthly, now)
	if err != nil {
		return report, fmt.Errorf("monthly ranking: %w", err)
	}
	report.Monthly = monthly

	return report, nil
}

func (e *Engine) runPeriod(ctx context.Context, period models.PeriodType, now time.Time) (models.PeriodRun, error) {
	var run models.PeriodRun
	var snapshots []models.RankingSnapshot

	err := e.repo.InSchedulerTx(ctx, taskFor(period), func(tx SchedulerTx) error {
		run = models.PeriodRun{}
		snapshots = nil

		last, err := tx.LastRun(ctx)
		if err != nil {
			return err
		}
		if !Due(period, now, last) {
			return nil
		}

		from, to, key := Window(period, now)
		run.Ran = true
		run.PeriodKey = key

		exists, err := tx.PeriodExists(ctx, period, key)
		if err != nil {
			return err
		}
		if exists {
			// Already generated under another log state; only move the log forward.
			run.Ran = false
			return tx.MarkRun(ctx, now)
		}

		standings, err := tx.Standings(ctx, from, to)
		if err != nil {
			return err
		}
		ids := make([]int64, len(standings))
		for i, s := range standings {
			ids[i] = s.UserID
		}
		users, err := e.accounts.Users(ctx, ids)
		if err != nil {
			return fmt.Errorf("resolve ranked users: %w", err)
		}

		snapshots = RankStandings(period, key, standings, func(id int64) bool {
			u, ok := users[id]
			return ok && u.RankEligible()
		})
		if err := tx.InsertSnapshots(ctx, snapshots); err != nil {
			return err
		}
		run.RowsWritten = len(snapshots)
		return tx.MarkRun(ctx, now)
	})
	if err != nil {
		return models.PeriodRun{}, err
	}
	if !run.Ran {
		return run, nil
	}

	e.logger.Info("ranking generated", "period", period, "key", run.PeriodKey, "rows", run.RowsWritten)
	e.record(ctx, models.AuditEvent{
		Action:  AuditRankingGenerated,
		Target:  string(period) + ":" + run.PeriodKey,
		Details: map[string]any{"rows": run.RowsWritten},
	})

	trigger := triggerFor(period)
	for _, snap := range snapshots {
		outcome, err := e.EvaluateAndGrant(ctx, snap.UserID, trigger, RuleContext{Position: snap.Position})
		if err != nil {
			e.logger.Warn("ranking reward failed", "period", period, "user_id", snap.UserID, "error", err)
			continue
		}
		if len(outcome.FiredRules) > 0 {
			run.RewardedUsers++
		}
	}
	return run, nil
}

// GetLeaderboard triggers any due aggregation, then returns the requested
// snapshot, or the most recent one when key is empty.
func (e *Engine) GetLeaderboard(ctx context.Context, periodName, key string) (*models.LeaderboardResponse, error) {
	period, err := ParsePeriod(periodName)
	if err != nil {
		return nil, err
	}
	if key != "" && !ValidPeriodKey(period, key) {
		return nil, fmt.Errorf("%w: bad key %q", ErrInvalidPeriod, key)
	}

	if _, err := e.RunScheduledAggregation(ctx); err != nil {
		e.logger.Warn("scheduled aggregation failed during leaderboard read", "error", err)
	}

	if key == "" {
		key, err = e.repo.LatestPeriodKey(ctx, period)
		if errors.Is(err, ErrNoSnapshot) {
			return &models.LeaderboardResponse{PeriodType: period, Entries: []models.LeaderboardEntry{}}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("latest period: %w", err)
		}
	}

	rows, err := e.snapshotRows(ctx, period, key)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.UserID
	}
	users, err := e.accounts.Users(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve leaderboard users: %w", err)
	}

	board := &models.LeaderboardResponse{PeriodType: period, PeriodKey: key, Entries: make([]models.LeaderboardEntry, len(rows))}
	for i, r := range rows {
		board.Entries[i] = models.LeaderboardEntry{
			Position:      r.Position,
			UserID:        r.UserID,
			DisplayName:   users[r.UserID].DisplayName(),
			CorrectCount:  r.CorrectCount,
			AnsweredCount: r.AnsweredCount,
		}
	}
	return board, nil
}

// snapshotRows reads a snapshot through the cache. Cache failures fall back
// to the repository.
func (e *Engine) snapshotRows(ctx context.Context, period models.PeriodType, key string) ([]models.RankingSnapshot, error) {
	if e.cache != nil {
		rows, err := e.cache.Get(ctx, period, key)
		if err != nil {
			e.logger.Warn("leaderboard cache read failed", "error", err)
		} else if len(rows) > 0 {
			return rows, nil
		}
	}

	rows, err := e.repo.Snapshot(ctx, period, key)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoSnapshot, period, key)
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, period, key, rows); err != nil {
			e.logger.Warn("leaderboard cache write failed", "error", err)
		}
	}
	return rows, nil
}

// ── Progress ────────────────────────────────────────────

func (e *Engine) GetProgress(ctx context.Context, userID int64) (*models.ProgressResponse, error) {
	if _, err := e.activeUser(ctx, userID); err != nil {
		return nil, err
	}
	summary, err := e.repo.ProgressSummary(ctx, userID, DayOf(e.clock()))
	if err != nil {
		return nil, fmt.Errorf("progress summary: %w", err)
	}
	summary.XPToNextLevel = XPToNextLevel(summary.XP, summary.Level)
	return summary, nil
}

// DeleteAchievement removes a catalog entry. It fails with ErrAchievementInUse
// while another achievement lists it as a prerequisite.
func (e *Engine) DeleteAchievement(ctx context.Context, key string) error {
	return e.repo.DeleteAchievement(ctx, key)
}

// CreateRewardItem adds a collectible to the catalog. A missing item id is
// derived from the name, so "Golden Owl" becomes "golden-owl".
func (e *Engine) CreateRewardItem(ctx context.Context, req models.CreateRewardItemRequest) (*models.RewardItem, error) {
	switch req.Category {
	case models.CategoryAvatar, models.CategoryBorder, models.CategoryBanner:
	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidItem, req.Category)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	id := req.ItemID
	if id == "" {
		id = name
	}
	id = slug.Make(id)
	if id == "" {
		return nil, fmt.Errorf("%w: item_id is empty after normalization", ErrInvalidItem)
	}
	if req.UnlockLevel != nil && *req.UnlockLevel < 2 {
		return nil, fmt.Errorf("%w: unlock_level must be at least 2", ErrInvalidItem)
	}

	item := models.RewardItem{
		ItemRef:           models.ItemRef{Category: req.Category, ItemID: id},
		Name:              name,
		UnlockLevel:       req.UnlockLevel,
		UnlockAchievement: req.UnlockAchievement,
	}
	if err := e.repo.CreateRewardItem(ctx, item); err != nil {
		return nil, err
	}
	e.logger.Info("reward item created", "category", item.Category, "item_id", item.ItemID)
	return &item, nil
}

// ── Helpers ─────────────────────────────────────────────

func (e *Engine) activeUser(ctx context.Context, userID int64) (*models.User, error) {
	u, err := e.accounts.User(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownUser, userID)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrInactiveUser, userID)
	}
	return u, nil
}

// bestEffort runs an auxiliary effect under a savepoint. Failures are logged
// and its writes discarded.
func (e *Engine) bestEffort(ctx context.Context, tx UserTx, name string, fn func() error) {
	if err := tx.Savepoint(ctx, name, fn); err != nil {
		e.logger.Warn("auxiliary effect skipped", "effect", name, "error", err)
	}
}

func (e *Engine) record(ctx context.Context, event models.AuditEvent) {
	if e.audit == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.clock()
	}
	if err := e.audit.Record(ctx, event); err != nil {
		e.logger.Warn("audit record failed", "action", event.Action, "error", err)
	}
}

func (e *Engine) recordAll(ctx context.Context, events []models.AuditEvent) {
	for _, ev := range events {
		e.record(ctx, ev)
	}
}

// PruneCooldowns drops entries older than maxAge so the map stays bounded.
func PruneCooldowns(p *models.ProgressRecord, now time.Time, maxAge time.Duration) {
	for ns, items := range p.Cooldowns {
		for id, at := range items {
			if now.Sub(at) > maxAge {
				delete(items, id)
			}
		}
		if len(items) == 0 {
			delete(p.Cooldowns, ns)
		}
	}
}
