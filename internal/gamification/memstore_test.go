package gamification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/practiceprep/backend/internal/config"
	"github.com/practiceprep/backend/internal/models"
)

// In-memory Repository used by the engine tests. A single mutex stands in
// for the per-user and scheduler row locks; a failed transaction or
// savepoint restores a deep copy taken when it began.

type grantRow struct {
	UserID int64
	Item   models.ItemRef
	RuleID *int64
	At     time.Time
}

type goalKey struct {
	userID int64
	day    int64
}

type memState struct {
	progress    map[int64]models.ProgressRecord
	goals       map[goalKey]models.DailyGoalRecord
	streaks     map[int64]models.StreakRecord
	answers     []models.AnswerRecord
	completions map[string]models.ExamCompletion
	catalog     map[string]models.Achievement
	unlocks     map[int64]map[string]time.Time
	rules       []models.RewardRule
	items       map[models.ItemRef]models.RewardItem
	grants      []grantRow
	owned       map[int64]map[models.ItemRef]time.Time
	snapshots   []models.RankingSnapshot
	schedLog    map[string]*time.Time
}

func newMemState() *memState {
	return &memState{
		progress:    map[int64]models.ProgressRecord{},
		goals:       map[goalKey]models.DailyGoalRecord{},
		streaks:     map[int64]models.StreakRecord{},
		completions: map[string]models.ExamCompletion{},
		catalog:     map[string]models.Achievement{},
		unlocks:     map[int64]map[string]time.Time{},
		items:       map[models.ItemRef]models.RewardItem{},
		owned:       map[int64]map[models.ItemRef]time.Time{},
		schedLog:    map[string]*time.Time{},
	}
}

func cloneProgress(p models.ProgressRecord) models.ProgressRecord {
	c := p
	c.Cooldowns = make(map[string]map[string]time.Time, len(p.Cooldowns))
	for ns, items := range p.Cooldowns {
		m := make(map[string]time.Time, len(items))
		for k, v := range items {
			m[k] = v
		}
		c.Cooldowns[ns] = m
	}
	return c
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.progress {
		c.progress[k] = cloneProgress(v)
	}
	for k, v := range s.goals {
		c.goals[k] = v
	}
	for k, v := range s.streaks {
		c.streaks[k] = v
	}
	c.answers = append([]models.AnswerRecord(nil), s.answers...)
	for k, v := range s.completions {
		c.completions[k] = v
	}
	for k, v := range s.catalog {
		c.catalog[k] = v
	}
	for u, m := range s.unlocks {
		cm := make(map[string]time.Time, len(m))
		for k, v := range m {
			cm[k] = v
		}
		c.unlocks[u] = cm
	}
	c.rules = append([]models.RewardRule(nil), s.rules...)
	for k, v := range s.items {
		c.items[k] = v
	}
	c.grants = append([]grantRow(nil), s.grants...)
	for u, m := range s.owned {
		cm := make(map[models.ItemRef]time.Time, len(m))
		for k, v := range m {
			cm[k] = v
		}
		c.owned[u] = cm
	}
	c.snapshots = append([]models.RankingSnapshot(nil), s.snapshots...)
	for k, v := range s.schedLog {
		c.schedLog[k] = v
	}
	return c
}

type memRepo struct {
	mu   sync.Mutex
	st   *memState
	fail map[string]error
}

func newMemRepo() *memRepo {
	return &memRepo{st: newMemState(), fail: map[string]error{}}
}

// failOn makes every later call to op return err.
func (r *memRepo) failOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op] = err
}

func (r *memRepo) failure(op string) error {
	return r.fail[op]
}

// view runs fn against the committed state.
func (r *memRepo) view(fn func(s *memState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.st)
}

func (r *memRepo) InUserTx(ctx context.Context, userID int64, fn func(tx UserTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("InUserTx"); err != nil {
		return err
	}

	backup := r.st.clone()
	if err := fn(&memUserTx{r: r, userID: userID}); err != nil {
		r.st = backup
		return err
	}
	return nil
}

func (r *memRepo) InSchedulerTx(ctx context.Context, task string, fn func(tx SchedulerTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("InSchedulerTx"); err != nil {
		return err
	}

	if _, ok := r.st.schedLog[task]; !ok {
		r.st.schedLog[task] = nil
	}
	backup := r.st.clone()
	if err := fn(&memSchedTx{r: r, task: task}); err != nil {
		r.st = backup
		return err
	}
	return nil
}

func (r *memRepo) LatestPeriodKey(ctx context.Context, period models.PeriodType) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := ""
	for _, s := range r.st.snapshots {
		if s.PeriodType == period && s.PeriodKey > latest {
			latest = s.PeriodKey
		}
	}
	if latest == "" {
		return "", ErrNoSnapshot
	}
	return latest, nil
}

func (r *memRepo) Snapshot(ctx context.Context, period models.PeriodType, key string) ([]models.RankingSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []models.RankingSnapshot
	for _, s := range r.st.snapshots {
		if s.PeriodType == period && s.PeriodKey == key {
			rows = append(rows, s)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	return rows, nil
}

func (r *memRepo) ProgressSummary(ctx context.Context, userID int64, day time.Time) (*models.ProgressResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp := &models.ProgressResponse{
		Level:        1,
		Streak:       models.StreakRecord{UserID: userID},
		DailyGoal:    models.DailyGoalRecord{UserID: userID, Day: day},
		Achievements: []string{},
		OwnedItems:   []models.ItemRef{},
	}
	if p, ok := r.st.progress[userID]; ok {
		resp.XP, resp.Level, resp.BonusActive = p.XP, p.Level, p.BonusActive
	}
	if s, ok := r.st.streaks[userID]; ok {
		resp.Streak = s
	}
	if g, ok := r.st.goals[goalKey{userID, day.Unix()}]; ok {
		resp.DailyGoal = g
	}
	for k := range r.st.unlocks[userID] {
		resp.Achievements = append(resp.Achievements, k)
	}
	sort.Strings(resp.Achievements)
	for item := range r.st.owned[userID] {
		resp.OwnedItems = append(resp.OwnedItems, item)
	}
	sortRefs(resp.OwnedItems)
	return resp, nil
}

func (r *memRepo) DeleteAchievement(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.st.catalog[key]; !ok {
		return fmt.Errorf("achievement %q: %w", key, models.ErrNotFound)
	}
	for _, a := range r.st.catalog {
		for _, p := range a.Prerequisites {
			if p == key {
				return fmt.Errorf("%w: required by %s", ErrAchievementInUse, a.Key)
			}
		}
	}
	delete(r.st.catalog, key)
	for _, m := range r.st.unlocks {
		delete(m, key)
	}
	return nil
}

func (r *memRepo) CreateRewardItem(ctx context.Context, item models.RewardItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.UnlockAchievement != nil {
		if _, ok := r.st.catalog[*item.UnlockAchievement]; !ok {
			return fmt.Errorf("%w: unknown unlock_achievement", ErrInvalidItem)
		}
	}
	if _, ok := r.st.items[item.ItemRef]; ok {
		return fmt.Errorf("%w: %s/%s", ErrItemExists, item.Category, item.ItemID)
	}
	r.st.items[item.ItemRef] = item
	return nil
}

func sortRefs(refs []models.ItemRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Category != refs[j].Category {
			return refs[i].Category < refs[j].Category
		}
		return refs[i].ItemID < refs[j].ItemID
	})
}

// ── user tx ──

type memUserTx struct {
	r      *memRepo
	userID int64
}

func (u *memUserTx) st() *memState { return u.r.st }

func (u *memUserTx) Progress(ctx context.Context) (*models.ProgressRecord, error) {
	if err := u.r.failure("Progress"); err != nil {
		return nil, err
	}
	p, ok := u.st().progress[u.userID]
	if !ok {
		p = models.ProgressRecord{UserID: u.userID, Level: 1, Cooldowns: map[string]map[string]time.Time{}}
		u.st().progress[u.userID] = p
	}
	c := cloneProgress(p)
	return &c, nil
}

func (u *memUserTx) SaveProgress(ctx context.Context, p *models.ProgressRecord) error {
	if err := u.r.failure("SaveProgress"); err != nil {
		return err
	}
	u.st().progress[u.userID] = cloneProgress(*p)
	return nil
}

func (u *memUserTx) DailyGoal(ctx context.Context, day time.Time) (*models.DailyGoalRecord, error) {
	k := goalKey{u.userID, day.Unix()}
	g, ok := u.st().goals[k]
	if !ok {
		g = models.DailyGoalRecord{UserID: u.userID, Day: day}
		u.st().goals[k] = g
	}
	return &g, nil
}

func (u *memUserTx) SaveDailyGoal(ctx context.Context, g *models.DailyGoalRecord) error {
	u.st().goals[goalKey{u.userID, g.Day.Unix()}] = *g
	return nil
}

func (u *memUserTx) Streak(ctx context.Context) (*models.StreakRecord, error) {
	s, ok := u.st().streaks[u.userID]
	if !ok {
		s = models.StreakRecord{UserID: u.userID}
		u.st().streaks[u.userID] = s
	}
	return &s, nil
}

func (u *memUserTx) SaveStreak(ctx context.Context, s *models.StreakRecord) error {
	if s.CurrentStreak > s.MaxStreak {
		return fmt.Errorf("streak check violated: current %d > max %d", s.CurrentStreak, s.MaxStreak)
	}
	u.st().streaks[u.userID] = *s
	return nil
}

func (u *memUserTx) PreviousAnswer(ctx context.Context, questionID int64) (*models.AnswerRecord, error) {
	answers := u.st().answers
	for i := len(answers) - 1; i >= 0; i-- {
		if answers[i].UserID == u.userID && answers[i].QuestionID == questionID {
			a := answers[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (u *memUserTx) RecordAnswer(ctx context.Context, a models.AnswerRecord) error {
	if err := u.r.failure("RecordAnswer"); err != nil {
		return err
	}
	a.UserID = u.userID
	u.st().answers = append(u.st().answers, a)
	return nil
}

func (u *memUserTx) AnswerStats(ctx context.Context) (models.AnswerStats, error) {
	if err := u.r.failure("AnswerStats"); err != nil {
		return models.AnswerStats{}, err
	}
	var st models.AnswerStats
	for _, a := range u.st().answers {
		if a.UserID != u.userID {
			continue
		}
		st.Answered++
		if a.Correct {
			st.Correct++
		}
	}
	return st, nil
}

func (u *memUserTx) RecordExamCompletion(ctx context.Context, c models.ExamCompletion) (bool, error) {
	if _, ok := u.st().completions[c.SessionID]; ok {
		return false, nil
	}
	c.UserID = u.userID
	u.st().completions[c.SessionID] = c
	return true, nil
}

func (u *memUserTx) AchievementCatalog(ctx context.Context) (map[string]models.Achievement, error) {
	c := make(map[string]models.Achievement, len(u.st().catalog))
	for k, v := range u.st().catalog {
		c[k] = v
	}
	return c, nil
}

func (u *memUserTx) UnlockedAchievements(ctx context.Context) (map[string]bool, error) {
	have := map[string]bool{}
	for k := range u.st().unlocks[u.userID] {
		have[k] = true
	}
	return have, nil
}

func (u *memUserTx) UnlockAchievement(ctx context.Context, key string, at time.Time) (bool, error) {
	if err := u.r.failure("UnlockAchievement"); err != nil {
		return false, err
	}
	if _, ok := u.st().catalog[key]; !ok {
		return false, fmt.Errorf("achievement %q not in catalog", key)
	}
	m := u.st().unlocks[u.userID]
	if m == nil {
		m = map[string]time.Time{}
		u.st().unlocks[u.userID] = m
	}
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key] = at
	return true, nil
}

func (u *memUserTx) ActiveRules(ctx context.Context, trigger models.Trigger) ([]models.RewardRule, error) {
	if err := u.r.failure("ActiveRules"); err != nil {
		return nil, err
	}
	var rules []models.RewardRule
	for _, r := range u.st().rules {
		if r.Active && r.Trigger == trigger {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

func (u *memUserTx) GrantItem(ctx context.Context, item models.ItemRef, ruleID *int64, at time.Time) (bool, error) {
	if err := u.r.failure("GrantItem"); err != nil {
		return false, err
	}
	if _, ok := u.st().items[item]; !ok {
		return false, fmt.Errorf("%w: %s/%s", ErrItemNotCatalogued, item.Category, item.ItemID)
	}
	m := u.st().owned[u.userID]
	if m == nil {
		m = map[models.ItemRef]time.Time{}
		u.st().owned[u.userID] = m
	}
	if _, ok := m[item]; ok {
		return false, nil
	}
	m[item] = at
	u.st().grants = append(u.st().grants, grantRow{UserID: u.userID, Item: item, RuleID: ruleID, At: at})
	return true, nil
}

func (u *memUserTx) ItemsUnlockedByLevel(ctx context.Context, level uint32) ([]models.ItemRef, error) {
	if err := u.r.failure("ItemsUnlockedByLevel"); err != nil {
		return nil, err
	}
	var refs []models.ItemRef
	for ref, it := range u.st().items {
		if it.UnlockLevel != nil && *it.UnlockLevel <= level {
			refs = append(refs, ref)
		}
	}
	sortRefs(refs)
	return refs, nil
}

func (u *memUserTx) ItemsUnlockedByAchievement(ctx context.Context, key string) ([]models.ItemRef, error) {
	var refs []models.ItemRef
	for ref, it := range u.st().items {
		if it.UnlockAchievement != nil && *it.UnlockAchievement == key {
			refs = append(refs, ref)
		}
	}
	sortRefs(refs)
	return refs, nil
}

func (u *memUserTx) Savepoint(ctx context.Context, name string, fn func() error) error {
	backup := u.r.st.clone()
	if err := fn(); err != nil {
		u.r.st = backup
		return err
	}
	return nil
}

// ── scheduler tx ──

type memSchedTx struct {
	r    *memRepo
	task string
}

func (s *memSchedTx) LastRun(ctx context.Context) (*time.Time, error) {
	return s.r.st.schedLog[s.task], nil
}

func (s *memSchedTx) PeriodExists(ctx context.Context, period models.PeriodType, key string) (bool, error) {
	for _, snap := range s.r.st.snapshots {
		if snap.PeriodType == period && snap.PeriodKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *memSchedTx) Standings(ctx context.Context, from, to time.Time) ([]models.Standing, error) {
	byUser := map[int64]*models.Standing{}
	var order []int64
	for _, a := range s.r.st.answers {
		if a.AnsweredAt.Before(from) || !a.AnsweredAt.Before(to) {
			continue
		}
		st, ok := byUser[a.UserID]
		if !ok {
			st = &models.Standing{UserID: a.UserID}
			byUser[a.UserID] = st
			order = append(order, a.UserID)
		}
		st.AnsweredCount++
		if a.Correct {
			st.CorrectCount++
		}
	}
	standings := make([]models.Standing, 0, len(order))
	for _, id := range order {
		standings = append(standings, *byUser[id])
	}
	return standings, nil
}

func (s *memSchedTx) InsertSnapshots(ctx context.Context, rows []models.RankingSnapshot) error {
	if err := s.r.failure("InsertSnapshots"); err != nil {
		return err
	}
	for _, row := range rows {
		for _, existing := range s.r.st.snapshots {
			if existing.PeriodType != row.PeriodType || existing.PeriodKey != row.PeriodKey {
				continue
			}
			if existing.Position == row.Position || existing.UserID == row.UserID {
				return fmt.Errorf("duplicate snapshot row %s/%s pos %d user %d", row.PeriodType, row.PeriodKey, row.Position, row.UserID)
			}
		}
		s.r.st.snapshots = append(s.r.st.snapshots, row)
	}
	return nil
}

func (s *memSchedTx) MarkRun(ctx context.Context, at time.Time) error {
	t := at
	s.r.st.schedLog[s.task] = &t
	return nil
}

// ── collaborators ──

type fakeAccounts struct {
	mu    sync.Mutex
	users map[int64]models.User
}

func (f *fakeAccounts) add(u models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeAccounts) User(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return &u, nil
}

func (f *fakeAccounts) Users(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]models.User{}
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type fakeContent struct {
	keys  map[int64]models.AnswerKey
	exams map[int64]models.ExamDefinition
}

func (f *fakeContent) AnswerKey(ctx context.Context, questionID int64) (*models.AnswerKey, error) {
	k, ok := f.keys[questionID]
	if !ok {
		return nil, fmt.Errorf("question %d: %w", questionID, models.ErrNotFound)
	}
	return &k, nil
}

func (f *fakeContent) AnswerKeys(ctx context.Context, ids []int64) (map[int64]models.AnswerKey, error) {
	out := map[int64]models.AnswerKey{}
	for _, id := range ids {
		if k, ok := f.keys[id]; ok {
			out[id] = k
		}
	}
	return out, nil
}

func (f *fakeContent) Exam(ctx context.Context, examID int64) (*models.ExamDefinition, error) {
	e, ok := f.exams[examID]
	if !ok {
		return nil, fmt.Errorf("exam %d: %w", examID, models.ErrNotFound)
	}
	return &e, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (f *fakeAudit) Record(ctx context.Context, e models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.Action)
	}
	return out
}

type fakeCache struct {
	mu     sync.Mutex
	boards map[string][]models.RankingSnapshot
	gets   int
	hits   int
}

func (f *fakeCache) Get(ctx context.Context, period models.PeriodType, key string) ([]models.RankingSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	rows, ok := f.boards[string(period)+":"+key]
	if !ok {
		return nil, nil
	}
	f.hits++
	return rows, nil
}

func (f *fakeCache) Set(ctx context.Context, period models.PeriodType, key string, rows []models.RankingSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[string(period)+":"+key] = rows
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// ── harness ──

type harness struct {
	engine   *Engine
	repo     *memRepo
	accounts *fakeAccounts
	content  *fakeContent
	audit    *fakeAudit
	clock    *fakeClock
	logs     *bytes.Buffer
}

// Tue 2024-02-13 09:00 UTC.
var testStart = time.Date(2024, 2, 13, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, settings config.Settings) *harness {
	t.Helper()
	h := &harness{
		repo:     newMemRepo(),
		accounts: &fakeAccounts{users: map[int64]models.User{}},
		content:  &fakeContent{keys: map[int64]models.AnswerKey{}, exams: map[int64]models.ExamDefinition{}},
		audit:    &fakeAudit{},
		clock:    &fakeClock{t: testStart},
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	h.engine = NewEngine(h.repo, h.accounts, h.content, config.NewStaticSettings(settings), logger)
	h.engine.SetAuditSink(h.audit)
	h.engine.SetClock(h.clock.Now)

	for q := int64(1); q <= 50; q++ {
		h.content.keys[q] = models.AnswerKey{QuestionID: q, CorrectAnswerID: "B"}
	}
	h.accounts.add(models.User{ID: 1, Name: "Ada Lovelace", IsActive: true})
	return h
}

func (h *harness) seedCatalog(achievements ...models.Achievement) {
	h.repo.view(func(s *memState) {
		for _, a := range achievements {
			s.catalog[a.Key] = a
		}
	})
}

func (h *harness) seedItem(item models.RewardItem) {
	h.repo.view(func(s *memState) {
		s.items[item.ItemRef] = item
	})
}

func (h *harness) seedRule(rule models.RewardRule) {
	h.repo.view(func(s *memState) {
		s.rules = append(s.rules, rule)
	})
}

func (h *harness) progress(userID int64) models.ProgressRecord {
	var p models.ProgressRecord
	h.repo.view(func(s *memState) {
		p = cloneProgress(s.progress[userID])
	})
	return p
}

func (h *harness) answerCount() int {
	var n int
	h.repo.view(func(s *memState) { n = len(s.answers) })
	return n
}

func (h *harness) grantCount(userID int64) int {
	var n int
	h.repo.view(func(s *memState) {
		for _, g := range s.grants {
			if g.UserID == userID {
				n++
			}
		}
	})
	return n
}

// noLimits returns default settings with every rate limit disabled.
func noLimits() config.Settings {
	s := config.DefaultSettings()
	s.MinAnswerInterval = 0
	s.QuestionCooldown = 0
	s.ExamCooldown = 0
	s.DailyCapEnabled = false
	s.DailyGoalTarget = 0
	return s
}

func uint32p(v uint32) *uint32 { return &v }
func strp(v string) *string { return &v }
