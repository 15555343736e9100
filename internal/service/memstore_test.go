package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"guildstats/internal/models"
)

var errStoreDown = errors.New("store unavailable")

type dayKey struct {
	user string
	day  time.Time
}

type progressKey struct {
	user string
	task int64
}

// memStore is an in-memory Store with the same semantics as the Postgres repository.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.UserStats
	days     map[dayKey]*models.Counters
	tasks    map[int64]models.Task
	progress map[progressKey]*models.UserTaskProgress
	nextID   int64

	failAddStats    bool
	failAddProgress bool
	failReports     bool
	txCalls         int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*models.UserStats),
		days:     make(map[dayKey]*models.Counters),
		tasks:    make(map[int64]models.Task),
		progress: make(map[progressKey]*models.UserTaskProgress),
	}
}

func (m *memStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.txCalls++
	m.mu.Unlock()
	return fn(ctx)
}

func (m *memStore) AddStats(_ context.Context, userID string, activity models.ActivityType, amount int64, day, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAddStats {
		return errStoreDown
	}

	u, ok := m.users[userID]
	if !ok {
		u = &models.UserStats{UserID: userID}
		m.users[userID] = u
	}
	u.Add(activity, amount)
	ts := at
	u.LastUpdated = &ts

	k := dayKey{user: userID, day: day}
	c, ok := m.days[k]
	if !ok {
		c = &models.Counters{}
		m.days[k] = c
	}
	c.Add(activity, amount)
	return nil
}

func (m *memStore) GetUserStats(_ context.Context, userID string) (*models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) SumDailyStats(_ context.Context, userID string, since time.Time) (models.Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum models.Counters
	for k, c := range m.days {
		if k.user == userID && !k.day.Before(since) {
			sum.MessageCount += c.MessageCount
			sum.VoiceMinutes += c.VoiceMinutes
			sum.PartnerCount += c.PartnerCount
		}
	}
	return sum, nil
}

func (m *memStore) GetStatsHistory(_ context.Context, userID string, since time.Time) ([]models.DailyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DailyStats
	for k, c := range m.days {
		if k.user == userID && !k.day.Before(since) {
			out = append(out, models.DailyStats{UserID: userID, Date: k.day, Counters: *c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) GetTopUsers(_ context.Context, activity models.ActivityType, since *time.Time, limit int) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := make(map[string]int64)
	if since == nil {
		for id, u := range m.users {
			totals[id] = u.Get(activity)
		}
	} else {
		for k, c := range m.days {
			if !k.day.Before(*since) {
				totals[k.user] += c.Get(activity)
			}
		}
	}
	var out []models.LeaderboardEntry
	for id, v := range totals {
		if v > 0 {
			out = append(out, models.LeaderboardEntry{UserID: id, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CreateTask(_ context.Context, task *models.Task) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	task.ID = m.nextID
	m.tasks[task.ID] = *task
	return task.ID, nil
}

func (m *memStore) ListActiveTasks(_ context.Context, now time.Time) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		if t.ExpiresAt.After(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) visible(t models.Task, userID string) bool {
	return t.Eligibility.Kind != models.EligibleSingleUser || t.Eligibility.UserID == userID
}

func (m *memStore) OpenTasks(_ context.Context, userID string, activity models.ActivityType, now time.Time) ([]models.UserTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserTask
	for _, t := range m.tasks {
		if t.Type != activity || !t.ExpiresAt.After(now) || !m.visible(t, userID) {
			continue
		}
		ut := models.UserTask{Task: t}
		if p, ok := m.progress[progressKey{userID, t.ID}]; ok {
			if p.Completed {
				continue
			}
			ut.Progress = p.Progress
		}
		out = append(out, ut)
	}
	return out, nil
}

func (m *memStore) AddTaskProgress(_ context.Context, userID string, task models.Task, amount int64, at time.Time) (models.UserTaskProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAddProgress {
		return models.UserTaskProgress{}, errStoreDown
	}
	k := progressKey{userID, task.ID}
	p, ok := m.progress[k]
	if !ok {
		p = &models.UserTaskProgress{UserID: userID, TaskID: task.ID}
		m.progress[k] = p
	}
	p.Progress += amount
	if !p.Completed && p.Progress >= task.TargetAmount {
		p.Completed = true
		ts := at
		p.CompletedAt = &ts
	}
	return *p, nil
}

func (m *memStore) UserTasks(_ context.Context, userID string, now time.Time) ([]models.UserTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserTask
	for _, t := range m.tasks {
		if !t.ExpiresAt.After(now) || !m.visible(t, userID) {
			continue
		}
		ut := models.UserTask{Task: t}
		if p, ok := m.progress[progressKey{userID, t.ID}]; ok {
			ut.Progress = p.Progress
			ut.Completed = p.Completed
		}
		out = append(out, ut)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) TaskReports(_ context.Context, now time.Time, expired bool) ([]models.TaskReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReports {
		return nil, errStoreDown
	}
	var out []models.TaskReport
	for _, t := range m.tasks {
		if t.ExpiredAt(now) != expired {
			continue
		}
		r := models.TaskReport{Task: t}
		for k, p := range m.progress {
			if k.task == t.ID {
				r.Participants = append(r.Participants, models.Participant{UserID: k.user, Progress: p.Progress, Completed: p.Completed})
			}
		}
		sort.Slice(r.Participants, func(i, j int) bool { return r.Participants[i].UserID < r.Participants[j].UserID })
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteTasks(_ context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		for k := range m.progress {
			if k.task == id {
				delete(m.progress, k)
			}
		}
		if _, ok := m.tasks[id]; ok {
			delete(m.tasks, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) progressRows(taskID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.progress {
		if k.task == taskID {
			n++
		}
	}
	return n
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
