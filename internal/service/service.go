package service

import (
	"context"
	"errors"
	"time"

	"guildstats/internal/models"
)

var (
	ErrInvalidActivity = errors.New("activity type must be message, voice or partner and amount must be positive")
	ErrInvalidTarget   = errors.New("target amount must be a positive integer")
	ErrInvalidDuration = errors.New("task duration must not be negative")
	ErrTaskNotFound    = errors.New("task not found")
)

type StatsRepository interface {
	// AddStats increments the lifetime row and the day bucket for one counter.
	AddStats(ctx context.Context, userID string, activity models.ActivityType, amount int64, day, at time.Time) error
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)
	SumDailyStats(ctx context.Context, userID string, since time.Time) (models.Counters, error)
	GetStatsHistory(ctx context.Context, userID string, since time.Time) ([]models.DailyStats, error)
	// GetTopUsers reads lifetime totals when since is nil and day buckets otherwise.
	GetTopUsers(ctx context.Context, activity models.ActivityType, since *time.Time, limit int) ([]models.LeaderboardEntry, error)
}

type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) (int64, error)
	ListActiveTasks(ctx context.Context, now time.Time) ([]models.Task, error)
	// OpenTasks returns unexpired tasks of the activity that the user has not completed
	// and that are either unassigned or assigned to the user. Role filtering is left
	// to the caller.
	OpenTasks(ctx context.Context, userID string, activity models.ActivityType, now time.Time) ([]models.UserTask, error)
	// AddTaskProgress adds amount to the user's progress, creating the row on first use,
	// and marks it completed once progress reaches the task target.
	AddTaskProgress(ctx context.Context, userID string, task models.Task, amount int64, at time.Time) (models.UserTaskProgress, error)
	UserTasks(ctx context.Context, userID string, now time.Time) ([]models.UserTask, error)
	// TaskReports returns expired tasks (expires_at <= now) when expired is true and
	// active ones otherwise, each with all participants.
	TaskReports(ctx context.Context, now time.Time, expired bool) ([]models.TaskReport, error)
	// DeleteTasks removes the tasks and their progress rows, returning how many tasks existed.
	DeleteTasks(ctx context.Context, ids []int64) (int64, error)
}

// Transactor runs fn with a transaction bound to the context it receives.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is everything the accounting core needs from persistence.
type Store interface {
	StatsRepository
	TaskRepository
	Transactor
}

// ExpiryReporter is told about every expired task before it is removed.
type ExpiryReporter interface {
	ReportExpiredTask(ctx context.Context, task models.ExpiredTask) error
}

// Clock returns the current time; tests replace it.
type Clock func() time.Time
