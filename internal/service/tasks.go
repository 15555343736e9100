package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"guildstats/internal/models"
)

const maxDescriptionLength = 256

type CreateTaskParams struct {
	Type        models.ActivityType
	Target      int64
	Description string
	// Days until expiry; nil uses the configured default.
	Days        *int
	Eligibility models.Eligibility
	CreatedBy   string
}

// Tasks manages the task lifecycle.
type Tasks struct {
	repo        TaskRepository
	reporter    ExpiryReporter
	defaultDays int
	now         Clock
	log         *zap.Logger
}

func NewTasks(repo TaskRepository, reporter ExpiryReporter, defaultDays int, now Clock, log *zap.Logger) *Tasks {
	if now == nil {
		now = time.Now
	}
	return &Tasks{
		repo:        repo,
		reporter:    reporter,
		defaultDays: defaultDays,
		now:         now,
		log:         log,
	}
}

// Create validates and stores a new task, returning its id.
func (t *Tasks) Create(ctx context.Context, p CreateTaskParams) (int64, error) {
	if !p.Type.Valid() {
		return 0, ErrInvalidActivity
	}
	if p.Target <= 0 {
		return 0, ErrInvalidTarget
	}
	days := t.defaultDays
	if p.Days != nil {
		days = *p.Days
	}
	if days < 0 {
		return 0, ErrInvalidDuration
	}

	desc := strings.TrimSpace(p.Description)
	if r := []rune(desc); len(r) > maxDescriptionLength {
		desc = string(r[:maxDescriptionLength])
	}

	now := t.now()
	task := &models.Task{
		Type:         p.Type,
		TargetAmount: p.Target,
		Description:  desc,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(days) * 24 * time.Hour),
		Eligibility:  p.Eligibility,
		CreatedBy:    p.CreatedBy,
	}

	id, err := t.repo.CreateTask(ctx, task)
	if err != nil {
		return 0, fmt.Errorf("failed to create task: %w", err)
	}

	t.log.Info("Task created",
		zap.Int64("task_id", id),
		zap.String("type", string(p.Type)),
		zap.Int64("target", p.Target),
		zap.Time("expires_at", task.ExpiresAt))
	return id, nil
}

// List returns the tasks that have not expired, newest first.
func (t *Tasks) List(ctx context.Context) ([]models.Task, error) {
	tasks, err := t.repo.ListActiveTasks(ctx, t.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Delete removes a task and its progress rows. It returns ErrTaskNotFound when no task
// had the id.
func (t *Tasks) Delete(ctx context.Context, id int64) error {
	n, err := t.repo.DeleteTasks(ctx, []int64{id})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	t.log.Info("Task deleted", zap.Int64("task_id", id))
	return nil
}

// UserTasks returns the active tasks visible to the user with the user's own progress.
func (t *Tasks) UserTasks(ctx context.Context, userID string, roles []string) ([]models.UserTask, error) {
	rows, err := t.repo.UserTasks(ctx, userID, t.now())
	if err != nil {
		return nil, fmt.Errorf("failed to get user tasks: %w", err)
	}

	visible := rows[:0]
	for _, r := range rows {
		if r.Eligibility.Allows(userID, roles) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// Status returns every active task with all participants.
func (t *Tasks) Status(ctx context.Context) ([]models.TaskReport, error) {
	reports, err := t.repo.TaskReports(ctx, t.now(), false)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	return reports, nil
}

// Sweep reports and deletes every task whose deadline has passed. A store failure
// aborts the run; the next run sees the same tasks again.
func (t *Tasks) Sweep(ctx context.Context) (int64, error) {
	now := t.now()

	expired, err := t.repo.TaskReports(ctx, now, true)
	if err != nil {
		return 0, fmt.Errorf("failed to load expired tasks: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(expired))
	for _, task := range expired {
		if !task.ExpiredAt(now) {
			continue
		}
		if t.reporter != nil {
			if err := t.reporter.ReportExpiredTask(ctx, task); err != nil {
				t.log.Warn("Failed to report expired task",
					zap.Int64("task_id", task.ID),
					zap.Error(err))
			}
		}
		ids = append(ids, task.ID)
	}

	n, err := t.repo.DeleteTasks(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tasks: %w", err)
	}

	t.log.Info("Expired tasks removed", zap.Int64("count", n))
	return n, nil
}
