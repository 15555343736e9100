package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guildstats/internal/models"
)

// Activity is one countable event: a message (amount 1), accrued voice minutes, or a
// partner text (amount 1). Roles are the roles the user holds in the guild right now.
type Activity struct {
	UserID string
	Roles  []string
	Type   models.ActivityType
	Amount int64
}

// Accounting is the only writer of stat counters and task progress.
type Accounting struct {
	store  Store
	loc    *time.Location
	strict bool
	now    Clock
	log    *zap.Logger
}

type AccountingOption func(*Accounting)

// WithStrict makes every activity a single transaction instead of best-effort steps.
func WithStrict(strict bool) AccountingOption {
	return func(a *Accounting) { a.strict = strict }
}

// WithLocation sets the zone used to pick the daily bucket.
func WithLocation(loc *time.Location) AccountingOption {
	return func(a *Accounting) {
		if loc != nil {
			a.loc = loc
		}
	}
}

func WithAccountingClock(now Clock) AccountingOption {
	return func(a *Accounting) { a.now = now }
}

func NewAccounting(store Store, log *zap.Logger, opts ...AccountingOption) *Accounting {
	a := &Accounting{
		store: store,
		loc:   time.UTC,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RecordActivity adds the activity to the user's counters and to every open task it is
// eligible for. It returns the tasks this event completed.
//
// Without strict mode the steps are not atomic: a failure after the stats upsert leaves
// the counters incremented without the matching task progress.
func (a *Accounting) RecordActivity(ctx context.Context, act Activity) ([]models.Task, error) {
	if act.UserID == "" || !act.Type.Valid() || act.Amount <= 0 {
		return nil, ErrInvalidActivity
	}

	if !a.strict {
		return a.apply(ctx, act)
	}

	var completed []models.Task
	err := a.store.Transaction(ctx, func(ctx context.Context) error {
		var err error
		completed, err = a.apply(ctx, act)
		return err
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

func (a *Accounting) apply(ctx context.Context, act Activity) ([]models.Task, error) {
	now := a.now()

	if err := a.store.AddStats(ctx, act.UserID, act.Type, act.Amount, models.Day(now, a.loc), now); err != nil {
		return nil, fmt.Errorf("failed to update user stats: %w", err)
	}

	open, err := a.store.OpenTasks(ctx, act.UserID, act.Type, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load open tasks: %w", err)
	}

	var completed []models.Task
	for _, task := range open {
		if task.Completed || !task.Eligibility.Allows(act.UserID, act.Roles) {
			continue
		}

		progress, err := a.store.AddTaskProgress(ctx, act.UserID, task.Task, act.Amount, now)
		if err != nil {
			return completed, fmt.Errorf("failed to update progress of task %d: %w", task.ID, err)
		}

		if progress.Completed {
			completed = append(completed, task.Task)
			a.log.Info("Task completed",
				zap.String("user_id", act.UserID),
				zap.Int64("task_id", task.ID),
				zap.Int64("progress", progress.Progress),
				zap.Int64("target", task.TargetAmount))
		}
	}

	return completed, nil
}
