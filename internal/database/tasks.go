package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"guildstats/internal/models"
)

var taskColumns = []string{
	"t.id", "t.task_type", "t.target_amount", "t.description", "t.created_at",
	"t.expires_at", "t.assigned_user_id", "t.authorized_roles", "t.created_by",
}

type taskRow struct {
	ID              int64          `db:"id"`
	TaskType        string         `db:"task_type"`
	TargetAmount    int64          `db:"target_amount"`
	Description     string         `db:"description"`
	CreatedAt       time.Time      `db:"created_at"`
	ExpiresAt       time.Time      `db:"expires_at"`
	AssignedUserID  *string        `db:"assigned_user_id"`
	AuthorizedRoles pq.StringArray `db:"authorized_roles"`
	CreatedBy       string         `db:"created_by"`
}

func (row taskRow) toModel() models.Task {
	return models.Task{
		ID:           row.ID,
		Type:         models.ActivityType(row.TaskType),
		TargetAmount: row.TargetAmount,
		Description:  row.Description,
		CreatedAt:    row.CreatedAt,
		ExpiresAt:    row.ExpiresAt,
		Eligibility:  models.EligibilityFromColumns(row.AssignedUserID, row.AuthorizedRoles),
		CreatedBy:    row.CreatedBy,
	}
}

type userTaskRow struct {
	taskRow
	Progress  int64 `db:"progress"`
	Completed bool  `db:"completed"`
}

func (row userTaskRow) toModel() models.UserTask {
	return models.UserTask{
		Task:      row.taskRow.toModel(),
		Progress:  row.Progress,
		Completed: row.Completed,
	}
}

// CreateTask inserts the task and sets its id
func (r *Repository) CreateTask(ctx context.Context, task *models.Task) (int64, error) {
	assigned, roles := task.Eligibility.Columns()

	query, args, err := psql.
		Insert("tasks").
		Columns("task_type", "target_amount", "description", "created_at", "expires_at",
			"assigned_user_id", "authorized_roles", "created_by").
		Values(string(task.Type), task.TargetAmount, task.Description, task.CreatedAt, task.ExpiresAt,
			assigned, pq.StringArray(roles), task.CreatedBy).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, err
	}

	if err := r.q(ctx).QueryRowxContext(ctx, query, args...).Scan(&task.ID); err != nil {
		return 0, fmt.Errorf("failed to insert task: %w", err)
	}
	return task.ID, nil
}

// ListActiveTasks returns unexpired tasks, newest first
func (r *Repository) ListActiveTasks(ctx context.Context, now time.Time) ([]models.Task, error) {
	query, args, err := psql.
		Select(taskColumns...).
		From("tasks t").
		Where(squirrel.Gt{"t.expires_at": now}).
		OrderBy("t.created_at DESC", "t.id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []taskRow
	if err := sqlx.SelectContext(ctx, r.q(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]models.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toModel())
	}
	return tasks, nil
}

// userTasksQuery joins unexpired tasks visible to the user with the user's progress
func userTasksQuery(userID string, now time.Time) squirrel.SelectBuilder {
	return psql.
		Select(append(taskColumns,
			"COALESCE(ut.progress, 0) AS progress",
			"COALESCE(ut.completed, FALSE) AS completed")...).
		From("tasks t").
		LeftJoin("user_tasks ut ON ut.task_id = t.id AND ut.user_id = ?", userID).
		Where(squirrel.Gt{"t.expires_at": now}).
		Where(squirrel.Or{
			squirrel.Eq{"t.assigned_user_id": nil},
			squirrel.Eq{"t.assigned_user_id": userID},
		})
}

func (r *Repository) selectUserTasks(ctx context.Context, builder squirrel.SelectBuilder) ([]models.UserTask, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []userTaskRow
	if err := sqlx.SelectContext(ctx, r.q(ctx), &rows, query, args...); err != nil {
		return nil, err
	}

	tasks := make([]models.UserTask, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toModel())
	}
	return tasks, nil
}

// OpenTasks returns unexpired tasks of the activity the user can still progress on
func (r *Repository) OpenTasks(ctx context.Context, userID string, activity models.ActivityType, now time.Time) ([]models.UserTask, error) {
	tasks, err := r.selectUserTasks(ctx, userTasksQuery(userID, now).
		Where(squirrel.Eq{"t.task_type": string(activity)}).
		Where("NOT COALESCE(ut.completed, FALSE)").
		OrderBy("t.id ASC"))
	if err != nil {
		return nil, fmt.Errorf("failed to get open tasks: %w", err)
	}
	return tasks, nil
}

// AddTaskProgress adds amount to the user's progress on the task. The first call
// creates the row; completion is set once and never cleared.
func (r *Repository) AddTaskProgress(ctx context.Context, userID string, task models.Task, amount int64, at time.Time) (models.UserTaskProgress, error) {
	var p models.UserTaskProgress
	err := sqlx.GetContext(ctx, r.q(ctx), &p, `
		INSERT INTO user_tasks (user_id, task_id, progress, completed, completed_at)
		VALUES ($1, $2, $3::bigint, $3::bigint >= $4::bigint, CASE WHEN $3::bigint >= $4::bigint THEN $5::timestamptz END)
		ON CONFLICT (user_id, task_id) DO UPDATE SET
			progress = user_tasks.progress + EXCLUDED.progress,
			completed = user_tasks.completed OR user_tasks.progress + EXCLUDED.progress >= $4::bigint,
			completed_at = CASE
				WHEN user_tasks.completed THEN user_tasks.completed_at
				WHEN user_tasks.progress + EXCLUDED.progress >= $4::bigint THEN $5::timestamptz
			END
		RETURNING user_id, task_id, progress, completed, completed_at`,
		userID, task.ID, amount, task.TargetAmount, at)
	if err != nil {
		return models.UserTaskProgress{}, fmt.Errorf("failed to add task progress: %w", err)
	}
	return p, nil
}

// UserTasks returns every unexpired task visible to the user with the user's progress
func (r *Repository) UserTasks(ctx context.Context, userID string, now time.Time) ([]models.UserTask, error) {
	tasks, err := r.selectUserTasks(ctx, userTasksQuery(userID, now).
		OrderBy("t.created_at DESC", "t.id DESC"))
	if err != nil {
		return nil, fmt.Errorf("failed to get user tasks: %w", err)
	}
	return tasks, nil
}

// TaskReports returns expired or active tasks, each with all of its participants
func (r *Repository) TaskReports(ctx context.Context, now time.Time, expired bool) ([]models.TaskReport, error) {
	var cond squirrel.Sqlizer = squirrel.Gt{"t.expires_at": now}
	if expired {
		cond = squirrel.LtOrEq{"t.expires_at": now}
	}

	query, args, err := psql.
		Select(taskColumns...).
		From("tasks t").
		Where(cond).
		OrderBy("t.id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []taskRow
	if err := sqlx.SelectContext(ctx, r.q(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	query, args, err = psql.
		Select("user_id", "task_id", "progress", "completed", "completed_at").
		From("user_tasks").
		Where(squirrel.Eq{"task_id": ids}).
		OrderBy("task_id ASC", "user_id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var progress []models.UserTaskProgress
	if err := sqlx.SelectContext(ctx, r.q(ctx), &progress, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get task participants: %w", err)
	}

	byTask := make(map[int64][]models.Participant, len(rows))
	for _, p := range progress {
		byTask[p.TaskID] = append(byTask[p.TaskID], models.Participant{
			UserID:    p.UserID,
			Progress:  p.Progress,
			Completed: p.Completed,
		})
	}

	reports := make([]models.TaskReport, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, models.TaskReport{
			Task:         row.toModel(),
			Participants: byTask[row.ID],
		})
	}
	return reports, nil
}

// DeleteTasks removes the tasks and their progress rows in one transaction
func (r *Repository) DeleteTasks(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := r.Transaction(ctx, func(ctx context.Context) error {
		query, args, err := psql.
			Delete("user_tasks").
			Where(squirrel.Eq{"task_id": ids}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete task progress: %w", err)
		}

		query, args, err = psql.
			Delete("tasks").
			Where(squirrel.Eq{"id": ids}).
			ToSql()
		if err != nil {
			return err
		}
		result, err := r.q(ctx).ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to delete tasks: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
