package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"guildstats/internal/models"
)

var applicationColumns = []string{
	"id", "user_id", "user_tag", "user_username", "answers", "status",
	"submitted_at", "reviewed_at", "reviewed_by", "notes",
}

type applicationRow struct {
	ID          int64      `db:"id"`
	UserID      string     `db:"user_id"`
	UserTag     string     `db:"user_tag"`
	Username    string     `db:"user_username"`
	Answers     []byte     `db:"answers"`
	Status      string     `db:"status"`
	SubmittedAt time.Time  `db:"submitted_at"`
	ReviewedAt  *time.Time `db:"reviewed_at"`
	ReviewedBy  *string    `db:"reviewed_by"`
	Notes       *string    `db:"notes"`
}

func (row applicationRow) toModel() (models.Application, error) {
	answers := make(map[string]string)
	if len(row.Answers) > 0 {
		if err := json.Unmarshal(row.Answers, &answers); err != nil {
			return models.Application{}, fmt.Errorf("failed to decode answers of application %d: %w", row.ID, err)
		}
	}
	return models.Application{
		ID:          row.ID,
		UserID:      row.UserID,
		UserTag:     row.UserTag,
		Username:    row.Username,
		Answers:     answers,
		Status:      models.ApplicationStatus(row.Status),
		SubmittedAt: row.SubmittedAt,
		ReviewedAt:  row.ReviewedAt,
		ReviewedBy:  row.ReviewedBy,
		Notes:       row.Notes,
	}, nil
}

// SaveApplication stores a submitted application and returns its id
func (r *Repository) SaveApplication(ctx context.Context, app *models.Application) (int64, error) {
	answers, err := json.Marshal(app.Answers)
	if err != nil {
		return 0, fmt.Errorf("failed to encode answers: %w", err)
	}

	status := app.Status
	if status == "" {
		status = models.ApplicationPending
	}

	query, args, err := psql.
		Insert("applications").
		Columns("user_id", "user_tag", "user_username", "answers", "status", "submitted_at").
		Values(app.UserID, app.UserTag, app.Username, string(answers), string(status), app.SubmittedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	if err := r.q(ctx).QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert application: %w", err)
	}
	return id, nil
}

// LastApplicationAt returns when the user last submitted, or nil if never
func (r *Repository) LastApplicationAt(ctx context.Context, userID string) (*time.Time, error) {
	query, args, err := psql.
		Select("MAX(submitted_at)").
		From("applications").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var last *time.Time
	if err := r.q(ctx).QueryRowxContext(ctx, query, args...).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last application: %w", err)
	}
	return last, nil
}

// GetApplication returns nil when no application has the id
func (r *Repository) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	query, args, err := psql.
		Select(applicationColumns...).
		From("applications").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row applicationRow
	if err := sqlx.GetContext(ctx, r.q(ctx), &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	app, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// PendingApplications returns applications awaiting review, oldest first
func (r *Repository) PendingApplications(ctx context.Context) ([]models.Application, error) {
	query, args, err := psql.
		Select(applicationColumns...).
		From("applications").
		Where(squirrel.Eq{"status": string(models.ApplicationPending)}).
		OrderBy("submitted_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []applicationRow
	if err := sqlx.SelectContext(ctx, r.q(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get pending applications: %w", err)
	}

	apps := make([]models.Application, 0, len(rows))
	for _, row := range rows {
		app, err := row.toModel()
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// UpdateApplicationStatus records a review decision. Only pending applications are
// changed; the result reports whether a row was updated.
func (r *Repository) UpdateApplicationStatus(ctx context.Context, id int64, status models.ApplicationStatus, reviewerID string, notes *string, at time.Time) (bool, error) {
	query, args, err := psql.
		Update("applications").
		SetMap(map[string]interface{}{
			"status":      string(status),
			"reviewed_at": at,
			"reviewed_by": reviewerID,
			"notes":       notes,
		}).
		Where(squirrel.Eq{"id": id, "status": string(models.ApplicationPending)}).
		ToSql()
	if err != nil {
		return false, err
	}

	result, err := r.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update application status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *Repository) AddApplicationEvent(ctx context.Context, userID, action string, details *string, at time.Time) error {
	query, args, err := psql.
		Insert("application_history").
		Columns("user_id", "action", `"timestamp"`, "details").
		Values(userID, action, at, details).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to add application history: %w", err)
	}
	return nil
}

// ApplicationHistory returns the user's application events, newest first
func (r *Repository) ApplicationHistory(ctx context.Context, userID string) ([]models.ApplicationEvent, error) {
	query, args, err := psql.
		Select("id", "user_id", "action", `"timestamp"`, "details").
		From("application_history").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy(`"timestamp" DESC`, "id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var events []models.ApplicationEvent
	if err := sqlx.SelectContext(ctx, r.q(ctx), &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get application history: %w", err)
	}
	return events, nil
}
