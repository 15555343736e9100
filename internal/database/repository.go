package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"guildstats/internal/models"
)

// psql builds statements with PostgreSQL $n placeholders
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

type txKey struct{}

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// q returns the transaction bound to ctx, or the pool when there is none
func (r *Repository) q(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db.conn
}

// Transaction runs fn inside a transaction carried by the context fn receives. Nested
// calls join the outer transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// dateParam renders a day bucket as a DATE literal so the session time zone cannot
// shift it.
func dateParam(day time.Time) string {
	return day.Format("2006-01-02")
}

// AddStats adds amount to the user's lifetime counter and to the day bucket
func (r *Repository) AddStats(ctx context.Context, userID string, activity models.ActivityType, amount int64, day, at time.Time) error {
	col := activity.Column()

	return r.Transaction(ctx, func(ctx context.Context) error {
		query, args, err := psql.
			Insert("user_stats").
			Columns("user_id", col, "last_updated").
			Values(userID, amount, at).
			Suffix(fmt.Sprintf(
				"ON CONFLICT (user_id) DO UPDATE SET %[1]s = user_stats.%[1]s + EXCLUDED.%[1]s, last_updated = EXCLUDED.last_updated",
				col)).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to add user stats: %w", err)
		}

		query, args, err = psql.
			Insert("daily_stats").
			Columns("user_id", "date", col).
			Values(userID, dateParam(day), amount).
			Suffix(fmt.Sprintf(
				"ON CONFLICT (user_id, date) DO UPDATE SET %[1]s = daily_stats.%[1]s + EXCLUDED.%[1]s",
				col)).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to add daily stats: %w", err)
		}
		return nil
	})
}

// GetUserStats returns nil when the user has no recorded activity
func (r *Repository) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	query, args, err := psql.
		Select("user_id", "message_count", "voice_minutes", "partner_count", "last_updated").
		From("user_stats").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var st models.UserStats
	if err := sqlx.GetContext(ctx, r.q(ctx), &st, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return &st, nil
}

// SumDailyStats adds up the user's day buckets from since onwards
func (r *Repository) SumDailyStats(ctx context.Context, userID string, since time.Time) (models.Counters, error) {
	query, args, err := psql.
		Select(
			"COALESCE(SUM(message_count), 0)::bigint AS message_count",
			"COALESCE(SUM(voice_minutes), 0)::bigint AS voice_minutes",
			"COALESCE(SUM(partner_count), 0)::bigint AS partner_count",
		).
		From("daily_stats").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.GtOrEq{"date": dateParam(since)}).
		ToSql()
	if err != nil {
		return models.Counters{}, err
	}

	var c models.Counters
	if err := sqlx.GetContext(ctx, r.q(ctx), &c, query, args...); err != nil {
		return models.Counters{}, fmt.Errorf("failed to sum daily stats: %w", err)
	}
	return c, nil
}

// GetStatsHistory returns the user's non-empty day buckets from since onwards, oldest first
func (r *Repository) GetStatsHistory(ctx context.Context, userID string, since time.Time) ([]models.DailyStats, error) {
	query, args, err := psql.
		Select("user_id", "date", "message_count", "voice_minutes", "partner_count").
		From("daily_stats").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.GtOrEq{"date": dateParam(since)}).
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []models.DailyStats
	if err := sqlx.SelectContext(ctx, r.q(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get stats history: %w", err)
	}
	return rows, nil
}

// GetTopUsers ranks users by one counter. With since nil the lifetime totals are used,
// otherwise the day buckets from since onwards.
func (r *Repository) GetTopUsers(ctx context.Context, activity models.ActivityType, since *time.Time, limit int) ([]models.LeaderboardEntry, error) {
	col := activity.Column()

	var builder squirrel.SelectBuilder
	if since == nil {
		builder = psql.
			Select("user_id", col+" AS stat_value").
			From("user_stats").
			Where(squirrel.Gt{col: 0})
	} else {
		builder = psql.
			Select("user_id", "SUM("+col+")::bigint AS stat_value").
			From("daily_stats").
			Where(squirrel.GtOrEq{"date": dateParam(*since)}).
			GroupBy("user_id").
			Having("SUM(" + col + ") > 0")
	}

	query, args, err := builder.
		OrderBy("stat_value DESC", "user_id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var entries []models.LeaderboardEntry
	if err := sqlx.SelectContext(ctx, r.q(ctx), &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	return entries, nil
}
