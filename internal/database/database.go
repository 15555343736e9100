package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// DB wraps the database connection
type DB struct {
	conn *sqlx.DB
	log  *zap.Logger
}

// New connects to PostgreSQL and brings the schema up to date
func New(ctx context.Context, dsn string, log *zap.Logger) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{conn: conn, log: log}

	if err := db.createTables(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	db.migrateSchema(ctx)

	log.Info("Connected to database successfully")
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the necessary tables
func (db *DB) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS user_stats (
			user_id TEXT PRIMARY KEY,
			message_count BIGINT NOT NULL DEFAULT 0,
			voice_minutes BIGINT NOT NULL DEFAULT 0,
			partner_count BIGINT NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS daily_stats (
			user_id TEXT NOT NULL,
			date DATE NOT NULL,
			message_count BIGINT NOT NULL DEFAULT 0,
			voice_minutes BIGINT NOT NULL DEFAULT 0,
			partner_count BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id BIGSERIAL PRIMARY KEY,
			task_type TEXT NOT NULL CHECK (task_type IN ('message', 'voice', 'partner')),
			target_amount BIGINT NOT NULL CHECK (target_amount > 0),
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL,
			assigned_user_id TEXT,
			authorized_roles TEXT[],
			created_by TEXT NOT NULL DEFAULT '',
			CONSTRAINT tasks_single_eligibility CHECK (assigned_user_id IS NULL OR authorized_roles IS NULL)
		)`,
		`CREATE TABLE IF NOT EXISTS user_tasks (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			progress BIGINT NOT NULL DEFAULT 0 CHECK (progress >= 0),
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ,
			CONSTRAINT user_tasks_user_task_key UNIQUE (user_id, task_id)
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			user_tag TEXT NOT NULL,
			user_username TEXT NOT NULL,
			answers JSONB NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
			submitted_at TIMESTAMPTZ NOT NULL,
			reviewed_at TIMESTAMPTZ,
			reviewed_by TEXT,
			notes TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS application_history (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			"timestamp" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			details TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_stats_date ON daily_stats (date)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_expires_at ON tasks (expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_user_tasks_task_id ON user_tasks (task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_user_id ON applications (user_id, submitted_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_application_history_user_id ON application_history (user_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// migrateSchema upgrades databases created by older versions of the bot. Each step is
// idempotent; failures are logged and skipped.
func (db *DB) migrateSchema(ctx context.Context) {
	migrations := []string{
		`ALTER TABLE tasks ADD COLUMN IF NOT EXISTS authorized_roles TEXT[]`,
		`ALTER TABLE tasks ADD COLUMN IF NOT EXISTS created_by TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE user_tasks ADD COLUMN IF NOT EXISTS completed_at TIMESTAMPTZ`,

		// Empty role lists meant "everyone"
		`UPDATE tasks SET authorized_roles = NULL WHERE authorized_roles = '{}'`,

		// Older schemas allowed duplicate progress rows; keep the furthest one
		`DELETE FROM user_tasks a USING user_tasks b
		WHERE a.user_id = b.user_id AND a.task_id = b.task_id
		AND (a.progress < b.progress OR (a.progress = b.progress AND a.id < b.id))`,
		`DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'user_tasks_user_task_key') THEN
				ALTER TABLE user_tasks ADD CONSTRAINT user_tasks_user_task_key UNIQUE (user_id, task_id);
			END IF;
		END$$;`,

		// Progress rows orphaned before the foreign key cascaded
		`DELETE FROM user_tasks WHERE task_id NOT IN (SELECT id FROM tasks)`,
		`UPDATE user_tasks ut SET completed = TRUE, completed_at = COALESCE(completed_at, NOW())
		FROM tasks t WHERE ut.task_id = t.id AND NOT ut.completed AND ut.progress >= t.target_amount`,
	}

	for _, migration := range migrations {
		if _, err := db.conn.ExecContext(ctx, migration); err != nil {
			db.log.Warn("Migration failed (this might be expected)", zap.Error(err))
		}
	}
}
