package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/submission"
)

const dbTimeout = 5 * time.Second

// Schema holds the statements that create the record tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS assignment_submissions (
		id         UUID PRIMARY KEY,
		user_id    TEXT NOT NULL,
		module_id  TEXT NOT NULL,
		answers    JSONB NOT NULL DEFAULT '{}'::jsonb,
		status     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, module_id)
	)`,
	`CREATE TABLE IF NOT EXISTS module_completions (
		user_id      TEXT NOT NULL,
		module_id    TEXT NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, module_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lesson_events (
		id         BIGSERIAL PRIMARY KEY,
		user_id    TEXT NOT NULL,
		module_id  TEXT NOT NULL,
		event_type TEXT NOT NULL,
		data       JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lesson_events_module ON lesson_events (module_id, created_at)`,
}

// PostgresRepository is a PostgreSQL-backed Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository on pool.
func NewPostgresRepository(pool *pgxpool.Pool) (*PostgresRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) GetSubmission(ctx context.Context, userID, moduleID string) (*Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx,
		`SELECT id::text, user_id, module_id, answers, status, created_at, updated_at
		 FROM assignment_submissions
		 WHERE user_id = $1 AND module_id = $2`,
		userID,
		moduleID,
	)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

func (r *PostgresRepository) SaveSubmission(ctx context.Context, sub Submission) (Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	data, err := answers.Marshal(sub.Answers)
	if err != nil {
		return Submission{}, err
	}
	updatedAt := sub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO assignment_submissions (id, user_id, module_id, answers, status, created_at, updated_at)
		 VALUES ($1::uuid, $2, $3, $4::jsonb, $5, $6, $6)
		 ON CONFLICT (user_id, module_id) DO UPDATE
		 SET answers = EXCLUDED.answers,
		     status = EXCLUDED.status,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id::text, user_id, module_id, answers, status, created_at, updated_at`,
		uuid.NewString(),
		sub.UserID,
		sub.ModuleID,
		string(data),
		string(sub.Status),
		updatedAt,
	)
	saved, err := scanSubmission(row)
	if err != nil {
		return Submission{}, fmt.Errorf("save submission: %w", err)
	}
	return *saved, nil
}

func (r *PostgresRepository) ListSubmissions(ctx context.Context, moduleID string) ([]Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT id::text, user_id, module_id, answers, status, created_at, updated_at
		 FROM assignment_submissions
		 WHERE module_id = $1
		 ORDER BY user_id ASC`,
		moduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) MarkComplete(ctx context.Context, userID, moduleID string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if at.IsZero() {
		at = time.Now()
	}
	cmd, err := r.pool.Exec(ctx,
		`INSERT INTO module_completions (user_id, module_id, completed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, module_id) DO NOTHING`,
		userID,
		moduleID,
		at,
	)
	if err != nil {
		return false, fmt.Errorf("mark complete: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *PostgresRepository) CompletedModules(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT module_id FROM module_completions WHERE user_id = $1 ORDER BY module_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect completions: %w", err)
	}
	return ids, nil
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var (
		sub    Submission
		raw    []byte
		status string
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.ModuleID, &raw, &status, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	values, err := answers.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	sub.Answers = values
	sub.Status = submission.Status(status)
	return &sub, nil
}
