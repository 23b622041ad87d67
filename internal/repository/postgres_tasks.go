package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/talentops/pipetrack/internal/urgency"
)

type PostgresTaskRepository struct {
	db *sql.DB
}

func NewPostgresTaskRepository(connectionString string) (*PostgresTaskRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresTaskRepository{db: db}, nil
}

func (r *PostgresTaskRepository) CreateTask(ctx context.Context, t *urgency.Task) error {
	query := `
		INSERT INTO urgency_tasks (
			id, workspace_id, role_id, title, due_at, done, origin, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.WorkspaceID, t.RoleID, t.Title, t.DueAt, t.Done, t.Origin, t.CreatedAt)
	return err
}

// CreateTaskIfAbsent inserts the task unless an open task with the same
// (workspace, role, title) already exists. The conditional insert rides
// on the partial unique index urgency_tasks_open_dedup_idx, so it stays
// atomic under concurrent rule-engine triggers. Returns whether a row
// was actually inserted.
func (r *PostgresTaskRepository) CreateTaskIfAbsent(ctx context.Context, t *urgency.Task) (bool, error) {
	query := `
		INSERT INTO urgency_tasks (
			id, workspace_id, role_id, title, due_at, done, origin, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workspace_id, role_id, title) WHERE NOT done DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, t.ID, t.WorkspaceID, t.RoleID, t.Title, t.DueAt, t.Done, t.Origin, t.CreatedAt)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PostgresTaskRepository) OpenTasks(ctx context.Context, workspaceID string) ([]urgency.Task, error) {
	query := `
		SELECT id, workspace_id, role_id, title, due_at, done, origin, created_at
		FROM urgency_tasks
		WHERE workspace_id = $1 AND NOT done
		ORDER BY due_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var tasks []urgency.Task
	for rows.Next() {
		var t urgency.Task
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.RoleID, &t.Title, &t.DueAt, &t.Done, &t.Origin, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

func (r *PostgresTaskRepository) MarkDone(ctx context.Context, taskID string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE urgency_tasks SET done = TRUE WHERE id = $1`, taskID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PostgresTaskRepository) Close() error {
	return r.db.Close()
}
