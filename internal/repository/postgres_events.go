package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/talentops/pipetrack/internal/event"
)

type PostgresEventRepository struct {
	db *sql.DB
}

func NewPostgresEventRepository(connectionString string) (*PostgresEventRepository, error) {
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

	return &PostgresEventRepository{db: db}, nil
}

func (r *PostgresEventRepository) AppendEvents(ctx context.Context, events []event.StageTransitionEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO stage_events (
			id, workspace_id, role_id, kind, ts,
			stage, stage_name, from_stage, from_stage_name, client_id, fee
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for _, ev := range events {
		if _, err := tx.ExecContext(
			ctx,
			query,
			ev.ID,
			ev.WorkspaceID,
			ev.RoleID,
			ev.Kind,
			ev.Timestamp,
			ev.Stage,
			ev.StageName,
			ev.FromStage,
			nullableString(ev.FromStageName),
			nullableString(ev.ClientID),
			ev.Fee,
		); err != nil {
			return fmt.Errorf("failed to append event %s: %w", ev.ID, err)
		}
	}

	return tx.Commit()
}

const eventColumns = `
		id, workspace_id, role_id, kind, ts,
		stage, COALESCE(stage_name, ''), from_stage,
		COALESCE(from_stage_name, ''), COALESCE(client_id, ''), fee`

func (r *PostgresEventRepository) EventsInRange(ctx context.Context, workspaceID string, from, to time.Time) ([]event.StageTransitionEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM stage_events
		WHERE workspace_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY role_id, ts ASC
	`
	rows, err := r.db.QueryContext(ctx, query, workspaceID, from, to)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r *PostgresEventRepository) EventsForRole(ctx context.Context, workspaceID, roleID string) ([]event.StageTransitionEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM stage_events
		WHERE workspace_id = $1 AND role_id = $2
		ORDER BY ts ASC
	`
	rows, err := r.db.QueryContext(ctx, query, workspaceID, roleID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r *PostgresEventRepository) AllEvents(ctx context.Context, workspaceID string) ([]event.StageTransitionEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM stage_events
		WHERE workspace_id = $1
		ORDER BY role_id, ts ASC
	`
	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r *PostgresEventRepository) Workspaces(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT workspace_id FROM stage_events ORDER BY workspace_id`)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var workspaces []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, id)
	}

	return workspaces, rows.Err()
}

func (r *PostgresEventRepository) PlacementStats(ctx context.Context, workspaceID string, terminalStage int, from, to time.Time) (PlacementStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(fee), 0)
		FROM stage_events
		WHERE workspace_id = $1
		  AND kind = $2
		  AND stage = $3
		  AND ts >= $4 AND ts <= $5
	`
	var stats PlacementStats
	err := r.db.QueryRowContext(ctx, query, workspaceID, event.KindStageChanged, terminalStage, from, to).
		Scan(&stats.Placements, &stats.CommissionTotal)
	if err != nil {
		return PlacementStats{}, err
	}
	return stats, nil
}

func (r *PostgresEventRepository) Close() error {
	return r.db.Close()
}

func scanEvents(rows *sql.Rows) ([]event.StageTransitionEvent, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var events []event.StageTransitionEvent
	for rows.Next() {
		var ev event.StageTransitionEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.WorkspaceID,
			&ev.RoleID,
			&ev.Kind,
			&ev.Timestamp,
			&ev.Stage,
			&ev.StageName,
			&ev.FromStage,
			&ev.FromStageName,
			&ev.ClientID,
			&ev.Fee,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
