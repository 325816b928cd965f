package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

// ScheduleSchema creates the report_schedules table.
const ScheduleSchema = `CREATE TABLE IF NOT EXISTS report_schedules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    definition JSONB NOT NULL,
    frequency TEXT NOT NULL,
    next_run_at TIMESTAMPTZ NOT NULL,
    anchor_day INTEGER NOT NULL DEFAULT 0,
    timezone TEXT NOT NULL DEFAULT 'UTC',
    recipients TEXT[] NOT NULL DEFAULT '{}',
    status TEXT NOT NULL,
    last_run_at TIMESTAMPTZ NULL,
    last_result JSONB NULL,
    retry_at TIMESTAMPTZ NULL,
    reminded_for TIMESTAMPTZ NULL,
    created_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
ALTER TABLE report_schedules ADD COLUMN IF NOT EXISTS timezone TEXT NOT NULL DEFAULT 'UTC';
CREATE INDEX IF NOT EXISTS idx_report_schedules_next_run ON report_schedules (status, next_run_at)`

const scheduleColumns = `id, name, definition, frequency, next_run_at, anchor_day, timezone, recipients, status, last_run_at, last_result, retry_at, reminded_for, created_by, created_at, updated_at`

// ScheduleRepository persists schedules in PostgreSQL.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

type scheduleRow struct {
	ID          string                  `db:"id"`
	Name        string                  `db:"name"`
	Definition  models.ReportDefinition `db:"definition"`
	Frequency   string                  `db:"frequency"`
	NextRunAt   time.Time               `db:"next_run_at"`
	AnchorDay   int                     `db:"anchor_day"`
	Timezone    string                  `db:"timezone"`
	Recipients  pq.StringArray          `db:"recipients"`
	Status      string                  `db:"status"`
	LastRunAt   *time.Time              `db:"last_run_at"`
	LastResult  []byte                  `db:"last_result"`
	RetryAt     *time.Time              `db:"retry_at"`
	RemindedFor *time.Time              `db:"reminded_for"`
	CreatedBy   string                  `db:"created_by"`
	CreatedAt   time.Time               `db:"created_at"`
	UpdatedAt   time.Time               `db:"updated_at"`
}

func toScheduleRow(s *models.Schedule) (*scheduleRow, error) {
	row := &scheduleRow{
		ID:          s.ID,
		Name:        s.Name,
		Definition:  s.Definition,
		Frequency:   string(s.Frequency),
		NextRunAt:   s.NextRunAt,
		AnchorDay:   s.AnchorDay,
		Timezone:    s.Timezone,
		Recipients:  pq.StringArray(append([]string{}, s.Recipients...)),
		Status:      string(s.Status),
		LastRunAt:   s.LastRunAt,
		RetryAt:     s.RetryAt,
		RemindedFor: s.RemindedFor,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.LastResult != nil {
		data, err := json.Marshal(s.LastResult)
		if err != nil {
			return nil, fmt.Errorf("marshal last result: %w", err)
		}
		row.LastResult = data
	}
	return row, nil
}

func (r *scheduleRow) toModel() (*models.Schedule, error) {
	schedule := &models.Schedule{
		ID:          r.ID,
		Name:        r.Name,
		Definition:  r.Definition,
		Frequency:   models.Frequency(r.Frequency),
		NextRunAt:   r.NextRunAt,
		AnchorDay:   r.AnchorDay,
		Timezone:    r.Timezone,
		Recipients:  []string(r.Recipients),
		Status:      models.ScheduleStatus(r.Status),
		LastRunAt:   r.LastRunAt,
		RetryAt:     r.RetryAt,
		RemindedFor: r.RemindedFor,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if schedule.Recipients == nil {
		schedule.Recipients = []string{}
	}
	if len(r.LastResult) > 0 {
		var result models.RunResult
		if err := json.Unmarshal(r.LastResult, &result); err != nil {
			return nil, fmt.Errorf("unmarshal last result: %w", err)
		}
		schedule.LastResult = &result
	}
	return schedule, nil
}

// EnsureSchema creates the table when missing.
func (r *ScheduleRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, ScheduleSchema); err != nil {
		return fmt.Errorf("ensure report_schedules schema: %w", err)
	}
	return nil
}

// Get returns the schedule with the given id or ErrScheduleNotFound.
func (r *ScheduleRepository) Get(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM report_schedules WHERE id = $1`
	var row scheduleRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get report schedule: %w", err)
	}
	return row.toModel()
}

// Put upserts the full schedule row.
func (r *ScheduleRepository) Put(ctx context.Context, schedule *models.Schedule) error {
	row, err := toScheduleRow(schedule)
	if err != nil {
		return err
	}
	const query = `INSERT INTO report_schedules (id, name, definition, frequency, next_run_at, anchor_day, timezone, recipients, status, last_run_at, last_result, retry_at, reminded_for, created_by, created_at, updated_at)
VALUES (:id, :name, :definition, :frequency, :next_run_at, :anchor_day, :timezone, :recipients, :status, :last_run_at, :last_result, :retry_at, :reminded_for, :created_by, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    definition = EXCLUDED.definition,
    frequency = EXCLUDED.frequency,
    next_run_at = EXCLUDED.next_run_at,
    anchor_day = EXCLUDED.anchor_day,
    timezone = EXCLUDED.timezone,
    recipients = EXCLUDED.recipients,
    status = EXCLUDED.status,
    last_run_at = EXCLUDED.last_run_at,
    last_result = EXCLUDED.last_result,
    retry_at = EXCLUDED.retry_at,
    reminded_for = EXCLUDED.reminded_for,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert report schedule: %w", err)
	}
	return nil
}

// Delete removes the schedule; deleting an absent id is not an error.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM report_schedules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete report schedule: %w", err)
	}
	return nil
}

// List returns every schedule ordered by next run.
func (r *ScheduleRepository) List(ctx context.Context) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM report_schedules ORDER BY next_run_at ASC, id ASC`
	var rows []scheduleRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list report schedules: %w", err)
	}
	out := make([]*models.Schedule, 0, len(rows))
	for i := range rows {
		schedule, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, schedule)
	}
	return out, nil
}
