package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sandeepkv93/taskd/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// OpenSQLite opens path, applies migrations and returns a ready repository.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps PRAGMA state and serializes writers.
	db.SetMaxOpenConns(1)
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const templateColumns = `id, title, description, status, base_start, base_end, duration_minutes, recurrence, timezone, reminder, scheduling, created_at, updated_at`

func (r *SQLiteRepository) SaveTemplate(ctx context.Context, in model.TaskTemplate) error {
	recurrence, err := json.Marshal(in.Recurrence)
	if err != nil {
		return fmt.Errorf("encode recurrence: %w", err)
	}
	reminder, err := json.Marshal(in.Reminder)
	if err != nil {
		return fmt.Errorf("encode reminder: %w", err)
	}
	scheduling, err := json.Marshal(in.Scheduling)
	if err != nil {
		return fmt.Errorf("encode scheduling: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, description = excluded.description, status = excluded.status,
			base_start = excluded.base_start, base_end = excluded.base_end, duration_minutes = excluded.duration_minutes,
			recurrence = excluded.recurrence, timezone = excluded.timezone, reminder = excluded.reminder,
			scheduling = excluded.scheduling, updated_at = excluded.updated_at`,
		in.ID, in.Title, in.Description, string(in.Status),
		mustTime(in.BaseTime.Start), nullTime(in.BaseTime.End), in.BaseTime.DurationMinutes,
		string(recurrence), in.Timezone, string(reminder), string(scheduling),
		mustTime(in.CreatedAt), mustTime(in.UpdatedAt),
	)
	return err
}

func (r *SQLiteRepository) GetTemplate(ctx context.Context, id string) (model.TaskTemplate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	item, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TaskTemplate{}, ErrNotFound
		}
		return model.TaskTemplate{}, err
	}
	return item, nil
}

func (r *SQLiteRepository) ListTemplates(ctx context.Context, filter TemplateListFilter) ([]model.TaskTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM templates`
	args := make([]any, 0, 3)
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.TaskTemplate, 0)
	for rows.Next() {
		item, scanErr := scanTemplate(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteTemplate(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM instances WHERE template_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

const instanceColumns = `id, template_id, title, description, status, time_type, scheduled_time, end_time, original_time,
	allow_reschedule, max_delay_days, reminder_enabled, alerts, global_snooze_count, snooze,
	created_at, updated_at, started_at, completed_at, cancelled_at`

func (r *SQLiteRepository) SaveInstance(ctx context.Context, in model.TaskInstance) error {
	args, err := instanceArgs(in)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO instances (`+instanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	return err
}

func (r *SQLiteRepository) UpdateInstance(ctx context.Context, in model.TaskInstance) error {
	args, err := instanceArgs(in)
	if err != nil {
		return err
	}
	// id moves to the WHERE clause.
	args = append(args[1:], in.ID)
	res, err := r.db.ExecContext(ctx, `
		UPDATE instances
		SET template_id = ?, title = ?, description = ?, status = ?, time_type = ?, scheduled_time = ?, end_time = ?,
			original_time = ?, allow_reschedule = ?, max_delay_days = ?, reminder_enabled = ?, alerts = ?,
			global_snooze_count = ?, snooze = ?, created_at = ?, updated_at = ?, started_at = ?, completed_at = ?,
			cancelled_at = ?
		WHERE id = ?`,
		args...,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) GetInstance(ctx context.Context, id string) (model.TaskInstance, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id)
	item, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TaskInstance{}, ErrNotFound
		}
		return model.TaskInstance{}, err
	}
	return item, nil
}

func (r *SQLiteRepository) DeleteInstance(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) FindInstancesByTemplateID(ctx context.Context, templateID string) ([]model.TaskInstance, error) {
	return r.queryInstances(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE template_id = ? ORDER BY scheduled_time ASC, id ASC`,
		templateID)
}

func (r *SQLiteRepository) ListInstances(ctx context.Context, filter InstanceListFilter) ([]model.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances`
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 6)
	if len(filter.Statuses) > 0 {
		marks := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			marks = append(marks, "?")
			args = append(args, string(s))
		}
		clauses = append(clauses, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.From != nil {
		clauses = append(clauses, "scheduled_time >= ?")
		args = append(args, mustTime(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "scheduled_time <= ?")
		args = append(args, mustTime(*filter.To))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY scheduled_time ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)
	return r.queryInstances(ctx, query, args...)
}

func (r *SQLiteRepository) queryInstances(ctx context.Context, query string, args ...any) ([]model.TaskInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.TaskInstance, 0)
	for rows.Next() {
		item, scanErr := scanInstance(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func instanceArgs(in model.TaskInstance) ([]any, error) {
	alerts := in.Reminder.Alerts
	if alerts == nil {
		alerts = []model.AlertState{}
	}
	alertsJSON, err := json.Marshal(alerts)
	if err != nil {
		return nil, fmt.Errorf("encode alerts: %w", err)
	}
	snoozeJSON, err := json.Marshal(in.Snooze)
	if err != nil {
		return nil, fmt.Errorf("encode snooze: %w", err)
	}
	return []any{
		in.ID, nullString(in.TemplateID), in.Title, in.Description, string(in.Status),
		string(in.Time.Type), mustTime(in.Time.ScheduledTime), nullTime(in.Time.EndTime), mustTime(in.Time.OriginalTime),
		boolInt(in.Time.AllowReschedule), in.Time.MaxDelayDays,
		boolInt(in.Reminder.Enabled), string(alertsJSON), in.Reminder.GlobalSnoozeCount, string(snoozeJSON),
		mustTime(in.CreatedAt), mustTime(in.UpdatedAt),
		nullTime(in.StartedAt), nullTime(in.CompletedAt), nullTime(in.CancelledAt),
	}, nil
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	} else if offset > 0 {
		sql += " LIMIT -1"
	}
	if offset > 0 {
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(s scanner) (model.TaskTemplate, error) {
	var out model.TaskTemplate
	var status, baseStart, recurrence, reminder, scheduling, created, updated string
	var baseEnd sql.NullString
	if err := s.Scan(&out.ID, &out.Title, &out.Description, &status, &baseStart, &baseEnd, &out.BaseTime.DurationMinutes,
		&recurrence, &out.Timezone, &reminder, &scheduling, &created, &updated); err != nil {
		return model.TaskTemplate{}, err
	}
	out.Status = model.TemplateStatus(status)

	var err error
	if out.BaseTime.Start, err = parseRequiredTime(baseStart); err != nil {
		return model.TaskTemplate{}, err
	}
	if out.BaseTime.End, err = parseNullableTime(baseEnd); err != nil {
		return model.TaskTemplate{}, err
	}
	if out.CreatedAt, err = parseRequiredTime(created); err != nil {
		return model.TaskTemplate{}, err
	}
	if out.UpdatedAt, err = parseRequiredTime(updated); err != nil {
		return model.TaskTemplate{}, err
	}
	if err := json.Unmarshal([]byte(recurrence), &out.Recurrence); err != nil {
		return model.TaskTemplate{}, fmt.Errorf("decode recurrence of %s: %w", out.ID, err)
	}
	if err := json.Unmarshal([]byte(reminder), &out.Reminder); err != nil {
		return model.TaskTemplate{}, fmt.Errorf("decode reminder of %s: %w", out.ID, err)
	}
	if err := json.Unmarshal([]byte(scheduling), &out.Scheduling); err != nil {
		return model.TaskTemplate{}, fmt.Errorf("decode scheduling of %s: %w", out.ID, err)
	}
	return out, nil
}

func scanInstance(s scanner) (model.TaskInstance, error) {
	var out model.TaskInstance
	var templateID, endTime, started, completed, cancelled sql.NullString
	var status, timeType, scheduled, original, alerts, snooze, created, updated string
	var allowReschedule, reminderEnabled int
	if err := s.Scan(&out.ID, &templateID, &out.Title, &out.Description, &status, &timeType, &scheduled, &endTime, &original,
		&allowReschedule, &out.Time.MaxDelayDays, &reminderEnabled, &alerts, &out.Reminder.GlobalSnoozeCount, &snooze,
		&created, &updated, &started, &completed, &cancelled); err != nil {
		return model.TaskInstance{}, err
	}
	out.TemplateID = templateID.String
	out.Status = model.InstanceStatus(status)
	out.Time.Type = model.TimeType(timeType)
	out.Time.AllowReschedule = allowReschedule == 1
	out.Reminder.Enabled = reminderEnabled == 1

	var err error
	if out.Time.ScheduledTime, err = parseRequiredTime(scheduled); err != nil {
		return model.TaskInstance{}, err
	}
	if out.Time.OriginalTime, err = parseRequiredTime(original); err != nil {
		return model.TaskInstance{}, err
	}
	if out.Time.EndTime, err = parseNullableTime(endTime); err != nil {
		return model.TaskInstance{}, err
	}
	if out.CreatedAt, err = parseRequiredTime(created); err != nil {
		return model.TaskInstance{}, err
	}
	if out.UpdatedAt, err = parseRequiredTime(updated); err != nil {
		return model.TaskInstance{}, err
	}
	if out.StartedAt, err = parseNullableTime(started); err != nil {
		return model.TaskInstance{}, err
	}
	if out.CompletedAt, err = parseNullableTime(completed); err != nil {
		return model.TaskInstance{}, err
	}
	if out.CancelledAt, err = parseNullableTime(cancelled); err != nil {
		return model.TaskInstance{}, err
	}
	if err := json.Unmarshal([]byte(alerts), &out.Reminder.Alerts); err != nil {
		return model.TaskInstance{}, fmt.Errorf("decode alerts of %s: %w", out.ID, err)
	}
	if len(out.Reminder.Alerts) == 0 {
		out.Reminder.Alerts = nil
	}
	if err := json.Unmarshal([]byte(snooze), &out.Snooze); err != nil {
		return model.TaskInstance{}, fmt.Errorf("decode snooze of %s: %w", out.ID, err)
	}
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
