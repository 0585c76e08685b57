// Package store implements scheduler.JobStore over SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/abdatta/wappflow/internal/scheduler"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                 TEXT PRIMARY KEY,
	kind               TEXT NOT NULL,
	status             TEXT NOT NULL,
	contact_name       TEXT NOT NULL,
	message            TEXT NOT NULL,
	anchor_time        TEXT NOT NULL,
	interval_value     INTEGER NOT NULL DEFAULT 0,
	interval_unit      TEXT NOT NULL DEFAULT '',
	tolerance_minutes  INTEGER,
	next_run           TEXT,
	last_run           TEXT,
	created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs (status, anchor_time, next_run);

CREATE TABLE IF NOT EXISTS history (
	id           TEXT PRIMARY KEY,
	job_id       TEXT,
	kind         TEXT NOT NULL,
	contact_name TEXT NOT NULL,
	message      TEXT NOT NULL,
	status       TEXT NOT NULL,
	timestamp    TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_history_job ON history (job_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is a SQLite-backed scheduler.JobStore.
type Store struct {
	db *sql.DB
}

// Open opens (and, on first use, migrates) the SQLite database at path.
// "?_foreign_keys=on" is required in the DSN for the history cascade to
// actually fire; callers should pass a plain filesystem path and Open adds
// the pragma itself.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single file-backed SQLite connection does not benefit from a pool
	// and concurrent writers would just contend on the same file lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, job *scheduler.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = scheduler.StatusActive
	}
	if job.NextRun == nil && job.Status == scheduler.StatusActive {
		nr := job.AnchorTime
		job.NextRun = &nr
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs
			(id, kind, status, contact_name, message, anchor_time,
			 interval_value, interval_unit, tolerance_minutes, next_run, last_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Kind), string(job.Status), job.ContactName, job.Message,
		formatTime(&job.AnchorTime), job.IntervalValue, string(job.IntervalUnit),
		formatIntPtr(job.ToleranceMinutes), formatTime(job.NextRun), formatTime(job.LastRun),
		formatTime(&job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: create job %s: %v", scheduler.ErrStore, job.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*scheduler.Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectCols+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: job %s", scheduler.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get job %s: %v", scheduler.ErrStore, id, err)
	}
	return job, nil
}

func (s *Store) List(ctx context.Context) ([]*scheduler.Job, error) {
	rows, err := s.db.QueryContext(ctx, jobSelectCols+` FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", scheduler.ErrStore, err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *Store) ListDue(ctx context.Context, now time.Time) ([]*scheduler.Job, error) {
	rows, err := s.db.QueryContext(ctx, jobSelectCols+`
		FROM jobs
		WHERE status = ?
		  AND ((kind = ? AND anchor_time <= ?) OR (kind = ? AND next_run <= ?))
		ORDER BY created_at ASC`,
		string(scheduler.StatusActive),
		string(scheduler.KindOnce), formatTime(&now),
		string(scheduler.KindRecurring), formatTime(&now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listDue: %v", scheduler.ErrStore, err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *Store) Update(ctx context.Context, job *scheduler.Job) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
			kind = ?, contact_name = ?, message = ?, anchor_time = ?,
			interval_value = ?, interval_unit = ?, tolerance_minutes = ?, next_run = ?
		WHERE id = ?`,
		string(job.Kind), job.ContactName, job.Message, formatTime(&job.AnchorTime),
		job.IntervalValue, string(job.IntervalUnit), formatIntPtr(job.ToleranceMinutes),
		formatTime(job.NextRun), job.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: update job %s: %v", scheduler.ErrStore, job.ID, err)
	}
	return checkRowsAffected(res, job.ID)
}

func (s *Store) SetStatus(ctx context.Context, id string, status scheduler.Status, nextRun, lastRun *time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: setStatus %s: %v", scheduler.ErrStore, id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, next_run = ?, last_run = ? WHERE id = ?`,
		string(status), formatTime(nextRun), formatTime(lastRun), id,
	)
	if err != nil {
		return fmt.Errorf("%w: setStatus %s: %v", scheduler.ErrStore, id, err)
	}
	if err := checkRowsAffected(res, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete job %s: %v", scheduler.ErrStore, id, err)
	}
	return checkRowsAffected(res, id)
}

func (s *Store) HistoryAppend(ctx context.Context, entry *scheduler.HistoryEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	var jobID sql.NullString
	if entry.JobID != "" {
		jobID = sql.NullString{String: entry.JobID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (id, job_id, kind, contact_name, message, status, timestamp, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, jobID, string(entry.Kind), entry.ContactName, entry.Message,
		string(entry.Status), formatTime(&entry.Timestamp), entry.Error,
	)
	if err != nil {
		return "", fmt.Errorf("%w: historyAppend: %v", scheduler.ErrStore, err)
	}
	return entry.ID, nil
}

func (s *Store) HistoryUpdate(ctx context.Context, id string, status scheduler.HistoryStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE history SET status = ?, error = ? WHERE id = ?`, string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("%w: historyUpdate %s: %v", scheduler.ErrStore, id, err)
	}
	return checkRowsAffected(res, id)
}

func (s *Store) HistoryList(ctx context.Context, jobID string, limit int) ([]*scheduler.HistoryEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows *sql.Rows
	var err error
	if jobID != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, job_id, kind, contact_name, message, status, timestamp, error
			FROM history WHERE job_id = ? ORDER BY timestamp DESC LIMIT ?`, jobID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, job_id, kind, contact_name, message, status, timestamp, error
			FROM history ORDER BY timestamp DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: historyList: %v", scheduler.ErrStore, err)
	}
	defer rows.Close()

	var out []*scheduler.HistoryEntry
	for rows.Next() {
		var (
			e         scheduler.HistoryEntry
			jobID     sql.NullString
			kind      string
			status    string
			timestamp string
		)
		if err := rows.Scan(&e.ID, &jobID, &kind, &e.ContactName, &e.Message, &status, &timestamp, &e.Error); err != nil {
			return nil, fmt.Errorf("%w: scan history: %v", scheduler.ErrStore, err)
		}
		e.JobID = jobID.String
		e.Kind = scheduler.Kind(kind)
		e.Status = scheduler.HistoryStatus(status)
		e.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: getSetting %s: %v", scheduler.ErrStore, key, err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("%w: setSetting %s: %v", scheduler.ErrStore, key, err)
	}
	return nil
}

const jobSelectCols = `SELECT id, kind, status, contact_name, message, anchor_time,
	interval_value, interval_unit, tolerance_minutes, next_run, last_run, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*scheduler.Job, error) {
	var (
		j                scheduler.Job
		kind, status     string
		unit             string
		anchorStr        string
		toleranceMinutes sql.NullInt64
		nextRun, lastRun sql.NullString
		createdAtStr     string
	)
	if err := row.Scan(&j.ID, &kind, &status, &j.ContactName, &j.Message, &anchorStr,
		&j.IntervalValue, &unit, &toleranceMinutes, &nextRun, &lastRun, &createdAtStr); err != nil {
		return nil, err
	}
	j.Kind = scheduler.Kind(kind)
	j.Status = scheduler.Status(status)
	j.IntervalUnit = scheduler.IntervalUnit(unit)
	j.AnchorTime, _ = time.Parse(time.RFC3339, anchorStr)
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	if toleranceMinutes.Valid {
		v := int(toleranceMinutes.Int64)
		j.ToleranceMinutes = &v
	}
	if nextRun.Valid {
		t, _ := time.Parse(time.RFC3339, nextRun.String)
		j.NextRun = &t
	}
	if lastRun.Valid {
		t, _ := time.Parse(time.RFC3339, lastRun.String)
		j.LastRun = &t
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*scheduler.Job, error) {
	var out []*scheduler.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan job: %v", scheduler.ErrStore, err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected for %s: %v", scheduler.ErrStore, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", scheduler.ErrNotFound, id)
	}
	return nil
}

func formatTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func formatIntPtr(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
