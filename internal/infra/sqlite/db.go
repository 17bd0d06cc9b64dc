// Package sqlite provides SQLite-based persistent storage for tasks and
// segments. Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements domain.Store.
type DB struct {
	db *sql.DB
}

var _ domain.Store = (*DB)(nil)

// Open creates or opens the SQLite database at dir/bridge.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "bridge.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id                 TEXT PRIMARY KEY,
			status             TEXT NOT NULL,
			original_filename  TEXT NOT NULL,
			callback_url       TEXT NOT NULL DEFAULT '',
			total_segments     INTEGER NOT NULL,
			completed_segments INTEGER NOT NULL DEFAULT 0,
			final_transcript   TEXT,
			error              TEXT,
			source_path        TEXT NOT NULL DEFAULT '',
			source_digest      TEXT NOT NULL DEFAULT '',
			cleaned_up         BOOLEAN NOT NULL DEFAULT 0,
			created_at         INTEGER NOT NULL,
			completed_at       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at)`,

		`CREATE TABLE IF NOT EXISTS segments (
			id             TEXT PRIMARY KEY,
			task_id        TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			start_time     REAL NOT NULL,
			end_time       REAL NOT NULL,
			status         TEXT NOT NULL,
			text           TEXT,
			correlation_id TEXT,
			error          TEXT,
			audio_path     TEXT NOT NULL DEFAULT '',
			updated_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_segments_task ON segments(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_segments_status ON segments(status, updated_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_segments_correlation
			ON segments(correlation_id) WHERE correlation_id IS NOT NULL`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

// CreateTask inserts a task and its segments in one transaction.
// Tasks and segments are always created together once splitting
// information is known; all segments start pending.
func (d *DB) CreateTask(ctx context.Context, task domain.Task, segments []domain.Segment) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, status, original_filename, callback_url, total_segments,
			completed_segments, final_transcript, error, source_path, source_digest,
			cleaned_up, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Status, task.OriginalFilename, task.CallbackURL,
		task.TotalSegments, task.CompletedSegments,
		nullableString(task.FinalTranscript), nullableString(task.Error),
		task.SourcePath, task.SourceDigest, task.CleanedUp,
		task.CreatedAt.Unix(), nullableUnix(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	for _, seg := range segments {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO segments (id, task_id, start_time, end_time, status, text,
				correlation_id, error, audio_path, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			seg.ID, seg.TaskID, seg.StartTime, seg.EndTime, seg.Status,
			nullableString(seg.Text), nullableString(seg.CorrelationID),
			nullableString(seg.Error), seg.AudioPath, seg.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert segment %s: %w", seg.ID, err)
		}
	}

	return tx.Commit()
}

// GetTask retrieves a single task by id.
func (d *DB) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, status, original_filename, callback_url, total_segments,
			completed_segments, final_transcript, error, source_path, source_digest,
			cleaned_up, created_at, completed_at
		 FROM tasks WHERE id = ?`, id,
	)
	t, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrTaskNotFound
	}
	return t, nil
}

// ListTasks returns all tasks ordered by creation time descending.
func (d *DB) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, status, original_filename, callback_url, total_segments,
			completed_segments, final_transcript, error, source_path, source_digest,
			cleaned_up, created_at, completed_at
		 FROM tasks ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateTask applies a partial update to a task.
func (d *DB) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error {
	set := make([]string, 0, 6)
	args := make([]any, 0, 7)

	if patch.Status != nil {
		set = append(set, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.CompletedSegments != nil {
		set = append(set, "completed_segments = ?")
		args = append(args, *patch.CompletedSegments)
	}
	if patch.FinalTranscript != nil {
		set = append(set, "final_transcript = ?")
		args = append(args, *patch.FinalTranscript)
	}
	if patch.Error != nil {
		set = append(set, "error = ?")
		args = append(args, *patch.Error)
	}
	if patch.CleanedUp != nil {
		set = append(set, "cleaned_up = ?")
		args = append(args, *patch.CleanedUp)
	}
	if patch.CompletedAt != nil {
		set = append(set, "completed_at = ?")
		args = append(args, patch.CompletedAt.Unix())
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := d.db.ExecContext(ctx,
		`UPDATE tasks SET `+joinSet(set)+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// IncrementCompletedSegments atomically bumps the completed counter.
func (d *DB) IncrementCompletedSegments(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE tasks SET completed_segments = completed_segments + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task. Segments cascade via the foreign key.
func (d *DB) DeleteTask(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// ─── Segments ───────────────────────────────────────────────────────────────

const segmentCols = `id, task_id, start_time, end_time, status, text,
	correlation_id, error, audio_path, updated_at`

// GetSegment retrieves a single segment by id.
func (d *DB) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+segmentCols+` FROM segments WHERE id = ?`, id)
	s, err := scanSegment(row)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrSegmentNotFound
	}
	return s, nil
}

// GetSegmentByCorrelation looks up the segment holding the provider's
// correlation id. Returns domain.ErrUnknownCorrelation if no segment
// matches (webhook correlator treats this as a discardable callback).
func (d *DB) GetSegmentByCorrelation(ctx context.Context, correlationID string) (*domain.Segment, error) {
	if correlationID == "" {
		return nil, domain.ErrUnknownCorrelation
	}
	row := d.db.QueryRowContext(ctx,
		`SELECT `+segmentCols+` FROM segments WHERE correlation_id = ?`, correlationID)
	s, err := scanSegment(row)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrUnknownCorrelation
	}
	return s, nil
}

// ListSegments returns a task's segments ordered by start time ascending.
func (d *DB) ListSegments(ctx context.Context, taskID string) ([]domain.Segment, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+segmentCols+` FROM segments WHERE task_id = ? ORDER BY start_time ASC`,
		taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSegments(rows)
}

// ListSegmentsByStatus returns segments in the given status ordered by
// start time. If staleBefore is non-zero, only segments last updated
// before it are returned.
func (d *DB) ListSegmentsByStatus(ctx context.Context, status domain.SegmentStatus, staleBefore time.Time) ([]domain.Segment, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if staleBefore.IsZero() {
		rows, err = d.db.QueryContext(ctx,
			`SELECT `+segmentCols+` FROM segments WHERE status = ? ORDER BY start_time ASC`,
			status)
	} else {
		rows, err = d.db.QueryContext(ctx,
			`SELECT `+segmentCols+` FROM segments
			 WHERE status = ? AND updated_at < ? ORDER BY start_time ASC`,
			status, staleBefore.Unix())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSegments(rows)
}

// UpdateSegment applies a partial update to a segment.
func (d *DB) UpdateSegment(ctx context.Context, id string, patch domain.SegmentPatch) error {
	set := make([]string, 0, 6)
	args := make([]any, 0, 7)

	if patch.Status != nil {
		set = append(set, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.Text != nil {
		set = append(set, "text = ?")
		args = append(args, *patch.Text)
	}
	if patch.CorrelationID != nil {
		set = append(set, "correlation_id = ?")
		args = append(args, *patch.CorrelationID)
	}
	if patch.Error != nil {
		set = append(set, "error = ?")
		args = append(args, *patch.Error)
	}
	if patch.AudioPath != nil {
		set = append(set, "audio_path = ?")
		args = append(args, *patch.AudioPath)
	}
	if patch.UpdatedAt != nil {
		set = append(set, "updated_at = ?")
		args = append(args, patch.UpdatedAt.Unix())
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := d.db.ExecContext(ctx,
		`UPDATE segments SET `+joinSet(set)+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrSegmentNotFound
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*domain.Task, error) {
	var t domain.Task
	var transcript, errMsg sql.NullString
	var createdAt int64
	var completedAt sql.NullInt64

	err := s.Scan(&t.ID, &t.Status, &t.OriginalFilename, &t.CallbackURL,
		&t.TotalSegments, &t.CompletedSegments, &transcript, &errMsg,
		&t.SourcePath, &t.SourceDigest, &t.CleanedUp, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, err
	}

	t.FinalTranscript = transcript.String
	t.Error = errMsg.String
	t.CreatedAt = time.Unix(createdAt, 0)
	if completedAt.Valid {
		t.CompletedAt = time.Unix(completedAt.Int64, 0)
	}
	return &t, nil
}

func scanSegment(s scanner) (*domain.Segment, error) {
	var seg domain.Segment
	var text, corrID, errMsg sql.NullString
	var updatedAt int64

	err := s.Scan(&seg.ID, &seg.TaskID, &seg.StartTime, &seg.EndTime, &seg.Status,
		&text, &corrID, &errMsg, &seg.AudioPath, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	seg.Text = text.String
	seg.CorrelationID = corrID.String
	seg.Error = errMsg.String
	seg.UpdatedAt = time.Unix(updatedAt, 0)
	return &seg, nil
}

func collectSegments(rows *sql.Rows) ([]domain.Segment, error) {
	var segments []domain.Segment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, *s)
	}
	return segments, rows.Err()
}

func joinSet(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
