package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/honeypot/internal/report"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements ReportLedger using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ ReportLedger = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed ledger.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Pragmas are applied to every pooled connection.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		status_code INTEGER,
		error TEXT,
		summary_json TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_session ON reports(session_id, started_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Record stores an outcome.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) Record(ctx context.Context, o report.Outcome) error {
	summaryJSON, err := json.Marshal(o.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	return withBusyRetry(ctx, "record report", func() error {
		query := `
		INSERT INTO reports (
			report_id, session_id, delivered, attempts, status_code,
			error, summary_json, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(report_id) DO UPDATE SET
			delivered = excluded.delivered,
			attempts = excluded.attempts,
			status_code = excluded.status_code,
			error = excluded.error,
			summary_json = excluded.summary_json,
			finished_at = excluded.finished_at`

		var errText interface{}
		if o.Error != "" {
			errText = o.Error
		}
		var status interface{}
		if o.StatusCode != 0 {
			status = o.StatusCode
		}

		_, err := s.db.ExecContext(ctx, query,
			o.ReportID, o.SessionID, o.Delivered, o.Attempts, status,
			errText, string(summaryJSON),
			o.StartedAt.UnixMilli(), o.FinishedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		return nil
	})
}

const selectReport = `
	SELECT report_id, session_id, delivered, attempts, status_code,
	       error, summary_json, started_at, finished_at
	FROM reports`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*report.Outcome, error) {
	var o report.Outcome
	var status sql.NullInt64
	var errText sql.NullString
	var summaryJSON string
	var startedAt, finishedAt int64

	if err := row.Scan(
		&o.ReportID, &o.SessionID, &o.Delivered, &o.Attempts, &status,
		&errText, &summaryJSON, &startedAt, &finishedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(summaryJSON), &o.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	o.StatusCode = int(status.Int64)
	o.Error = errText.String
	o.StartedAt = time.UnixMilli(startedAt)
	o.FinishedAt = time.UnixMilli(finishedAt)
	return &o, nil
}

// ListReports returns a session's outcomes, oldest first.
func (s *SQLiteStore) ListReports(ctx context.Context, sessionID string) ([]report.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, selectReport+` WHERE session_id = ? ORDER BY started_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close report rows", "error", closeErr)
		}
	}()

	var out []report.Outcome
	for rows.Next() {
		o, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

// Delivered reports whether any delivery for the session succeeded.
func (s *SQLiteStore) Delivered(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE session_id = ? AND delivered = 1`, sessionID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count delivered reports: %w", err)
	}
	return n > 0, nil
}

func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
