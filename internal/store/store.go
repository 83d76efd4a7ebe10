// Package store provides persistence for report outcomes.
package store

import (
	"context"
	"strings"

	"github.com/ashureev/honeypot/internal/report"
)

// ReportLedger records every report attempt sequence and answers history queries.
type ReportLedger interface {
	// Record stores an outcome. Recording the same report ID twice replaces it.
	Record(ctx context.Context, o report.Outcome) error

	// ListReports returns a session's outcomes, oldest first.
	ListReports(ctx context.Context, sessionID string) ([]report.Outcome, error)

	// Delivered reports whether any delivery for the session succeeded.
	Delivered(ctx context.Context, sessionID string) (bool, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// isConflictError reports SQLITE_BUSY and "database is locked" errors, which
// warrant a retry.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
