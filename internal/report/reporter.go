package report

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RetryPolicy controls how many times a report is attempted.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the pause after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy makes three attempts two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     FixedBackoff(2 * time.Second),
		Sleep:       SleepContext,
	}
}

// FixedBackoff returns a constant backoff.
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// SleepContext pauses for d unless ctx ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome is the result of one Report call.
type Outcome struct {
	ReportID   string    `json:"reportId"`
	SessionID  string    `json:"sessionId"`
	Summary    Summary   `json:"summary"`
	Delivered  bool      `json:"delivered"`
	Attempts   int       `json:"attempts"`
	StatusCode int       `json:"statusCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Recorder persists report outcomes.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// Reporter delivers summaries with retries and records every outcome.
type Reporter struct {
	deliverer Deliverer
	retry     RetryPolicy
	recorders []Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewReporter creates a Reporter.
func NewReporter(d Deliverer, retry RetryPolicy, logger *slog.Logger, recorders ...Recorder) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.Backoff == nil {
		retry.Backoff = FixedBackoff(0)
	}
	if retry.Sleep == nil {
		retry.Sleep = SleepContext
	}
	return &Reporter{
		deliverer: d,
		retry:     retry,
		recorders: recorders,
		logger:    logger,
		now:       time.Now,
	}
}

// Report delivers s. It never fails; the outcome says whether delivery succeeded.
func (r *Reporter) Report(ctx context.Context, s Summary) Outcome {
	out := Outcome{
		ReportID:  uuid.NewString(),
		SessionID: s.SessionID,
		Summary:   s,
		StartedAt: r.now(),
	}

	payload, err := json.Marshal(s)
	if err != nil {
		out.Error = "encode summary: " + err.Error()
		out.FinishedAt = r.now()
		r.finish(ctx, out)
		return out
	}

	var lastErr error
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		out.Attempts = attempt
		status, err := r.deliverer.Deliver(ctx, out.ReportID, payload)
		out.StatusCode = status
		if err == nil {
			out.Delivered = true
			lastErr = nil
			break
		}
		lastErr = err
		r.logger.Warn("Report delivery attempt failed",
			"session_id", s.SessionID,
			"report_id", out.ReportID,
			"attempt", attempt,
			"status", status,
			"error", err)

		if attempt == r.retry.MaxAttempts {
			break
		}
		if err := r.retry.Sleep(ctx, r.retry.Backoff(attempt)); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}
	if lastErr != nil {
		out.Error = lastErr.Error()
	}
	out.FinishedAt = r.now()
	r.finish(ctx, out)
	return out
}

func (r *Reporter) finish(ctx context.Context, out Outcome) {
	if out.Delivered {
		r.logger.Info("Report delivered",
			"session_id", out.SessionID,
			"report_id", out.ReportID,
			"attempts", out.Attempts,
			"status", out.StatusCode)
	} else {
		r.logger.Error("Report delivery failed",
			"session_id", out.SessionID,
			"report_id", out.ReportID,
			"attempts", out.Attempts,
			"error", out.Error)
	}

	for _, rec := range r.recorders {
		if err := rec.Record(ctx, out); err != nil {
			r.logger.Warn("Failed to record report outcome",
				"session_id", out.SessionID,
				"report_id", out.ReportID,
				"error", err)
		}
	}
}
