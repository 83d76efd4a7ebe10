// Package engine runs one conversation turn end to end.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/extract"
	"github.com/ashureev/honeypot/internal/intent"
	"github.com/ashureev/honeypot/internal/policy"
	"github.com/ashureev/honeypot/internal/render"
	"github.com/ashureev/honeypot/internal/report"
	"github.com/ashureev/honeypot/internal/session"
	"github.com/ashureev/honeypot/internal/transcript"
)

// ErrEmptySessionID is returned when a message arrives without a session id.
var ErrEmptySessionID = errors.New("session id is required")

// Reporter delivers a summary and reports the outcome.
type Reporter interface {
	Report(ctx context.Context, s report.Summary) report.Outcome
}

// DeliveryHistory answers whether a session was ever delivered, including
// sessions no longer held in memory.
type DeliveryHistory interface {
	Delivered(ctx context.Context, sessionID string) (bool, error)
}

// Config holds per-turn settings.
type Config struct {
	// ScamThreshold is passed to the classifier.
	ScamThreshold float64
	Stop          policy.StopConfig
	// HistoryWindow is how many recent messages the renderer sees.
	HistoryWindow int
	// ReportTimeout bounds a whole delivery sequence including retries.
	ReportTimeout time.Duration
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		ScamThreshold: intent.DefaultThreshold,
		Stop:          policy.DefaultStopConfig(),
		HistoryWindow: 6,
		ReportTimeout: time.Minute,
	}
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Sessions   *session.Store
	Classifier intent.Classifier
	Policy     *policy.Engine
	Renderer   render.Renderer
	// Templates supplies goal fallbacks when Renderer returns nothing usable.
	// Defaults to the embedded set.
	Templates *render.Templates
	Reporter  Reporter
	// History is optional. When set, a session evicted after delivery is not
	// reported again.
	History DeliveryHistory
	// Transcript is optional.
	Transcript *transcript.Logger
	Logger     *slog.Logger
}

// Inbound is one counterparty message.
type Inbound struct {
	SessionID string
	Text      string
	Channel   string
	Timestamp time.Time
}

// Result describes the outcome of a turn.
type Result struct {
	Reply        string
	ShouldEnd    bool
	Goal         policy.Goal
	Rule         string
	StopReason   policy.StopReason
	ScamDetected bool
	Turn         int
	// ReportStarted is true when this turn launched a delivery.
	ReportStarted bool
}

// Engine serialises turns per session and launches report deliveries.
type Engine struct {
	sessions   *session.Store
	classifier intent.Classifier
	policy     *policy.Engine
	renderer   render.Renderer
	templates  *render.Templates
	reporter   Reporter
	history    DeliveryHistory
	transcript *transcript.Logger
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

// New creates an Engine.
func New(deps Deps, cfg Config) (*Engine, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session store is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case deps.Policy == nil:
		return nil, fmt.Errorf("policy engine is required")
	case deps.Renderer == nil:
		return nil, fmt.Errorf("renderer is required")
	case deps.Reporter == nil:
		return nil, fmt.Errorf("reporter is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Templates == nil {
		tmpl, err := render.DefaultTemplates()
		if err != nil {
			return nil, fmt.Errorf("load default templates: %w", err)
		}
		deps.Templates = tmpl
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultConfig().HistoryWindow
	}
	return &Engine{
		sessions:   deps.Sessions,
		classifier: deps.Classifier,
		policy:     deps.Policy,
		renderer:   deps.Renderer,
		templates:  deps.Templates,
		reporter:   deps.Reporter,
		history:    deps.History,
		transcript: deps.Transcript,
		cfg:        cfg,
		logger:     deps.Logger,
		now:        time.Now,
	}, nil
}

// SetClock overrides the time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Handle processes one inbound message and returns the persona reply and
// whether the conversation should end.
func (e *Engine) Handle(ctx context.Context, sessionID, text string) (string, bool, error) {
	res, err := e.Process(ctx, Inbound{SessionID: sessionID, Text: text})
	if err != nil {
		return "", false, err
	}
	return res.Reply, res.ShouldEnd, nil
}

// Process runs a full turn for in.
func (e *Engine) Process(ctx context.Context, in Inbound) (Result, error) {
	id := strings.TrimSpace(in.SessionID)
	if id == "" {
		return Result{}, ErrEmptySessionID
	}

	sess := e.sessions.GetOrCreate(id)
	sess.Lock()
	defer sess.Unlock()

	at := in.Timestamp
	if at.IsZero() {
		at = e.now()
	}
	sess.RecordInbound(in.Text, at)
	e.log(in.Channel, transcript.Event{
		SessionID:  id,
		Direction:  transcript.DirectionInbound,
		EventType:  "message",
		ContentRaw: in.Text,
		Meta:       map[string]any{"turn": sess.Turns},
	})

	if !sess.ScamConfirmed && e.classifier.IsScam(in.Text, e.cfg.ScamThreshold) {
		sess.ScamConfirmed = true
		e.logger.Info("Scam intent confirmed",
			"session_id", id,
			"turn", sess.Turns,
			"classifier", e.classifier.Variant())
	}

	latest := extract.Extract(in.Text)
	prior := sess.Extracted.Clone()
	if added := sess.Extracted.Merge(latest); added > 0 {
		e.logger.Info("Indicators extracted", "session_id", id, "new_values", added)
	}

	decision := e.policy.Decide(policy.Context{
		Turn:      sess.Turns,
		Extracted: sess.Extracted,
		Prior:     prior,
		Signals:   policy.DetectSignals(in.Text, latest),
		LastGoal:  policy.Goal(sess.LastGoal),
	})

	reply, err := e.renderer.Render(ctx, decision.Goal, sess.RecentMessages(e.cfg.HistoryWindow))
	if err != nil || strings.TrimSpace(reply) == "" {
		e.logger.Warn("Renderer produced no reply, using fallback", "session_id", id, "goal", decision.Goal, "error", err)
		reply = e.templates.Fallback(decision.Goal)
	}
	sess.RecordReply(reply, e.now())
	sess.LastGoal = string(decision.Goal)
	e.log(in.Channel, transcript.Event{
		SessionID:  id,
		Direction:  transcript.DirectionOutbound,
		EventType:  "reply",
		ContentRaw: reply,
		Meta:       map[string]any{"goal": string(decision.Goal), "rule": decision.Rule},
	})

	reason := policy.EvaluateStop(sess, e.cfg.Stop)
	res := Result{
		Reply:        reply,
		ShouldEnd:    reason != policy.StopNone,
		Goal:         decision.Goal,
		Rule:         decision.Rule,
		StopReason:   reason,
		ScamDetected: sess.ScamConfirmed,
		Turn:         sess.Turns,
	}

	if res.ShouldEnd && sess.ScamConfirmed && e.claimReport(ctx, sess) {
		res.ReportStarted = true
		e.logger.Info("Conversation complete, reporting",
			"session_id", id,
			"reason", reason,
			"attempt", sess.ReportAttempts)
		e.deliver(ctx, sess, report.BuildSummary(sess), in.Channel)
	}

	return res, nil
}

// claimReport starts a delivery sequence for sess unless one is running or the
// session was already delivered. The caller holds the session lock.
func (e *Engine) claimReport(ctx context.Context, sess *domain.Session) bool {
	if sess.Reported || sess.ReportInFlight() {
		return false
	}
	if e.history != nil {
		delivered, err := e.history.Delivered(ctx, sess.ID)
		if err != nil {
			e.logger.Warn("Failed to check report history, deferring delivery", "session_id", sess.ID, "error", err)
			return false
		}
		if delivered {
			sess.Reported = true
			e.logger.Info("Session already reported, skipping delivery", "session_id", sess.ID)
			return false
		}
	}
	return sess.ClaimReport()
}

// deliver runs the report off the session lock. The session must have been
// claimed with ClaimReport.
func (e *Engine) deliver(ctx context.Context, sess *domain.Session, summary report.Summary, channel string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		rctx := context.WithoutCancel(ctx)
		if e.cfg.ReportTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(rctx, e.cfg.ReportTimeout)
			defer cancel()
		}

		out := e.reporter.Report(rctx, summary)

		sess.Lock()
		sess.FinishReport(out.Delivered)
		sess.Unlock()

		e.log(channel, transcript.Event{
			SessionID: summary.SessionID,
			Direction: transcript.DirectionSystem,
			EventType: "report",
			Meta: map[string]any{
				"report_id": out.ReportID,
				"delivered": out.Delivered,
				"attempts":  out.Attempts,
				"error":     out.Error,
			},
		})
	}()
}

// Wait blocks until every launched delivery has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (e *Engine) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for deliveries: %w", ctx.Err())
	}
}

func (e *Engine) log(channel string, ev transcript.Event) {
	if e.transcript == nil {
		return
	}
	ev.Channel = channel
	e.transcript.Log(ev)
}
