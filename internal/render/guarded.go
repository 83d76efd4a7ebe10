package render

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/extract"
	"github.com/ashureev/honeypot/internal/policy"
)

// GuardConfig bounds a generated reply.
type GuardConfig struct {
	Timeout  time.Duration
	MinWords int
	MaxWords int
}

// DefaultGuardConfig returns the reply bounds used in production.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{Timeout: 8 * time.Second, MinWords: 1, MaxWords: 25}
}

// Reply is the outcome of rendering one goal.
type Reply struct {
	Text     string
	Fallback bool
	// Reason is set when Fallback is true.
	Reason string
}

// Guarded wraps a Renderer with a deadline, output validation and a
// per-goal canned fallback. It always produces a non-empty reply.
type Guarded struct {
	next      Renderer
	templates *Templates
	cfg       GuardConfig
	logger    *slog.Logger
}

// NewGuarded creates a Guarded renderer. next may be nil, in which case every
// reply is the canned fallback.
func NewGuarded(next Renderer, templates *Templates, cfg GuardConfig, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = DefaultGuardConfig().MaxWords
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = 1
	}
	return &Guarded{next: next, templates: templates, cfg: cfg, logger: logger}
}

// Render implements Renderer. It never returns an error.
func (g *Guarded) Render(ctx context.Context, goal policy.Goal, history []domain.Message) (string, error) {
	return g.Reply(ctx, goal, history).Text, nil
}

// Reply renders goal and reports whether the canned fallback was used.
func (g *Guarded) Reply(ctx context.Context, goal policy.Goal, history []domain.Message) Reply {
	if g.next == nil {
		return g.fallback(goal, "no renderer configured")
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	text, err := g.next.Render(ctx, goal, history)
	if err != nil {
		reason := "render failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "render timed out"
		}
		g.logger.Warn("Reply render failed, using fallback", "goal", goal, "error", err)
		return g.fallback(goal, reason)
	}

	text = Clean(text)
	words := extract.WordCount(text)
	if words < g.cfg.MinWords || words > g.cfg.MaxWords {
		g.logger.Warn("Reply outside word band, using fallback", "goal", goal, "words", words)
		return g.fallback(goal, "word band")
	}
	return Reply{Text: text}
}

func (g *Guarded) fallback(goal policy.Goal, reason string) Reply {
	return Reply{Text: g.templates.Fallback(goal), Fallback: true, Reason: reason}
}

// Clean keeps the first line of model output and strips wrapping quotes.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	for len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			text = strings.TrimSpace(text[1 : len(text)-1])
			continue
		}
		break
	}
	return text
}
