// Package intent scores how likely a message is a fraud attempt.
//
// Two variants exist: ModelBacked, which runs a TF-IDF + logistic model loaded
// from disk, and Heuristic, a keyword count. Load picks one at startup and the
// choice never changes for the life of the process.
package intent

import (
	"log/slog"
	"math"
	"strings"
)

// DefaultThreshold is the probability at or above which a message is a scam.
const DefaultThreshold = 0.5

// Variant names reported by Classifier.Variant.
const (
	VariantModel     = "model"
	VariantHeuristic = "heuristic"
)

// Classifier scores messages for scam intent.
type Classifier interface {
	// Probability returns a score in [0,1].
	Probability(text string) float64
	// IsScam reports whether text looks like a fraud attempt. It never panics.
	IsScam(text string, threshold float64) bool
	// Variant names the backing implementation.
	Variant() string
}

var (
	_ Classifier = (*Heuristic)(nil)
	_ Classifier = (*ModelBacked)(nil)
)

// heuristicTerms are the fraud-signal terms counted by Heuristic.
var heuristicTerms = []string{
	"urgent",
	"verify",
	"blocked",
	"suspended",
	"click",
	"otp",
	"prize",
	"lottery",
	"account",
	"password",
	"bank",
	"transfer",
	"kyc",
	"expire",
}

// heuristicMinMatches is the number of distinct terms that makes a scam.
const heuristicMinMatches = 2

// Heuristic classifies by counting distinct fraud-signal terms.
type Heuristic struct{}

// NewHeuristic returns the keyword fallback classifier.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// Matches returns how many distinct terms occur in text.
func (h *Heuristic) Matches(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, term := range heuristicTerms {
		if strings.Contains(lower, term) {
			n++
		}
	}
	return n
}

// Probability maps the match count onto [0,1] so that the minimum match count
// lands exactly on DefaultThreshold.
func (h *Heuristic) Probability(text string) float64 {
	return math.Min(1, float64(h.Matches(text))/(2*heuristicMinMatches))
}

// IsScam is true once at least two distinct terms match. The threshold is
// ignored: the keyword rule is the contract of the fallback.
func (h *Heuristic) IsScam(text string, _ float64) bool {
	return h.Matches(text) >= heuristicMinMatches
}

// Variant implements Classifier.
func (h *Heuristic) Variant() string { return VariantHeuristic }

// ModelBacked scores text with a vectorizer + logistic classifier pair.
type ModelBacked struct {
	vectorizer *Vectorizer
	model      *LogisticModel
	fallback   *Heuristic
	logger     *slog.Logger
}

// NewModelBacked wires an already validated vectorizer and model.
func NewModelBacked(v *Vectorizer, m *LogisticModel, logger *slog.Logger) *ModelBacked {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelBacked{vectorizer: v, model: m, fallback: NewHeuristic(), logger: logger}
}

// Probability returns the model score, or 0 when the score is not finite.
func (c *ModelBacked) Probability(text string) float64 {
	p, ok := c.score(text)
	if !ok {
		return 0
	}
	return p
}

// IsScam compares the model score against threshold. Any scoring failure
// collapses to the heuristic answer.
func (c *ModelBacked) IsScam(text string, threshold float64) bool {
	p, ok := c.score(text)
	if !ok {
		return c.fallback.IsScam(text, threshold)
	}
	c.logger.Debug("Scam probability", "probability", p, "threshold", threshold)
	return p >= threshold
}

// Variant implements Classifier.
func (c *ModelBacked) Variant() string { return VariantModel }

func (c *ModelBacked) score(text string) (p float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Scam model panicked, using heuristic", "panic", r)
			p, ok = 0, false
		}
	}()
	p = c.model.Predict(c.vectorizer.Transform(text))
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, false
	}
	return p, true
}
