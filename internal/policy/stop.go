package policy

import (
	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/extract"
)

// StopReason explains why a conversation should end.
type StopReason string

const (
	StopNone         StopReason = ""
	StopIntelligence StopReason = "intelligence-collected"
	StopMaxTurns     StopReason = "max-turns"
	StopDisengaged   StopReason = "counterparty-disengaged"
)

// StopConfig holds the stop thresholds.
type StopConfig struct {
	// MinCategories is how many tracked categories must be populated.
	MinCategories int
	// MaxTurns ends the conversation regardless of what was collected.
	MaxTurns int
	// Window is how many recent messages the disengagement check looks at.
	Window int
	// MinCounterparty is the minimum counterparty messages inside Window.
	MinCounterparty int
	// MaxAvgWords is the mean counterparty word count below which the
	// counterparty counts as losing interest.
	MaxAvgWords float64
}

// DefaultStopConfig returns the production thresholds.
func DefaultStopConfig() StopConfig {
	return StopConfig{
		MinCategories:   2,
		MaxTurns:        20,
		Window:          6,
		MinCounterparty: 3,
		MaxAvgWords:     3,
	}
}

// ShouldStop reports whether the conversation in s should end now.
// The caller must hold the session lock.
func ShouldStop(s *domain.Session, cfg StopConfig) bool {
	return EvaluateStop(s, cfg) != StopNone
}

// EvaluateStop returns the first stop condition that holds, or StopNone.
func EvaluateStop(s *domain.Session, cfg StopConfig) StopReason {
	populated := PopulatedCategories(s.Extracted)
	if populated >= cfg.MinCategories {
		return StopIntelligence
	}
	if cfg.MaxTurns > 0 && s.Turns >= cfg.MaxTurns {
		return StopMaxTurns
	}
	if populated > 0 && disengaged(s.RecentMessages(cfg.Window), cfg) {
		return StopDisengaged
	}
	return StopNone
}

// PopulatedCategories counts tracked categories with at least one value.
func PopulatedCategories(in domain.Indicators) int {
	n := 0
	for _, cat := range extract.TrackedCategories {
		if in.Has(cat) {
			n++
		}
	}
	return n
}

func disengaged(recent []domain.Message, cfg StopConfig) bool {
	var count, words int
	for _, m := range recent {
		if m.Role != domain.RoleScammer {
			continue
		}
		count++
		words += extract.WordCount(m.Text)
	}
	if count == 0 || count < cfg.MinCounterparty {
		return false
	}
	return float64(words)/float64(count) < cfg.MaxAvgWords
}
