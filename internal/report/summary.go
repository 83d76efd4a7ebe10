// Package report builds and delivers the final intelligence summary.
package report

import (
	"fmt"
	"strings"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/extract"
)

// Summary is the payload sent to the evaluation endpoint.
type Summary struct {
	SessionID              string              `json:"sessionId"`
	ScamDetected           bool                `json:"scamDetected"`
	TotalMessagesExchanged int                 `json:"totalMessagesExchanged"`
	ExtractedIntelligence  map[string][]string `json:"extractedIntelligence"`
	AgentNotes             string              `json:"agentNotes"`
}

const defaultNote = "Scammer interaction detected and logged"

// BuildSummary snapshots s. The caller must hold the session lock.
func BuildSummary(s *domain.Session) Summary {
	return Summary{
		SessionID:              s.ID,
		ScamDetected:           s.ScamConfirmed,
		TotalMessagesExchanged: s.Turns,
		ExtractedIntelligence:  s.Extracted.Map(),
		AgentNotes:             Notes(s),
	}
}

// Notes describes the counterparty's behaviour in one line.
func Notes(s *domain.Session) string {
	var notes []string

	if n := s.Extracted.Count(domain.CategoryLink); n > 0 {
		notes = append(notes, fmt.Sprintf("Shared %d phishing link(s)", n))
	}
	if n := s.Extracted.Count(domain.CategoryPaymentHandle); n > 0 {
		notes = append(notes, fmt.Sprintf("Provided %d UPI ID(s) for fraudulent payments", n))
	}
	if n := s.Extracted.Count(domain.CategoryPhone); n > 0 {
		notes = append(notes, fmt.Sprintf("Shared %d phone number(s)", n))
	}
	if n := s.Extracted.Count(domain.CategoryBankAccount); n > 0 {
		notes = append(notes, fmt.Sprintf("Mentioned %d bank account(s)", n))
	}

	switch {
	case s.Turns < 5:
		notes = append(notes, "Short conversation - scammer gave up quickly")
	case s.Turns > 15:
		notes = append(notes, "Extended engagement - scammer was persistent")
	}

	if keywords := s.Extracted.Values(domain.CategoryKeyword); len(keywords) > 0 {
		if len(keywords) > 5 {
			keywords = keywords[:5]
		}
		notes = append(notes, "Used urgency tactics: "+strings.Join(keywords, ", "))
	}

	if msgs := s.CounterpartyMessages(); len(msgs) > 0 {
		words := 0
		for _, text := range msgs {
			words += extract.WordCount(text)
		}
		avg := float64(words) / float64(len(msgs))
		switch {
		case avg > 20:
			notes = append(notes, "Verbose messaging style - detailed social engineering")
		case avg < 5:
			notes = append(notes, "Brief messages - aggressive/impatient approach")
		}
	}

	if len(notes) == 0 {
		return defaultNote
	}
	return strings.Join(notes, "; ")
}
