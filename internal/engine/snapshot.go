package engine

import (
	"time"

	"github.com/ashureev/honeypot/internal/domain"
)

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	SessionID      string              `json:"sessionId"`
	Turns          int                 `json:"turns"`
	ScamDetected   bool                `json:"scamDetected"`
	Reported       bool                `json:"reported"`
	ReportInFlight bool                `json:"reportInFlight"`
	ReportAttempts int                 `json:"reportAttempts"`
	LastGoal       string              `json:"lastGoal,omitempty"`
	Extracted      map[string][]string `json:"extractedIntelligence"`
	Messages       []domain.Message    `json:"messages"`
	CreatedAt      time.Time           `json:"createdAt"`
	LastActive     time.Time           `json:"lastActive"`
}

// Snapshot copies the state of session id, if it is live.
func (e *Engine) Snapshot(id string) (Snapshot, bool) {
	sess, ok := e.sessions.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	sess.Lock()
	defer sess.Unlock()
	return Snapshot{
		SessionID:      sess.ID,
		Turns:          sess.Turns,
		ScamDetected:   sess.ScamConfirmed,
		Reported:       sess.Reported,
		ReportInFlight: sess.ReportInFlight(),
		ReportAttempts: sess.ReportAttempts,
		LastGoal:       sess.LastGoal,
		Extracted:      sess.Extracted.Map(),
		Messages:       sess.RecentMessages(len(sess.Messages)),
		CreatedAt:      sess.CreatedAt,
		LastActive:     sess.LastActive,
	}, true
}

// LiveSessions returns the number of sessions held in memory.
func (e *Engine) LiveSessions() int {
	return e.sessions.Len()
}
