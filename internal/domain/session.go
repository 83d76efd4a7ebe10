package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

// Role identifies who sent a message.
type Role string

const (
	// RoleScammer is the remote counterparty.
	RoleScammer Role = "scammer"
	// RoleAgent is the synthetic persona.
	RoleAgent Role = "agent"
)

// Message is a single entry in the conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the full mutable state of one conversation.
//
// Every field is guarded by the session lock; callers take Lock before reading
// or writing and hold it for the whole turn.
type Session struct {
	mu sync.Mutex

	ID            string
	Turns         int
	Messages      []Message
	Extracted     Indicators
	ScamConfirmed bool
	Reported      bool
	LastGoal      string
	CreatedAt     time.Time
	LastActive    time.Time

	// ReportAttempts counts delivery sequences started for this session.
	ReportAttempts int
	reportInFlight bool

	// lastSeen is the server time of the latest registry lookup, in Unix
	// nanoseconds. It is outside the session lock.
	lastSeen atomic.Int64
}

// NewSession creates an empty session.
func NewSession(id string, now time.Time) *Session {
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		LastActive: now,
	}
	s.Touch(now)
	return s
}

// Touch records a lookup at now.
func (s *Session) Touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

// LastSeen returns the time of the latest Touch.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Lock acquires the per-session lock.
func (s *Session) Lock() { s.mu.Lock() }

// TryLock acquires the per-session lock if it is free.
func (s *Session) TryLock() bool { return s.mu.TryLock() }

// Unlock releases the per-session lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// RecordInbound appends a counterparty message and advances the turn counter.
func (s *Session) RecordInbound(text string, at time.Time) {
	s.Messages = append(s.Messages, Message{Role: RoleScammer, Text: text, Timestamp: at})
	s.Turns++
	s.LastActive = at
}

// RecordReply appends a persona reply.
func (s *Session) RecordReply(text string, at time.Time) {
	s.Messages = append(s.Messages, Message{Role: RoleAgent, Text: text, Timestamp: at})
	s.LastActive = at
}

// RecentMessages returns a copy of the last n messages.
func (s *Session) RecentMessages(n int) []Message {
	start := 0
	if n >= 0 && n < len(s.Messages) {
		start = len(s.Messages) - n
	}
	out := make([]Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

// CounterpartyMessages returns the text of every counterparty message in order.
func (s *Session) CounterpartyMessages() []string {
	var out []string
	for _, m := range s.Messages {
		if m.Role == RoleScammer {
			out = append(out, m.Text)
		}
	}
	return out
}

// ClaimReport marks a delivery sequence as started. It returns false when the
// session was already reported or another delivery is still running.
func (s *Session) ClaimReport() bool {
	if s.Reported || s.reportInFlight {
		return false
	}
	s.reportInFlight = true
	s.ReportAttempts++
	return true
}

// FinishReport records the outcome of the delivery started by ClaimReport.
func (s *Session) FinishReport(delivered bool) {
	s.reportInFlight = false
	if delivered {
		s.Reported = true
	}
}

// ReportInFlight reports whether a delivery sequence is running.
func (s *Session) ReportInFlight() bool {
	return s.reportInFlight
}
