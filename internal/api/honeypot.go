package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/honeypot/internal/engine"
	"github.com/ashureev/honeypot/internal/middleware"
	"github.com/ashureev/honeypot/internal/report"
	"github.com/go-chi/chi/v5"
)

// Engine is the conversation engine used by HoneypotHandler.
type Engine interface {
	Process(ctx context.Context, in engine.Inbound) (engine.Result, error)
	Snapshot(id string) (engine.Snapshot, bool)
}

// ReportHistory lists recorded report outcomes for a session.
type ReportHistory interface {
	ListReports(ctx context.Context, sessionID string) ([]report.Outcome, error)
}

// Message is one message in a request.
type Message struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Metadata describes where the conversation is happening.
type Metadata struct {
	Channel  string `json:"channel,omitempty"`
	Language string `json:"language,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// HoneypotRequest is the body of POST /honeypot.
type HoneypotRequest struct {
	SessionID           string    `json:"sessionId"`
	Message             *Message  `json:"message"`
	ConversationHistory []Message `json:"conversationHistory,omitempty"`
	Metadata            *Metadata `json:"metadata,omitempty"`
}

// HoneypotResponse is the body returned for every accepted message.
type HoneypotResponse struct {
	Status    string `json:"status"`
	Reply     string `json:"reply"`
	ShouldEnd bool   `json:"shouldEnd"`
}

// SessionResponse is the body of GET /honeypot/sessions/{id}.
type SessionResponse struct {
	engine.Snapshot
	Reports []report.Outcome `json:"reports,omitempty"`
}

// HoneypotConfig configures HoneypotHandler.
type HoneypotConfig struct {
	APIKey       string
	MaxBodyBytes int64
	// Limiter is optional.
	Limiter *RateLimiter
	// History is optional.
	History ReportHistory
}

// HoneypotHandler serves the conversation endpoint.
type HoneypotHandler struct {
	engine Engine
	cfg    HoneypotConfig
	logger *slog.Logger
}

// NewHoneypotHandler creates a HoneypotHandler.
func NewHoneypotHandler(eng Engine, cfg HoneypotConfig, logger *slog.Logger) *HoneypotHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return &HoneypotHandler{engine: eng, cfg: cfg, logger: logger}
}

// RegisterRoutes registers the honeypot routes behind API-key authentication.
func (h *HoneypotHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(h.cfg.APIKey))
		r.Post("/honeypot", h.HandleMessage)
		r.Post("/honeypot/", h.HandleMessage)
		r.Get("/honeypot/sessions/{sessionID}", h.GetSession)
	})
}

// HandleMessage handles POST /honeypot.
func (h *HoneypotHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	req, fieldErrs := decodeHoneypotRequest(body)
	if len(fieldErrs) > 0 {
		h.logger.Warn("Rejected invalid honeypot request", "errors", len(fieldErrs))
		ValidationError(w, fieldErrs, body)
		return
	}

	if h.cfg.Limiter != nil && !h.cfg.Limiter.Allow(req.SessionID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	in := engine.Inbound{
		SessionID: req.SessionID,
		Text:      req.Message.Text,
		Timestamp: parseTimestamp(req.Message.Timestamp),
	}
	if req.Metadata != nil {
		in.Channel = req.Metadata.Channel
	}

	res, err := h.engine.Process(r.Context(), in)
	if err != nil {
		if errors.Is(err, engine.ErrEmptySessionID) {
			ValidationError(w, []FieldError{{Loc: []string{"body", "sessionId"}, Msg: "field required", Type: "value_error.missing"}}, body)
			return
		}
		h.logger.Error("Failed to process message", "session_id", req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	h.logger.Info("Message handled",
		"session_id", req.SessionID,
		"turn", res.Turn,
		"goal", res.Goal,
		"rule", res.Rule,
		"should_end", res.ShouldEnd,
		"stop_reason", res.StopReason,
		"history_items", len(req.ConversationHistory))

	JSON(w, http.StatusOK, HoneypotResponse{
		Status:    "success",
		Reply:     res.Reply,
		ShouldEnd: res.ShouldEnd,
	})
}

// GetSession handles GET /honeypot/sessions/{sessionID}.
func (h *HoneypotHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	snap, ok := h.engine.Snapshot(id)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	resp := SessionResponse{Snapshot: snap}
	if h.cfg.History != nil {
		reports, err := h.cfg.History.ListReports(r.Context(), id)
		if err != nil {
			h.logger.Warn("Failed to load report history", "session_id", id, "error", err)
		} else {
			resp.Reports = reports
		}
	}
	JSON(w, http.StatusOK, resp)
}

func decodeHoneypotRequest(body []byte) (HoneypotRequest, []FieldError) {
	var req HoneypotRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, []FieldError{{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error.jsondecode"}}
	}

	var errs []FieldError
	if strings.TrimSpace(req.SessionID) == "" {
		errs = append(errs, FieldError{Loc: []string{"body", "sessionId"}, Msg: "field required", Type: "value_error.missing"})
	}
	if req.Message == nil {
		errs = append(errs, FieldError{Loc: []string{"body", "message"}, Msg: "field required", Type: "value_error.missing"})
	} else if strings.TrimSpace(req.Message.Sender) == "" {
		errs = append(errs, FieldError{Loc: []string{"body", "message", "sender"}, Msg: "field required", Type: "value_error.missing"})
	}
	return req, errs
}

// parseTimestamp accepts epoch seconds or milliseconds.
func parseTimestamp(ts int64) time.Time {
	switch {
	case ts <= 0:
		return time.Time{}
	case ts > 1e12:
		return time.UnixMilli(ts)
	default:
		return time.Unix(ts, 0)
	}
}
