//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/honeypot/internal/engine"
	"github.com/ashureev/honeypot/internal/report"
	"github.com/go-chi/chi/v5"
)

type fakeEngine struct {
	mu    sync.Mutex
	seen  []engine.Inbound
	reply engine.Result
	err   error
	snaps map[string]engine.Snapshot
}

func (f *fakeEngine) Process(_ context.Context, in engine.Inbound) (engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, in)
	return f.reply, f.err
}

func (f *fakeEngine) Snapshot(id string) (engine.Snapshot, bool) {
	s, ok := f.snaps[id]
	return s, ok
}

type fakeHistory struct{ outcomes []report.Outcome }

func (f fakeHistory) ListReports(context.Context, string) ([]report.Outcome, error) {
	return f.outcomes, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newRouter(eng Engine, cfg HoneypotConfig) http.Handler {
	r := chi.NewRouter()
	if cfg.APIKey == "" {
		cfg.APIKey = "secret"
	}
	NewHoneypotHandler(eng, cfg, nil).RegisterRoutes(r)
	return r
}

func post(t *testing.T, h http.Handler, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const validBody = `{
	"sessionId": "abc-123",
	"message": {"sender": "scammer", "text": "Your account is blocked", "timestamp": 1769776085000},
	"conversationHistory": [],
	"metadata": {"channel": "SMS", "language": "English", "locale": "IN"},
	"extra": "ignored"
}`

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestHandleMessageSuccess(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{reply: engine.Result{Reply: "Which UPI should I use?", ShouldEnd: true}}
	h := newRouter(eng, HoneypotConfig{})

	for _, path := range []string{"/honeypot", "/honeypot/"} {
		w := post(t, h, path, "secret", validBody)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body = %s", path, w.Code, w.Body.String())
		}
		var resp HoneypotResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Status != "success" || resp.Reply != "Which UPI should I use?" || !resp.ShouldEnd {
			t.Fatalf("%s: response = %+v", path, resp)
		}
	}

	in := eng.seen[0]
	if in.SessionID != "abc-123" || in.Text != "Your account is blocked" || in.Channel != "SMS" {
		t.Fatalf("inbound = %+v", in)
	}
	if !in.Timestamp.Equal(time.UnixMilli(1769776085000)) {
		t.Fatalf("timestamp = %v", in.Timestamp)
	}
}

func TestHandleMessageAuth(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	h := newRouter(eng, HoneypotConfig{})
	if w := post(t, h, "/honeypot", "", validBody); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d", w.Code)
	}
	if w := post(t, h, "/honeypot", "wrong", validBody); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d", w.Code)
	}
	if len(eng.seen) != 0 {
		t.Fatal("engine must not run for unauthenticated requests")
	}
}

func TestHandleMessageValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		loc  string
	}{
		{"malformed json", `{"sessionId":`, "body"},
		{"missing session", `{"message":{"sender":"scammer","text":"hi","timestamp":1}}`, "sessionId"},
		{"missing message", `{"sessionId":"s"}`, "message"},
		{"missing sender", `{"sessionId":"s","message":{"text":"hi","timestamp":1}}`, "sender"},
		{"wrong type", `{"sessionId":"s","message":{"sender":"x","text":"hi","timestamp":"soon"}}`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			eng := &fakeEngine{}
			w := post(t, newRouter(eng, HoneypotConfig{}), "/honeypot", "secret", tt.body)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want 422", w.Code)
			}
			var resp struct {
				Detail []FieldError `json:"detail"`
				Body   string       `json:"body"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Detail) == 0 || resp.Detail[len(resp.Detail)-1].Loc[len(resp.Detail[len(resp.Detail)-1].Loc)-1] != tt.loc {
				t.Fatalf("detail = %+v, want loc ending in %q", resp.Detail, tt.loc)
			}
			if resp.Body != tt.body {
				t.Fatalf("body echo = %q", resp.Body)
			}
			if len(eng.seen) != 0 {
				t.Fatal("engine must not run for invalid requests")
			}
		})
	}
}

func TestHandleMessageBodyLimit(t *testing.T) {
	t.Parallel()

	h := newRouter(&fakeEngine{}, HoneypotConfig{MaxBodyBytes: 32})
	if w := post(t, h, "/honeypot", "secret", validBody); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
}

func TestHandleMessageRateLimit(t *testing.T) {
	t.Parallel()

	h := newRouter(&fakeEngine{reply: engine.Result{Reply: "ok"}}, HoneypotConfig{Limiter: NewRateLimiter(2, time.Minute)})
	for i := 0; i < 2; i++ {
		if w := post(t, h, "/honeypot", "secret", validBody); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	if w := post(t, h, "/honeypot", "secret", validBody); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}

func TestHandleMessageEngineError(t *testing.T) {
	t.Parallel()

	h := newRouter(&fakeEngine{err: errors.New("boom")}, HoneypotConfig{})
	if w := post(t, h, "/honeypot", "secret", validBody); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{snaps: map[string]engine.Snapshot{
		"abc": {SessionID: "abc", Turns: 3, ScamDetected: true, Extracted: map[string][]string{"upiIds": {"x@upi"}}},
	}}
	history := fakeHistory{outcomes: []report.Outcome{{ReportID: "r1", SessionID: "abc", Delivered: true}}}
	h := newRouter(eng, HoneypotConfig{History: history})

	req := httptest.NewRequest(http.MethodGet, "/honeypot/sessions/abc", nil)
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["sessionId"] != "abc" || got["turns"] != float64(3) || got["scamDetected"] != true {
		t.Fatalf("snapshot = %v", got)
	}
	if reports, ok := got["reports"].([]interface{}); !ok || len(reports) != 1 {
		t.Fatalf("reports = %v", got["reports"])
	}

	req = httptest.NewRequest(http.MethodGet, "/honeypot/sessions/missing", nil)
	req.Header.Set("X-API-Key", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	NewHealthHandler(fakePinger{}, HealthInfo{
		Classifier:        "heuristic",
		LiveSessions:      func() int { return 4 },
		TranscriptDropped: func() int64 { return 2 },
	}).RegisterHealth(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"sessions":4`) || !strings.Contains(w.Body.String(), `"transcriptDropped":2`) {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	r = chi.NewRouter()
	NewHealthHandler(fakePinger{err: errors.New("locked")}, HealthInfo{}).RegisterHealth(r)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || rl.Allow("a") {
		t.Fatal("second request inside the window must be rejected")
	}
	if !rl.Allow("b") {
		t.Fatal("keys are limited independently")
	}
	now = now.Add(2 * time.Minute)
	if !rl.Allow("a") {
		t.Fatal("request after the window must be allowed")
	}
	now = now.Add(2 * time.Minute)
	if n := rl.Evict(); n != 2 {
		t.Fatalf("Evict() = %d, want 2", n)
	}
}
