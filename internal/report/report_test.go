package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/honeypot/internal/domain"
)

type memoryRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (m *memoryRecorder) Record(_ context.Context, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, Outcome) error { return errors.New("disk full") }

func noSleep() (RetryPolicy, *[]time.Duration) {
	var slept []time.Duration
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     FixedBackoff(2 * time.Second),
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}, &slept
}

func sampleSession() *domain.Session {
	now := time.Unix(1700000000, 0)
	s := domain.NewSession("sess-1", now)
	s.RecordInbound("Your account is blocked, pay to fraud@upi", now)
	s.RecordReply("Which UPI?", now)
	s.RecordInbound("call +919876543210 urgent", now)
	s.ScamConfirmed = true
	s.Extracted.Add(domain.CategoryPaymentHandle, "fraud@upi")
	s.Extracted.Add(domain.CategoryPhone, "9876543210")
	s.Extracted.Add(domain.CategoryKeyword, "blocked", "urgent")
	return s
}

func TestBuildSummary(t *testing.T) {
	t.Parallel()

	sum := BuildSummary(sampleSession())
	if sum.SessionID != "sess-1" || !sum.ScamDetected || sum.TotalMessagesExchanged != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	for _, key := range []string{"bankAccounts", "upiIds", "phishingLinks", "phoneNumbers", "suspiciousKeywords"} {
		if _, ok := sum.ExtractedIntelligence[key]; !ok {
			t.Fatalf("summary missing %q", key)
		}
	}

	raw, err := json.Marshal(sum)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"sessionId"`, `"scamDetected"`, `"totalMessagesExchanged"`, `"extractedIntelligence"`, `"agentNotes"`} {
		if !strings.Contains(string(raw), field) {
			t.Fatalf("encoded summary missing %s: %s", field, raw)
		}
	}
}

func TestNotes(t *testing.T) {
	t.Parallel()

	got := Notes(sampleSession())
	want := "Provided 1 UPI ID(s) for fraudulent payments; Shared 1 phone number(s); " +
		"Short conversation - scammer gave up quickly; Used urgency tactics: blocked, urgent"
	if got != want {
		t.Fatalf("Notes() =\n%q\nwant\n%q", got, want)
	}

	quiet := domain.NewSession("q", time.Now())
	quiet.Turns = 10
	if got := Notes(quiet); got != defaultNote {
		t.Fatalf("Notes() = %q, want default", got)
	}

	brief := domain.NewSession("b", time.Now())
	for i := 0; i < 16; i++ {
		brief.RecordInbound("pay now", time.Now())
	}
	got = Notes(brief)
	if !strings.Contains(got, "Extended engagement") || !strings.Contains(got, "Brief messages") {
		t.Fatalf("Notes() = %q", got)
	}
}

func TestNotesKeepsFirstFiveKeywords(t *testing.T) {
	t.Parallel()

	s := domain.NewSession("k", time.Now())
	s.Turns = 8
	s.Extracted.Add(domain.CategoryKeyword, "a", "b", "c", "d", "e", "f")
	if got := Notes(s); got != "Used urgency tactics: a, b, c, d, e" {
		t.Fatalf("Notes() = %q", got)
	}
}

func TestReportSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var mu sync.Mutex
	var gotKey, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mu.Lock()
		gotKey = r.Header.Get("Idempotency-Key")
		gotType = r.Header.Get("Content-Type")
		mu.Unlock()
		var sum Summary
		if err := json.NewDecoder(r.Body).Decode(&sum); err != nil || sum.SessionID != "sess-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	retry, slept := noSleep()
	rec := &memoryRecorder{}
	r := NewReporter(NewHTTPDeliverer(srv.URL, srv.Client(), time.Second), retry, nil, rec, failingRecorder{})

	out := r.Report(context.Background(), BuildSummary(sampleSession()))
	if !out.Delivered || out.Attempts != 1 || out.StatusCode != http.StatusOK {
		t.Fatalf("outcome = %+v", out)
	}
	if hits.Load() != 1 || len(*slept) != 0 {
		t.Fatalf("hits = %d, slept = %v", hits.Load(), *slept)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotKey != out.ReportID || gotType != "application/json" {
		t.Fatalf("headers: key=%q type=%q", gotKey, gotType)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0].ReportID != out.ReportID {
		t.Fatalf("recorded = %+v", rec.outcomes)
	}
}

func TestReportRetriesWithStableKey(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		n := len(keys)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	retry, slept := noSleep()
	r := NewReporter(NewHTTPDeliverer(srv.URL, srv.Client(), time.Second), retry, nil)
	out := r.Report(context.Background(), BuildSummary(sampleSession()))

	if !out.Delivered || out.Attempts != 3 || out.StatusCode != http.StatusAccepted {
		t.Fatalf("outcome = %+v", out)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 3 || keys[0] == "" || keys[0] != keys[1] || keys[1] != keys[2] {
		t.Fatalf("keys = %v, want one stable key", keys)
	}
	if len(*slept) != 2 || (*slept)[0] != 2*time.Second {
		t.Fatalf("slept = %v, want two 2s pauses", *slept)
	}
}

func TestReportGivesUp(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	retry, _ := noSleep()
	rec := &memoryRecorder{}
	r := NewReporter(NewHTTPDeliverer(srv.URL, srv.Client(), time.Second), retry, nil, rec)
	out := r.Report(context.Background(), BuildSummary(sampleSession()))

	if out.Delivered || out.Attempts != 3 || hits.Load() != 3 {
		t.Fatalf("outcome = %+v hits = %d", out, hits.Load())
	}
	if !strings.Contains(out.Error, "500") {
		t.Fatalf("error = %q, want status in message", out.Error)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0].Delivered {
		t.Fatalf("recorded = %+v", rec.outcomes)
	}
}

func TestReportStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retry := RetryPolicy{MaxAttempts: 3, Backoff: FixedBackoff(time.Hour), Sleep: SleepContext}
	d := deliverFunc(func(context.Context, string, []byte) (int, error) {
		return 0, errors.New("connection refused")
	})
	out := NewReporter(d, retry, nil).Report(ctx, Summary{SessionID: "x"})
	if out.Delivered || out.Attempts != 1 {
		t.Fatalf("outcome = %+v, want a single attempt", out)
	}
}

func TestHTTPDelivererTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	d := NewHTTPDeliverer(srv.URL, srv.Client(), 20*time.Millisecond)
	if _, err := d.Deliver(context.Background(), "k", []byte(`{}`)); err == nil {
		t.Fatal("expected timeout error")
	}
}

type deliverFunc func(ctx context.Context, key string, payload []byte) (int, error)

func (f deliverFunc) Deliver(ctx context.Context, key string, payload []byte) (int, error) {
	return f(ctx, key, payload)
}
