package policy

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/extract"
)

type fixedRand struct{ v float64 }

func (f fixedRand) Float64() float64 { return f.v }

func indicators(pairs ...string) domain.Indicators {
	var in domain.Indicators
	for i := 0; i+1 < len(pairs); i += 2 {
		in.Add(domain.Category(pairs[i]), pairs[i+1])
	}
	return in
}

func noSignals() Signals {
	return Signals{Offered: map[domain.Category]bool{}}
}

func TestRepeatOfferPrefersComplaint(t *testing.T) {
	t.Parallel()

	prior := indicators(string(domain.CategoryLink), "http://a.xyz")
	latest := extract.Extract("new link http://b.xyz")
	merged := prior.Clone()
	merged.Merge(latest)

	ctx := Context{
		Turn:      4,
		Extracted: merged,
		Prior:     prior,
		Signals:   DetectSignals("new link http://b.xyz", latest),
	}

	got := NewEngine(DefaultConfig(), fixedRand{0}).Decide(ctx)
	if got.Goal != GoalLinkNotWorking || got.Rule != "repeat-offer" {
		t.Fatalf("Decide = %+v, want link-not-working via repeat-offer", got)
	}

	pivot := NewEngine(DefaultConfig(), fixedRand{0.99}).Decide(ctx)
	missingAsks := []Goal{GoalAskPaymentHandle, GoalAskPhone, GoalAskBankAccount}
	if !slices.Contains(missingAsks, pivot.Goal) {
		t.Fatalf("pivot goal = %s, want an ask for a missing category", pivot.Goal)
	}
}

func TestFirstOfferIsNotARepeat(t *testing.T) {
	t.Parallel()

	latest := extract.Extract("pay to fraud@upi")
	ctx := Context{
		Turn:      3,
		Extracted: latest,
		Signals:   DetectSignals("pay to fraud@upi", latest),
	}
	got := NewEngine(DefaultConfig(), fixedRand{0}).Decide(ctx)
	if got.Rule == "repeat-offer" {
		t.Fatalf("first offer must not trigger repeat-offer: %+v", got)
	}
}

func TestAsksToActPaymentKnownComplains(t *testing.T) {
	t.Parallel()

	known := indicators(string(domain.CategoryPaymentHandle), "x@upi")
	ctx := Context{
		Turn:      5,
		Extracted: known,
		Prior:     known,
		Signals:   Signals{Offered: map[domain.Category]bool{}, AsksToAct: true, AsksPayment: true},
	}
	got := NewEngine(DefaultConfig(), fixedRand{0}).Decide(ctx)
	if got.Goal != GoalPaymentNotWorking {
		t.Fatalf("Decide = %+v, want payment-not-working", got)
	}
}

func TestAsksToActLinkMissingAsks(t *testing.T) {
	t.Parallel()

	ctx := Context{
		Turn:    5,
		Signals: Signals{Offered: map[domain.Category]bool{}, AsksToAct: true},
	}
	got := NewEngine(DefaultConfig(), fixedRand{0}).Decide(ctx)
	if got.Goal != GoalAskLink {
		t.Fatalf("Decide = %+v, want ask-for-link", got)
	}
}

func TestEarlyTurnsFavourStalling(t *testing.T) {
	t.Parallel()

	ctx := Context{Turn: 1, Signals: noSignals()}
	got := NewEngine(DefaultConfig(), fixedRand{0.99}).Decide(ctx)
	if got.Goal != GoalStall || got.Rule != "missing-weighted" {
		t.Fatalf("Decide = %+v, want stall via missing-weighted", got)
	}

	later := Context{Turn: 6, Signals: noSignals()}
	got = NewEngine(DefaultConfig(), fixedRand{0.99}).Decide(later)
	if got.Goal == GoalStall {
		t.Fatalf("stall must not be offered by missing-weighted after the opening turns: %+v", got)
	}
}

func TestMissingWeightedPrefersLink(t *testing.T) {
	t.Parallel()

	ctx := Context{Turn: 6, Signals: noSignals()}
	got := NewEngine(DefaultConfig(), fixedRand{0}).Decide(ctx)
	if got.Goal != GoalAskLink {
		t.Fatalf("Decide = %+v, want ask-for-link", got)
	}

	rng := rand.New(rand.NewPCG(7, 7))
	eng := NewEngine(DefaultConfig(), rng)
	counts := map[Goal]int{}
	for i := 0; i < 4000; i++ {
		counts[eng.Decide(ctx).Goal]++
	}
	if !(counts[GoalAskLink] > counts[GoalAskPaymentHandle] &&
		counts[GoalAskPaymentHandle] > counts[GoalAskPhone] &&
		counts[GoalAskPhone] > counts[GoalAskBankAccount]) {
		t.Fatalf("weights not respected: %v", counts)
	}
}

func TestDefaultAlternatesStallAndAsk(t *testing.T) {
	t.Parallel()

	full := indicators(
		string(domain.CategoryLink), "http://a.xyz",
		string(domain.CategoryPaymentHandle), "a@upi",
		string(domain.CategoryPhone), "9876543210",
		string(domain.CategoryBankAccount), "123456789012",
	)
	eng := NewEngine(DefaultConfig(), fixedRand{0.5})

	got := eng.Decide(Context{Turn: 8, Extracted: full, Prior: full, Signals: noSignals(), LastGoal: GoalAskPhone})
	if got.Goal != GoalStall || got.Rule != "default" {
		t.Fatalf("Decide = %+v, want stall via default", got)
	}
	got = eng.Decide(Context{Turn: 9, Extracted: full, Prior: full, Signals: noSignals(), LastGoal: GoalStall})
	if got.Goal != GoalReassure {
		t.Fatalf("Decide = %+v, want reassure when nothing is missing", got)
	}
}

func TestSeededEnginesReplayIdentically(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Seed = 42
	a := NewEngine(cfg, nil)
	b := NewEngine(cfg, nil)
	texts := []string{"hello", "urgent verify now", "click the link", "did you pay?", "share otp", "ok"}
	for i, text := range texts {
		latest := extract.Extract(text)
		ctx := Context{Turn: i + 1, Extracted: latest, Signals: DetectSignals(text, latest)}
		if ga, gb := a.Decide(ctx), b.Decide(ctx); ga != gb {
			t.Fatalf("turn %d: %+v != %+v", i+1, ga, gb)
		}
	}
}

func TestDecideAlwaysInVocabulary(t *testing.T) {
	t.Parallel()

	eng := NewEngine(Config{EarlyStallTurns: 2, EarlyStallWeight: 6, ComplaintWeight: 0.7, Seed: 3}, nil)
	texts := []string{
		"", "ok", "URGENT your account blocked", "pay to x@upi now", "open www.kyc-update.in",
		"call me 9876543210", "did you receive?", "send otp", "acct 123456789012",
	}
	var prior domain.Indicators
	for i, text := range texts {
		latest := extract.Extract(text)
		merged := prior.Clone()
		merged.Merge(latest)
		d := eng.Decide(Context{Turn: i + 1, Extracted: merged, Prior: prior, Signals: DetectSignals(text, latest)})
		if !slices.Contains(AllGoals(), d.Goal) {
			t.Fatalf("goal %q not in vocabulary", d.Goal)
		}
		prior = merged
	}
}

func TestDetectSignals(t *testing.T) {
	t.Parallel()

	sig := DetectSignals("Click the link now or account gets blocked! Share OTP", domain.Indicators{})
	if !sig.AsksToAct || !sig.Urgency || !sig.RequestsData {
		t.Fatalf("unexpected signals: %+v", sig)
	}
	if !sig.Offered[domain.CategoryLink] {
		t.Fatal("link cue should count as an offer")
	}
	if sig.AsksPayment {
		t.Fatal("no payment cue present")
	}

	quiet := DetectSignals("I know", domain.Indicators{})
	if quiet.AsksToAct || quiet.AsksConfirmation || quiet.Urgency || quiet.RequestsData {
		t.Fatalf("cues must match whole words only: %+v", quiet)
	}
}

func sessionWith(turns int, extracted domain.Indicators, texts ...string) *domain.Session {
	now := time.Unix(1700000000, 0)
	s := domain.NewSession("s", now)
	for _, text := range texts {
		s.RecordInbound(text, now)
		s.RecordReply("okay, checking", now)
	}
	s.Turns = turns
	s.Extracted = extracted
	return s
}

func TestShouldStop(t *testing.T) {
	t.Parallel()

	cfg := DefaultStopConfig()
	twoCats := indicators(
		string(domain.CategoryPaymentHandle), "a@upi",
		string(domain.CategoryLink), "http://x.xyz",
	)
	oneCat := indicators(string(domain.CategoryPhone), "9876543210")
	keywordsOnly := indicators(
		string(domain.CategoryKeyword), "urgent",
		string(domain.CategoryKeyword), "otp",
	)

	tests := []struct {
		name string
		sess *domain.Session
		want StopReason
	}{
		{"two categories at turn 3", sessionWith(3, twoCats, "long message with many words here", "another long message with words", "and yet another long one here"), StopIntelligence},
		{"turn ceiling", sessionWith(20, domain.Indicators{}), StopMaxTurns},
		{"below ceiling", sessionWith(19, oneCat, "this is a reasonably long message"), StopNone},
		{"keywords do not count", sessionWith(4, keywordsOnly, "ok", "hmm", "yes"), StopNone},
		{"disengaged", sessionWith(5, oneCat, "ok", "hmm", "yes"), StopDisengaged},
		{"short but empty", sessionWith(5, domain.Indicators{}, "ok", "hmm", "yes"), StopNone},
		{"too few messages", sessionWith(2, oneCat, "ok", "hmm"), StopNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := EvaluateStop(tt.sess, cfg); got != tt.want {
				t.Fatalf("EvaluateStop = %q, want %q", got, tt.want)
			}
			if ShouldStop(tt.sess, cfg) != (tt.want != StopNone) {
				t.Fatal("ShouldStop disagrees with EvaluateStop")
			}
		})
	}
}
