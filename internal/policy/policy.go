package policy

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/extract"
)

// Rand is the random source used for weighted choices. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Context is everything a rule may look at for one turn.
type Context struct {
	// Turn is the session turn count including the latest message.
	Turn int
	// Extracted is the session's indicators after merging the latest message.
	Extracted domain.Indicators
	// Prior is the session's indicators before the latest message.
	Prior domain.Indicators
	// Signals were read from the latest message.
	Signals Signals
	// LastGoal is the goal chosen on the previous turn, if any.
	LastGoal Goal
}

// Missing returns the tracked categories with no value yet, in priority order.
func (c Context) Missing() []domain.Category {
	var out []domain.Category
	for _, cat := range extract.TrackedCategories {
		if !c.Extracted.Has(cat) {
			out = append(out, cat)
		}
	}
	return out
}

// Option is one weighted candidate goal.
type Option struct {
	Goal   Goal
	Weight float64
}

// Rule is one row of the policy table. Rules are tried in order; the first
// whose When holds and whose Options are non-empty decides the turn.
type Rule struct {
	Name    string
	When    func(Context) bool
	Options func(Context) []Option
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Goal Goal
	Rule string
}

// Config tunes the default table.
type Config struct {
	// EarlyStallTurns is how many opening turns favour stalling.
	EarlyStallTurns int
	// EarlyStallWeight is the stall weight during those turns, against the
	// missing-category weights (which sum to at most 10).
	EarlyStallWeight float64
	// ComplaintWeight is the share given to a "not working" complaint when a
	// known category is offered again; the rest goes to missing categories.
	ComplaintWeight float64
	// Seed makes decisions reproducible when non-zero.
	Seed uint64
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		EarlyStallTurns:  2,
		EarlyStallWeight: 6,
		ComplaintWeight:  0.7,
	}
}

// Engine evaluates the policy table.
type Engine struct {
	rules []Rule

	mu  sync.Mutex
	rnd Rand
}

// NewEngine builds the default table. A nil rnd is replaced by a PCG source
// seeded from cfg.Seed, or from the clock when the seed is zero.
func NewEngine(cfg Config, rnd Rand) *Engine {
	if rnd == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return NewEngineWithRules(DefaultRules(cfg), rnd)
}

// NewEngineWithRules evaluates a custom table.
func NewEngineWithRules(rules []Rule, rnd Rand) *Engine {
	return &Engine{rules: rules, rnd: rnd}
}

// Decide picks the goal for one turn. It always returns a goal: when no rule
// yields options the result is GoalStall.
func (e *Engine) Decide(ctx Context) Decision {
	for _, r := range e.rules {
		if !r.When(ctx) {
			continue
		}
		opts := r.Options(ctx)
		if g, ok := e.choose(opts); ok {
			return Decision{Goal: g, Rule: r.Name}
		}
	}
	return Decision{Goal: GoalStall, Rule: "none"}
}

func (e *Engine) choose(opts []Option) (Goal, bool) {
	var total float64
	for _, o := range opts {
		if o.Weight > 0 {
			total += o.Weight
		}
	}
	if total <= 0 {
		return "", false
	}

	e.mu.Lock()
	x := e.rnd.Float64() * total
	e.mu.Unlock()

	var last Goal
	for _, o := range opts {
		if o.Weight <= 0 {
			continue
		}
		last = o.Goal
		if x < o.Weight {
			return o.Goal, true
		}
		x -= o.Weight
	}
	return last, true
}

// DefaultRules returns the production policy table in priority order.
func DefaultRules(cfg Config) []Rule {
	return []Rule{
		{
			Name: "repeat-offer",
			When: func(c Context) bool {
				_, ok := repeatedOffer(c)
				return ok
			},
			Options: func(c Context) []Option {
				cat, _ := repeatedOffer(c)
				complaint, _ := ComplaintGoal(cat)
				opts := []Option{{Goal: complaint, Weight: cfg.ComplaintWeight}}
				return append(opts, missingOptions(c, 1-cfg.ComplaintWeight)...)
			},
		},
		{
			Name: "asks-to-act",
			When: func(c Context) bool { return c.Signals.AsksToAct },
			Options: func(c Context) []Option {
				target := domain.CategoryLink
				if c.Signals.AsksPayment {
					target = domain.CategoryPaymentHandle
				}
				var primary Goal
				if c.Extracted.Has(target) {
					primary, _ = ComplaintGoal(target)
				} else {
					primary, _ = AskGoal(target)
				}
				opts := []Option{
					{Goal: primary, Weight: 0.6},
					{Goal: GoalStall, Weight: 0.2},
				}
				if next, ok := firstMissingExcept(c, target); ok {
					opts = append(opts, Option{Goal: next, Weight: 0.2})
				}
				return opts
			},
		},
		{
			Name: "confirmation",
			When: func(c Context) bool { return c.Signals.AsksConfirmation },
			Options: func(c Context) []Option {
				opts := []Option{
					{Goal: GoalReassure, Weight: 0.5},
					{Goal: GoalStall, Weight: 0.3},
				}
				if next, ok := firstMissingExcept(c, ""); ok {
					opts = append(opts, Option{Goal: next, Weight: 0.2})
				}
				return opts
			},
		},
		{
			Name: "urgency",
			When: func(c Context) bool { return c.Signals.Urgency },
			Options: func(c Context) []Option {
				opts := []Option{
					{Goal: GoalReassure, Weight: 0.4},
					{Goal: GoalStall, Weight: 0.2},
				}
				if next, ok := firstMissingExcept(c, ""); ok {
					opts = append(opts, Option{Goal: next, Weight: 0.4})
				}
				return opts
			},
		},
		{
			Name: "requests-data",
			When: func(c Context) bool { return c.Signals.RequestsData },
			Options: func(c Context) []Option {
				opts := []Option{
					{Goal: GoalStall, Weight: 0.5},
					{Goal: GoalReassure, Weight: 0.2},
				}
				if !c.Extracted.Has(domain.CategoryPhone) {
					opts = append(opts, Option{Goal: GoalAskPhone, Weight: 0.3})
				}
				return opts
			},
		},
		{
			Name: "missing-weighted",
			When: func(c Context) bool { return len(c.Missing()) > 0 },
			Options: func(c Context) []Option {
				opts := missingOptions(c, 0)
				if c.Turn <= cfg.EarlyStallTurns {
					opts = append(opts, Option{Goal: GoalStall, Weight: cfg.EarlyStallWeight})
				}
				return opts
			},
		},
		{
			Name: "default",
			When: func(Context) bool { return true },
			Options: func(c Context) []Option {
				if c.LastGoal != GoalStall {
					return []Option{{Goal: GoalStall, Weight: 1}}
				}
				if next, ok := firstMissingExcept(c, ""); ok {
					return []Option{{Goal: next, Weight: 1}}
				}
				return []Option{{Goal: GoalReassure, Weight: 1}}
			},
		},
	}
}

// repeatedOffer returns the highest priority category that was offered in the
// latest message, was already known before it, and has a complaint goal.
func repeatedOffer(c Context) (domain.Category, bool) {
	for _, cat := range extract.TrackedCategories {
		if !c.Signals.Offered[cat] || !c.Prior.Has(cat) {
			continue
		}
		if _, ok := ComplaintGoal(cat); ok {
			return cat, true
		}
	}
	return "", false
}

// missingOptions spreads share across missing categories by priority weight.
// A zero share keeps the raw weights.
func missingOptions(c Context, share float64) []Option {
	missing := c.Missing()
	var total float64
	for _, cat := range missing {
		total += categoryWeights[cat]
	}
	opts := make([]Option, 0, len(missing))
	for _, cat := range missing {
		w := categoryWeights[cat]
		if share > 0 {
			w = share * w / total
		}
		g, _ := AskGoal(cat)
		opts = append(opts, Option{Goal: g, Weight: w})
	}
	return opts
}

func firstMissingExcept(c Context, skip domain.Category) (Goal, bool) {
	for _, cat := range c.Missing() {
		if cat == skip {
			continue
		}
		return AskGoal(cat)
	}
	return "", false
}
