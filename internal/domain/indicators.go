// Package domain contains core domain types for the honeypot conversation engine.
package domain

// Category names one kind of extracted fraud indicator. Values double as the
// JSON keys used by the intelligence collector.
type Category string

const (
	// CategoryPaymentHandle holds UPI-style payment handles (name@bank).
	CategoryPaymentHandle Category = "upiIds"
	// CategoryPhone holds 10-digit mobile numbers.
	CategoryPhone Category = "phoneNumbers"
	// CategoryLink holds URLs and bare domains.
	CategoryLink Category = "phishingLinks"
	// CategoryBankAccount holds 9-18 digit account numbers.
	CategoryBankAccount Category = "bankAccounts"
	// CategoryKeyword holds urgency and fraud-signal words.
	CategoryKeyword Category = "suspiciousKeywords"
)

// AllCategories lists every category in report order.
var AllCategories = []Category{
	CategoryBankAccount,
	CategoryPaymentHandle,
	CategoryLink,
	CategoryPhone,
	CategoryKeyword,
}

// Indicators maps a category to the distinct values seen for it, in first-seen order.
// The zero value is ready to use.
type Indicators struct {
	values map[Category][]string
	seen   map[Category]map[string]struct{}
}

// NewIndicators returns an empty set.
func NewIndicators() Indicators {
	return Indicators{}
}

// Add appends values not already present and returns how many were new.
// Empty strings are ignored.
func (in *Indicators) Add(cat Category, values ...string) int {
	if len(values) == 0 {
		return 0
	}
	if in.values == nil {
		in.values = make(map[Category][]string)
		in.seen = make(map[Category]map[string]struct{})
	}
	set := in.seen[cat]
	if set == nil {
		set = make(map[string]struct{})
		in.seen[cat] = set
	}
	added := 0
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		in.values[cat] = append(in.values[cat], v)
		added++
	}
	return added
}

// Merge adds every value of other and returns the number of new values.
func (in *Indicators) Merge(other Indicators) int {
	added := 0
	for cat, vals := range other.values {
		added += in.Add(cat, vals...)
	}
	return added
}

// Has reports whether at least one value exists for cat.
func (in Indicators) Has(cat Category) bool {
	return len(in.values[cat]) > 0
}

// Count returns the number of distinct values for cat.
func (in Indicators) Count(cat Category) int {
	return len(in.values[cat])
}

// Contains reports whether value was already recorded under cat.
func (in Indicators) Contains(cat Category, value string) bool {
	_, ok := in.seen[cat][value]
	return ok
}

// Values returns a copy of the values for cat.
func (in Indicators) Values(cat Category) []string {
	src := in.values[cat]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Clone returns a deep copy.
func (in Indicators) Clone() Indicators {
	var out Indicators
	out.Merge(in)
	return out
}

// Map returns every category keyed by its wire name. Empty categories map to
// empty (non-nil) slices so they serialize as [].
func (in Indicators) Map() map[string][]string {
	out := make(map[string][]string, len(AllCategories))
	for _, cat := range AllCategories {
		out[string(cat)] = in.Values(cat)
	}
	return out
}
