// Package extract pulls candidate fraud indicators out of free text.
//
// Extraction is heuristic: every function here is pure and total, and
// malformed input yields empty results rather than errors.
package extract

import (
	"regexp"
	"strings"

	"github.com/ashureev/honeypot/internal/domain"
)

// TrackedCategories are the indicator categories that count toward the stop
// condition, in asking priority (link > payment handle > phone > bank account).
var TrackedCategories = []domain.Category{
	domain.CategoryLink,
	domain.CategoryPaymentHandle,
	domain.CategoryPhone,
	domain.CategoryBankAccount,
}

var (
	paymentHandlePattern = regexp.MustCompile(`[A-Za-z0-9._\-]{2,}@[A-Za-z]{2,}`)
	digitRunPattern      = regexp.MustCompile(`\d+`)
	linkPattern          = regexp.MustCompile(`(?i)https?://\S+|www\.\S+|\b[a-z0-9][a-z0-9\-]*(?:\.[a-z0-9\-]+)*\.(?:co\.in|com|in|net|org|xyz|info|top|online|site|link|live)\b(?:/\S*)?`)
)

// linkTrailingPunct is stripped from the end of link matches.
const linkTrailingPunct = `.,;:!?)]}'"`

// keywords is the urgency / fraud-signal vocabulary.
var keywords = []string{
	"urgent",
	"immediately",
	"verify",
	"blocked",
	"suspended",
	"click",
	"otp",
	"kyc",
	"expire",
	"penalty",
	"refund",
	"reward",
}

// Extract returns every indicator found in text.
func Extract(text string) domain.Indicators {
	var out domain.Indicators
	phones, banks := Numbers(text)
	out.Add(domain.CategoryPaymentHandle, PaymentHandles(text)...)
	out.Add(domain.CategoryPhone, phones...)
	out.Add(domain.CategoryLink, Links(text)...)
	out.Add(domain.CategoryBankAccount, banks...)
	out.Add(domain.CategoryKeyword, Keywords(text)...)
	return out
}

// PaymentHandles returns localpart@bank shaped tokens in order of appearance.
func PaymentHandles(text string) []string {
	return paymentHandlePattern.FindAllString(text, -1)
}

// Numbers scans maximal digit runs and classifies each as a phone number, a
// bank account number, or neither. A run that yields a phone is never also
// reported as an account, and no 10-digit run is ever an account.
func Numbers(text string) (phones, accounts []string) {
	for _, run := range digitRunPattern.FindAllString(text, -1) {
		if phone, ok := phoneFromRun(run); ok {
			phones = append(phones, phone)
			continue
		}
		if n := len(run); n >= 9 && n <= 18 && n != 10 {
			accounts = append(accounts, run)
		}
	}
	return phones, accounts
}

// phoneFromRun accepts a bare 10-digit mobile number, or one carrying a 91
// country code or a 0 trunk prefix, and returns the bare 10 digits.
func phoneFromRun(run string) (string, bool) {
	switch {
	case len(run) == 10:
	case len(run) == 12 && strings.HasPrefix(run, "91"):
		run = run[2:]
	case len(run) == 11 && run[0] == '0':
		run = run[1:]
	default:
		return "", false
	}
	if run[0] < '6' || run[0] > '9' {
		return "", false
	}
	return run, true
}

// Links returns absolute URLs, www hosts and bare domains in text. A bare
// domain directly after '@' belongs to an e-mail or payment handle and is skipped.
func Links(text string) []string {
	var out []string
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && text[start-1] == '@' {
			continue
		}
		link := strings.TrimRight(text[start:end], linkTrailingPunct)
		if link == "" {
			continue
		}
		out = append(out, link)
	}
	return out
}

// Keywords returns the distinct vocabulary words present in text.
func Keywords(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			out = append(out, k)
		}
	}
	return out
}

// WordCount returns the number of whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
