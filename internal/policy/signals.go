package policy

import (
	"strings"
	"unicode"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/extract"
)

// Signals are the surface intents read from the latest counterparty message.
type Signals struct {
	// Offered holds categories the counterparty just supplied or pointed at.
	Offered map[domain.Category]bool
	// AsksToAct is set when the agent is told to click, open, pay or send.
	AsksToAct bool
	// AsksPayment narrows AsksToAct to a payment request.
	AsksPayment bool
	// AsksConfirmation is set when the counterparty wants a status check.
	AsksConfirmation bool
	// Urgency is set for urgency or threat language.
	Urgency bool
	// RequestsData is set when the agent is asked for OTPs, PINs and similar.
	RequestsData bool
}

var offerCues = map[domain.Category][]string{
	domain.CategoryLink:          {"link", "url", "website", "site"},
	domain.CategoryPaymentHandle: {"upi", "upi id", "gpay", "phonepe", "paytm", "pay to", "send to"},
	domain.CategoryPhone:         {"call me", "call on", "whatsapp", "contact number", "my number", "helpline"},
	domain.CategoryBankAccount:   {"account number", "a c", "ifsc", "beneficiary"},
}

var (
	actCues          = []string{"click", "open", "download", "install", "scan", "pay", "send", "transfer", "tap"}
	paymentCues      = []string{"pay", "payment", "send money", "transfer", "upi", "rs", "rupees", "amount", "fee"}
	confirmationCues = []string{"confirm", "did you", "have you", "done", "received", "is it done", "what happened", "status"}
	urgencyCues      = []string{"urgent", "urgently", "immediately", "now", "today", "hurry", "blocked", "suspend", "suspended", "police", "legal", "arrest", "last chance", "within", "penalty", "expire"}
	dataCues         = []string{"otp", "pin", "password", "cvv", "share", "tell me", "send me", "card number", "aadhaar", "pan", "code"}
)

// DetectSignals reads intents from text. fresh is the extraction of text itself.
func DetectSignals(text string, fresh domain.Indicators) Signals {
	norm := normalize(text)
	sig := Signals{Offered: make(map[domain.Category]bool)}
	for _, cat := range extract.TrackedCategories {
		if fresh.Has(cat) || hasAny(norm, offerCues[cat]) {
			sig.Offered[cat] = true
		}
	}
	sig.AsksToAct = hasAny(norm, actCues)
	sig.AsksPayment = sig.AsksToAct && hasAny(norm, paymentCues)
	sig.AsksConfirmation = hasAny(norm, confirmationCues) ||
		(strings.HasSuffix(strings.TrimSpace(text), "?") && hasAny(norm, []string{"you", "ok"}))
	sig.Urgency = hasAny(norm, urgencyCues)
	sig.RequestsData = hasAny(norm, dataCues)
	return sig
}

// normalize lowercases text, replaces punctuation with spaces and pads it so
// that cues match whole words only.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

func hasAny(norm string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(norm, " "+c+" ") {
			return true
		}
	}
	return false
}
