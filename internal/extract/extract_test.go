package extract

import (
	"reflect"
	"testing"

	"github.com/ashureev/honeypot/internal/domain"
)

func TestExtractCategories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		cat  domain.Category
		want []string
	}{
		{"payment handle", "Send to upi: scammer@fakebank", domain.CategoryPaymentHandle, []string{"scammer@fakebank"}},
		{"phone with country code", "Also call +919876543210", domain.CategoryPhone, []string{"9876543210"}},
		{"bare phone", "my number 9123456780 ok", domain.CategoryPhone, []string{"9123456780"}},
		{"trunk prefix phone", "dial 09123456780", domain.CategoryPhone, []string{"9123456780"}},
		{"phone must start 6-9", "ref 5123456789", domain.CategoryPhone, nil},
		{"phone inside longer numeral", "acct 129876543210345", domain.CategoryPhone, nil},
		{"bank account", "acct 129876543210345", domain.CategoryBankAccount, []string{"129876543210345"}},
		{"absolute url", "Payment link is http://fakebank.xyz/pay.", domain.CategoryLink, []string{"http://fakebank.xyz/pay"}},
		{"www host", "open www.secure-kyc.in now", domain.CategoryLink, []string{"www.secure-kyc.in"}},
		{"bare domain", "visit refund-help.co.in/claim today", domain.CategoryLink, []string{"refund-help.co.in/claim"}},
		{"email domain is not a link", "mail ravi@bank.com", domain.CategoryLink, nil},
		{"keywords collapse", "URGENT urgent verify your KYC", domain.CategoryKeyword, []string{"urgent", "verify", "kyc"}},
		{"empty", "", domain.CategoryPhone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Extract(tt.text).Values(tt.cat)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Extract(%q)[%s] = %v, want %v", tt.text, tt.cat, got, tt.want)
			}
		})
	}
}

func TestTenDigitNumeralNeverBothPhoneAndAccount(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"9876543210",
		"+919876543210",
		"919876543210",
		"1234567890",
		"transfer to 9876543210 or 123456789012",
	}
	for _, in := range inputs {
		phones, accounts := Numbers(in)
		for _, a := range accounts {
			if len(a) == 10 {
				t.Fatalf("%q: 10-digit account %q reported", in, a)
			}
			for _, p := range phones {
				if a == p || a == "91"+p || a == "0"+p {
					t.Fatalf("%q: %q counted as both phone and account", in, a)
				}
			}
		}
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	t.Parallel()

	text := "URGENT: pay fraud@okaxis or call 9988776655, link http://x.xyz/a acct 123456789012"
	first := Extract(text).Map()
	for i := 0; i < 5; i++ {
		if got := Extract(text).Map(); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestExtractTotalOnOddInput(t *testing.T) {
	t.Parallel()

	inputs := []string{"@@@", "http://", "www.", "+91", "\x00\xff", "........com"}
	for _, in := range inputs {
		_ = Extract(in)
	}
}

func TestWordCount(t *testing.T) {
	t.Parallel()

	if got := WordCount("  ok   send\tnow\n"); got != 3 {
		t.Fatalf("WordCount = %d, want 3", got)
	}
}
