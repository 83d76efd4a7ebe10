// Package policy decides what class of reply the persona sends next and when
// a conversation should end.
package policy

import "github.com/ashureev/honeypot/internal/domain"

// Goal is the discrete class of reply chosen for one turn. Each goal maps to
// one renderer template.
type Goal string

const (
	GoalAskLink           Goal = "ask-for-link"
	GoalAskPaymentHandle  Goal = "ask-for-payment-handle"
	GoalAskPhone          Goal = "ask-for-phone"
	GoalAskBankAccount    Goal = "ask-for-bank-account"
	GoalLinkNotWorking    Goal = "link-not-working"
	GoalPaymentNotWorking Goal = "payment-not-working"
	GoalPhoneNotReachable Goal = "phone-not-reachable"
	GoalStall             Goal = "stall"
	GoalReassure          Goal = "reassure"
)

// AllGoals returns the goal vocabulary.
func AllGoals() []Goal {
	return []Goal{
		GoalAskLink,
		GoalAskPaymentHandle,
		GoalAskPhone,
		GoalAskBankAccount,
		GoalLinkNotWorking,
		GoalPaymentNotWorking,
		GoalPhoneNotReachable,
		GoalStall,
		GoalReassure,
	}
}

// askGoals maps a tracked category to the goal that requests it.
var askGoals = map[domain.Category]Goal{
	domain.CategoryLink:          GoalAskLink,
	domain.CategoryPaymentHandle: GoalAskPaymentHandle,
	domain.CategoryPhone:         GoalAskPhone,
	domain.CategoryBankAccount:   GoalAskBankAccount,
}

// complaintGoals maps a category to the "not working" goal that elicits a
// replacement value. Bank accounts have none.
var complaintGoals = map[domain.Category]Goal{
	domain.CategoryLink:          GoalLinkNotWorking,
	domain.CategoryPaymentHandle: GoalPaymentNotWorking,
	domain.CategoryPhone:         GoalPhoneNotReachable,
}

// categoryWeights is the relative preference when asking for a missing category.
var categoryWeights = map[domain.Category]float64{
	domain.CategoryLink:          4,
	domain.CategoryPaymentHandle: 3,
	domain.CategoryPhone:         2,
	domain.CategoryBankAccount:   1,
}

// AskGoal returns the goal that asks for cat.
func AskGoal(cat domain.Category) (Goal, bool) {
	g, ok := askGoals[cat]
	return g, ok
}

// ComplaintGoal returns the "not working" goal for cat.
func ComplaintGoal(cat domain.Category) (Goal, bool) {
	g, ok := complaintGoals[cat]
	return g, ok
}
