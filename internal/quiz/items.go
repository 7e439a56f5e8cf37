// internal/quiz/items.go
package quiz

import "strings"

// Rule describes how an answer relates to its letter.
type Rule string

const (
	RuleStartsWith Rule = "starts-with"
	RuleContains   Rule = "contains"
	RuleEndsWith   Rule = "ends-with"
)

// NormalizeRule maps a raw rule string onto one of the three known rules.
// Anything unrecognized becomes RuleStartsWith.
func NormalizeRule(s string) Rule {
	switch Rule(strings.TrimSpace(s)) {
	case RuleContains:
		return RuleContains
	case RuleEndsWith:
		return RuleEndsWith
	default:
		return RuleStartsWith
	}
}

// Status is the play state of a single item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCorrect   Status = "correct"
	StatusIncorrect Status = "incorrect"
	StatusSkipped   Status = "skipped"
)

// QuizItem is one entry of the loaded question bank. Immutable once loaded.
type QuizItem struct {
	Letter string `json:"letter"`
	Rule   Rule   `json:"rule"`
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

// PlayItem is a QuizItem plus its mutable play status. PlayItems are owned by
// the owner's game; they cross transport boundaries only as value copies.
type PlayItem struct {
	QuizItem
	Status Status `json:"status"`
}

// NewPlayItems wraps a bank of quiz items with a pending status each.
func NewPlayItems(items []QuizItem) []PlayItem {
	out := make([]PlayItem, len(items))
	for i, it := range items {
		out[i] = PlayItem{QuizItem: it, Status: StatusPending}
	}
	return out
}
