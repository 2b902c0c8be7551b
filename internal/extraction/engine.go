// Package extraction locates the grand total in text recognized from a bill.
package extraction

import (
	"github.com/shopspring/decimal"
)

// Engine evaluates an ordered list of rules and returns the amount from the
// first rule whose label occurs in the text. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	rules []Rule
}

// NewEngine creates an Engine with the built-in rules.
func NewEngine() *Engine {
	return NewEngineWithRules(defaultRules)
}

// NewEngineWithRules creates an Engine evaluating rules in the given order.
func NewEngineWithRules(rules []Rule) *Engine {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	return &Engine{rules: ordered}
}

// Evaluate returns the result of the deciding rule. When no label occurs the
// result is NotMatched.
func (e *Engine) Evaluate(text string) MatchResult {
	for _, rule := range e.rules {
		result := rule.Match(text)
		if result.Kind != NotMatched {
			return result
		}
	}
	return MatchResult{Kind: NotMatched}
}

// ExtractTotal returns the bill total and true, or zero and false when no
// qualifying total is present.
func (e *Engine) ExtractTotal(text string) (decimal.Decimal, bool) {
	result := e.Evaluate(text)
	if result.Kind != Found {
		return decimal.Zero, false
	}
	return result.Amount, true
}
