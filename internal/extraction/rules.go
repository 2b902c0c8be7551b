package extraction

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/zombor/billsnap/internal/money"
)

// amountToken matches a numeric token with an optional sign, currency glyph,
// thousands separators and decimal part.
const amountToken = `(?P<amount>-?\s*(?:₹|[Rr][Ss]\.?|INR|\$|€|£)?\s*-?\d[\d,]*(?:\.\d+)?)`

// separator is the optional ":" or "-" printed between a label and its value.
const separator = `\s*[:\-]?\s*`

// MatchKind tags the outcome of evaluating a single rule.
type MatchKind int

const (
	// NotMatched means the rule's label does not occur in the text.
	NotMatched MatchKind = iota
	// Found means the label occurred and its token is a positive amount.
	Found
	// Rejected means the label occurred but its token is not a positive amount.
	Rejected
)

func (k MatchKind) String() string {
	switch k {
	case Found:
		return "found"
	case Rejected:
		return "rejected"
	default:
		return "not matched"
	}
}

// MatchResult is the outcome of evaluating one Rule against recognized text.
type MatchResult struct {
	Kind   MatchKind
	Rule   string
	Amount decimal.Decimal
}

// Rule locates a labeled total and isolates its numeric token.
//
// The pattern must contain a named group "amount". If it also contains a named
// group "exclude", matches where that group is non-empty are skipped.
type Rule struct {
	Name    string
	pattern *regexp.Regexp
	amount  int
	exclude int
}

// NewRule builds a rule for a label pattern. The label is followed by the
// standard separator and amount token.
func NewRule(name, label string) (Rule, error) {
	pattern, err := regexp.Compile(`(?i)` + label + separator + amountToken)
	if err != nil {
		return Rule{}, fmt.Errorf("compiling rule %q: %w", name, err)
	}
	return Rule{
		Name:    name,
		pattern: pattern,
		amount:  pattern.SubexpIndex("amount"),
		exclude: pattern.SubexpIndex("exclude"),
	}, nil
}

// MustRule is like NewRule but panics on an invalid pattern.
func MustRule(name, label string) Rule {
	r, err := NewRule(name, label)
	if err != nil {
		panic(err)
	}
	return r
}

// Match evaluates the rule against text. Only the first eligible occurrence of
// the label is considered.
func (r Rule) Match(text string) MatchResult {
	for _, groups := range r.pattern.FindAllStringSubmatch(text, -1) {
		if r.exclude > 0 && groups[r.exclude] != "" {
			continue
		}
		amount, err := money.ParsePositive(groups[r.amount])
		if err != nil {
			return MatchResult{Kind: Rejected, Rule: r.Name}
		}
		return MatchResult{Kind: Found, Rule: r.Name, Amount: amount}
	}
	return MatchResult{Kind: NotMatched, Rule: r.Name}
}

// defaultRules lists the total labels from most to least specific. Receipts
// often print several subtotal-like lines, so the bare "total" label is only
// consulted when none of the others occur.
var defaultRules = []Rule{
	MustRule("grand total", `\bgrand\s*total`),
	MustRule("total amount", `\btotal\s*amount`),
	MustRule("amount payable", `\bamount\s*payable`),
	MustRule("net amount", `\bnet\s*amount`),
	MustRule("total", `\b(?P<exclude>sub[\s-]*)?total`),
}

// DefaultRules returns a copy of the built-in rule list in priority order.
func DefaultRules() []Rule {
	rules := make([]Rule, len(defaultRules))
	copy(rules, defaultRules)
	return rules
}
