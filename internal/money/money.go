// Package money parses and formats monetary amounts.
//
// Amounts are decimal.Decimal values kept at two fractional digits. Comma is
// always treated as a thousands separator, never as a decimal marker, so
// "1,234.50" is 1234.50 and "12,50" is 1250.
package money

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits amounts are rounded to.
const Places = 2

// DefaultSymbol is the currency symbol used when formatting amounts.
const DefaultSymbol = "₹"

// ErrInvalidAmount is returned when a token cannot be read as an amount.
var ErrInvalidAmount = errors.New("invalid amount")

var (
	glyphReplacer = strings.NewReplacer(
		"₹", "",
		"$", "",
		"€", "",
		"£", "",
		",", "",
	)
	// Textual currency prefixes printed on receipts (Rs, Rs., INR)
	prefixPattern = regexp.MustCompile(`(?i)^(?:rs\.?|inr)`)
	spacePattern  = regexp.MustCompile(`\s+`)
	numberPattern = regexp.MustCompile(`^-?(?:\d+(?:\.\d+)?|\.\d+)$`)
)

// Normalize strips currency glyphs, thousands separators and whitespace from a
// token, leaving only the characters of the number itself.
func Normalize(token string) string {
	s := spacePattern.ReplaceAllString(token, "")
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = prefixPattern.ReplaceAllString(s, "")
	s = glyphReplacer.Replace(s)
	// A sign may also sit between the currency glyph and the digits
	if strings.HasPrefix(s, "-") {
		if negative {
			// Two signs is not a number; keep both so the token fails to parse
			return "-" + s
		}
		negative = true
		s = strings.TrimPrefix(s, "-")
	}
	if negative {
		s = "-" + s
	}
	return s
}

// Parse converts a receipt token such as "₹1,234.50" to an amount rounded to
// two decimals. Negative values parse successfully; callers decide whether
// they are acceptable.
func Parse(token string) (decimal.Decimal, error) {
	s := Normalize(token)
	if !numberPattern.MatchString(s) {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(Places), nil
}

// ParsePositive is Parse restricted to amounts strictly greater than zero.
func ParsePositive(token string) (decimal.Decimal, error) {
	d, err := Parse(token)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Format renders an amount with the given currency symbol and exactly two
// fractional digits, e.g. "₹236.00". Negative amounts render as "-₹5.00".
func Format(amount decimal.Decimal, symbol string) string {
	if amount.IsNegative() {
		return "-" + symbol + amount.Neg().StringFixed(Places)
	}
	return symbol + amount.StringFixed(Places)
}
