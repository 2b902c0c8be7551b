// Package account stores user records and their balances.
package account

import (
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

var (
	// ErrUserNotFound is returned when no record exists for a uid
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when creating a record for a uid that already has one
	ErrUserExists = errors.New("user already exists")
	// ErrInsufficientBalance is returned when a debit would overdraw the balance
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount is returned for income or expense amounts that are not positive
	ErrInvalidAmount = errors.New("amount must be greater than zero")
)

// maxNameLength bounds the stored display name
const maxNameLength = 100

var namePolicy = bluemonday.StrictPolicy()

// User is the account record for one identity
type User struct {
	UID       string          `json:"uid"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewUser builds a record with a zero balance. The display name is stripped
// of markup and truncated.
func NewUser(uid, name, email string, now time.Time) *User {
	return &User{
		UID:       uid,
		Name:      SanitizeName(name),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SanitizeName removes HTML from a display name and collapses whitespace
func SanitizeName(name string) string {
	name = namePolicy.Sanitize(name)
	name = strings.Join(strings.Fields(name), " ")
	if r := []rune(name); len(r) > maxNameLength {
		name = string(r[:maxNameLength])
	}
	return name
}
