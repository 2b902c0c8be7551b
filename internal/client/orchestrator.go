// Package client drives the bill scanning flow and talks to the billsnap server.
package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/zombor/billsnap/internal/account"
	"github.com/zombor/billsnap/internal/bill"
	"github.com/zombor/billsnap/internal/identity"
	"github.com/zombor/billsnap/internal/money"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the current state
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrEmptyImage is returned when selecting an image with no data
	ErrEmptyImage = errors.New("image is empty")
	// ErrNoAmount is returned when confirming a preview that holds no positive amount
	ErrNoAmount = errors.New("no valid amount found in the bill")
	// ErrDiscarded is returned by Process when the flow was reset while the request was in flight
	ErrDiscarded = errors.New("scan was reset before the result arrived")
)

// State is a step of the scanning flow
type State int

const (
	// Idle has no image selected
	Idle State = iota
	// ImageSelected holds an image waiting to be processed
	ImageSelected
	// Processing has an extraction request in flight
	Processing
	// Previewing shows an amount awaiting confirmation
	Previewing
	// Failed shows a message until the user retries or resets
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ImageSelected:
		return "image selected"
	case Processing:
		return "processing"
	case Previewing:
		return "previewing"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// BillExtractor runs extraction on an image
type BillExtractor interface {
	ExtractBillTotal(ctx context.Context, authToken, imageBase64 string) (*bill.Result, error)
}

// AccountStore reads and updates account balances
type AccountStore interface {
	GetUserByID(ctx context.Context, uid string) (*account.User, error)
	UpdateBalance(ctx context.Context, uid string, delta decimal.Decimal) (decimal.Decimal, error)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCurrencySymbol sets the symbol used by Preview
func WithCurrencySymbol(symbol string) Option {
	return func(o *Orchestrator) {
		o.symbol = symbol
	}
}

// Orchestrator is the scanning flow: select an image, process it, preview the
// total and confirm it as an expense. It is safe for concurrent use.
type Orchestrator struct {
	bills    BillExtractor
	accounts AccountStore
	session  *Session
	symbol   string

	mu          sync.Mutex
	state       State
	image       []byte
	contentType string
	amount      *decimal.Decimal
	message     string
	generation  uint64
	unobserve   func()
}

// NewOrchestrator creates an idle Orchestrator. Signing out of session resets the flow.
func NewOrchestrator(bills BillExtractor, accounts AccountStore, session *Session, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bills:    bills,
		accounts: accounts,
		session:  session,
		symbol:   money.DefaultSymbol,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.unobserve = session.Observe(func(user *identity.User) {
		if user == nil {
			o.Reset()
		}
	})
	return o
}

// Close stops observing the session
func (o *Orchestrator) Close() {
	o.unobserve()
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Amount returns the previewed amount, if any
func (o *Orchestrator) Amount() (decimal.Decimal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.amount == nil {
		return decimal.Zero, false
	}
	return *o.amount, true
}

// Message returns the user-facing reason the last Process failed
func (o *Orchestrator) Message() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.message
}

// Preview renders the previewed amount with the currency symbol, or "" when there is none
func (o *Orchestrator) Preview() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Previewing || o.amount == nil {
		return ""
	}
	return money.Format(*o.amount, o.symbol)
}

// SelectImage starts a scan, or replaces the image of a finished one
func (o *Orchestrator) SelectImage(data []byte, contentType string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case Idle, Previewing, Failed:
	default:
		return fmt.Errorf("%w: select image while %s", ErrInvalidTransition, o.state)
	}
	if len(data) == 0 {
		return ErrEmptyImage
	}

	o.image = data
	o.contentType = contentType
	o.amount = nil
	o.message = ""
	o.state = ImageSelected
	return nil
}

// Process sends the selected image to the extraction service. On success the
// flow moves to Previewing, holding the total when one was found; on error it
// moves to Failed with a message for the user.
func (o *Orchestrator) Process(ctx context.Context) error {
	o.mu.Lock()
	if o.state != ImageSelected {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: process while %s", ErrInvalidTransition, state)
	}
	o.state = Processing
	o.generation++
	generation := o.generation
	payload := encodeImage(o.image, o.contentType)
	o.mu.Unlock()

	result, err := o.bills.ExtractBillTotal(ctx, o.session.Token(), payload)

	o.mu.Lock()
	defer o.mu.Unlock()
	if generation != o.generation {
		slog.Debug("Discarding stale extraction result", "generation", generation)
		return ErrDiscarded
	}

	if err != nil {
		o.state = Failed
		o.message = failureMessage(err)
		return err
	}

	o.state = Previewing
	o.amount = nil
	if result != nil && result.TotalAmount != nil && result.TotalAmount.IsPositive() {
		amount := *result.TotalAmount
		o.amount = &amount
	}
	return nil
}

// EnterAmount sets the amount by hand, e.g. when no total was found
func (o *Orchestrator) EnterAmount(input string) error {
	amount, err := money.ParsePositive(input)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Previewing {
		return fmt.Errorf("%w: enter amount while %s", ErrInvalidTransition, o.state)
	}
	o.amount = &amount
	return nil
}

// Confirm records the previewed amount as an expense and returns the new
// balance. The balance check is advisory; the store makes the final decision.
// An insufficient balance keeps the preview.
func (o *Orchestrator) Confirm(ctx context.Context) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Previewing {
		return decimal.Zero, fmt.Errorf("%w: confirm while %s", ErrInvalidTransition, o.state)
	}
	if o.amount == nil || !o.amount.IsPositive() {
		return decimal.Zero, ErrNoAmount
	}
	user, ok := o.session.Current()
	if !ok {
		return decimal.Zero, ErrNotSignedIn
	}

	record, err := o.accounts.GetUserByID(ctx, user.UID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("getting balance: %w", err)
	}
	if o.amount.GreaterThan(record.Balance) {
		return decimal.Zero, account.ErrInsufficientBalance
	}

	balance, err := o.accounts.UpdateBalance(ctx, user.UID, o.amount.Neg())
	if err != nil {
		return decimal.Zero, fmt.Errorf("recording expense: %w", err)
	}

	slog.Info("Expense confirmed", "amount", o.amount.StringFixed(money.Places), "balance", balance.StringFixed(money.Places))
	o.resetLocked()
	return balance, nil
}

// Cancel discards the image and amount without touching the account
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == Processing {
		return fmt.Errorf("%w: cancel while %s", ErrInvalidTransition, o.state)
	}
	o.resetLocked()
	return nil
}

// Reset abandons the flow from any state. A request in flight completes but
// its result is discarded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	o.resetLocked()
}

func (o *Orchestrator) resetLocked() {
	o.state = Idle
	o.image = nil
	o.contentType = ""
	o.amount = nil
	o.message = ""
}

// encodeImage builds the request payload, as a data URL when the type is known
func encodeImage(data []byte, contentType string) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	if contentType == "" {
		return encoded
	}
	return "data:" + contentType + ";base64," + encoded
}

// failureMessage maps an extraction error to text for the user
func failureMessage(err error) string {
	var berr *bill.Error
	switch bill.KindOf(err) {
	case bill.KindUnauthenticated:
		return "Please sign in to scan bills."
	case bill.KindInvalidArgument:
		if errors.As(err, &berr) {
			return berr.Message
		}
		return "The image could not be read."
	default:
		return "Could not extract total amount from the bill. Please try again."
	}
}
