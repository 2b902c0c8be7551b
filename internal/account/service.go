package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles manual income and expense entries against a Store
type Service struct {
	store      Store
	timeSource TimeSource
}

// NewService creates a new Service
func NewService(store Store) *Service {
	return NewServiceWithDeps(store, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with a custom time source for testing
func NewServiceWithDeps(store Store, timeSrc TimeSource) *Service {
	return &Service{store: store, timeSource: timeSrc}
}

// Register creates the account record for a freshly signed up identity.
// Registering a uid that already has a record returns the existing one.
func (s *Service) Register(ctx context.Context, uid, name, email string) (*User, error) {
	user := NewUser(uid, name, email, s.timeSource.Now())
	err := s.store.CreateUser(ctx, user)
	if errors.Is(err, ErrUserExists) {
		return s.Get(ctx, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// Get returns the account record for uid
func (s *Service) Get(ctx context.Context, uid string) (*User, error) {
	user, err := s.store.GetUserByID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// AddIncome credits a positive amount to the balance
func (s *Service) AddIncome(ctx context.Context, uid string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	balance, err := s.store.UpdateBalance(ctx, uid, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("adding income: %w", err)
	}
	slog.Info("Income recorded", "uid", uid, "amount", amount.StringFixed(2))
	return balance, nil
}

// AddExpense debits a positive amount from the balance
func (s *Service) AddExpense(ctx context.Context, uid string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	balance, err := s.store.UpdateBalance(ctx, uid, amount.Neg())
	if err != nil {
		return decimal.Zero, fmt.Errorf("adding expense: %w", err)
	}
	slog.Info("Expense recorded", "uid", uid, "amount", amount.StringFixed(2))
	return balance, nil
}

// Subscribe forwards balance changes for uid to fn until the returned function is called
func (s *Service) Subscribe(uid string, fn func(balance decimal.Decimal)) func() {
	return s.store.SubscribeToBalance(uid, fn)
}
