package account

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

// mockStore is a mock implementation of Store
type mockStore struct {
	users     map[string]*User
	deltas    []decimal.Decimal
	createErr error
	updateErr error
}

func newMockStore() *mockStore {
	return &mockStore{users: make(map[string]*User)}
}

func (m *mockStore) CreateUser(ctx context.Context, user *User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.users[user.UID]; ok {
		return ErrUserExists
	}
	m.users[user.UID] = user
	return nil
}

func (m *mockStore) GetUserByID(ctx context.Context, uid string) (*User, error) {
	user, ok := m.users[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (m *mockStore) UpdateBalance(ctx context.Context, uid string, delta decimal.Decimal) (decimal.Decimal, error) {
	if m.updateErr != nil {
		return decimal.Zero, m.updateErr
	}
	m.deltas = append(m.deltas, delta)
	m.users[uid].Balance = m.users[uid].Balance.Add(delta)
	return m.users[uid].Balance, nil
}

func (m *mockStore) SubscribeToBalance(uid string, fn func(decimal.Decimal)) func() {
	return func() {}
}

func (m *mockStore) Close() error {
	return nil
}

type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		store   *mockStore
		service *Service
		now     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newMockStore()
		now = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
		service = NewServiceWithDeps(store, &mockTimeSource{now: now})
	})

	Describe("Register", func() {
		It("creates a zero balance record", func() {
			user, err := service.Register(ctx, "uid-1", "Asha", " Asha@Example.com ")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email).To(Equal("asha@example.com"))
			Expect(user.CreatedAt).To(Equal(now))
			Expect(store.users).To(HaveKey("uid-1"))
		})

		When("the record already exists", func() {
			It("returns it unchanged", func() {
				existing := NewUser("uid-1", "Asha", "asha@example.com", now.Add(-time.Hour))
				existing.Balance = decimal.RequireFromString("50")
				store.users["uid-1"] = existing

				user, err := service.Register(ctx, "uid-1", "Someone Else", "asha@example.com")
				Expect(err).NotTo(HaveOccurred())
				Expect(user).To(BeIdenticalTo(existing))
				Expect(user.Balance.StringFixed(2)).To(Equal("50.00"))
			})
		})

		When("the store fails", func() {
			It("returns the error", func() {
				setupErr := errors.New("disk full")
				store.createErr = setupErr
				_, err := service.Register(ctx, "uid-1", "Asha", "asha@example.com")
				Expect(err).To(MatchError(setupErr))
			})
		})
	})

	Describe("AddIncome", func() {
		BeforeEach(func() {
			store.users["uid-1"] = NewUser("uid-1", "Asha", "asha@example.com", now)
		})

		It("credits the amount", func() {
			balance, err := service.AddIncome(ctx, "uid-1", amount("1000"))
			Expect(err).NotTo(HaveOccurred())
			Expect(balance.StringFixed(2)).To(Equal("1000.00"))
		})

		It("rejects non-positive amounts", func() {
			_, err := service.AddIncome(ctx, "uid-1", decimal.Zero)
			Expect(err).To(MatchError(ErrInvalidAmount))
			Expect(store.deltas).To(BeEmpty())
		})
	})

	Describe("AddExpense", func() {
		BeforeEach(func() {
			store.users["uid-1"] = NewUser("uid-1", "Asha", "asha@example.com", now)
		})

		It("submits a negative delta", func() {
			_, err := service.AddExpense(ctx, "uid-1", amount("236.00"))
			Expect(err).NotTo(HaveOccurred())
			Expect(store.deltas).To(HaveLen(1))
			Expect(store.deltas[0].StringFixed(2)).To(Equal("-236.00"))
		})

		It("rejects negative amounts", func() {
			_, err := service.AddExpense(ctx, "uid-1", amount("-5"))
			Expect(err).To(MatchError(ErrInvalidAmount))
		})

		When("the store rejects the debit", func() {
			It("returns the store error", func() {
				store.updateErr = ErrInsufficientBalance
				_, err := service.AddExpense(ctx, "uid-1", amount("5"))
				Expect(err).To(MatchError(ErrInsufficientBalance))
			})
		})
	})
})
