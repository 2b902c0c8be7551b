package account

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

const usersBucketName = "users"

// Store defines the account store contract
type Store interface {
	// CreateUser saves a new user record
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user record, or ErrUserNotFound
	GetUserByID(ctx context.Context, uid string) (*User, error)

	// UpdateBalance atomically adds delta to the balance and returns the new balance
	UpdateBalance(ctx context.Context, uid string, delta decimal.Decimal) (decimal.Decimal, error)

	// SubscribeToBalance calls fn with the current balance and after every
	// change. The returned function cancels the subscription.
	SubscribeToBalance(uid string, fn func(balance decimal.Decimal)) (unsubscribe func())

	// Close closes the store
	Close() error
}

// Option configures a BoltDB
type Option func(*BoltDB)

// WithOverdraft allows debits that take a balance below zero
func WithOverdraft(allow bool) Option {
	return func(b *BoltDB) {
		b.allowOverdraft = allow
	}
}

// BoltDB implements the Store interface using BoltDB
type BoltDB struct {
	db             *bbolt.DB
	allowOverdraft bool
	subscribers    *broker

	// held across a balance write and its publish so subscribers see
	// updates in commit order
	writeMu sync.Mutex
}

// NewBoltDB opens (or creates) the account database at path
func NewBoltDB(path string, opts ...Option) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	return newBoltDB(db, opts...)
}

// NewBoltDBFromHandle uses an already opened database, e.g. one shared with
// the identity store. Closing the returned store closes the handle.
func NewBoltDBFromHandle(db *bbolt.DB, opts ...Option) (*BoltDB, error) {
	return newBoltDB(db, opts...)
}

func newBoltDB(db *bbolt.DB, opts ...Option) (*BoltDB, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(usersBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	b := &BoltDB{db: db, subscribers: newBroker()}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// CreateUser saves a new user record
func (b *BoltDB) CreateUser(ctx context.Context, user *User) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(usersBucketName))
		if bucket.Get([]byte(user.UID)) != nil {
			return fmt.Errorf("%w: %s", ErrUserExists, user.UID)
		}
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		return bucket.Put([]byte(user.UID), data)
	})
}

// GetUserByID retrieves a user record
func (b *BoltDB) GetUserByID(ctx context.Context, uid string) (*User, error) {
	var user *User
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = getUser(tx, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateBalance adds delta to the user's balance inside a single write
// transaction. Unless overdrafts are allowed, a debit that would leave a
// negative balance fails with ErrInsufficientBalance and changes nothing.
func (b *BoltDB) UpdateBalance(ctx context.Context, uid string, delta decimal.Decimal) (decimal.Decimal, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	var balance decimal.Decimal
	err := b.db.Update(func(tx *bbolt.Tx) error {
		user, err := getUser(tx, uid)
		if err != nil {
			return err
		}

		next := user.Balance.Add(delta)
		if delta.IsNegative() && next.IsNegative() && !b.allowOverdraft {
			return fmt.Errorf("%w: balance %s, debit %s", ErrInsufficientBalance, user.Balance.StringFixed(2), delta.Neg().StringFixed(2))
		}

		user.Balance = next
		user.UpdatedAt = time.Now()
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		balance = next
		return tx.Bucket([]byte(usersBucketName)).Put([]byte(uid), data)
	})
	if err != nil {
		return decimal.Zero, err
	}

	// Notify only after the transaction has committed
	b.subscribers.publish(uid, balance)
	return balance, nil
}

// SubscribeToBalance registers fn for balance changes of uid. fn is called
// immediately with the current balance when the user exists. fn runs while
// balance writes are held off, so it must not block or call back into the store.
func (b *BoltDB) SubscribeToBalance(uid string, fn func(balance decimal.Decimal)) func() {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	unsubscribe := b.subscribers.subscribe(uid, fn)
	if user, err := b.GetUserByID(context.Background(), uid); err == nil {
		fn(user.Balance)
	}
	return unsubscribe
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func getUser(tx *bbolt.Tx, uid string) (*User, error) {
	data := tx.Bucket([]byte(usersBucketName)).Get([]byte(uid))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, uid)
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("unmarshaling user: %w", err)
	}
	return &user, nil
}

// broker fans balance updates out to subscribers
type broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(decimal.Decimal)
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[int]func(decimal.Decimal))}
}

func (br *broker) subscribe(uid string, fn func(decimal.Decimal)) func() {
	br.mu.Lock()
	defer br.mu.Unlock()

	id := br.nextID
	br.nextID++
	if br.subs[uid] == nil {
		br.subs[uid] = make(map[int]func(decimal.Decimal))
	}
	br.subs[uid][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			br.mu.Lock()
			defer br.mu.Unlock()
			delete(br.subs[uid], id)
			if len(br.subs[uid]) == 0 {
				delete(br.subs, uid)
			}
		})
	}
}

func (br *broker) publish(uid string, balance decimal.Decimal) {
	br.mu.Lock()
	fns := make([]func(decimal.Decimal), 0, len(br.subs[uid]))
	for _, fn := range br.subs[uid] {
		fns = append(fns, fn)
	}
	br.mu.Unlock()

	for _, fn := range fns {
		fn(balance)
	}
}
