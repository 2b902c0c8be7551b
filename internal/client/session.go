package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zombor/billsnap/internal/identity"
)

// ErrNotSignedIn is returned when an operation needs a signed-in user
var ErrNotSignedIn = errors.New("not signed in")

// Session tracks the signed-in user and notifies observers when it changes
type Session struct {
	mu        sync.Mutex
	user      *identity.User
	token     string
	expiresAt time.Time
	now       func() time.Time
	nextID    int
	observers map[int]func(user *identity.User)
}

// NewSession creates a signed-out session
func NewSession() *Session {
	return &Session{
		now:       time.Now,
		observers: make(map[int]func(*identity.User)),
	}
}

// SignIn records a signed-in user and notifies observers
func (s *Session) SignIn(user identity.User, token string, expiresAt time.Time) {
	s.mu.Lock()
	s.user = &user
	s.token = token
	s.expiresAt = expiresAt
	s.mu.Unlock()

	s.notify(&user)
}

// SignOut clears the session and notifies observers
func (s *Session) SignOut() {
	s.mu.Lock()
	wasSignedIn := s.user != nil
	s.user = nil
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if wasSignedIn {
		s.notify(nil)
	}
}

// Current returns the signed-in user, or false when signed out or expired
func (s *Session) Current() (identity.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked() {
		return identity.User{}, false
	}
	return *s.user, true
}

// Token returns the session token, or "" when signed out or expired
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked() {
		return ""
	}
	return s.token
}

func (s *Session) validLocked() bool {
	if s.user == nil {
		return false
	}
	return s.expiresAt.IsZero() || s.now().Before(s.expiresAt)
}

// Observe calls fn with the current user (nil when signed out) and again on
// every sign-in or sign-out until the returned function is called
func (s *Session) Observe(fn func(user *identity.User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	var current *identity.User
	if s.validLocked() {
		u := *s.user
		current = &u
	}
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) notify(user *identity.User) {
	s.mu.Lock()
	fns := make([]func(*identity.User), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

type storedSession struct {
	User      identity.User `json:"user"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Save writes the session to path so later runs stay signed in. A signed-out
// session removes the file.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing session file: %w", err)
		}
		return nil
	}
	stored := storedSession{User: *s.user, Token: s.token, ExpiresAt: s.expiresAt}
	s.mu.Unlock()

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// Load restores a session saved by Save. A missing file leaves the session signed out.
func (s *Session) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading session file: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("unmarshaling session: %w", err)
	}
	if stored.Token == "" || stored.User.UID == "" {
		return nil
	}
	s.SignIn(stored.User, stored.Token, stored.ExpiresAt)
	return nil
}
