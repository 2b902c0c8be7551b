package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Provider signs users up and in against a CredentialStore
type Provider struct {
	store      CredentialStore
	tokens     *TokenIssuer
	bcryptCost int
	newUID     func() string
	now        func() time.Time
}

// ProviderOption configures a Provider
type ProviderOption func(*Provider)

// WithBcryptCost overrides the password hashing cost
func WithBcryptCost(cost int) ProviderOption {
	return func(p *Provider) {
		p.bcryptCost = cost
	}
}

// NewProvider creates a new Provider
func NewProvider(store CredentialStore, tokens *TokenIssuer, opts ...ProviderOption) *Provider {
	p := &Provider{
		store:      store,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
		newUID:     uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NormalizeEmail validates an email address and returns its canonical form
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func validatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// SignUp creates a new identity and returns a session for it
func (p *Provider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	cred := &Credential{
		UID:          p.newUID(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    p.now(),
	}
	if err := p.store.CreateCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("saving credential: %w", err)
	}

	slog.Info("User signed up", "uid", cred.UID)
	return p.session(User{UID: cred.UID, Email: cred.Email})
}

// SignIn checks an email and password and returns a session
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	cred, err := p.store.GetCredential(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("getting credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	return p.session(User{UID: cred.UID, Email: cred.Email})
}

// VerifyToken returns the user a session token was issued to
func (p *Provider) VerifyToken(token string) (User, error) {
	return p.tokens.Verify(token)
}

func (p *Provider) session(user User) (*Session, error) {
	token, expiresAt, err := p.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
