// Package server exposes the bill extraction service and the account API over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/zombor/billsnap/internal/account"
	"github.com/zombor/billsnap/internal/bill"
	"github.com/zombor/billsnap/internal/identity"
)

// maxBodyBytes bounds request bodies; base64 photos of long bills are large
const maxBodyBytes = 20 << 20

// BillExtractor is the extraction service boundary
type BillExtractor interface {
	ExtractBillTotal(ctx context.Context, authToken, imageBase64 string) (*bill.Result, error)
}

// Accounts manages account records and balances
type Accounts interface {
	Register(ctx context.Context, uid, name, email string) (*account.User, error)
	Get(ctx context.Context, uid string) (*account.User, error)
	AddIncome(ctx context.Context, uid string, amount decimal.Decimal) (decimal.Decimal, error)
	AddExpense(ctx context.Context, uid string, amount decimal.Decimal) (decimal.Decimal, error)
	Subscribe(uid string, fn func(balance decimal.Decimal)) func()
}

// Identities signs users up and in and verifies their tokens
type Identities interface {
	SignUp(ctx context.Context, email, password string) (*identity.Session, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	VerifyToken(token string) (identity.User, error)
}

// Option configures a Server
type Option func(*Server)

// WithRateLimit sets the per-client request rate. A zero limit disables rate limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Server) {
		s.limiter = newClientLimiter(limit, burst, 10*time.Minute)
	}
}

// WithVersion sets the version reported by the health check
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// Server handles HTTP requests
type Server struct {
	bills      BillExtractor
	accounts   Accounts
	identities Identities
	limiter    *clientLimiter
	version    string
	router     chi.Router
}

// NewServer creates a new Server and registers its routes
func NewServer(bills BillExtractor, accounts Accounts, identities Identities, opts ...Option) *Server {
	s := &Server{
		bills:      bills,
		accounts:   accounts,
		identities: identities,
		router:     chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(cors)
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequestSize(maxBodyBytes))

		// The callable authenticates inside the service so that auth failures
		// use the callable error envelope.
		r.Post("/extractBillTotal", s.handleExtractBillTotal)

		r.Post("/auth/signup", s.handleSignUp)
		r.Post("/auth/signin", s.handleSignIn)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/account", s.handleGetAccount)
			r.Post("/account/income", s.handleAddIncome)
			r.Post("/account/expense", s.handleAddExpense)
			r.Get("/account/balance/stream", s.handleBalanceStream)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
