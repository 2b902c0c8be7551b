package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/zombor/billsnap/internal/identity"
	"github.com/zombor/billsnap/internal/logger"
)

type contextKey string

const userContextKey contextKey = "user"

// requestLogger attaches a logger carrying a fresh request id to the request context
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		log := slog.Default().With(slog.String("request_id", requestID))
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), log)))
		log.Debug("Handled request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// recoverer turns a handler panic into a 500 response
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.FromContext(r.Context()).Error("Panic while handling request",
					"panic", rec,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeError(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// cors adds CORS headers to every response and answers preflight requests
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// requireAuth rejects requests without a valid bearer token and stores the
// authenticated user in the request context
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			writeError(w, "Login required", http.StatusUnauthorized)
			return
		}
		user, err := s.identities.VerifyToken(token)
		if err != nil {
			log.Debug("Rejected token", "path", r.URL.Path, "error", err)
			writeError(w, identity.Message(identity.ErrInvalidToken), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = logger.ToContext(ctx, log.With(slog.String("uid", user.UID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromContext returns the user stored by requireAuth
func userFromContext(ctx context.Context) (identity.User, bool) {
	user, ok := ctx.Value(userContextKey).(identity.User)
	return user, ok
}

// bearerToken returns the token from an "Authorization: Bearer" header
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// clientLimiter keeps one token bucket per client address. Idle buckets
// expire from the cache.
type clientLimiter struct {
	limit rate.Limit
	burst int
	cache *cache.Cache
}

func newClientLimiter(limit rate.Limit, burst int, idle time.Duration) *clientLimiter {
	if limit <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limit: limit,
		burst: burst,
		cache: cache.New(idle, 2*idle),
	}
}

func (l *clientLimiter) get(key string) *rate.Limiter {
	if v, ok := l.cache.Get(key); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.cache.Add(key, limiter, cache.DefaultExpiration); err != nil {
		// Another request created it first
		if v, ok := l.cache.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !l.get(key).Allow() {
			logger.FromContext(r.Context()).Warn("Rate limit exceeded", "client", key, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller by address, without the port
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
