package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zombor/billsnap/internal/account"
	"github.com/zombor/billsnap/internal/bill"
	"github.com/zombor/billsnap/internal/extraction"
	"github.com/zombor/billsnap/internal/identity"
	"github.com/zombor/billsnap/internal/logger"
	"github.com/zombor/billsnap/internal/scanning"
	"github.com/zombor/billsnap/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	fs := ff.NewFlagSet("billsnap-server")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "billsnap.db", "Database file path")
		recognizerType = fs.StringLong("recognizer", "vision", "Text recognizer: 'vision', 'gemini' or 'ollama'")
		visionCreds    = fs.StringLong("vision-credentials", "", "Google Cloud credentials file for Vision (default: application default credentials)")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		jwtSecret      = fs.StringLong("jwt-secret", "", "Secret used to sign session tokens")
		tokenTTL       = fs.DurationLong("token-ttl", 24*time.Hour, "Session token lifetime")
		requestTimeout = fs.DurationLong("request-timeout", bill.DefaultTimeout, "Time limit for one bill extraction")
		rateLimit      = fs.Float64Long("rate-limit", 5, "Requests per second allowed per client (0 disables)")
		rateBurst      = fs.IntLong("rate-burst", 20, "Burst size for the per-client rate limit")
		allowOverdraft = fs.BoolLong("allow-overdraft", "Allow expenses that take a balance below zero")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat      = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		_              = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILLSNAP"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Stderr, *logLevel, *logFormat)

	if *jwtSecret == "" {
		slog.Error("A token secret is required. Set --jwt-secret or BILLSNAP_JWT_SECRET")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := bbolt.Open(*dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Both stores share the handle; closing db above releases it once
	accountDB, err := account.NewBoltDBFromHandle(db, account.WithOverdraft(*allowOverdraft))
	if err != nil {
		slog.Error("Failed to initialize account store", "error", err)
		os.Exit(1)
	}
	identityDB, err := identity.NewBoltDBFromHandle(db)
	if err != nil {
		slog.Error("Failed to initialize identity store", "error", err)
		os.Exit(1)
	}

	recognizer, err := newRecognizer(ctx, *recognizerType, recognizerConfig{
		visionCredentials: *visionCreds,
		geminiKey:         *geminiKey,
		geminiModel:       *geminiModel,
		ollamaURL:         *ollamaURL,
		ollamaModel:       *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize recognizer", "type", *recognizerType, "error", err)
		os.Exit(1)
	}
	defer recognizer.Close()

	tokens, err := identity.NewTokenIssuer(*jwtSecret, *tokenTTL)
	if err != nil {
		slog.Error("Failed to initialize token issuer", "error", err)
		os.Exit(1)
	}
	provider := identity.NewProvider(identityDB, tokens)

	bills := bill.NewServiceWithDeps(provider, recognizer, extraction.NewEngine(), *requestTimeout)
	accounts := account.NewService(accountDB)

	handler := server.NewServer(bills, accounts, provider,
		server.WithRateLimit(rate.Limit(*rateLimit), *rateBurst),
		server.WithVersion(version),
	)

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Extraction may take the full request timeout
		WriteTimeout: *requestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
		// Cancels balance streams on shutdown; extraction detaches from it
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version, "recognizer", *recognizerType)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

type recognizerConfig struct {
	visionCredentials string
	geminiKey         string
	geminiModel       string
	ollamaURL         string
	ollamaModel       string
}

func newRecognizer(ctx context.Context, kind string, cfg recognizerConfig) (scanning.Recognizer, error) {
	switch kind {
	case "vision":
		slog.Info("Initializing Vision recognizer...")
		return scanning.NewVision(ctx, cfg.visionCredentials)
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required; set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini recognizer...", "model", cfg.geminiModel)
		return scanning.NewGemini(ctx, apiKey, cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid recognizer type %q, want vision, gemini or ollama", kind)
	}
}
