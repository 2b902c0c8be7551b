package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/billsnap/internal/client"
	"github.com/zombor/billsnap/internal/logger"
	"github.com/zombor/billsnap/internal/money"
)

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
	root := a.command()

	err := root.ParseAndRun(ctx, os.Args[1:], ff.WithEnvVarPrefix("BILLSNAP"))
	switch {
	case err == nil:
	case errors.Is(err, ff.ErrHelp), errors.Is(err, ff.ErrNoExec):
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".billsnap-session.json"
	}
	return filepath.Join(dir, "billsnap", "session.json")
}

func (a *app) command() *ff.Command {
	rootFlags := ff.NewFlagSet("billsnap")
	rootFlags.StringVar(&a.serverURL, 0, "server", "http://localhost:8080", "billsnap server URL")
	rootFlags.StringVar(&a.sessionFile, 0, "session-file", defaultSessionFile(), "Where the signed-in session is kept")
	rootFlags.StringVar(&a.symbol, 0, "currency", money.DefaultSymbol, "Currency symbol used when showing amounts")
	rootFlags.StringVar(&a.logLevel, 0, "log-level", "warn", "Log level: debug, info, warn or error")

	signUpFlags := ff.NewFlagSet("signup").SetParent(rootFlags)
	signUpName := signUpFlags.StringLong("name", "", "Display name")
	signUpEmail := signUpFlags.StringLong("email", "", "Email address")
	signUpPassword := signUpFlags.StringLong("password", "", "Password (prompted when empty)")

	signInFlags := ff.NewFlagSet("signin").SetParent(rootFlags)
	signInEmail := signInFlags.StringLong("email", "", "Email address")
	signInPassword := signInFlags.StringLong("password", "", "Password (prompted when empty)")

	balanceFlags := ff.NewFlagSet("balance").SetParent(rootFlags)
	watch := balanceFlags.BoolLong("watch", "Keep printing the balance as it changes")

	scanFlags := ff.NewFlagSet("scan").SetParent(rootFlags)
	yes := scanFlags.BoolLong("yes", "Confirm the extracted total without asking")

	return &ff.Command{
		Name:      "billsnap",
		Usage:     "billsnap [FLAGS] <SUBCOMMAND>",
		ShortHelp: "track expenses by scanning bills",
		Flags:     rootFlags,
		Subcommands: []*ff.Command{
			{
				Name:      "signup",
				Usage:     "billsnap signup --name NAME --email EMAIL",
				ShortHelp: "create an account and sign in",
				Flags:     signUpFlags,
				Exec: func(ctx context.Context, args []string) error {
					return a.signUp(ctx, *signUpName, *signUpEmail, *signUpPassword)
				},
			},
			{
				Name:      "signin",
				Usage:     "billsnap signin --email EMAIL",
				ShortHelp: "sign in to an existing account",
				Flags:     signInFlags,
				Exec: func(ctx context.Context, args []string) error {
					return a.signIn(ctx, *signInEmail, *signInPassword)
				},
			},
			{
				Name:      "signout",
				Usage:     "billsnap signout",
				ShortHelp: "forget the signed-in session",
				Flags:     ff.NewFlagSet("signout").SetParent(rootFlags),
				Exec: func(ctx context.Context, args []string) error {
					return a.signOut()
				},
			},
			{
				Name:      "balance",
				Usage:     "billsnap balance [--watch]",
				ShortHelp: "show the current balance",
				Flags:     balanceFlags,
				Exec: func(ctx context.Context, args []string) error {
					return a.balance(ctx, *watch)
				},
			},
			{
				Name:      "income",
				Usage:     "billsnap income AMOUNT",
				ShortHelp: "add income to the balance",
				Flags:     ff.NewFlagSet("income").SetParent(rootFlags),
				Exec: func(ctx context.Context, args []string) error {
					return a.changeBalance(ctx, args, true)
				},
			},
			{
				Name:      "expense",
				Usage:     "billsnap expense AMOUNT",
				ShortHelp: "record an expense by hand",
				Flags:     ff.NewFlagSet("expense").SetParent(rootFlags),
				Exec: func(ctx context.Context, args []string) error {
					return a.changeBalance(ctx, args, false)
				},
			},
			{
				Name:      "scan",
				Usage:     "billsnap scan [--yes] IMAGE",
				ShortHelp: "extract the total from a bill and record it as an expense",
				Flags:     scanFlags,
				Exec: func(ctx context.Context, args []string) error {
					return a.scan(ctx, args, *yes)
				},
			},
		},
	}
}

// setup loads the saved session and builds the server client
func (a *app) setup() error {
	logger.Init(os.Stderr, a.logLevel, "text")

	a.session = client.NewSession()
	if err := a.session.Load(a.sessionFile); err != nil {
		return err
	}
	a.remote = client.NewRemote(a.serverURL, a.session)
	return nil
}
