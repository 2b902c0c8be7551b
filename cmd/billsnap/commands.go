package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/billsnap/internal/account"
	"github.com/zombor/billsnap/internal/client"
	"github.com/zombor/billsnap/internal/money"
)

type app struct {
	serverURL   string
	sessionFile string
	symbol      string
	logLevel    string

	in      *bufio.Reader
	out     io.Writer
	session *client.Session
	remote  *client.Remote
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (a *app) orPrompt(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return a.prompt(label)
}

func (a *app) signUp(ctx context.Context, name, email, password string) error {
	if err := a.setup(); err != nil {
		return err
	}

	var err error
	if name, err = a.orPrompt(name, "Name: "); err != nil {
		return err
	}
	if email, err = a.orPrompt(email, "Email: "); err != nil {
		return err
	}
	confirm := password
	if password == "" {
		if password, err = a.prompt("Password: "); err != nil {
			return err
		}
		if confirm, err = a.prompt("Confirm password: "); err != nil {
			return err
		}
	}

	result, err := a.remote.SignUp(ctx, name, email, password, confirm)
	if err != nil {
		return describe(err)
	}
	if err := a.session.Save(a.sessionFile); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registration successful! Signed in as %s\n", result.Account.Email)
	return nil
}

func (a *app) signIn(ctx context.Context, email, password string) error {
	if err := a.setup(); err != nil {
		return err
	}

	var err error
	if email, err = a.orPrompt(email, "Email: "); err != nil {
		return err
	}
	if password, err = a.orPrompt(password, "Password: "); err != nil {
		return err
	}

	result, err := a.remote.SignIn(ctx, email, password)
	if err != nil {
		return describe(err)
	}
	if err := a.session.Save(a.sessionFile); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s. Balance: %s\n", result.Account.Email, money.Format(result.Account.Balance, a.symbol))
	return nil
}

func (a *app) signOut() error {
	if err := a.setup(); err != nil {
		return err
	}
	a.session.SignOut()
	if err := a.session.Save(a.sessionFile); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) requireSignIn() error {
	if err := a.setup(); err != nil {
		return err
	}
	if _, ok := a.session.Current(); !ok {
		return errors.New("not signed in; run 'billsnap signin' first")
	}
	return nil
}

func (a *app) balance(ctx context.Context, watch bool) error {
	if err := a.requireSignIn(); err != nil {
		return err
	}

	if !watch {
		user, err := a.remote.Account(ctx)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(a.out, "Balance: %s\n", money.Format(user.Balance, a.symbol))
		return nil
	}

	err := a.remote.StreamBalance(ctx, func(balance decimal.Decimal) {
		fmt.Fprintf(a.out, "Balance: %s\n", money.Format(balance, a.symbol))
	})
	if err != nil {
		return describe(err)
	}
	return nil
}

func (a *app) changeBalance(ctx context.Context, args []string, income bool) error {
	if len(args) != 1 {
		return errors.New("expected exactly one AMOUNT argument")
	}
	amount, err := money.ParsePositive(args[0])
	if err != nil {
		if income {
			return errors.New("please enter a valid income amount")
		}
		return errors.New("please enter a valid expense amount")
	}
	if err := a.requireSignIn(); err != nil {
		return err
	}

	var balance decimal.Decimal
	if income {
		balance, err = a.remote.AddIncome(ctx, amount)
	} else {
		balance, err = a.remote.AddExpense(ctx, amount)
	}
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(a.out, "Balance: %s\n", money.Format(balance, a.symbol))
	return nil
}

func (a *app) scan(ctx context.Context, args []string, autoConfirm bool) error {
	if len(args) != 1 {
		return errors.New("expected exactly one IMAGE argument")
	}
	if err := a.requireSignIn(); err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	flow := client.NewOrchestrator(a.remote, a.remote, a.session, client.WithCurrencySymbol(a.symbol))
	defer flow.Close()

	if err := flow.SelectImage(data, imageContentType(args[0], data)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Processing bill...")
	if err := flow.Process(ctx); err != nil {
		return errors.New(flow.Message())
	}

	if _, ok := flow.Amount(); !ok {
		input, err := a.prompt("No total found on the bill. Enter the amount (blank to cancel): ")
		if err != nil {
			return err
		}
		if input == "" {
			return cancel(a, flow)
		}
		if err := flow.EnterAmount(input); err != nil {
			return errors.New("please enter a valid expense amount")
		}
	}

	if !autoConfirm {
		answer, err := a.prompt(fmt.Sprintf("Total: %s. Record as expense? [y/N] ", flow.Preview()))
		if err != nil {
			return err
		}
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			return cancel(a, flow)
		}
	}

	preview := flow.Preview()
	balance, err := flow.Confirm(ctx)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(a.out, "%s deducted from your balance. Balance: %s\n", preview, money.Format(balance, a.symbol))
	return nil
}

func cancel(a *app, flow *client.Orchestrator) error {
	if err := flow.Cancel(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Cancelled")
	return nil
}

// imageContentType guesses the type from the file extension, then the content
func imageContentType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return http.DetectContentType(data)
}

// describe turns client errors into messages for the terminal
func describe(err error) error {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, account.ErrInsufficientBalance):
		return errors.New("insufficient balance for this expense")
	case errors.Is(err, client.ErrUnauthorized), errors.Is(err, client.ErrNotSignedIn):
		return errors.New("your session has expired; run 'billsnap signin' again")
	case errors.As(err, &apiErr):
		return errors.New(apiErr.Message)
	default:
		return err
	}
}
