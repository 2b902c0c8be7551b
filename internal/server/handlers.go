package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/billsnap/internal/account"
	"github.com/zombor/billsnap/internal/bill"
	"github.com/zombor/billsnap/internal/identity"
	"github.com/zombor/billsnap/internal/logger"
	"github.com/zombor/billsnap/internal/money"
)

// callableRequest accepts both the callable envelope {"data":{"image":...}}
// and a plain {"image":...} body
type callableRequest struct {
	Data *struct {
		Image string `json:"image"`
	} `json:"data"`
	Image string `json:"image"`
}

func (c callableRequest) image() string {
	if c.Data != nil {
		return c.Data.Image
	}
	return c.Image
}

type callableError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type extractResult struct {
	TotalAmount *json.Number `json:"totalAmount"`
}

// handleExtractBillTotal serves the extractBillTotal callable
func (s *Server) handleExtractBillTotal(w http.ResponseWriter, r *http.Request) {
	var req callableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.FromContext(r.Context()).Warn("Error decoding callable request", "error", err)
		writeCallableError(w, &bill.Error{Kind: bill.KindInvalidArgument, Message: "Invalid request body"})
		return
	}

	result, err := s.bills.ExtractBillTotal(r.Context(), bearerToken(r), req.image())
	if err != nil {
		writeCallableError(w, err)
		return
	}

	var out extractResult
	if result.TotalAmount != nil {
		out.TotalAmount = amountNumber(*result.TotalAmount)
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": out})
}

func writeCallableError(w http.ResponseWriter, err error) {
	var berr *bill.Error
	if !errors.As(err, &berr) {
		berr = &bill.Error{Kind: bill.KindInternal, Message: "Failed to extract bill total"}
	}
	writeJSON(w, berr.Kind.HTTPStatus(), map[string]callableError{
		"error": {Status: berr.Kind.Status(), Message: berr.Message},
	})
}

type signUpRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      accountResponse `json:"user"`
}

type accountResponse struct {
	UID     string       `json:"uid"`
	Name    string       `json:"name"`
	Email   string       `json:"email"`
	Balance *json.Number `json:"balance"`
}

func newAccountResponse(user *account.User) accountResponse {
	return accountResponse{
		UID:     user.UID,
		Name:    user.Name,
		Email:   user.Email,
		Balance: amountNumber(user.Balance),
	}
}

// handleSignUp creates an identity and its account with a zero balance
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" || req.ConfirmPassword == "" {
		writeIdentityError(w, identity.ErrMissingFields)
		return
	}
	if req.Password != req.ConfirmPassword {
		writeIdentityError(w, identity.ErrPasswordMismatch)
		return
	}

	session, err := s.identities.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Info("Sign up rejected", "error", err)
		writeIdentityError(w, err)
		return
	}

	user, err := s.accounts.Register(r.Context(), session.User.UID, req.Name, session.User.Email)
	if err != nil {
		log.Error("Error creating account", "uid", session.User.UID, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      newAccountResponse(user),
	})
}

// handleSignIn exchanges an email and password for a session token
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeIdentityError(w, identity.ErrMissingFields)
		return
	}

	session, err := s.identities.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Info("Sign in rejected", "error", err)
		writeIdentityError(w, err)
		return
	}

	user, err := s.accounts.Get(r.Context(), session.User.UID)
	if errors.Is(err, account.ErrUserNotFound) {
		// Sign up stored the credential but not the account record
		log.Warn("Account missing at sign in, recreating", "uid", session.User.UID)
		user, err = s.accounts.Register(r.Context(), session.User.UID, accountName(session.User.Email), session.User.Email)
	}
	if err != nil {
		log.Error("Error getting account", "uid", session.User.UID, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      newAccountResponse(user),
	})
}

// accountName derives a display name from the local part of an email address
func accountName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

func writeIdentityError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, identity.ErrEmailInUse):
		code = http.StatusConflict
	case errors.Is(err, identity.ErrInvalidCredential):
		code = http.StatusUnauthorized
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrPasswordTooLong),
		errors.Is(err, identity.ErrPasswordMismatch),
		errors.Is(err, identity.ErrMissingFields):
	default:
		slog.Error("Unexpected identity error", "error", err)
		code = http.StatusInternalServerError
	}
	writeError(w, identity.Message(err), code)
}

// handleGetAccount returns the caller's account record
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	record, err := s.accounts.Get(r.Context(), user.UID)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			writeError(w, "Account not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Error getting account", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(record))
}

type amountRequest struct {
	Amount json.Number `json:"amount"`
}

type balanceResponse struct {
	Balance *json.Number `json:"balance"`
}

// handleAddIncome credits the caller's balance
func (s *Server) handleAddIncome(w http.ResponseWriter, r *http.Request) {
	s.handleBalanceChange(w, r, s.accounts.AddIncome)
}

// handleAddExpense debits the caller's balance
func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	s.handleBalanceChange(w, r, s.accounts.AddExpense)
}

type balanceChange func(ctx context.Context, uid string, amount decimal.Decimal) (decimal.Decimal, error)

func (s *Server) handleBalanceChange(w http.ResponseWriter, r *http.Request, apply balanceChange) {
	log := logger.FromContext(r.Context())
	user, _ := userFromContext(r.Context())

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	amount, err := money.ParsePositive(req.Amount.String())
	if err != nil {
		writeError(w, "Amount must be greater than zero", http.StatusBadRequest)
		return
	}

	balance, err := apply(r.Context(), user.UID, amount)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, balanceResponse{Balance: amountNumber(balance)})
	case errors.Is(err, account.ErrInsufficientBalance):
		writeError(w, "Insufficient balance", http.StatusConflict)
	case errors.Is(err, account.ErrInvalidAmount):
		writeError(w, "Amount must be greater than zero", http.StatusBadRequest)
	case errors.Is(err, account.ErrUserNotFound):
		writeError(w, "Account not found", http.StatusNotFound)
	default:
		log.Error("Error updating balance", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleBalanceStream sends the caller's balance as server-sent events,
// starting with the current value
func (s *Server) handleBalanceStream(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	user, _ := userFromContext(r.Context())

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn("Error clearing write deadline", "error", err)
	}

	updates := make(chan decimal.Decimal, 16)
	unsubscribe := s.accounts.Subscribe(user.UID, func(balance decimal.Decimal) {
		select {
		case updates <- balance:
		default:
			// Slow stream: drop the oldest so the latest balance still arrives
			select {
			case <-updates:
			default:
			}
			updates <- balance
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Error("Streaming not supported", "error", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case balance := <-updates:
			data, err := json.Marshal(balanceResponse{Balance: amountNumber(balance)})
			if err != nil {
				log.Error("Error encoding balance", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: balance\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// handleHealth reports that the server is up
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if s.version != "" {
		body["version"] = s.version
	}
	writeJSON(w, http.StatusOK, body)
}

// amountNumber renders an amount as a JSON number with two decimal places
func amountNumber(amount decimal.Decimal) *json.Number {
	n := json.Number(amount.StringFixed(money.Places))
	return &n
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}
