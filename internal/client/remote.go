package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/billsnap/internal/account"
	"github.com/zombor/billsnap/internal/bill"
	"github.com/zombor/billsnap/internal/identity"
)

// ErrUnauthorized is returned when the server rejects the session token
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-callable error response from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known responses to the sentinel errors of the account and
// identity packages
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return account.ErrUserNotFound
	case http.StatusConflict:
		if e.Message == "Insufficient balance" {
			return account.ErrInsufficientBalance
		}
		return identity.ErrEmailInUse
	}
	return nil
}

// Remote talks to a billsnap server. It satisfies BillExtractor and
// AccountStore for the signed-in user of its session.
type Remote struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
}

// NewRemote creates a client for the server at baseURL
func NewRemote(baseURL string, session *Session) *Remote {
	return NewRemoteWithClient(baseURL, session, &http.Client{Timeout: 90 * time.Second})
}

// NewRemoteWithClient creates a client with a custom http.Client
func NewRemoteWithClient(baseURL string, session *Session, httpClient *http.Client) *Remote {
	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		session:    session,
	}
}

// AuthResult is a signed-in user with their account
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *account.User
}

type sessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      accountResponse `json:"user"`
}

type accountResponse struct {
	UID     string          `json:"uid"`
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Balance decimal.Decimal `json:"balance"`
}

func (a accountResponse) user() *account.User {
	return &account.User{UID: a.UID, Name: a.Name, Email: a.Email, Balance: a.Balance}
}

// SignUp creates an identity and account and signs the session in
func (r *Remote) SignUp(ctx context.Context, name, email, password, confirmPassword string) (*AuthResult, error) {
	body := map[string]string{
		"name":            name,
		"email":           email,
		"password":        password,
		"confirmPassword": confirmPassword,
	}
	return r.authenticate(ctx, "/api/auth/signup", body)
}

// SignIn signs the session in with an email and password
func (r *Remote) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	return r.authenticate(ctx, "/api/auth/signin", body)
}

func (r *Remote) authenticate(ctx context.Context, path string, body any) (*AuthResult, error) {
	var resp sessionResponse
	if err := r.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	user := resp.User.user()
	r.session.SignIn(identity.User{UID: user.UID, Email: user.Email}, resp.Token, resp.ExpiresAt)
	return &AuthResult{Token: resp.Token, ExpiresAt: resp.ExpiresAt, Account: user}, nil
}

// Account returns the signed-in user's account
func (r *Remote) Account(ctx context.Context) (*account.User, error) {
	var resp accountResponse
	if err := r.do(ctx, http.MethodGet, "/api/account", nil, &resp); err != nil {
		return nil, err
	}
	return resp.user(), nil
}

// AddIncome credits the signed-in user's balance
func (r *Remote) AddIncome(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return r.changeBalance(ctx, "/api/account/income", amount)
}

// AddExpense debits the signed-in user's balance
func (r *Remote) AddExpense(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return r.changeBalance(ctx, "/api/account/expense", amount)
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

func (r *Remote) changeBalance(ctx context.Context, path string, amount decimal.Decimal) (decimal.Decimal, error) {
	body := map[string]json.Number{"amount": json.Number(amount.String())}
	var resp balanceResponse
	if err := r.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

// GetUserByID returns the account of the signed-in user, who must be uid
func (r *Remote) GetUserByID(ctx context.Context, uid string) (*account.User, error) {
	user, err := r.Account(ctx)
	if err != nil {
		return nil, err
	}
	if user.UID != uid {
		return nil, fmt.Errorf("%w: %s", account.ErrUserNotFound, uid)
	}
	return user, nil
}

// UpdateBalance applies delta to the signed-in user's balance as income or expense
func (r *Remote) UpdateBalance(ctx context.Context, uid string, delta decimal.Decimal) (decimal.Decimal, error) {
	if current, ok := r.session.Current(); !ok || current.UID != uid {
		return decimal.Zero, ErrNotSignedIn
	}
	if delta.IsNegative() {
		return r.AddExpense(ctx, delta.Neg())
	}
	return r.AddIncome(ctx, delta)
}

type callableResponse struct {
	Result *struct {
		TotalAmount *decimal.Decimal `json:"totalAmount"`
	} `json:"result"`
	Error *struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// ExtractBillTotal calls the extractBillTotal callable. Errors reported by
// the server are returned as *bill.Error.
func (r *Remote) ExtractBillTotal(ctx context.Context, authToken, imageBase64 string) (*bill.Result, error) {
	payload, err := json.Marshal(map[string]any{
		"data": map[string]string{"image": imageBase64},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/extractBillTotal", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling extractBillTotal: %w", err)
	}
	defer resp.Body.Close()

	var out callableResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return nil, &bill.Error{Kind: bill.KindFromStatus(out.Error.Status), Message: out.Error.Message}
	}
	if resp.StatusCode != http.StatusOK || out.Result == nil {
		return nil, fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}
	return &bill.Result{TotalAmount: out.Result.TotalAmount}, nil
}

// StreamBalance calls fn with the signed-in user's balance, first the current
// value and then every change, until ctx is done or the stream ends
func (r *Remote) StreamBalance(ctx context.Context, fn func(balance decimal.Decimal)) error {
	req, err := r.newRequest(ctx, http.MethodGet, "/api/account/balance/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream has no deadline of its own
	httpClient := *r.httpClient
	httpClient.Timeout = 0
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opening balance stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var update balanceResponse
		if err := json.Unmarshal([]byte(data), &update); err != nil {
			return fmt.Errorf("decoding balance update: %w", err)
		}
		fn(update.Balance)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading balance stream: %w", err)
	}
	return nil
}

func (r *Remote) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := r.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (r *Remote) do(ctx context.Context, method, path string, body, out any) error {
	req, err := r.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}
