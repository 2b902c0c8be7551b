// Package bill implements the bill total extraction service boundary.
package bill

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/billsnap/internal/extraction"
	"github.com/zombor/billsnap/internal/identity"
	"github.com/zombor/billsnap/internal/logger"
	"github.com/zombor/billsnap/internal/scanning"
)

// DefaultTimeout bounds one extraction request, recognition included
const DefaultTimeout = 60 * time.Second

// TokenVerifier validates session tokens
type TokenVerifier interface {
	VerifyToken(token string) (identity.User, error)
}

// Extractor locates the total in recognized text
type Extractor interface {
	Evaluate(text string) extraction.MatchResult
}

// Result is the outcome of a successful request. TotalAmount is nil when the
// bill has no recognizable total.
type Result struct {
	TotalAmount *decimal.Decimal
}

// Service runs recognition and extraction for authenticated requests. It
// keeps no per-request state and is safe for concurrent use.
type Service struct {
	verifier   TokenVerifier
	recognizer scanning.Recognizer
	extractor  Extractor
	timeout    time.Duration
}

// NewService creates a new Service with the built-in extraction rules and the default timeout
func NewService(verifier TokenVerifier, recognizer scanning.Recognizer) *Service {
	return NewServiceWithDeps(verifier, recognizer, extraction.NewEngine(), DefaultTimeout)
}

// NewServiceWithDeps creates a new Service with custom dependencies
func NewServiceWithDeps(verifier TokenVerifier, recognizer scanning.Recognizer, extractor Extractor, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		verifier:   verifier,
		recognizer: recognizer,
		extractor:  extractor,
		timeout:    timeout,
	}
}

// Authenticate returns the user a token belongs to, or an Unauthenticated error
func (s *Service) Authenticate(ctx context.Context, authToken string) (identity.User, error) {
	if strings.TrimSpace(authToken) == "" {
		return identity.User{}, errUnauthenticated
	}
	user, err := s.verifier.VerifyToken(authToken)
	if err != nil {
		logger.FromContext(ctx).Warn("Rejected token", "error", err)
		return identity.User{}, errUnauthenticated
	}
	return user, nil
}

// ExtractBillTotal recognizes the text in a base64 encoded image and returns
// its total. All returned errors are *Error values; recognition and other
// internal failures are logged and reported as KindInternal without detail.
func (s *Service) ExtractBillTotal(ctx context.Context, authToken, imageBase64 string) (result *Result, err error) {
	log := logger.FromContext(ctx)

	user, err := s.Authenticate(ctx, authToken)
	if err != nil {
		return nil, err
	}
	log = log.With(slog.String("uid", user.UID))

	imageData, contentType, err := decodeImage(imageBase64)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while extracting bill total", "panic", r)
			result, err = nil, errInternal
		}
	}()

	// The client may go away; the recognition call still runs to completion
	// within the request timeout and its result is dropped.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.recognizer.RecognizeText(ctx, imageData, contentType)
	if err != nil {
		log.Error("Failed to recognize text",
			"content_type", contentType,
			"image_size", len(imageData),
			"duration", time.Since(start),
			"error", err,
		)
		return nil, errInternal
	}
	log.Debug("Recognized text", "chars", len(text), "duration", time.Since(start))

	match := s.extractor.Evaluate(text)
	switch match.Kind {
	case extraction.Found:
		log.Info("Extracted bill total", "rule", match.Rule, "amount", match.Amount.StringFixed(2))
		amount := match.Amount
		return &Result{TotalAmount: &amount}, nil
	case extraction.Rejected:
		log.Info("Total label found without a usable amount", "rule", match.Rule)
	default:
		log.Info("No total label found")
	}
	return &Result{}, nil
}

// decodeImage decodes the request payload. A data URL prefix such as
// "data:image/jpeg;base64," is accepted and supplies the content type.
func decodeImage(imageBase64 string) ([]byte, string, error) {
	payload := strings.TrimSpace(imageBase64)
	if payload == "" {
		return nil, "", errMissingImage
	}

	var contentType string
	if strings.HasPrefix(payload, "data:") {
		header, data, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, "", errMalformedImage
		}
		contentType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		payload = data
	}

	// Line-wrapped base64 is common from mobile encoders
	payload = strings.Join(strings.Fields(payload), "")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil {
		return nil, "", errMalformedImage
	}
	if len(data) == 0 {
		return nil, "", errMissingImage
	}
	return data, contentType, nil
}

