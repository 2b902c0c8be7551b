package scanning

import (
	"context"
	"errors"
	"fmt"
)

// ErrRecognitionFailed is returned by every Recognizer when the underlying
// engine could not produce text for an image. The engine's own error is
// wrapped alongside it for logging.
var ErrRecognitionFailed = errors.New("text recognition failed")

// Recognizer defines the interface for optical character recognition engines
type Recognizer interface {
	// RecognizeText returns the full block of text found in an image
	RecognizeText(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close closes the recognizer and releases resources
	Close() error
}

// recognitionFailed wraps an engine error with ErrRecognitionFailed
func recognitionFailed(engine string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRecognitionFailed, engine, err)
}
