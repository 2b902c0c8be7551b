package scanning

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/apiv1"
	"google.golang.org/api/option"
)

// Vision implements the Recognizer interface using Google Cloud Vision
// document text detection
type Vision struct {
	client *vision.ImageAnnotatorClient
}

// NewVision creates a new Vision Recognizer instance. When credentialsFile is
// empty, Application Default Credentials are used.
func NewVision(ctx context.Context, credentialsFile string) (*Vision, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}

	return &Vision{client: client}, nil
}

// RecognizeText returns the full text annotation of an image
func (v *Vision) RecognizeText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	finalImageData, _, err := prepareImageData(imageData, contentType, acceptsCommonPhotos)
	if err != nil {
		return "", recognitionFailed("vision", err)
	}

	img, err := vision.NewImageFromReader(bytes.NewReader(finalImageData))
	if err != nil {
		return "", recognitionFailed("vision", fmt.Errorf("reading image: %w", err))
	}

	annotation, err := v.client.DetectDocumentText(ctx, img, nil)
	if err != nil {
		return "", recognitionFailed("vision", fmt.Errorf("detecting text: %w", err))
	}

	// No annotation means the image has no text
	if annotation == nil {
		return "", nil
	}

	return strings.TrimSpace(annotation.Text), nil
}

// Close closes the Vision client
func (v *Vision) Close() error {
	return v.client.Close()
}
