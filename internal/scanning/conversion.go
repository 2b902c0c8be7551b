package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// transcriptionPrompt is the shared prompt used by the LLM engines. They are
// asked for a verbatim transcript only; the total is located by the
// extraction rules, not by the model.
const transcriptionPrompt = `You are an OCR engine. Transcribe ALL printed text in this image of a bill or receipt exactly as it appears.

Rules:
- Preserve the original line breaks, one printed line per output line
- Keep labels and their amounts on the same line when they are printed on the same line
- Copy numbers, currency symbols (such as ₹, $, Rs.), commas and decimal points exactly
- Do not summarize, translate, correct or reorder anything
- Do not add commentary and do not use markdown code blocks
- If the image contains no readable text, answer exactly: NO_TEXT`

// pdfToImage renders the first page of a PDF as a PNG image
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Bills are single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	return encodePNG(img)
}

// imageToPNG decodes any supported image format and re-encodes it as PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	// Go's standard image package doesn't support HEIC (common on iPhones)
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return encodePNG(img)
	}

	img, _, err = image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC/HEIF brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// detectMimeType normalizes the declared content type, sniffing the payload
// when the caller did not provide one.
func detectMimeType(imageData []byte, contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		if isHEICFormat(imageData) {
			return "image/heic"
		}
		mimeType = http.DetectContentType(imageData)
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	return mimeType
}

// prepareImageData converts the image to PNG unless the engine accepts its
// format as-is. Returns the data to send and its MIME type.
func prepareImageData(imageData []byte, contentType string, accepts func(mimeType string) bool) ([]byte, string, error) {
	mimeType := detectMimeType(imageData, contentType)
	if accepts(mimeType) && !isHEICFormat(imageData) {
		return imageData, mimeType, nil
	}

	if mimeType == "application/pdf" {
		pngData, err := pdfToImage(imageData)
		if err != nil {
			return nil, "", fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, "image/png", nil
	}

	pngData, err := imageToPNG(imageData, mimeType)
	if err != nil {
		return nil, "", fmt.Errorf("converting image to PNG: %w", err)
	}
	return pngData, "image/png", nil
}

// acceptsPNGOnly is used by engines that are always sent PNG
func acceptsPNGOnly(mimeType string) bool {
	return mimeType == "image/png"
}

// acceptsCommonPhotos is used by engines that read JPEG, PNG and GIF natively
func acceptsCommonPhotos(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp":
		return true
	}
	return false
}
