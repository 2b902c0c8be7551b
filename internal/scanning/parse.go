package scanning

import (
	"strings"
)

// noTextMarker is what the LLM engines are asked to answer when an image has
// no readable text.
const noTextMarker = "NO_TEXT"

// cleanTranscript normalizes the text returned by an LLM engine
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```text")
		text = strings.TrimPrefix(text, "```plaintext")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	// Normalize Windows line endings so rules can rely on \n
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)

	if text == noTextMarker {
		return ""
	}
	return text
}
