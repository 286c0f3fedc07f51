package transcription

import (
	"fmt"
	"os"
	"unicode/utf8"
)

// DefaultHintBytes caps the vocabulary hint prepended to every request
const DefaultHintBytes = 4096

// LoadVocabularyHint reads a pre-rendered vocabulary hint. An empty path
// yields an empty hint. The content is used verbatim, truncated to maxBytes.
func LoadVocabularyHint(path string, maxBytes int) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read vocabulary hint: %w", err)
	}
	return TruncateHint(string(data), maxBytes), nil
}

// TruncateHint shortens hint to at most maxBytes without splitting a rune.
// A non-positive maxBytes means DefaultHintBytes.
func TruncateHint(hint string, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultHintBytes
	}
	if len(hint) <= maxBytes {
		return hint
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(hint[cut]) {
		cut--
	}
	return hint[:cut]
}
