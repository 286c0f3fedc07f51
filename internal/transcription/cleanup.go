package transcription

import (
	"strings"
	"unicode"
)

var fillers = []string{"えーと", "あー", "んー", "えっと", "まぁ", "あのー", "その", "なんか"}

// CleanText removes filler words from a transcription and normalizes spacing.
// Whitespace runs collapse to one space, and spaces next to Japanese script
// are dropped so mixed-language text keeps its word breaks.
func CleanText(text string) string {
	for _, filler := range fillers {
		text = strings.ReplaceAll(text, filler+" ", "")
		text = strings.ReplaceAll(text, filler, "")
	}

	runes := []rune(strings.Join(strings.Fields(text), " "))
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range runes {
		if r == ' ' && (isJapanese(runes[i-1]) || isJapanese(runes[i+1])) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isJapanese(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) ||
		(r >= 0x3000 && r <= 0x30FF) || (r >= 0xFF00 && r <= 0xFFEF)
}
