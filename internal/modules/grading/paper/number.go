package paper

import (
	"strings"
	"unicode"
)

var numberPrefixes = []string{"question", "ques", "qn", "q"}

// NormalizeNumber canonicalizes a question label so "Q1.", "1)" and "1"
// compare equal and "2 (a)" matches "2a".
func NormalizeNumber(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range numberPrefixes {
		if rest, ok := strings.CutPrefix(s, p); ok && rest != "" && !unicode.IsLetter(rune(rest[0])) {
			s = rest
			break
		}
	}
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return strings.TrimSpace(raw)
	}
	return b.String()
}
