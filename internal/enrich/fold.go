package enrich

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var caseFolder = cases.Fold()

// fold normalizes s for keyword matching: accents removed, case folded and
// runs of whitespace collapsed.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(caseFolder.String(stripped)), " ")
}

// containsWord reports whether keyword occurs in text bounded by non-letter
// runes or the ends of text. Both arguments must already be folded.
func containsWord(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	for start := 0; start <= len(text)-len(keyword); {
		i := strings.Index(text[start:], keyword)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(keyword)
		if boundaryBefore(text, i) && boundaryAfter(text, end) {
			return true
		}
		start = i + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r := lastRune(text[:i])
	return !isWordRune(r) || !isWordRune(firstRune(text[i:]))
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r := firstRune(text[end:])
	return !isWordRune(r) || !isWordRune(lastRune(text[:end]))
}

// isWordRune treats letters and digits of space-delimited scripts as word
// characters. Ideographic and other unspaced scripts always form a boundary
// so that aliases like 東京 match inside longer names.
func isWordRune(r rune) bool {
	if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul, unicode.Thai) {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func firstRune(s string) rune {
	if s == "" {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func lastRune(s string) rune {
	if s == "" {
		return 0
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}
