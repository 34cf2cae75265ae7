// Package slug derives filesystem and URL safe names from free text.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// cyrillic approximates Russian letters with Latin sequences. Punctuation in
// the replacements is dropped later by the character filter.
var cyrillic = map[rune]string{
	'щ': "shh", 'ш': "sh", 'ч': "ch", 'ц': "cz", 'ю': "yu", 'я': "ya",
	'ё': "yo", 'ж': "zh", 'ъ': "``", 'ы': "y'", 'э': "e`",
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e",
	'з': "z", 'и': "i", 'й': "j", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t",
	'у': "u", 'ф': "f", 'х': "x", 'ь': "`",
}

// Slugify lowercases text, transliterates Cyrillic, folds Latin diacritics,
// joins words with hyphens and drops everything outside [A-Za-z0-9_-].
// It is pure and idempotent.
func Slugify(text string) string {
	lowered := strings.ToLower(text)

	var translit strings.Builder
	translit.Grow(len(lowered))
	for _, r := range lowered {
		if repl, ok := cyrillic[r]; ok {
			translit.WriteString(repl)
			continue
		}
		translit.WriteRune(r)
	}

	folded := foldMarks(translit.String())

	var out strings.Builder
	out.Grow(len(folded))
	pendingDash := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r) || r == '-':
			pendingDash = true
		case isWordChar(r):
			if pendingDash && out.Len() > 0 {
				out.WriteByte('-')
			}
			pendingDash = false
			out.WriteRune(r)
		}
	}
	return out.String()
}

// Truncate cuts s to at most n bytes. Slugs are ASCII so byte and rune
// boundaries coincide.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func isWordChar(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func foldMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
