package folders

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// letters that carry no combining mark under NFD
var strokes = map[rune]rune{
	'ł': 'l', 'Ł': 'L',
	'ø': 'o', 'Ø': 'O',
	'đ': 'd', 'Đ': 'D',
	'ħ': 'h', 'Ħ': 'H',
	'ı': 'i',
}

var ligatures = strings.NewReplacer("ß", "ss", "æ", "ae", "œ", "oe", "þ", "th")

func unstroke(r rune) rune {
	if m, ok := strokes[r]; ok {
		return m
	}
	return r
}

// Normalize folds a folder name for matching: diacritics and strokes are
// stripped, ligatures expanded, the result is lowercased and every run of
// non-alphanumerics becomes one space.
func Normalize(name string) string {
	// transform.Chain is stateful; build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), runes.Map(unstroke), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = ligatures.Replace(strings.ToLower(folded))

	var b strings.Builder
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Tokens returns the normalized tokens of name
func Tokens(name string) []string {
	return strings.Fields(Normalize(name))
}

// providerPrefix returns the bracketed top-level component of path, such as
// "[Gmail]", or "" when there is none
func providerPrefix(path, delimiter string) string {
	if delimiter == "" || !strings.HasPrefix(path, "[") {
		return ""
	}
	first := path
	if i := strings.Index(path, delimiter); i >= 0 {
		first = path[:i]
	}
	if first == path || !strings.HasSuffix(first, "]") {
		return ""
	}
	return first
}

// leaf returns the last hierarchy component of path
func leaf(path, delimiter string) string {
	if delimiter == "" {
		return path
	}
	if i := strings.LastIndex(path, delimiter); i >= 0 {
		return path[i+len(delimiter):]
	}
	return path
}
