package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLen bounds generated and supplied slugs.
const MaxSlugLen = 100

// Slugify lower-cases title, drops every character that is not a word
// character or a space, collapses runs of spaces into single hyphens and cuts
// the result to MaxSlugLen without leaving a trailing hyphen. Accented letters
// are folded to their base letter first, so "Café" becomes "cafe".
func Slugify(title string) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	slug := strings.Join(strings.Fields(b.String()), "-")
	if len(slug) > MaxSlugLen {
		slug = strings.TrimRight(slug[:MaxSlugLen], "-")
	}
	return slug
}
