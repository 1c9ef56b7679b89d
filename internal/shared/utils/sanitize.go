package utils

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup from plugin-supplied display text and caps it
// at max runes. Entities are decoded so "&amp;" shows as "&".
func SanitizeText(text string, max int) string {
	clean := html.UnescapeString(strictPolicy.Sanitize(text))
	clean = strings.TrimSpace(clean)
	if max > 0 && utf8.RuneCountInString(clean) > max {
		clean = string([]rune(clean)[:max])
	}
	return clean
}
