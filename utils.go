package pgmodel

import (
	"strings"
	"unicode"
)

// snakeCase converts a Go field name to its snake_case column form.
// Initialism runs collapse, so "ID" becomes "id" and "HTTPCode" "http_code".
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(runes) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && !unicode.IsUpper(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
