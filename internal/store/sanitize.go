package store

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Free text is stored as plain text. Markup is stripped and entities are
// decoded again so "A & B" round-trips unchanged.
var textPolicy = bluemonday.StrictPolicy()

// maxSanitizePasses bounds the strip/decode loop for nested entity encodings.
const maxSanitizePasses = 8

// plainText strips markup until decoding entities no longer reveals any, so
// "&lt;b&gt;" cannot smuggle a tag past the policy.
func plainText(s string) string {
	s = strings.TrimSpace(s)
	for range maxSanitizePasses {
		clean := textPolicy.Sanitize(s)
		decoded := strings.TrimSpace(html.UnescapeString(clean))
		if decoded == s {
			return decoded
		}
		s = decoded
	}
	// Still changing: keep the escaped form, which renders as text.
	return strings.TrimSpace(textPolicy.Sanitize(s))
}
