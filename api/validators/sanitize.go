package validators

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// MaxProductIDLen bounds product ids accepted in paths and bodies.
const MaxProductIDLen = 64

// SanitizeString trims input, drops control characters and cuts the result
// to at most maxLen bytes on a rune boundary. maxLen <= 0 keeps it whole.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input))
	if maxLen <= 0 || len(cleaned) <= maxLen {
		return cleaned
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return cleaned[:cut]
}

// ProductIDParam decodes a product id taken from a path segment. The cart
// client percent-encodes ids, so "a%20b" names product "a b".
func ProductIDParam(raw string) (string, error) {
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid productId")
	}
	id := SanitizeString(unescaped, 0)
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}
	if len(id) > MaxProductIDLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "productId too long").
			WithDetails(map[string]any{"max_length": MaxProductIDLen})
	}
	return id, nil
}
