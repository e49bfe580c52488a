package middleware

import (
	"strings"
)

// unsafeFragments are request-value substrings rejected outright. The token
// endpoints accept free-form device metadata, so injection fragments are
// filtered before any value reaches a query or a stored document.
var unsafeFragments = []string{
	"<script",
	"</script",
	"javascript:",
	"onerror=",
	"onload=",
	"$where",
	"'; drop ",
	"\"; drop ",
	" union select",
	"../",
	"..\\",
	"%2e%2e%2f",
	"\x00",
}

// UnsafeInput reports whether the value contains a known injection fragment.
// Matching is case-insensitive.
func UnsafeInput(value string) bool {
	lower := strings.ToLower(value)
	for _, fragment := range unsafeFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// FirstUnsafe returns the first offending field name, or "" when all values
// are clean.
func FirstUnsafe(fields map[string]string) string {
	for name, value := range fields {
		if UnsafeInput(value) {
			return name
		}
	}
	return ""
}
