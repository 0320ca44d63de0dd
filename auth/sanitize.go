package auth

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// SanitizeUsername removes any HTML and trims whitespace from username
func SanitizeUsername(username string) string {
	cleaned := policy.Sanitize(username)
	cleaned = strings.TrimSpace(cleaned)
	return cleaned
}
