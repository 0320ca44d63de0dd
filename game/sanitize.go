package game

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// sanitize strips HTML and surrounding whitespace from user-supplied
// text (game names, vote names, aliases) before it is stored.
func sanitize(input string) string {
	return strings.TrimSpace(policy.Sanitize(input))
}
