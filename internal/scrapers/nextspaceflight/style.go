package nextspaceflight

import (
	"regexp"
	"strings"

	"launchsync/internal/launch"
)

var borderColorRegex = regexp.MustCompile(`(?i)border-color\s*:\s*([^;]+)`)

var borderColorStatus = map[string]launch.Status{
	"#45cf5d": launch.StatusSuccess,
	"#da3432": launch.StatusFailure,
	"#ff9900": launch.StatusPartialSuccess,
}

// StatusFromStyle resolves a card's outcome from the border color in its
// inline style.
func StatusFromStyle(style string) launch.Status {
	match := borderColorRegex.FindStringSubmatch(style)
	if match == nil {
		return launch.StatusUnknown
	}
	color := strings.ToLower(strings.TrimSpace(match[1]))
	if status, ok := borderColorStatus[color]; ok {
		return status
	}
	// rgba(255,255,255,...) borders mark cards with no outcome yet
	return launch.StatusUnknown
}
