package review

import (
	"regexp"
	"strconv"
	"strings"

	arcerrors "arcstack.dev/arcstack/internal/errors"
)

var differentialRevisionLine = regexp.MustCompile(`(?mi)^\s*Differential Revision:\s*(?:\S*/)?D(\d+)\s*$`)

// ParseRevisionID extracts the revision id from a "Differential Revision:"
// trailer of a commit message. It returns 0 when there is none.
func ParseRevisionID(message string) int {
	matches := differentialRevisionLine.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return 0
	}
	// The last trailer wins, matching how amended messages accumulate.
	id, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil {
		return 0
	}
	return id
}

// NormalizeRevisionID accepts "D123", "d123" or "123"
func NormalizeRevisionID(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "D"), "d")
	id, err := strconv.Atoi(trimmed)
	if err != nil || id <= 0 {
		return 0, arcerrors.NewUsageError("invalid revision id %q", value)
	}
	return id, nil
}
