package git

import (
	"strings"
)

// ExtractConflict returns the first CONFLICT line from rebase or merge output
func ExtractConflict(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if idx := strings.Index(line, "CONFLICT"); idx >= 0 {
			return strings.TrimRight(line[idx:], " \r")
		}
	}
	return ""
}
