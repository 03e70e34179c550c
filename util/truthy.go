package util

import "strings"

// Truthy reports whether s spells an enabled switch, as used by env
// vars like SENTRY_DEBUG: true, 1, yes or on, in any case.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}

	return false
}
