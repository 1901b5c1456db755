package cache

import (
	"strings"
)

// GenerateKey joins key segments with ':'. Empty segments are skipped, so
// GenerateKey("", "EURUSD", "last_signal") yields "EURUSD:last_signal".
func GenerateKey(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}

// BuildPattern creates a Redis pattern for key matching.
func BuildPattern(prefix string) string {
	return prefix + "*"
}

