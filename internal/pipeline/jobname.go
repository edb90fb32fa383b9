package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dataflow job names must match [a-z]([-a-z0-9]*[a-z0-9])? and fit 63 chars.
const maxJobNameLen = 63

// UniqueJobName derives a valid, unique job name from an arbitrary test
// name by sanitizing it and appending a timestamp plus random suffix.
func UniqueJobName(name string) string {
	suffix := time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	base := SanitizeJobName(name)
	budget := maxJobNameLen - len(suffix) - 1
	if len(base) > budget {
		base = strings.TrimRight(base[:budget], "-")
	}
	if base == "" {
		base = "job"
	}
	return base + "-" + suffix
}

// SanitizeJobName lowercases the name, replaces characters outside
// [a-z0-9-] with hyphens, and trims so the result starts with a letter and
// ends with a letter or digit. Returns "" when nothing usable remains.
func SanitizeJobName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	for len(s) > 0 && (s[0] < 'a' || s[0] > 'z') {
		s = s[1:]
	}
	return strings.TrimRight(s, "-")
}
