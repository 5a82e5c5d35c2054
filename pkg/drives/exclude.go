package drives

import (
	"strings"

	"github.com/aundhe1m/backy-agent/pkg/types"
)

// Excluded reports whether the drive matches any exclusion pattern. A
// pattern matches the drive's path exactly, or as a prefix when it ends in
// '*'; the same rule applies to the bare device name after stripping any
// /dev/ prefix from the pattern.
func Excluded(d *types.Drive, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if matchGlob(d.Path, pattern) {
			return true
		}
		if matchGlob(d.Name, strings.TrimPrefix(pattern, "/dev/")) {
			return true
		}
	}
	return false
}

func matchGlob(value, pattern string) bool {
	if value == "" {
		return false
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return value == pattern
}
