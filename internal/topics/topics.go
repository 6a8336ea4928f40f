// Package topics implements pattern matching for dot-separated topic names.
package topics

import "strings"

// Match reports whether topic matches the subscription pattern.
// Patterns are either exact topic names or suffix wildcards: a pattern ending
// in ".*" matches the prefix plus any deeper levels, e.g. "events.*" matches
// "events.user" and "events.user.created" but not "events" itself.
// A bare "*" matches every topic.
func Match(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == topic {
		return true
	}
	if !strings.HasSuffix(pattern, ".*") {
		return false
	}
	prefix := pattern[:len(pattern)-1] // keep trailing dot
	return strings.HasPrefix(topic, prefix) && len(topic) > len(prefix)
}

// Valid reports whether the pattern is well-formed: wildcards may only appear
// as the final level.
func Valid(pattern string) bool {
	if pattern == "" {
		return false
	}
	if i := strings.Index(pattern, "*"); i >= 0 && i != len(pattern)-1 {
		return false
	}
	if strings.HasSuffix(pattern, "*") {
		return pattern == "*" || strings.HasSuffix(pattern, ".*")
	}
	return true
}
