package gateway

import "strings"

// MatchOrigin reports whether origin satisfies pattern. Patterns are an
// exact origin, "*", "scheme://host:*" (any port) or "scheme://*.domain"
// (any subdomain).
func MatchOrigin(origin, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return origin == pattern
	}

	if prefix, ok := strings.CutSuffix(pattern, ":*"); ok {
		host := origin
		if idx := strings.LastIndex(origin, ":"); idx > strings.Index(origin, "//") {
			host = origin[:idx]
		}
		return host == prefix
	}

	for _, scheme := range []string{"https://", "http://", "ws://", "wss://"} {
		suffix, ok := strings.CutPrefix(pattern, scheme+"*")
		if !ok || !strings.HasPrefix(suffix, ".") {
			continue
		}
		host, ok := strings.CutPrefix(origin, scheme)
		if !ok {
			return false
		}
		return strings.HasSuffix(host, suffix) && len(host) > len(suffix) && !strings.HasPrefix(host, "*")
	}
	return false
}
