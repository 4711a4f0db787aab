// Package restriction matches request paths against the glob deny-list applied
// to sessions while an administrator is impersonating another user.
//
// Patterns use two wildcards: `*` matches any run of characters (including
// none and including `/`), `?` matches exactly one character. Every other
// character is literal and the whole path must match.
package restriction

import (
	"regexp"
	"strings"
)

// DefaultRestrictedActions is attached to every new impersonation. The
// /api/admin/* entry keeps an impersonating admin from reaching admin
// endpoints with the borrowed identity.
var DefaultRestrictedActions = []string{
	"/api/billing/*",
	"/api/users/*/password",
	"/api/users/*/delete",
	"/api/payments/*",
	"/api/accounts/*/delete",
	"/api/stripe/*",
	"/api/admin/*",
}

// Defaults returns a copy of DefaultRestrictedActions
func Defaults() []string {
	out := make([]string, len(DefaultRestrictedActions))
	copy(out, DefaultRestrictedActions)
	return out
}

// GlobToRegexp compiles a glob pattern into an anchored regular expression
func GlobToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.Grow(len(pattern) + 8)
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Match reports whether endpoint matches a single pattern. Invalid patterns never match.
func Match(pattern, endpoint string) bool {
	re, err := GlobToRegexp(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(endpoint)
}

// FirstMatch returns the first pattern that matches endpoint
func FirstMatch(patterns []string, endpoint string) (string, bool) {
	for _, pattern := range patterns {
		if Match(pattern, endpoint) {
			return pattern, true
		}
	}
	return "", false
}
