package pattern

import (
	"regexp"
	"strings"
)

// wildcard is the only metacharacter recognised in exclusion patterns.
const wildcard = "*"

// Matches reports whether candidate matches the wildcard pattern.
//
// A "*" matches any run of characters, including none. Every other character
// is literal, so "sensor.*" does not treat the dot as "any character". The
// match covers the whole candidate and ignores case.
//
// An empty pattern matches only the empty string. A pattern that cannot be
// compiled never matches.
func Matches(candidate, pattern string) bool {
	re, err := compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(candidate)
}

// MatchesAny reports whether candidate matches at least one of patterns.
// An empty pattern list matches nothing.
func MatchesAny(candidate string, patterns []string) bool {
	for _, p := range patterns {
		if Matches(candidate, p) {
			return true
		}
	}
	return false
}

// compile turns a wildcard pattern into an anchored, case-insensitive regexp.
func compile(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, wildcard)
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("(?is)^" + strings.Join(parts, ".*") + "$")
}

// Set is a list of wildcard patterns compiled once for repeated matching.
//
// The zero value and a nil *Set match nothing. A Set is immutable after
// construction and safe for concurrent use.
type Set struct {
	raw      []string
	compiled []*regexp.Regexp
}

// NewSet compiles patterns into a Set. Blank entries are dropped and
// surrounding whitespace is trimmed; patterns that fail to compile are kept in
// Patterns() but never match.
func NewSet(patterns []string) *Set {
	s := &Set{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		s.raw = append(s.raw, p)
		if re, err := compile(p); err == nil {
			s.compiled = append(s.compiled, re)
		}
	}
	return s
}

// Match reports whether candidate matches any pattern in the set.
func (s *Set) Match(candidate string) bool {
	if s == nil {
		return false
	}
	for _, re := range s.compiled {
		if re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// Len returns the number of patterns in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.raw)
}

// Patterns returns a copy of the source patterns.
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.raw))
	copy(out, s.raw)
	return out
}
