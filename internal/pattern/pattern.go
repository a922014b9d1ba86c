// Package pattern compiles Bitbucket Server branch permission patterns into
// regular expressions and resolves them against branch names.
//
// The pattern language is the Ant-like syntax documented for branch
// permissions:
//
//	?   one character, excluding path separators
//	*   zero or more characters, excluding path separators
//	**  zero or more path segments
//
// A pattern ending in "/" has "**" appended. Patterns only need to match a
// suffix of the fully qualified ref (refs/heads/...), taken at a segment
// boundary.
package pattern

import (
	"regexp"
	"strings"
	"sync"
)

// RefPrefix is prepended to a branch display name to form its fully
// qualified ref.
const RefPrefix = "refs/heads/"

// neverMatches detects patterns that start with "**" directly followed by a
// non-separator. Bitbucket never matches these.
var neverMatches = regexp.MustCompile(`\A\*\*[^/]`)

// Substitutions applied, in order, to the quoted pattern. "**" is handled
// first because its rules are stricter than those of a lone "*".
var (
	doubleStar = regexp.MustCompile(`(\A|/)\\\*\\\*(\z|/)`)
	singleStar = regexp.MustCompile(`\\\*`)
	question   = regexp.MustCompile(`\\\?`)
)

// Expression returns the anchored regular expression source for pattern.
// The second return value is false when the pattern can never match.
func Expression(pattern string) (string, bool) {
	if neverMatches.MatchString(pattern) {
		return "", false
	}
	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}

	expr := regexp.QuoteMeta(pattern)
	expr = doubleStar.ReplaceAllString(expr, "${1}([^/]+/)*([^/]+)?${2}")
	expr = singleStar.ReplaceAllLiteralString(expr, "[^/]*")
	expr = question.ReplaceAllLiteralString(expr, "[^/]")

	return `\A` + expr + `\z`, true
}

// Compile converts pattern into a regular expression. It returns nil and
// false for patterns that can never match.
func Compile(pattern string) (*regexp.Regexp, bool) {
	expr, ok := Expression(pattern)
	if !ok {
		return nil, false
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		// QuoteMeta output plus fixed substitutions always compiles.
		return nil, false
	}
	return re, true
}

// Matches reports whether pattern applies to the branch with the given
// display name (for example "bugfix/that/cool/perm-test").
func Matches(pattern, branch string) bool {
	re, ok := Compile(pattern)
	if !ok {
		return false
	}
	return matchRef(re, FullRef(branch))
}

// FullRef returns the fully qualified ref for a branch display name. Names
// that are already qualified are returned unchanged.
func FullRef(branch string) string {
	if strings.HasPrefix(branch, "refs/") {
		return branch
	}
	return RefPrefix + branch
}

// matchRef tries ref and then every shorter suffix obtained by dropping
// leading path segments, longest first.
//
//	refs/heads/bugfix/that/cool/perm-test
//	     heads/bugfix/that/cool/perm-test
//	           bugfix/that/cool/perm-test
//	                  ...
//	                            perm-test
func matchRef(re *regexp.Regexp, ref string) bool {
	segments := strings.Split(ref, "/")
	for i := range segments {
		if re.MatchString(strings.Join(segments[i:], "/")) {
			return true
		}
	}
	return false
}

// Matcher caches compiled patterns. It is safe for concurrent use.
type Matcher struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

// NewMatcher returns an empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{compiled: make(map[string]*regexp.Regexp)}
}

// Match reports whether pattern applies to ref. ref may be a display name or
// a fully qualified ref.
func (m *Matcher) Match(pattern, ref string) bool {
	re := m.lookup(pattern)
	if re == nil {
		return false
	}
	return matchRef(re, FullRef(ref))
}

// Filter returns the refs that pattern applies to, preserving input order.
func (m *Matcher) Filter(pattern string, refs []string) []string {
	re := m.lookup(pattern)
	if re == nil {
		return nil
	}
	var out []string
	for _, ref := range refs {
		if matchRef(re, FullRef(ref)) {
			out = append(out, ref)
		}
	}
	return out
}

// lookup returns the cached regexp for pattern, or nil for a pattern that
// never matches.
func (m *Matcher) lookup(pattern string) *regexp.Regexp {
	m.mu.Lock()
	defer m.mu.Unlock()

	if re, ok := m.compiled[pattern]; ok {
		return re
	}
	re, _ := Compile(pattern)
	m.compiled[pattern] = re
	return re
}
