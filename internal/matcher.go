package internal

import (
	"regexp"
	"sync"

	"github.com/lychee-technology/restmodel"
)

// Matcher selects mock pickers by their URL and body patterns. Compiled
// patterns are kept for the lifetime of the matcher.
type Matcher struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
}

// NewMatcher creates an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{compiled: make(map[string]*regexp.Regexp)}
}

// Select returns the first picker, in the given order, whose patterns both
// match. It returns nil when none matches.
func (m *Matcher) Select(pickers []restmodel.MockPicker, url, body string) (*restmodel.MockPicker, error) {
	for i := range pickers {
		ok, err := m.Matches(&pickers[i], url, body)
		if err != nil {
			return nil, err
		}
		if ok {
			return &pickers[i], nil
		}
	}
	return nil, nil
}

// Matches reports whether the picker accepts the request. A blank pattern
// matches anything; a pattern matches when it is found anywhere in the input.
// ^ and $ match at line boundaries, so an anchored pattern can pick out one
// line of a multi-line body.
func (m *Matcher) Matches(p *restmodel.MockPicker, url, body string) (bool, error) {
	ok, err := m.match("body_pattern", p.BodyPattern, body)
	if err != nil || !ok {
		return false, err
	}
	return m.match("url_pattern", p.URLPattern, url)
}

func (m *Matcher) match(field, pattern, input string) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	re, err := m.regexp(field, pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(input), nil
}

func (m *Matcher) regexp(field, pattern string) (*regexp.Regexp, error) {
	m.mu.RLock()
	re, ok := m.compiled[pattern]
	m.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return nil, restmodel.NewPatternCompileError(field, pattern, err)
	}

	m.mu.Lock()
	m.compiled[pattern] = re
	m.mu.Unlock()
	return re, nil
}
