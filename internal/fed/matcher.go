package fed

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultBanPatterns covers the acknowledgment phrasing of the common
// federation bots (Rose-style and forks). Any one phrase counts.
var DefaultBanPatterns = []string{
	"New FedBan",
	"starting a federation ban",
	"Starting a federation ban",
	"start a federation ban",
	"FedBan Reason update",
	"FedBan reason updated",
	"Would you like to update this reason",
}

var DefaultUnbanPatterns = []string{
	"New un-FedBan",
	"I'll give",
	"Un-FedBan",
}

// Matcher recognizes acknowledgment replies. Patterns are regular
// expressions matched anywhere in the message text; plain phrases work
// as-is since they contain no metacharacters.
type Matcher struct {
	re []*regexp.Regexp
}

func NewMatcher(patterns []string) (*Matcher, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("matcher needs at least one pattern")
	}
	m := &Matcher{re: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		m.re = append(m.re, re)
	}
	if len(m.re) == 0 {
		return nil, fmt.Errorf("matcher needs at least one pattern")
	}
	return m, nil
}

func MustMatcher(patterns []string) *Matcher {
	m, err := NewMatcher(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Matcher) Match(text string) bool {
	for _, re := range m.re {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
