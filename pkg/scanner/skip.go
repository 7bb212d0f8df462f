package scanner

import (
	"fmt"

	"github.com/moby/patternmatcher"
)

// SkipMatcher decides whether a directory name is excluded from a scan.
// Patterns are exact names or filepath.Match wildcards such as "*-tmp".
type SkipMatcher struct {
	pm *patternmatcher.PatternMatcher
}

// NewSkipMatcher compiles patterns. An empty list matches nothing.
func NewSkipMatcher(patterns []string) (*SkipMatcher, error) {
	var cleaned []string
	for _, p := range patterns {
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return &SkipMatcher{}, nil
	}

	pm, err := patternmatcher.New(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid skip pattern: %w", err)
	}
	return &SkipMatcher{pm: pm}, nil
}

// Match reports whether the directory base name should be skipped.
func (m *SkipMatcher) Match(name string) bool {
	if m == nil || m.pm == nil {
		return false
	}
	ok, err := m.pm.MatchesOrParentMatches(name)
	return err == nil && ok
}
