// Package photos finds issue photos in a capture directory, either by
// scanning the existing backlog or by watching for new files.
package photos

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns select the images the classifier accepts.
var DefaultPatterns = []string{"**/*.{jpg,jpeg,png}"}

// Matcher selects photo files by doublestar pattern. Matching ignores case.
type Matcher struct {
	patterns []string
}

// NewMatcher validates patterns. An empty list uses DefaultPatterns.
func NewMatcher(patterns []string) (*Matcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid photo pattern %q", p)
		}
		normalized = append(normalized, p)
	}
	return &Matcher{patterns: normalized}, nil
}

// Match reports whether relPath (slash separated, relative to the capture
// directory) is a photo.
func (m *Matcher) Match(relPath string) bool {
	relPath = strings.ToLower(relPath)
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}
