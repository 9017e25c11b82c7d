package walk

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher holds compiled ignore patterns. Patterns match against the
// slash-normalized full path and against the base name, so "*.tmp" skips
// temp files anywhere in the tree.
type Matcher struct {
	patterns []glob.Glob
}

// NewMatcher compiles the given glob patterns. Blank lines and "#" comments
// are skipped, matching the convention of ignore files.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		g, err := glob.Compile(filepath.ToSlash(pattern))
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Match reports whether path hits any ignore pattern.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	normalized := filepath.ToSlash(path)
	for _, g := range m.patterns {
		if g.Match(normalized) || g.Match(filepath.Base(normalized)) {
			return true
		}
	}
	return false
}
