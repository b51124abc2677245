package capture

import "strings"

// ExclusionList is a deny-list of window title and application name
// substrings. While an excluded window is focused nothing is captured or
// hashed, so sensitive content never reaches the pipeline at all.
type ExclusionList struct {
	patterns []string
}

func NewExclusionList(patterns []string) *ExclusionList {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			normalized = append(normalized, strings.ToLower(p))
		}
	}
	return &ExclusionList{patterns: normalized}
}

// Matches reports whether the focused window is excluded. Matching is
// case-insensitive substring matching against both the title and the
// application name.
func (e *ExclusionList) Matches(title, app string) bool {
	if len(e.patterns) == 0 {
		return false
	}
	title = strings.ToLower(title)
	app = strings.ToLower(app)
	for _, p := range e.patterns {
		if strings.Contains(title, p) || strings.Contains(app, p) {
			return true
		}
	}
	return false
}
