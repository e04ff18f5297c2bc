package models

import "fmt"

// SearchMode selects the embedding space used by vector search.
type SearchMode string

const (
	SearchModeContent      SearchMode = "content"
	SearchModeObservations SearchMode = "observations"
	SearchModeIdentity     SearchMode = "identity"
)

// ValidSearchModes is the set of all valid search modes.
var ValidSearchModes = []SearchMode{
	SearchModeContent,
	SearchModeObservations,
	SearchModeIdentity,
}

// IsValid returns true if the search mode is recognized.
func (m SearchMode) IsValid() bool {
	for _, v := range ValidSearchModes {
		if m == v {
			return true
		}
	}
	return false
}

// ParseSearchMode maps an empty string to SearchModeContent and rejects unknown modes.
func ParseSearchMode(s string) (SearchMode, error) {
	if s == "" {
		return SearchModeContent, nil
	}
	m := SearchMode(s)
	if !m.IsValid() {
		return "", &ValidationError{
			Field:  "mode",
			Reason: fmt.Sprintf("%q is not one of content, observations, identity", s),
		}
	}
	return m, nil
}
