package search

import (
	"strings"
	"unicode"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

// Strategy names reported in models.SearchResult.Strategy.
const (
	StrategyExact    = "exact"
	StrategyFulltext = "fulltext"
	StrategyEmpty    = "empty"
)

// VectorStrategy names the strategy of a vector search in mode.
func VectorStrategy(mode models.SearchMode) string {
	return "vector:" + string(mode)
}

var (
	interrogatives  = []string{"what", "how", "why"}
	contentCues     = []string{"what is", "who is", "tell me about", "explain"}
	observationCues = []string{"does", "can", "did", "involved in", "related to"}
)

// Route is the plan chosen for a free-text query.
type Route struct {
	// Exact is set when an exact name lookup is tried before vector search.
	Exact bool
	// Names are the candidate names for the exact lookup.
	Names []string
	// Mode is the embedding space used when the exact lookup is skipped or empty.
	Mode models.SearchMode
}

// Classify picks a route from the shape of the query alone. Cues match whole
// words only, so "can" does not fire on "candidate".
func Classify(query string) Route {
	fields := strings.Fields(query)
	tokens := tokenize(query)

	route := Route{Mode: models.SearchModeContent}
	if len(fields) > 0 && len(fields) <= 2 && !containsAny(tokens, interrogatives) {
		route.Exact = true
		route.Names = exactNames(query, fields)
	}

	switch {
	case containsAny(tokens, contentCues):
		route.Mode = models.SearchModeContent
	case containsAny(tokens, observationCues):
		route.Mode = models.SearchModeObservations
	}
	return route
}

// exactNames returns the individual words plus the whole trimmed query, so
// both "Vitalik" and "Vitalik Buterin" can match.
func exactNames(query string, fields []string) []string {
	names := append([]string{}, fields...)
	if len(fields) > 1 {
		names = append(names, strings.Join(fields, " "))
	}
	if trimmed := strings.TrimSpace(query); trimmed != strings.Join(fields, " ") {
		names = append(names, trimmed)
	}
	return models.DedupeStrings(names)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func containsAny(tokens []string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(tokens, strings.Fields(p)) {
			return true
		}
	}
	return false
}

func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, w := range phrase {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
