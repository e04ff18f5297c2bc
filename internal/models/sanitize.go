package models

import (
	"fmt"
	"strings"
)

// labelPrefix is prepended to sanitized labels that would otherwise not start with a letter.
const labelPrefix = "Label"

// SanitizeLabel turns a caller-supplied label into a CamelCase identifier made of
// ASCII letters and digits only. Any other character acts as a word boundary.
// It returns "" when nothing alphanumeric remains.
//
//	"machine learning" -> "MachineLearning"
//	"high_priority"    -> "HighPriority"
//	"3d"               -> "Label3d"
func SanitizeLabel(raw string) string {
	words := strings.FieldsFunc(raw, func(r rune) bool { return !isASCIIAlnum(r) })
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	for _, w := range words {
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	out := b.String()
	if !isASCIILetter(rune(out[0])) {
		out = labelPrefix + out
	}
	return out
}

// SanitizeLabels sanitizes every label, drops empty results and duplicates, and
// rejects the set when more than MaxLabels remain.
func SanitizeLabels(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		l := SanitizeLabel(r)
		if l == "" || l == BaseLabel {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	if len(out) > MaxLabels {
		return nil, &ValidationError{
			Field:  "labels",
			Reason: fmt.Sprintf("at most %d labels are allowed, got %d after sanitization", MaxLabels, len(out)),
		}
	}
	return out, nil
}

// SanitizeRelationType replaces every non-alphanumeric character with '_'.
// A type with no alphanumeric character at all is malformed.
func SanitizeRelationType(raw string) (string, error) {
	var b strings.Builder
	hasAlnum := false
	for _, r := range raw {
		if isASCIIAlnum(r) {
			b.WriteRune(r)
			hasAlnum = true
			continue
		}
		b.WriteByte('_')
	}
	if !hasAlnum {
		return "", &ValidationError{
			Field:  "relationType",
			Reason: fmt.Sprintf("%q contains no alphanumeric characters", raw),
		}
	}
	return b.String(), nil
}

// IsSafeIdentifier reports whether s may be spliced, backquoted, into the
// structural position of a graph query: non-empty, ASCII letters, digits and '_' only.
func IsSafeIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isASCIIAlnum(r) && r != '_' {
			return false
		}
	}
	return true
}

// DedupeStrings removes duplicates, keeping first-seen order.
func DedupeStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isASCIIAlnum(r rune) bool {
	return isASCIILetter(r) || (r >= '0' && r <= '9')
}
