// Package xmlutil builds XML-delimited prompt sections from untrusted text.
package xmlutil

import (
	"encoding/xml"
	"strings"
)

// Escape replaces characters with special meaning in XML so user content
// cannot close or open tags inside a prompt template.
func Escape(s string) string {
	var buf strings.Builder
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		// EscapeText only fails on invalid UTF-8.
		return s
	}
	return buf.String()
}

// Wrap escapes s and encloses it in <tag>...</tag>.
func Wrap(tag, s string) string {
	return "<" + tag + ">" + Escape(s) + "</" + tag + ">"
}
