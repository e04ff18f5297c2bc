package mcp

import (
	"fmt"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Schema compatibility modes. Some MCP clients reject parts of JSON Schema, so
// tool schemas are rewritten per mode while the handlers keep enforcing every
// constraint and default themselves.
const (
	ModeClaude    = "claude"
	ModeGemini    = "gemini"
	ModeOpenAI    = "openai"
	ModeUniversal = "universal"
)

// ParseMode normalizes a mode name. ok is false for unknown values, in which
// case the claude mode is returned.
func ParseMode(s string) (mode string, ok bool) {
	switch m := strings.ToLower(strings.TrimSpace(s)); m {
	case "":
		return ModeClaude, true
	case ModeClaude, ModeGemini, ModeOpenAI, ModeUniversal:
		return m, true
	default:
		return ModeClaude, false
	}
}

func stripsConstraints(mode string) bool {
	return mode == ModeGemini || mode == ModeUniversal
}

func stripsDefaults(mode string) bool {
	return mode != ModeClaude
}

// adaptTool rewrites a tool's input schema for mode. Removed constraints and
// defaults are folded into the property descriptions.
func adaptTool(t mcpgo.Tool, mode string) mcpgo.Tool {
	if mode == ModeClaude {
		return t
	}
	props := make(map[string]any, len(t.InputSchema.Properties))
	for name, p := range t.InputSchema.Properties {
		if m, ok := p.(map[string]any); ok {
			props[name] = adaptSchema(m, mode)
			continue
		}
		props[name] = p
	}
	if len(props) == 0 && stripsConstraints(mode) {
		props["random_string"] = map[string]any{
			"type":        "string",
			"description": "Dummy parameter for no-parameter tools",
		}
	}
	t.InputSchema.Properties = props
	return t
}

func adaptSchema(in map[string]any, mode string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	desc, _ := out["description"].(string)

	if stripsConstraints(mode) {
		var cons []string
		for _, k := range []struct{ key, label string }{
			{"minItems", "min items"},
			{"maxItems", "max items"},
			{"minimum", "min"},
			{"maximum", "max"},
		} {
			if v, ok := out[k.key]; ok {
				cons = append(cons, fmt.Sprintf("%s: %v", k.label, v))
				delete(out, k.key)
			}
		}
		if len(cons) > 0 {
			desc += " (" + strings.Join(cons, ", ") + ")"
		}
		if enum, ok := out["enum"]; ok {
			desc += ". Valid options: " + joinAny(enum)
			delete(out, "enum")
		}
	}
	if stripsDefaults(mode) {
		if d, ok := out["default"]; ok {
			desc += fmt.Sprintf(" (default: %v)", d)
			delete(out, "default")
		}
	}
	if desc != "" {
		out["description"] = desc
	}

	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = adaptSchema(items, mode)
	}
	if nested, ok := out["properties"].(map[string]any); ok {
		props := make(map[string]any, len(nested))
		for name, p := range nested {
			if m, ok := p.(map[string]any); ok {
				props[name] = adaptSchema(m, mode)
				continue
			}
			props[name] = p
		}
		out["properties"] = props
	}
	return out
}

func joinAny(v any) string {
	switch vals := v.(type) {
	case []string:
		return strings.Join(vals, ", ")
	case []any:
		parts := make([]string, 0, len(vals))
		for _, x := range vals {
			parts = append(parts, fmt.Sprint(x))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}
