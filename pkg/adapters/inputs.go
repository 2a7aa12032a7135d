package adapters

import (
	"strconv"

	"github.com/scopeworks/scout/pkg/template"
)

// StringInput returns the first present key as a string.
func StringInput(inputs map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := inputs[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			return template.Stringify(v)
		}
	}
	return ""
}

// IntInput returns the first present key as an int, or fallback.
func IntInput(inputs map[string]any, fallback int, keys ...string) int {
	for _, key := range keys {
		v, ok := inputs[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		case string:
			if parsed, err := strconv.Atoi(n); err == nil {
				return parsed
			}
		}
	}
	return fallback
}

// BoolInput returns the first present key as a bool pointer, or nil when
// no key resolves to a boolean.
func BoolInput(inputs map[string]any, keys ...string) *bool {
	for _, key := range keys {
		v, ok := inputs[key]
		if !ok {
			continue
		}
		switch b := v.(type) {
		case bool:
			return &b
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return &parsed
			}
		}
	}
	return nil
}

// FloatInput returns the first present key as a float pointer, or nil.
func FloatInput(inputs map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		v, ok := inputs[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return &n
		case int:
			f := float64(n)
			return &f
		case string:
			if parsed, err := strconv.ParseFloat(n, 64); err == nil {
				return &parsed
			}
		}
	}
	return nil
}

// StringListInput returns the first present key as a string slice. Scalar
// strings become a one-element slice; list items are stringified. Items
// that are evidence-shaped maps or structs contribute their url field.
func StringListInput(inputs map[string]any, keys ...string) []string {
	for _, key := range keys {
		v, ok := inputs[key]
		if !ok {
			continue
		}
		switch list := v.(type) {
		case string:
			if list == "" {
				return nil
			}
			return []string{list}
		case []string:
			return list
		default:
			return stringifyList(v)
		}
	}
	return nil
}

func stringifyList(v any) []string {
	items, ok := template.EvalListExpr("items", map[string]any{"items": v})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		// Prefer a url field when the item is a record.
		if url, ok := template.ResolvePath("item.url", map[string]any{"item": item}); ok {
			out = append(out, template.Stringify(url))
			continue
		}
		out = append(out, template.Stringify(item))
	}
	return out
}
