// Copyright 2025 The Scout Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package template implements the {{var}} interpolation used by strategy
// tool chains: dotted paths with bracketed integer indices, an optional
// "| shortlist:N" filter, list expressions for foreach, and truthiness
// evaluation for when conditions.
//
// The engine is deliberately forgiving: unresolved paths leave the token
// verbatim in string context and evaluate to absent in structured context.
// Strategies routinely render against partially populated state.
package template

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var (
	tokenRe     = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	segmentRe   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)((\[\d+\])*)$`)
	indexRe     = regexp.MustCompile(`\[(\d+)\]`)
	shortlistRe = regexp.MustCompile(`^(.*?)\s*\|\s*shortlist:(\d+)$`)
)

// RenderString replaces every {{path}} token in tpl with the stringified
// resolved value. Tokens whose path does not resolve are left untouched.
func RenderString(tpl string, vars map[string]any) string {
	if !strings.Contains(tpl, "{{") {
		return tpl
	}
	return tokenRe.ReplaceAllStringFunc(tpl, func(token string) string {
		expr := tokenRe.FindStringSubmatch(token)[1]
		value, ok := evalExpr(expr, vars)
		if !ok {
			return token
		}
		return Stringify(value)
	})
}

// RenderInputs renders a step's inputs mapping against vars. String values
// consisting of a single {{…}} token resolve to the underlying value (so
// list-typed inputs stay lists); other strings are interpolated in place.
// Non-string values pass through untouched, descending into nested maps
// and slices.
func RenderInputs(inputs map[string]any, vars map[string]any) map[string]any {
	if inputs == nil {
		return nil
	}
	out := make(map[string]any, len(inputs))
	for key, value := range inputs {
		out[key] = renderValue(value, vars)
	}
	return out
}

func renderValue(value any, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		if expr, ok := wholeToken(v); ok {
			if resolved, found := evalExpr(expr, vars); found {
				return resolved
			}
			return v
		}
		return RenderString(v, vars)
	case map[string]any:
		return RenderInputs(v, vars)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = renderValue(item, vars)
		}
		return out
	default:
		return value
	}
}

// EvalListExpr evaluates a {{…}} token (or bare path expression) expected
// to resolve to a sequence. Returns nil, false when the path is absent or
// the value is not a sequence.
func EvalListExpr(expr string, vars map[string]any) ([]any, bool) {
	if inner, ok := wholeToken(expr); ok {
		expr = inner
	}
	value, ok := evalExpr(strings.TrimSpace(expr), vars)
	if !ok {
		return nil, false
	}
	return toList(value)
}

// When evaluates a condition expression over vars. Missing paths and empty
// values are falsy. An empty expression is truthy (no condition).
func When(expr string, vars map[string]any) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}
	if inner, ok := wholeToken(expr); ok {
		expr = inner
	}
	if rest, negated := strings.CutPrefix(expr, "!"); negated {
		return !When(rest, vars)
	}
	value, ok := evalExpr(expr, vars)
	if !ok {
		return false
	}
	return Truthy(value)
}

// ResolvePath resolves a dotted/indexed path like "seed_results[0].url"
// against vars. Mapping keys are checked before struct fields.
func ResolvePath(path string, vars map[string]any) (any, bool) {
	var current any = vars
	for _, segment := range strings.Split(path, ".") {
		m := segmentRe.FindStringSubmatch(segment)
		if m == nil {
			return nil, false
		}
		name := m[1]

		next, ok := lookup(current, name)
		if !ok {
			return nil, false
		}
		current = next

		for _, idx := range indexRe.FindAllStringSubmatch(m[2], -1) {
			i, _ := strconv.Atoi(idx[1])
			item, ok := index(current, i)
			if !ok {
				return nil, false
			}
			current = item
		}
	}
	return current, true
}

// evalExpr resolves a path with an optional "| shortlist:N" filter.
func evalExpr(expr string, vars map[string]any) (any, bool) {
	if m := shortlistRe.FindStringSubmatch(expr); m != nil {
		value, ok := ResolvePath(strings.TrimSpace(m[1]), vars)
		if !ok {
			return nil, false
		}
		n, _ := strconv.Atoi(m[2])
		return shortlist(value, n), true
	}
	return ResolvePath(expr, vars)
}

// shortlist keeps the first n elements of an ordered sequence; non-sequence
// values are returned unchanged.
func shortlist(value any, n int) any {
	list, ok := toList(value)
	if !ok {
		return value
	}
	if n < len(list) {
		list = list[:n]
	}
	return list
}

func wholeToken(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	m := tokenRe.FindStringSubmatch(trimmed)
	if m != nil && m[0] == trimmed {
		return m[1], true
	}
	return "", false
}

func lookup(value any, name string) (any, bool) {
	switch v := value.(type) {
	case map[string]any:
		item, ok := v[name]
		return item, ok
	case map[string]string:
		item, ok := v[name]
		return item, ok
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := strings.Split(field.Tag.Get("json"), ",")[0]
		if tag == name || strings.EqualFold(field.Name, name) {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

func index(value any, i int) (any, bool) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if i < 0 || i >= rv.Len() {
		return nil, false
	}
	return rv.Index(i).Interface(), true
}

func toList(value any) ([]any, bool) {
	if list, ok := value.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Truthy reports general truthiness: nil, false, zero numbers, empty
// strings and empty sequences are falsy.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != "" && !strings.EqualFold(v, "false")
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}

// Stringify renders a resolved value for string interpolation. Sequences
// join with ", " so shortlisted lists read naturally inside prompts.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = Stringify(item)
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
