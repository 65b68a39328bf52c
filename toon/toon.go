// Package toon renders structured data in a compact line-oriented form
// used for prompt payloads. It is an encoder only; prompts are consumed
// by the model, never parsed back.
package toon

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Encode renders a value. Maps are rendered with sorted keys so output is
// deterministic.
func Encode(value any) string {
	return render(value, 0)
}

// EncodeSecret renders the twenty-questions secret payload.
func EncodeSecret(target, category string, details map[string]any) string {
	lines := []string{
		"target: " + Encode(target),
		"category: " + Encode(category),
	}
	if len(details) > 0 {
		lines = append(lines, "details:")
		lines = append(lines, strings.Split(render(details, 2), "\n")...)
	}
	return strings.Join(lines, "\n")
}

// EncodePuzzle renders the turtle-soup puzzle payload. Category and
// difficulty are optional; difficulty uses a pointer so zero is encodable.
func EncodePuzzle(scenario, solution, category string, difficulty *int) string {
	lines := []string{
		"scenario: " + Encode(scenario),
		"solution: " + Encode(solution),
	}
	if category != "" {
		lines = append(lines, "category: "+Encode(category))
	}
	if difficulty != nil {
		lines = append(lines, "difficulty: "+Encode(*difficulty))
	}
	return strings.Join(lines, "\n")
}

func render(value any, indent int) string {
	if s, ok := scalar(value); ok {
		return s
	}
	if items, ok := asSlice(value); ok {
		return renderList(items, indent)
	}
	if m, ok := asStringMap(value); ok {
		return renderMap(m, indent)
	}
	return fmt.Sprint(value)
}

func renderList(items []any, indent int) string {
	if len(items) == 0 {
		return "[]"
	}
	if rows, ok := asMapRows(items); ok {
		if out, ok := renderTable("", rows, indent); ok {
			return out
		}
	}
	if allScalar(items) {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = render(item, 0)
		}
		return fmt.Sprintf("[%d]: %s", len(items), strings.Join(parts, ","))
	}
	pad := strings.Repeat(" ", indent)
	lines := []string{fmt.Sprintf("[%d]:", len(items))}
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s - %s", pad, render(item, indent+2)))
	}
	return strings.Join(lines, "\n")
}

// renderTable emits the uniform-keys object-list form:
// `key[N]{k1,k2}:` header plus one comma-joined row per element.
// Returns ok=false when the rows do not share an identical key set.
func renderTable(key string, rows []map[string]any, indent int) (string, bool) {
	cols, ok := uniformKeys(rows)
	if !ok {
		return "", false
	}
	pad := strings.Repeat(" ", indent)
	header := fmt.Sprintf("%s[%d]{%s}:", key, len(rows), strings.Join(cols, ","))
	lines := []string{header}
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = render(row[col], 0)
		}
		lines = append(lines, pad+" "+strings.Join(cells, ","))
	}
	return strings.Join(lines, "\n"), true
}

func renderMap(m map[string]any, indent int) string {
	if len(m) == 0 {
		return "{}"
	}
	pad := strings.Repeat(" ", indent)
	lines := make([]string, 0, len(m))
	for _, key := range sortedKeys(m) {
		value := m[key]
		if nested, ok := asStringMap(value); ok && len(nested) > 0 {
			lines = append(lines, pad+key+":")
			for _, sub := range sortedKeys(nested) {
				lines = append(lines, fmt.Sprintf("%s  %s: %s", pad, sub, render(nested[sub], indent+2)))
			}
			continue
		}
		if items, ok := asSlice(value); ok && len(items) > 0 {
			if rows, ok := asMapRows(items); ok {
				if table, ok := renderTable(pad+key, rows, len(pad)+1); ok {
					lines = append(lines, strings.Split(table, "\n")...)
					continue
				}
			}
		}
		lines = append(lines, fmt.Sprintf("%s%s: %s", pad, key, render(value, indent)))
	}
	return strings.Join(lines, "\n")
}

func scalar(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "null", true
	case bool:
		return strconv.FormatBool(v), true
	case string:
		return quoteIfNeeded(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 64), true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	}
	return "", false
}

// quoteIfNeeded double-quotes strings that would break the line format.
func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, ",:\n\"'") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

func allScalar(items []any) bool {
	for _, item := range items {
		if _, ok := scalar(item); !ok {
			return false
		}
	}
	return true
}

func asSlice(value any) ([]any, bool) {
	if v, ok := value.([]any); ok {
		return v, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asStringMap(value any) (map[string]any, bool) {
	if v, ok := value.(map[string]any); ok {
		return v, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	for _, k := range rv.MapKeys() {
		out[k.String()] = rv.MapIndex(k).Interface()
	}
	return out, true
}

func asMapRows(items []any) ([]map[string]any, bool) {
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row, ok := asStringMap(item)
		if !ok {
			return nil, false
		}
		rows = append(rows, row)
	}
	return rows, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func uniformKeys(rows []map[string]any) ([]string, bool) {
	if len(rows) == 0 {
		return nil, false
	}
	keys := sortedKeys(rows[0])
	for _, row := range rows[1:] {
		if len(row) != len(keys) {
			return nil, false
		}
		for _, k := range keys {
			if _, ok := row[k]; !ok {
				return nil, false
			}
		}
	}
	return keys, true
}
