package core

// convert.go coerces raw source values into the shapes each field kind is
// stored as.
//
// Source data is messy: numbers arrive as "€12,50" or "in stock", lists arrive
// as JSON strings or comma-separated text, and rich text arrives as plain
// lines. Each coercion is total except relationship lists, where a value that
// is neither text nor a list fails the row.

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/docimport/internal/schema"
)

// Textual stock/availability tokens. Affirmative tokens are checked first and
// both lists match by substring.
var (
	affirmativeTokens = []string{"available", "in stock", "yes", "true"}
	negativeTokens    = []string{"not available", "no", "absent", "out of stock", "false"}
)

// nonNumericRegex strips everything except digits, commas and dots.
var nonNumericRegex = regexp.MustCompile(`[^\d.,]`)

// toNumber coerces a number field. Go numeric values pass through unchanged.
func toNumber(v any) any {
	switch n := v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return 0
	case string:
		return parseNumberText(n)
	default:
		return 0
	}
}

func parseNumberText(s string) any {
	lower := strings.ToLower(s)
	for _, tok := range affirmativeTokens {
		if strings.Contains(lower, tok) {
			return 1
		}
	}
	for _, tok := range negativeTokens {
		if strings.Contains(lower, tok) {
			return 0
		}
	}

	cleaned := nonNumericRegex.ReplaceAllString(s, "")
	cleaned = strings.Replace(cleaned, ",", ".", 1)
	return leadingFloat(cleaned)
}

// leadingFloat parses the longest decimal prefix of s, returning 0 when s
// has no leading digits.
func leadingFloat(s string) float64 {
	end, digits := 0, 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		frac := end + 1
		for frac < len(s) && s[frac] >= '0' && s[frac] <= '9' {
			frac++
			digits++
		}
		if frac > end+1 {
			end = frac
		}
	}
	if digits == 0 {
		return 0
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}

// richTextDocument converts plain text into a rich text root with one
// paragraph per non-blank line. Non-text input maps to nil.
func richTextDocument(v any) any {
	text, ok := v.(string)
	if !ok {
		return nil
	}

	var paragraphs []any
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paragraphs = append(paragraphs, paragraphNode([]any{textNode(line)}))
	}
	if len(paragraphs) == 0 {
		paragraphs = []any{paragraphNode([]any{})}
	}

	return map[string]any{
		"root": map[string]any{
			"type":      "root",
			"children":  paragraphs,
			"direction": nil,
			"format":    "",
			"indent":    0,
			"version":   1,
		},
	}
}

func paragraphNode(children []any) map[string]any {
	return map[string]any{
		"type":      "paragraph",
		"children":  children,
		"direction": nil,
		"format":    "",
		"indent":    0,
		"version":   1,
	}
}

func textNode(text string) map[string]any {
	return map[string]any{
		"type":    "text",
		"detail":  0,
		"format":  0,
		"mode":    "normal",
		"style":   "",
		"text":    text,
		"version": 1,
	}
}

// relationRef is a reference to a related document.
func relationRef(id any) map[string]any {
	return map[string]any{"id": id}
}

// relationshipValue wraps ids as references. Multi-valued fields accept a
// comma-separated string or a list.
func relationshipValue(v any, hasMany bool) (any, error) {
	if !hasMany {
		return relationRef(v), nil
	}

	if s, ok := v.(string); ok {
		parts := strings.Split(s, ",")
		refs := make([]any, len(parts))
		for i, p := range parts {
			refs[i] = relationRef(strings.TrimSpace(p))
		}
		return refs, nil
	}

	items, ok := toAnySlice(v)
	if !ok {
		return nil, fmt.Errorf("relationship value must be text or a list, got %T", v)
	}
	refs := make([]any, len(items))
	for i, item := range items {
		refs[i] = relationRef(item)
	}
	return refs, nil
}

// arrayValue coerces an array field. Text is parsed as JSON; anything that
// does not end up as a list becomes an empty list. Object items get an id
// when missing and relationship sub-fields are wrapped as references.
func arrayValue(v any, field string, idx schema.Index, now time.Time) []any {
	if s, ok := v.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			v = parsed
		}
		// On a parse failure v keeps the raw text and is emptied below.
	}

	items, ok := toAnySlice(v)
	if !ok {
		return []any{}
	}

	out := make([]any, len(items))
	for i, item := range items {
		obj, isObj := toObject(item)
		if !isObj {
			out[i] = item
			continue
		}

		processed := make(map[string]any, len(obj)+1)
		for k, val := range obj {
			processed[k] = val
		}
		if isFalsy(processed[identityField]) {
			processed[identityField] = fmt.Sprintf("item_%d_%d", i, now.UnixMilli())
		}

		for key, sub := range processed {
			entry, declared := idx.Lookup(field + "." + key)
			if !declared || entry.Kind != schema.KindRelationship {
				continue
			}
			processed[key] = wrapNestedRelation(sub)
		}
		out[i] = processed
	}
	return out
}

// wrapNestedRelation wraps string ids inside array items. Non-string list
// entries are left as they are.
func wrapNestedRelation(v any) any {
	if s, ok := v.(string); ok {
		return relationRef(s)
	}
	list, ok := toAnySlice(v)
	if !ok {
		return v
	}
	out := make([]any, len(list))
	for i, item := range list {
		if s, isStr := item.(string); isStr {
			out[i] = relationRef(s)
		} else {
			out[i] = item
		}
	}
	return out
}

// toAnySlice converts any slice or array value to []any.
func toAnySlice(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Row:
		return map[string]any(m), true
	case MappedRecord:
		return map[string]any(m), true
	}
	return nil, false
}

// isFalsy mirrors loose truthiness for id checks: absent, empty, zero or false.
func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0
	case int:
		return x == 0
	case json.Number:
		return x.String() == "0"
	}
	return false
}

// isEmptyValue reports whether a source cell counts as unset.
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
