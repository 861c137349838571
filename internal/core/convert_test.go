package core

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/JonMunkholm/docimport/internal/schema"
)

// ----------------------------------------------------------------------------
// toNumber Tests
// ----------------------------------------------------------------------------

func TestToNumber(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  any
	}{
		// Numeric input passes through
		{name: "int", input: 5, want: 5},
		{name: "float", input: 2.5, want: 2.5},
		{name: "json number", input: json.Number("3.25"), want: 3.25},

		// Stock tokens
		{name: "in stock", input: "In Stock", want: 1},
		{name: "yes", input: "YES", want: 1},
		{name: "out of stock", input: "out of stock", want: 0},
		{name: "absent", input: "Absent", want: 0},
		// Affirmative tokens win: "not available" contains "available".
		{name: "not available", input: "not available", want: 1},

		// Text cleanup
		{name: "currency comma decimal", input: "€12,50", want: 12.5},
		{name: "thousands separator", input: "1,234.56", want: 1.234},
		{name: "minus sign stripped", input: "-5", want: float64(5)},
		{name: "plain decimal", input: "19.99 EUR", want: 19.99},
		{name: "no digits", input: "abc", want: float64(0)},

		// Other types
		{name: "bool", input: true, want: 0},
		{name: "map", input: map[string]any{"a": 1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toNumber(tt.input)
			if got != tt.want {
				t.Errorf("toNumber(%v) = %v (%T), want %v (%T)", tt.input, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestLeadingFloat(t *testing.T) {
	tests := map[string]float64{
		"12.5":    12.5,
		"1.2.3":   1.2,
		"7.":      7,
		".5":      0.5,
		"":        0,
		"42abc":   42,
		"0012.50": 12.5,
	}
	for in, want := range tests {
		if got := leadingFloat(in); got != want {
			t.Errorf("leadingFloat(%q) = %v, want %v", in, got, want)
		}
	}
}

// ----------------------------------------------------------------------------
// richTextDocument Tests
// ----------------------------------------------------------------------------

func paragraphTexts(t *testing.T, doc any) []string {
	t.Helper()
	root := doc.(map[string]any)["root"].(map[string]any)
	var texts []string
	for _, p := range root["children"].([]any) {
		children := p.(map[string]any)["children"].([]any)
		if len(children) == 0 {
			texts = append(texts, "")
			continue
		}
		texts = append(texts, children[0].(map[string]any)["text"].(string))
	}
	return texts
}

func TestRichTextDocument(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single line", input: "Hello", want: []string{"Hello"}},
		{name: "blank lines dropped", input: "first\n\n  second  \n", want: []string{"first", "second"}},
		{name: "crlf trimmed", input: "a\r\nb", want: []string{"a", "b"}},
		{name: "empty", input: "", want: []string{""}},
		{name: "whitespace only", input: " \n\t\n", want: []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paragraphTexts(t, richTextDocument(tt.input))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("paragraphs = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRichTextDocument_Shape(t *testing.T) {
	doc := richTextDocument("x").(map[string]any)
	root := doc["root"].(map[string]any)
	if root["type"] != "root" || root["version"] != 1 || root["format"] != "" {
		t.Errorf("unexpected root: %v", root)
	}
	para := root["children"].([]any)[0].(map[string]any)
	if para["type"] != "paragraph" {
		t.Errorf("child type = %v, want paragraph", para["type"])
	}
	text := para["children"].([]any)[0].(map[string]any)
	if text["type"] != "text" || text["mode"] != "normal" || text["text"] != "x" {
		t.Errorf("unexpected text node: %v", text)
	}
}

func TestRichTextDocument_NonString(t *testing.T) {
	if got := richTextDocument(42); got != nil {
		t.Errorf("richTextDocument(42) = %v, want nil", got)
	}
}

// ----------------------------------------------------------------------------
// relationshipValue Tests
// ----------------------------------------------------------------------------

func TestRelationshipValue(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		hasMany bool
		want    any
		wantErr bool
	}{
		{
			name:  "single",
			input: "abc",
			want:  map[string]any{"id": "abc"},
		},
		{
			name:  "single keeps non-string",
			input: 7,
			want:  map[string]any{"id": 7},
		},
		{
			name:    "many from text",
			input:   "a, b ,",
			hasMany: true,
			want:    []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}, map[string]any{"id": ""}},
		},
		{
			name:    "many from list",
			input:   []any{1, "x"},
			hasMany: true,
			want:    []any{map[string]any{"id": 1}, map[string]any{"id": "x"}},
		},
		{
			name:    "many from string slice",
			input:   []string{"p"},
			hasMany: true,
			want:    []any{map[string]any{"id": "p"}},
		},
		{
			name:    "many rejects scalar",
			input:   3.5,
			hasMany: true,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := relationshipValue(tt.input, tt.hasMany)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("relationshipValue = %#v, want %#v", got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// arrayValue Tests
// ----------------------------------------------------------------------------

func TestArrayValue(t *testing.T) {
	idx := schema.Index{
		"variants":        {Kind: schema.KindArray},
		"variants.sku":    {Kind: schema.KindText},
		"variants.author": {Kind: schema.KindRelationship},
		"variants.tags":   {Kind: schema.KindRelationship, HasMany: true},
	}
	now := time.UnixMilli(1700000000000)

	t.Run("json text with relationships", func(t *testing.T) {
		got := arrayValue(`[{"sku":"A","author":"u1","tags":["t1",5]},{"id":"keep","sku":"B"}]`, "variants", idx, now)
		want := []any{
			map[string]any{
				"id":     "item_0_1700000000000",
				"sku":    "A",
				"author": map[string]any{"id": "u1"},
				"tags":   []any{map[string]any{"id": "t1"}, float64(5)},
			},
			map[string]any{"id": "keep", "sku": "B"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("arrayValue = %#v\nwant %#v", got, want)
		}
	})

	t.Run("unparseable text becomes empty", func(t *testing.T) {
		got := arrayValue("not json", "variants", idx, now)
		if len(got) != 0 {
			t.Errorf("arrayValue = %v, want empty", got)
		}
	})

	t.Run("json object becomes empty", func(t *testing.T) {
		got := arrayValue(`{"sku":"A"}`, "variants", idx, now)
		if len(got) != 0 {
			t.Errorf("arrayValue = %v, want empty", got)
		}
	})

	t.Run("scalars pass through", func(t *testing.T) {
		got := arrayValue([]any{"x", 2}, "variants", idx, now)
		if !reflect.DeepEqual(got, []any{"x", 2}) {
			t.Errorf("arrayValue = %v", got)
		}
	})

	t.Run("empty id replaced", func(t *testing.T) {
		got := arrayValue([]any{map[string]any{"id": ""}}, "variants", idx, now)
		item := got[0].(map[string]any)
		if item["id"] != "item_0_1700000000000" {
			t.Errorf("id = %v", item["id"])
		}
	})

	t.Run("input item not mutated", func(t *testing.T) {
		in := map[string]any{"author": "u2"}
		arrayValue([]any{in}, "variants", idx, now)
		if _, has := in["id"]; has || in["author"] != "u2" {
			t.Errorf("input mutated: %v", in)
		}
	})
}

func TestIsEmptyValue(t *testing.T) {
	if !isEmptyValue(nil) || !isEmptyValue("") {
		t.Error("nil and empty string should be empty")
	}
	if isEmptyValue(0) || isEmptyValue(" ") || isEmptyValue(false) {
		t.Error("zero, space and false are values")
	}
}
