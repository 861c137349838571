package schema

import (
	"fmt"
	"strings"
)

// FieldInfo describes a mappable target field for clients building field
// mappings.
type FieldInfo struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	Example    string `json:"example"`
	Required   bool   `json:"required"`
	HasDefault bool   `json:"hasDefaultValue"`
	RelationTo string `json:"relationTo,omitempty"`
	HasMany    *bool  `json:"hasMany,omitempty"`
}

// ExtractFields lists the mappable fields of a collection, the implicit id
// first. A field is reported as required only when it has no default, since
// defaults are filled in on create.
func ExtractFields(c Collection) []FieldInfo {
	out := []FieldInfo{{
		Name:       IdentityField,
		Label:      "ID",
		Type:       KindText.String(),
		Example:    "Auto-generated record ID",
		HasDefault: true,
	}}
	return appendFields(out, c.Fields, "")
}

func appendFields(out []FieldInfo, fields []FieldDescriptor, prefix string) []FieldInfo {
	for _, f := range fields {
		if f.Kind.IsLayout() {
			out = appendFields(out, f.Fields, prefix)
			continue
		}
		if f.Name == "" {
			continue
		}

		name := joinName(prefix, f.Name)
		label := strings.TrimSpace(f.Label)
		if label == "" {
			label = f.Name
		}

		info := FieldInfo{
			Name:       name,
			Label:      label,
			Type:       f.Kind.String(),
			Example:    exampleFor(f),
			Required:   f.Required && !f.HasDefault(),
			HasDefault: f.HasDefault(),
		}
		if f.Kind == KindRelationship || f.Kind == KindUpload {
			info.Type = fmt.Sprintf("%s (%s)", f.Kind, f.RelationTo)
			info.RelationTo = f.RelationTo
			hasMany := f.HasMany
			info.HasMany = &hasMany
		}
		out = append(out, info)

		if f.Kind == KindGroup {
			out = appendFields(out, f.Fields, name)
		}
	}
	return out
}

func exampleFor(f FieldDescriptor) string {
	if f.DefaultFunc != nil {
		return "[auto]"
	}
	switch v := f.DefaultValue.(type) {
	case nil:
	case string, bool, int, int64, float64:
		return fmt.Sprint(v)
	default:
		return "[auto]"
	}

	switch f.Kind {
	case KindCheckbox:
		return "true"
	case KindDate:
		return "2024-01-01"
	case KindNumber:
		switch f.Name {
		case "price", "cost":
			return "1000"
		case "quantity", "stock":
			return "50"
		}
		return "123"
	case KindSelect:
		if len(f.Options) > 0 {
			return f.Options[0]
		}
		return "option1"
	case KindRelationship:
		return "Record ID from " + f.RelationTo
	case KindRichText:
		return "Formatted text"
	case KindUpload:
		if f.HasMany {
			return "https://example.com/image1.jpg,https://example.com/image2.jpg"
		}
		return "https://example.com/image.jpg"
	case KindArray:
		return `[{"key": "value"}]`
	case KindText:
		switch f.Name {
		case "title", "name":
			return "Product title"
		case "slug":
			return "product-title"
		case "sku":
			return "SKU-001"
		case "email":
			return "user@example.com"
		}
		return "Text value"
	}
	return ""
}
