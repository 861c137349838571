// Package schema describes collections as trees of field descriptors and
// flattens them into the name-keyed Index the import mapper works from.
package schema

import "strings"

// Kind is the declared type of a field.
type Kind int

const (
	KindOther Kind = iota
	KindText
	KindNumber
	KindCheckbox
	KindDate
	KindSelect
	KindRelationship
	KindUpload
	KindRichText
	KindArray
	KindGroup

	// Layout-only containers. They group fields visually and never appear
	// in an Index or in stored documents.
	KindRow
	KindTabs
	KindCollapsible
)

var kindNames = map[Kind]string{
	KindOther:        "other",
	KindText:         "text",
	KindNumber:       "number",
	KindCheckbox:     "checkbox",
	KindDate:         "date",
	KindSelect:       "select",
	KindRelationship: "relationship",
	KindUpload:       "upload",
	KindRichText:     "richText",
	KindArray:        "array",
	KindGroup:        "group",
	KindRow:          "row",
	KindTabs:         "tabs",
	KindCollapsible:  "collapsible",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "other"
}

// IsLayout reports whether k is a presentational container.
func (k Kind) IsLayout() bool {
	return k == KindRow || k == KindTabs || k == KindCollapsible
}

// ParseKind maps a wire name to a Kind. Matching is case-insensitive and
// unknown names map to KindOther.
func ParseKind(name string) Kind {
	name = strings.TrimSpace(name)
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return k
		}
	}
	return KindOther
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	*k = ParseKind(string(text))
	return nil
}
