package schema

import "time"

// Principal identifies who an import runs on behalf of.
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DefaultContext is passed to computed defaults.
type DefaultContext struct {
	Principal  *Principal
	Collection string
	Now        time.Time
}

// DefaultFunc computes a field default at import time.
type DefaultFunc func(DefaultContext) (any, error)

// FieldDescriptor declares one field of a collection. Group, array and layout
// fields carry their children in Fields.
type FieldDescriptor struct {
	Name         string
	Label        string
	Kind         Kind
	Required     bool
	DefaultValue any
	DefaultFunc  DefaultFunc
	RelationTo   string
	HasMany      bool
	Options      []string
	Fields       []FieldDescriptor
}

// HasDefault reports whether a literal or computed default is declared.
func (f FieldDescriptor) HasDefault() bool {
	return f.DefaultValue != nil || f.DefaultFunc != nil
}

// Default resolves the declared default. Computed defaults take precedence
// over literals.
func (f FieldDescriptor) Default(dc DefaultContext) (any, error) {
	if f.DefaultFunc != nil {
		return f.DefaultFunc(dc)
	}
	return f.DefaultValue, nil
}

// Collection is a named set of fields. Upload collections hold media
// documents created from fetched files.
type Collection struct {
	Slug   string
	Label  string
	Upload bool
	Fields []FieldDescriptor
}

// Index flattens the collection's fields.
func (c Collection) Index() Index {
	return Build(c.Fields)
}
