package schema

import "sort"

// IdentityField is the implicit document id every collection carries.
const IdentityField = "id"

// Entry is the flattened view of one declared field.
type Entry struct {
	Kind       Kind
	RelationTo string
	HasMany    bool
	Required   bool
}

// Index maps dotted field names to their entries.
type Index map[string]Entry

// Build flattens a field tree. Layout containers contribute no entry and
// their children keep the enclosing prefix. Group and array fields get an
// entry and their children are prefixed with the field name. Unnamed fields
// other than layout containers are ignored. When two fields flatten to the
// same name the first one wins.
func Build(fields []FieldDescriptor) Index {
	idx := make(Index)
	idx.add(fields, "")
	return idx
}

func (idx Index) add(fields []FieldDescriptor, prefix string) {
	for _, f := range fields {
		if f.Kind.IsLayout() {
			idx.add(f.Fields, prefix)
			continue
		}
		if f.Name == "" {
			continue
		}

		name := joinName(prefix, f.Name)
		if _, exists := idx[name]; !exists {
			idx[name] = Entry{
				Kind:       f.Kind,
				RelationTo: f.RelationTo,
				HasMany:    f.HasMany,
				Required:   f.Required,
			}
		}

		if len(f.Fields) > 0 {
			idx.add(f.Fields, name)
		}
	}
}

// Lookup returns the entry for name.
func (idx Index) Lookup(name string) (Entry, bool) {
	e, ok := idx[name]
	return e, ok
}

// Names returns all flattened names in sorted order.
func (idx Index) Names() []string {
	names := make([]string, 0, len(idx))
	for name := range idx {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of flattened names.
func (idx Index) Len() int { return len(idx) }

func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
