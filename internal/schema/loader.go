package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// schemaFile is the on-disk shape of collection definitions.
type schemaFile struct {
	Collections []collectionYAML `yaml:"collections"`
}

type collectionYAML struct {
	Slug   string      `yaml:"slug"`
	Label  string      `yaml:"label"`
	Upload bool        `yaml:"upload"`
	Fields []fieldYAML `yaml:"fields"`
}

type fieldYAML struct {
	Name        string      `yaml:"name"`
	Label       string      `yaml:"label"`
	Type        string      `yaml:"type"`
	Required    bool        `yaml:"required"`
	Default     any         `yaml:"default"`
	DefaultFrom string      `yaml:"default_from"` // principal.id, principal.name, now
	RelationTo  string      `yaml:"relation_to"`
	HasMany     bool        `yaml:"has_many"`
	Options     []string    `yaml:"options"`
	Fields      []fieldYAML `yaml:"fields"`
}

// LoadFile reads collection definitions from a YAML file.
func LoadFile(path string) ([]Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}
	cols, err := LoadYAML(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return cols, nil
}

// LoadYAML decodes collection definitions. Slugs must be unique within the
// document. Unknown field types load as KindOther.
func LoadYAML(r io.Reader) ([]Collection, error) {
	var doc schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	seen := make(map[string]bool, len(doc.Collections))
	out := make([]Collection, 0, len(doc.Collections))
	for i, cy := range doc.Collections {
		if cy.Slug == "" {
			return nil, fmt.Errorf("collection %d: slug is required", i+1)
		}
		if seen[cy.Slug] {
			return nil, fmt.Errorf("duplicate collection slug %q", cy.Slug)
		}
		seen[cy.Slug] = true

		fields, err := convertFields(cy.Fields, cy.Slug)
		if err != nil {
			return nil, err
		}
		out = append(out, Collection{
			Slug:   cy.Slug,
			Label:  cy.Label,
			Upload: cy.Upload,
			Fields: fields,
		})
	}
	return out, nil
}

func convertFields(in []fieldYAML, path string) ([]FieldDescriptor, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]FieldDescriptor, 0, len(in))
	for _, fy := range in {
		kind := ParseKind(fy.Type)
		fieldPath := path + "." + fy.Name

		if (kind == KindRelationship || kind == KindUpload) && fy.RelationTo == "" {
			return nil, fmt.Errorf("%s: %s field requires relation_to", fieldPath, kind)
		}

		children, err := convertFields(fy.Fields, fieldPath)
		if err != nil {
			return nil, err
		}

		fd := FieldDescriptor{
			Name:         fy.Name,
			Label:        fy.Label,
			Kind:         kind,
			Required:     fy.Required,
			DefaultValue: fy.Default,
			RelationTo:   fy.RelationTo,
			HasMany:      fy.HasMany,
			Options:      fy.Options,
			Fields:       children,
		}
		if fy.DefaultFrom != "" {
			fn, err := defaultFrom(fy.DefaultFrom)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fieldPath, err)
			}
			fd.DefaultFunc = fn
		}
		out = append(out, fd)
	}
	return out, nil
}

func defaultFrom(source string) (DefaultFunc, error) {
	switch source {
	case "principal.id", "principal.name":
		return func(dc DefaultContext) (any, error) {
			if dc.Principal == nil {
				return nil, fmt.Errorf("no principal on import")
			}
			if source == "principal.id" {
				return dc.Principal.ID, nil
			}
			return dc.Principal.Name, nil
		}, nil
	case "now":
		return func(dc DefaultContext) (any, error) {
			return dc.Now.UTC().Format(time.RFC3339), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown default_from %q", source)
	}
}
