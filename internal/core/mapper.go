package core

// mapper.go converts one source row into a record keyed by collection field
// names. Mapping never touches the store except through MediaIngestor.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/docimport/internal/schema"
)

// RowMapper maps source rows using field mappings and a schema index.
type RowMapper struct {
	media  *MediaIngestor
	logger *slog.Logger
	now    func() time.Time
}

// NewRowMapper creates a mapper. media may be nil when the collection has no
// upload fields.
func NewRowMapper(media *MediaIngestor, logger *slog.Logger) *RowMapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RowMapper{media: media, logger: logger, now: time.Now}
}

// Map converts row (1-based number rowNum) into a MappedRecord. Any failure,
// including a panic in a coercion, is returned as a *MappingError.
func (m *RowMapper) Map(ctx context.Context, rowNum int, row Row, settings ImportSettings, idx schema.Index, coll schema.Collection) (rec MappedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = &MappingError{Row: rowNum, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	now := m.now()
	rec = make(MappedRecord, len(settings.FieldMappings))

	for _, fm := range settings.FieldMappings {
		value, present := row[fm.CSVField]
		if !present || isEmptyValue(value) {
			continue
		}

		target := fm.CollectionField
		if target == identityField {
			rec[target] = value
			continue
		}

		entry, declared := idx.Lookup(target)
		if !declared {
			m.logger.Debug("mapping target not in schema",
				"collection", coll.Slug,
				"field", target,
				"source", fm.CSVField,
			)
			continue
		}

		coerced, err := m.coerce(ctx, target, value, entry, idx, now)
		if err != nil {
			return nil, &MappingError{Row: rowNum, Err: fmt.Errorf("field %s: %w", target, err)}
		}
		rec[target] = coerced
	}

	if settings.Mode == ModeCreate {
		m.fillDefaults(ctx, rec, coll, now)
	}
	return rec, nil
}

func (m *RowMapper) coerce(ctx context.Context, field string, value any, entry schema.Entry, idx schema.Index, now time.Time) (any, error) {
	switch entry.Kind {
	case schema.KindRichText:
		return richTextDocument(value), nil
	case schema.KindRelationship:
		return relationshipValue(value, entry.HasMany)
	case schema.KindUpload:
		if m.media == nil || entry.RelationTo == "" {
			return value, nil
		}
		return m.media.Resolve(ctx, value, entry.RelationTo, entry.HasMany), nil
	case schema.KindNumber:
		return toNumber(value), nil
	case schema.KindArray:
		return arrayValue(value, field, idx, now), nil
	default:
		return value, nil
	}
}

// fillDefaults populates required fields that declare a default and are
// still unset. Layout containers are transparent; groups add a name prefix.
// Array children are per item and are not filled.
func (m *RowMapper) fillDefaults(ctx context.Context, rec MappedRecord, coll schema.Collection, now time.Time) {
	dc := schema.DefaultContext{
		Principal:  PrincipalFromContext(ctx),
		Collection: coll.Slug,
		Now:        now,
	}

	var walk func(fields []schema.FieldDescriptor, prefix string)
	walk = func(fields []schema.FieldDescriptor, prefix string) {
		for _, f := range fields {
			if f.Kind.IsLayout() {
				walk(f.Fields, prefix)
				continue
			}
			if f.Name == "" {
				continue
			}
			name := f.Name
			if prefix != "" {
				name = prefix + "." + f.Name
			}

			if _, set := rec[name]; !set && f.Required && f.HasDefault() {
				v, err := f.Default(dc)
				if err != nil {
					m.logger.Warn("failed to compute default",
						"collection", coll.Slug,
						"field", name,
						"error", err,
					)
				} else {
					rec[name] = v
				}
			}

			if f.Kind == schema.KindGroup {
				walk(f.Fields, name)
			}
		}
	}
	walk(coll.Fields, "")
}
