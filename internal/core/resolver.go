package core

// resolver.go persists one mapped record according to the import mode.

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/docimport/internal/store"
)

// RecordResolver applies mapped records to the store.
type RecordResolver struct {
	store         store.Store
	defaultLocale string
	logger        *slog.Logger
}

// NewRecordResolver creates a resolver writing to st. Records without a
// locale are written with defaultLocale.
func NewRecordResolver(st store.Store, defaultLocale string, logger *slog.Logger) *RecordResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordResolver{store: st, defaultLocale: defaultLocale, logger: logger}
}

// Apply creates or updates rec in collection. Errors are one of
// *MissingCompareFieldError, *RecordNotFoundError or *StorePersistError.
func (r *RecordResolver) Apply(ctx context.Context, rec MappedRecord, settings ImportSettings, collection string) (Outcome, error) {
	locale := settings.Locale
	if locale == "" {
		locale = r.defaultLocale
	}

	switch settings.Mode {
	case ModeCreate:
		data := store.Document(rec).Clone()
		delete(data, identityField)
		return r.create(ctx, collection, data, locale)

	case ModeUpdate:
		value, ok := compareValue(rec, settings.CompareField)
		if !ok {
			return Outcome{}, &MissingCompareFieldError{Field: settings.CompareField}
		}
		existing, err := r.lookup(ctx, collection, settings.CompareField, value, locale)
		if err != nil {
			return Outcome{}, err
		}
		if existing == nil {
			return Outcome{}, &RecordNotFoundError{Field: settings.CompareField, Value: value}
		}
		return r.update(ctx, collection, existing, rec, locale)

	case ModeUpsert:
		if value, ok := compareValue(rec, settings.CompareField); ok {
			existing, err := r.lookup(ctx, collection, settings.CompareField, value, locale)
			if err != nil {
				return Outcome{}, err
			}
			if existing != nil {
				return r.update(ctx, collection, existing, rec, locale)
			}
		}
		return r.create(ctx, collection, store.Document(rec).Clone(), locale)

	default:
		return Outcome{}, &RequestValidationError{Problems: []string{"unsupported mode " + string(settings.Mode)}}
	}
}

func (r *RecordResolver) create(ctx context.Context, collection string, data store.Document, locale string) (Outcome, error) {
	doc, err := r.store.Create(ctx, collection, data, locale)
	if err != nil {
		return Outcome{}, &StorePersistError{Op: "create", Err: err}
	}
	return Outcome{Action: ActionCreated, ID: doc.ID()}, nil
}

// update shallow-merges rec over existing and writes the result.
func (r *RecordResolver) update(ctx context.Context, collection string, existing store.Document, rec MappedRecord, locale string) (Outcome, error) {
	id := existing.ID()
	merged := existing.Clone()
	for k, v := range rec {
		merged[k] = v
	}
	merged[identityField] = id

	if _, err := r.store.Update(ctx, collection, id, merged, locale); err != nil {
		return Outcome{}, &StorePersistError{Op: "update", Err: err}
	}
	return Outcome{Action: ActionUpdated, ID: id}, nil
}

// lookup returns the first document whose field equals value, or nil.
func (r *RecordResolver) lookup(ctx context.Context, collection, field string, value any, locale string) (store.Document, error) {
	if field == identityField {
		value = store.IDString(value)
	}
	docs, err := r.store.Find(ctx, collection, store.Where{field: value}, locale, 1)
	if err != nil {
		return nil, &StorePersistError{Op: "find", Err: err}
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// compareValue returns rec's value for field when the field is named and
// populated.
func compareValue(rec MappedRecord, field string) (any, bool) {
	if field == "" {
		return nil, false
	}
	v, ok := rec[field]
	if !ok || isFalsy(v) {
		return nil, false
	}
	return v, true
}
