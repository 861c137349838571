// Package store defines the document store the importer writes to.
//
// Documents are schemaless JSON objects grouped by collection. Every document
// has a string id under IDField. Lookups support equality predicates only;
// dotted keys address nested object fields.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IDField is the key under which a document's identity is stored.
const IDField = "id"

var (
	// ErrNotFound is returned by Update when the id does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrWriteConflict marks a transient write failure caused by concurrent
	// writers. Callers may retry.
	ErrWriteConflict = errors.New("write conflict")

	// ErrDuplicateID is returned by Create when the supplied id is taken.
	ErrDuplicateID = errors.New("duplicate id")
)

// Document is a stored record.
type Document map[string]any

// ID returns the document's identity as a string.
func (d Document) ID() string {
	return IDString(d[IDField])
}

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Where holds equality predicates keyed by field name.
type Where map[string]any

// File is binary content attached to a media document.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Store is the document store consumed by the importer.
type Store interface {
	// Create writes a new document. A non-empty id in data is kept,
	// otherwise the store assigns one.
	Create(ctx context.Context, collection string, data Document, locale string) (Document, error)

	// Find returns up to limit documents matching every predicate in where.
	// A limit <= 0 means no limit.
	Find(ctx context.Context, collection string, where Where, locale string, limit int) ([]Document, error)

	// Update replaces the document with the given id.
	Update(ctx context.Context, collection, id string, data Document, locale string) (Document, error)
}

// MediaStore is a Store that can also persist binary files.
type MediaStore interface {
	Store
	CreateMedia(ctx context.Context, collection string, data Document, file File) (Document, error)
}

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}

// IDString normalizes an id value to its string form. Empty and nil values
// yield "".
func IDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id))
		}
		return fmt.Sprint(id)
	default:
		return fmt.Sprint(id)
	}
}

// prepareCreate copies data and settles the id to write.
func prepareCreate(data Document) (Document, string) {
	doc := data.Clone()
	id := IDString(doc[IDField])
	if id == "" {
		id = NewID()
	}
	doc[IDField] = id
	return doc, id
}

// prepareUpdate copies data and pins it to id.
func prepareUpdate(id string, data Document) Document {
	doc := data.Clone()
	doc[IDField] = id
	return doc
}

// splitPath breaks a dotted where-key into object keys.
func splitPath(key string) ([]string, error) {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid field path %q", key)
		}
	}
	return parts, nil
}

// lookupPath resolves a dotted path inside a document.
func lookupPath(doc map[string]any, parts []string) (any, bool) {
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			if d, isDoc := cur.(Document); isDoc {
				m = d
			} else {
				return nil, false
			}
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// jsonEqual compares two values by their JSON encoding so that, for example,
// int 3 and float64 3 are equal.
func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// decodeDocument unmarshals stored JSON using json.Number so ids and counts
// survive unchanged.
func decodeDocument(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
