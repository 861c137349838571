package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var _ MediaStore = (*Memory)(nil)

type memEntry struct {
	doc    Document
	locale string
	seq    int64
}

// Memory is an in-process MediaStore. It backs tests and STORE_DRIVER=memory.
type Memory struct {
	mu    sync.RWMutex
	seq   int64
	docs  map[string]map[string]*memEntry
	files map[string]File
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string]map[string]*memEntry),
		files: make(map[string]File),
	}
}

// Create implements Store.
func (m *Memory) Create(_ context.Context, collection string, data Document, locale string) (Document, error) {
	doc, id := prepareCreate(data)

	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.collection(collection)
	if _, exists := col[id]; exists {
		return nil, fmt.Errorf("create %s/%s: %w", collection, id, ErrDuplicateID)
	}
	m.seq++
	col[id] = &memEntry{doc: doc, locale: locale, seq: m.seq}
	return doc.Clone(), nil
}

// CreateMedia implements MediaStore.
func (m *Memory) CreateMedia(ctx context.Context, collection string, data Document, file File) (Document, error) {
	doc, err := m.Create(ctx, collection, data, "")
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.files[collection+"/"+doc.ID()] = file
	m.mu.Unlock()
	return doc, nil
}

// Find implements Store. Results come back in insertion order.
func (m *Memory) Find(_ context.Context, collection string, where Where, _ string, limit int) ([]Document, error) {
	type pred struct {
		parts []string
		value any
	}
	preds := make([]pred, 0, len(where))
	for key, value := range where {
		parts, err := splitPath(key)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred{parts: parts, value: value})
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []*memEntry
	for _, e := range m.docs[collection] {
		ok := true
		for _, p := range preds {
			got, found := lookupPath(e.doc, p.parts)
			if !found || !jsonEqual(got, p.value) {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, e)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]Document, len(matches))
	for i, e := range matches {
		out[i] = e.doc.Clone()
	}
	return out, nil
}

// Update implements Store.
func (m *Memory) Update(_ context.Context, collection, id string, data Document, locale string) (Document, error) {
	doc := prepareUpdate(id, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	e.doc = doc
	e.locale = locale
	return doc.Clone(), nil
}

// Count returns the number of documents in a collection.
func (m *Memory) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[collection])
}

// File returns the stored file of a media document.
func (m *Memory) File(collection, id string) (File, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[collection+"/"+id]
	return f, ok
}

// Locale returns the locale a document was last written with.
func (m *Memory) Locale(collection, id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.docs[collection][id]
	if !ok {
		return "", false
	}
	return e.locale, true
}

// collection returns the id map for name, creating it. Callers hold m.mu.
func (m *Memory) collection(name string) map[string]*memEntry {
	col, ok := m.docs[name]
	if !ok {
		col = make(map[string]*memEntry)
		m.docs[name] = col
	}
	return col
}
