package core

// media.go turns URL-valued upload fields into media document ids.
//
// Each URL is resolved at most once per run: the run's MediaCache collapses
// concurrent requests for the same URL, and the store is searched for a media
// document with the same source url before anything is downloaded. Fetch and
// persist failures are retried per the policy in retryDelay and otherwise
// degrade to a missing value; they never fail the row.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/docimport/internal/store"
)

const (
	// MediaMaxAttempts is the number of tries per URL.
	MediaMaxAttempts = 3

	// MediaBatchSize is how many URLs of one field resolve concurrently.
	MediaBatchSize = 3

	// MediaBatchPause separates consecutive batches.
	MediaBatchPause = 100 * time.Millisecond

	defaultFilename = "image.jpg"
)

// MediaCache remembers URL resolutions for one import run, including
// failures. It is safe for concurrent use.
type MediaCache struct {
	inflight singleflight.Group

	mu       sync.Mutex
	resolved map[string]mediaResult
}

type mediaResult struct {
	id string
	ok bool
}

// NewMediaCache creates an empty cache.
func NewMediaCache() *MediaCache {
	return &MediaCache{resolved: make(map[string]mediaResult)}
}

// Len returns the number of URLs resolved so far.
func (c *MediaCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resolved)
}

func (c *MediaCache) lookup(key string) (mediaResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.resolved[key]
	return r, ok
}

// do returns the recorded resolution for key, running fn at most once per
// run. Concurrent callers for the same key share the in-flight call; the
// outcome is kept for the rest of the run.
func (c *MediaCache) do(key string, fn func() (string, bool)) (string, bool) {
	if r, ok := c.lookup(key); ok {
		return r.id, r.ok
	}

	v, _, _ := c.inflight.Do(key, func() (any, error) {
		// A call for key may have finished between lookup and Do.
		if r, ok := c.lookup(key); ok {
			return r, nil
		}
		id, ok := fn()
		r := mediaResult{id: id, ok: ok}

		c.mu.Lock()
		c.resolved[key] = r
		c.mu.Unlock()
		return r, nil
	})
	r := v.(mediaResult)
	return r.id, r.ok
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MediaIngestor resolves upload field values into media document ids.
type MediaIngestor struct {
	store   store.MediaStore
	fetcher Fetcher
	cache   *MediaCache
	logger  *slog.Logger
	sleep   Sleeper
}

// MediaOption configures a MediaIngestor.
type MediaOption func(*MediaIngestor)

// WithSleeper replaces the pause function used for backoff and batch pauses.
func WithSleeper(s Sleeper) MediaOption {
	return func(m *MediaIngestor) { m.sleep = s }
}

// NewMediaIngestor creates an ingestor bound to one run's cache.
func NewMediaIngestor(st store.MediaStore, fetcher Fetcher, cache *MediaCache, logger *slog.Logger, opts ...MediaOption) *MediaIngestor {
	if cache == nil {
		cache = NewMediaCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &MediaIngestor{
		store:   st,
		fetcher: fetcher,
		cache:   cache,
		logger:  logger,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve maps an upload field value to an id (single) or a list of ids
// (hasMany). Unresolvable URLs yield nil or are dropped from the list.
func (m *MediaIngestor) Resolve(ctx context.Context, value any, target string, hasMany bool) any {
	if isEmptyValue(value) {
		return nil
	}

	if hasMany {
		urls := urlList(value)
		return m.resolveMany(ctx, urls, target)
	}

	u := singleURL(value)
	if u == "" {
		return nil
	}
	id, ok := m.resolveOne(ctx, u, target)
	if !ok {
		return nil
	}
	return id
}

// resolveMany resolves urls in fixed-size concurrent batches. Failed URLs are
// dropped; the remaining ids keep input order.
func (m *MediaIngestor) resolveMany(ctx context.Context, urls []string, target string) []any {
	ids := make([]any, 0, len(urls))

	for start := 0; start < len(urls); start += MediaBatchSize {
		end := min(start+MediaBatchSize, len(urls))
		batch := urls[start:end]
		results := make([]string, len(batch))

		var g errgroup.Group
		for i, u := range batch {
			i, u := i, u
			g.Go(func() error {
				if id, ok := m.resolveOne(ctx, u, target); ok {
					results[i] = id
				}
				return nil
			})
		}
		_ = g.Wait()

		for _, id := range results {
			if id != "" {
				ids = append(ids, id)
			}
		}

		if end < len(urls) {
			if err := m.sleep(ctx, MediaBatchPause); err != nil {
				break
			}
		}
	}
	return ids
}

func (m *MediaIngestor) resolveOne(ctx context.Context, rawURL, target string) (string, bool) {
	if !isValidMediaURL(rawURL) {
		m.logger.Warn("invalid media url", "url", rawURL, "collection", target)
		return "", false
	}

	return m.cache.do(target+"\x00"+rawURL, func() (string, bool) {
		return m.resolveWithRetry(ctx, rawURL, target)
	})
}

func (m *MediaIngestor) resolveWithRetry(ctx context.Context, rawURL, target string) (string, bool) {
	for attempt := 1; attempt <= MediaMaxAttempts; attempt++ {
		id, err := m.ingest(ctx, rawURL, target)
		if err == nil {
			return id, true
		}

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == MediaMaxAttempts {
			m.logger.Warn("media ingestion failed",
				"url", rawURL,
				"collection", target,
				"attempt", attempt,
				"error", err,
			)
			return "", false
		}

		m.logger.Debug("retrying media ingestion",
			"url", rawURL,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := m.sleep(ctx, delay); err != nil {
			return "", false
		}
	}
	return "", false
}

// ingest performs one attempt: reuse an existing media document with the same
// url, otherwise download and persist.
func (m *MediaIngestor) ingest(ctx context.Context, rawURL, target string) (string, error) {
	existing, err := m.store.Find(ctx, target, store.Where{"url": rawURL}, "", 1)
	if err != nil {
		return "", fmt.Errorf("lookup media: %w", err)
	}
	if len(existing) > 0 {
		return existing[0].ID(), nil
	}

	file, err := m.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}

	filename := filenameFromURL(rawURL)
	doc, err := m.store.CreateMedia(ctx, target, store.Document{
		"alt":      filename,
		"url":      rawURL,
		"filename": filename,
		"mimeType": file.ContentType,
		"filesize": len(file.Data),
	}, store.File{
		Name:     filename,
		MimeType: file.ContentType,
		Data:     file.Data,
	})
	if err != nil {
		return "", fmt.Errorf("persist media: %w", err)
	}

	m.logger.Debug("media stored", "url", rawURL, "collection", target, "id", doc.ID(), "bytes", len(file.Data))
	return doc.ID(), nil
}

// retryDelay returns the pause before the next attempt, or false when err
// is not retryable. Write conflicts back off exponentially up to 10s and
// network failures back off linearly.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	switch {
	case isWriteConflict(err):
		delay := time.Second << (attempt - 1)
		return min(delay, 10*time.Second), true
	case isNetworkError(err):
		return time.Duration(attempt) * time.Second, true
	default:
		return 0, false
	}
}

func isWriteConflict(err error) bool {
	return errors.Is(err, store.ErrWriteConflict)
}

func isValidMediaURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// filenameFromURL returns the last path segment without query, falling back
// to image.jpg.
func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return defaultFilename
	}
	p := u.EscapedPath()
	name := p[strings.LastIndex(p, "/")+1:]
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return defaultFilename
	}
	return name
}

// urlList normalizes a multi-valued upload cell: a list, a JSON list string
// or comma-separated text.
func urlList(v any) []string {
	if s, ok := v.(string); ok {
		var parsed []any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			return stringItems(parsed)
		}
		return splitTrim(s)
	}
	if items, ok := toAnySlice(v); ok {
		return stringItems(items)
	}
	return nil
}

// singleURL normalizes a single upload cell, keeping only the first URL of a
// list.
func singleURL(v any) string {
	switch x := v.(type) {
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(x), &parsed); err == nil {
			switch p := parsed.(type) {
			case []any:
				if len(p) > 0 {
					s, _ := p[0].(string)
					return strings.TrimSpace(s)
				}
				return strings.TrimSpace(x)
			case string:
				return strings.TrimSpace(p)
			}
		}
		return strings.TrimSpace(x)
	default:
		if items, ok := toAnySlice(v); ok && len(items) > 0 {
			s, _ := items[0].(string)
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func stringItems(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
