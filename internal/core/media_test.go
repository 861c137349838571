package core

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/docimport/internal/logging"
	"github.com/JonMunkholm/docimport/internal/store"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int

	started     atomic.Int32
	inflight    atomic.Int32
	maxInflight atomic.Int32
	delay       time.Duration

	// respond decides the outcome of the n-th (1-based) call for url.
	respond func(url string, n int) (*FetchedFile, error)
}

func newFakeFetcher(respond func(url string, n int) (*FetchedFile, error)) *fakeFetcher {
	if respond == nil {
		respond = func(string, int) (*FetchedFile, error) { return pngFile(), nil }
	}
	return &fakeFetcher{calls: make(map[string]int), respond: respond}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*FetchedFile, error) {
	f.started.Add(1)
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		prev := f.maxInflight.Load()
		if cur <= prev || f.maxInflight.CompareAndSwap(prev, cur) {
			break
		}
	}

	f.mu.Lock()
	f.calls[url]++
	n := f.calls[url]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.respond(url, n)
}

func (f *fakeFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	// onSleep runs before recording, under no lock.
	onSleep func(time.Duration)
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	if r.onSleep != nil {
		r.onSleep(d)
	}
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return nil
}

func (r *recordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func pngFile() *FetchedFile {
	return &FetchedFile{Data: []byte("\x89PNG fake"), ContentType: "image/png"}
}

func refusedErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
}

// conflictStore fails the first n CreateMedia calls with a write conflict.
type conflictStore struct {
	*store.Memory
	mu        sync.Mutex
	conflicts int
}

func (c *conflictStore) CreateMedia(ctx context.Context, collection string, data store.Document, file store.File) (store.Document, error) {
	c.mu.Lock()
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return nil, store.ErrWriteConflict
	}
	c.mu.Unlock()
	return c.Memory.CreateMedia(ctx, collection, data, file)
}

func newTestIngestor(st store.MediaStore, f Fetcher, sl *recordingSleeper) *MediaIngestor {
	return NewMediaIngestor(st, f, NewMediaCache(), logging.Discard(), WithSleeper(sl.Sleep))
}

func TestMediaIngestor_SingleURL(t *testing.T) {
	st := store.NewMemory()
	fetcher := newFakeFetcher(nil)
	sl := &recordingSleeper{}
	m := newTestIngestor(st, fetcher, sl)

	got := m.Resolve(context.Background(), "https://cdn.example.com/img/cat.png?w=200", "media", false)

	id, ok := got.(string)
	require.True(t, ok, "expected id string, got %T", got)
	require.NotEmpty(t, id)

	docs, err := st.Find(context.Background(), "media", store.Where{"id": id}, "", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "cat.png", docs[0]["alt"])
	assert.Equal(t, "cat.png", docs[0]["filename"])
	assert.Equal(t, "image/png", docs[0]["mimeType"])
	assert.Equal(t, "https://cdn.example.com/img/cat.png?w=200", docs[0]["url"])

	file, ok := st.File("media", id)
	require.True(t, ok)
	assert.Equal(t, pngFile().Data, file.Data)
	assert.Empty(t, sl.Delays())
}

func TestMediaIngestor_EmptyAndInvalidValues(t *testing.T) {
	st := store.NewMemory()
	fetcher := newFakeFetcher(nil)
	m := newTestIngestor(st, fetcher, &recordingSleeper{})
	ctx := context.Background()

	assert.Nil(t, m.Resolve(ctx, nil, "media", false))
	assert.Nil(t, m.Resolve(ctx, "", "media", true))
	assert.Nil(t, m.Resolve(ctx, "not a url", "media", false))
	assert.Nil(t, m.Resolve(ctx, "/relative/path.png", "media", false))
	assert.Equal(t, int32(0), fetcher.started.Load())
}

func TestMediaIngestor_RetriesNetworkErrors(t *testing.T) {
	st := store.NewMemory()
	fetcher := newFakeFetcher(func(_ string, n int) (*FetchedFile, error) {
		if n < 3 {
			return nil, refusedErr()
		}
		return pngFile(), nil
	})
	sl := &recordingSleeper{}
	m := newTestIngestor(st, fetcher, sl)

	const u = "https://example.com/a.png"
	got := m.Resolve(context.Background(), u, "media", false)

	assert.NotNil(t, got)
	assert.Equal(t, 3, fetcher.Calls(u))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.Delays())
}

func TestMediaIngestor_GivesUpAfterMaxAttempts(t *testing.T) {
	st := store.NewMemory()
	fetcher := newFakeFetcher(func(string, int) (*FetchedFile, error) {
		return nil, &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}
	})
	sl := &recordingSleeper{}
	m := newTestIngestor(st, fetcher, sl)

	const u = "https://nowhere.invalid/a.png"
	assert.Nil(t, m.Resolve(context.Background(), u, "media", false))
	assert.Equal(t, MediaMaxAttempts, fetcher.Calls(u))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.Delays())
	assert.Equal(t, 0, st.Count("media"))
}

func TestMediaIngestor_NonRetryableFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad status", &FetchStatusError{URL: "u", StatusCode: http.StatusNotFound}},
		{"not an image", &NotImageError{URL: "u", ContentType: "text/html"}},
		{"other", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher(func(string, int) (*FetchedFile, error) { return nil, tt.err })
			sl := &recordingSleeper{}
			m := newTestIngestor(store.NewMemory(), fetcher, sl)

			const u = "https://example.com/x.png"
			assert.Nil(t, m.Resolve(context.Background(), u, "media", false))
			assert.Equal(t, 1, fetcher.Calls(u))
			assert.Empty(t, sl.Delays())
		})
	}
}

func TestMediaIngestor_RetriesWriteConflicts(t *testing.T) {
	st := &conflictStore{Memory: store.NewMemory(), conflicts: 2}
	fetcher := newFakeFetcher(nil)
	sl := &recordingSleeper{}
	m := newTestIngestor(st, fetcher, sl)

	got := m.Resolve(context.Background(), "https://example.com/c.png", "media", false)

	assert.NotNil(t, got)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.Delays())
	assert.Equal(t, 1, st.Count("media"))
}

func TestRetryDelay(t *testing.T) {
	conflict := []time.Duration{1, 2, 4, 8, 10, 10}
	for i, want := range conflict {
		d, ok := retryDelay(store.ErrWriteConflict, i+1)
		assert.True(t, ok)
		assert.Equal(t, want*time.Second, d, "conflict attempt %d", i+1)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		d, ok := retryDelay(refusedErr(), attempt)
		assert.True(t, ok)
		assert.Equal(t, time.Duration(attempt)*time.Second, d)
	}

	_, ok := retryDelay(&FetchStatusError{StatusCode: 500}, 1)
	assert.False(t, ok)
}

func TestMediaIngestor_DeduplicatesWithinRun(t *testing.T) {
	st := store.NewMemory()
	fetcher := newFakeFetcher(nil)
	fetcher.delay = 10 * time.Millisecond
	m := newTestIngestor(st, fetcher, &recordingSleeper{})
	ctx := context.Background()

	const u = "https://example.com/same.png"
	got := m.Resolve(ctx, []any{u, u, u}, "media", true)

	ids, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])

	single := m.Resolve(ctx, u, "media", false)
	assert.Equal(t, ids[0], single)

	assert.Equal(t, 1, fetcher.Calls(u))
	assert.Equal(t, 1, st.Count("media"))
}

func TestMediaIngestor_ReusesStoredMedia(t *testing.T) {
	st := store.NewMemory()
	fetcher := newFakeFetcher(nil)
	ctx := context.Background()
	const u = "https://example.com/again.png"

	first := newTestIngestor(st, fetcher, &recordingSleeper{}).Resolve(ctx, u, "media", false)
	second := newTestIngestor(st, fetcher, &recordingSleeper{}).Resolve(ctx, u, "media", false)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fetcher.Calls(u))
	assert.Equal(t, 1, st.Count("media"))
}

func TestMediaIngestor_ResolvesInBatches(t *testing.T) {
	st := store.NewMemory()
	fetcher := newFakeFetcher(nil)
	fetcher.delay = 15 * time.Millisecond

	var startedAtPause []int32
	sl := &recordingSleeper{onSleep: func(time.Duration) {
		startedAtPause = append(startedAtPause, fetcher.started.Load())
	}}
	m := newTestIngestor(st, fetcher, sl)

	urls := make([]any, 7)
	for i := range urls {
		urls[i] = "https://example.com/p" + string(rune('a'+i)) + ".png"
	}

	got := m.Resolve(context.Background(), urls, "media", true)

	ids, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, ids, 7)
	assert.LessOrEqual(t, fetcher.maxInflight.Load(), int32(MediaBatchSize))
	assert.Equal(t, []int32{3, 6}, startedAtPause)
	assert.Equal(t, []time.Duration{MediaBatchPause, MediaBatchPause}, sl.Delays())

	for i, id := range ids {
		docs, err := st.Find(context.Background(), "media", store.Where{"id": id}, "", 1)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, urls[i], docs[0]["url"], "id %d out of order", i)
	}
}

func TestMediaIngestor_DropsFailedListEntries(t *testing.T) {
	fetcher := newFakeFetcher(func(url string, _ int) (*FetchedFile, error) {
		if strings.Contains(url, "missing") {
			return nil, &FetchStatusError{URL: url, StatusCode: http.StatusNotFound}
		}
		return pngFile(), nil
	})
	m := newTestIngestor(store.NewMemory(), fetcher, &recordingSleeper{})

	got := m.Resolve(context.Background(),
		"https://example.com/1.png, https://example.com/missing.png, https://example.com/2.png",
		"media", true)

	ids, ok := got.([]any)
	require.True(t, ok)
	assert.Len(t, ids, 2)
}

func TestURLList(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"list", []any{"a", " b "}, []string{"a", "b"}},
		{"string slice", []string{"a", "b"}, []string{"a", "b"}},
		{"json list", `["x","y"]`, []string{"x", "y"}},
		{"comma text", "x, ,y,", []string{"x", "y"}},
		{"single", "x", []string{"x"}},
		{"number", 42, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, urlList(tt.in))
		})
	}
}

func TestSingleURL(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"plain", "  https://e.com/a.png ", "https://e.com/a.png"},
		{"json string", `"https://e.com/a.png"`, "https://e.com/a.png"},
		{"json list", `["https://e.com/a.png","https://e.com/b.png"]`, "https://e.com/a.png"},
		{"list", []any{"https://e.com/b.png"}, "https://e.com/b.png"},
		{"empty list", []any{}, ""},
		{"number", 3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, singleURL(tt.in))
		})
	}
}

func TestFilenameFromURL(t *testing.T) {
	assert.Equal(t, "cat.png", filenameFromURL("https://e.com/img/cat.png?size=2"))
	assert.Equal(t, "my%20cat.jpg", filenameFromURL("https://e.com/my%20cat.jpg"))
	assert.Equal(t, "image.jpg", filenameFromURL("https://e.com/"))
	assert.Equal(t, "image.jpg", filenameFromURL("https://e.com"))
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			assert.Equal(t, "docimport-test", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "image/png; charset=binary")
			_, _ = w.Write([]byte("png-bytes"))
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		case "/big.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{
		Timeout:           time.Second,
		MaxBytes:          32,
		RequestsPerSecond: 100,
		Burst:             3,
		UserAgent:         "docimport-test",
	})
	ctx := context.Background()

	file, err := f.Fetch(ctx, srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", file.ContentType)
	assert.Equal(t, []byte("png-bytes"), file.Data)

	_, err = f.Fetch(ctx, srv.URL+"/page")
	var notImage *NotImageError
	assert.ErrorAs(t, err, &notImage)

	_, err = f.Fetch(ctx, srv.URL+"/missing.png")
	var status *FetchStatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.StatusCode)

	_, err = f.Fetch(ctx, srv.URL+"/big.png")
	assert.ErrorContains(t, err, "too large")
}

func TestHTTPFetcher_ConnectionRefusedIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), addr+"/a.png")
	require.Error(t, err)
	assert.True(t, isNetworkError(err))
	assert.False(t, isNetworkError(&FetchStatusError{StatusCode: 500}))
}

func TestMediaCache_SharesInFlightAndRemembersOutcomes(t *testing.T) {
	c := NewMediaCache()
	release := make(chan struct{})
	var calls atomic.Int32

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := range ids {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], _ = c.do("media\x00https://example.com/a.png", func() (string, bool) {
				calls.Add(1)
				<-release
				return "m1", true
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"m1", "m1", "m1", "m1"}, ids)

	_, ok := c.do("media\x00https://example.com/b.png", func() (string, bool) { return "", false })
	assert.False(t, ok)
	_, ok = c.do("media\x00https://example.com/b.png", func() (string, bool) {
		t.Error("failed url resolved twice")
		return "m2", true
	})
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestIsValidMediaURL(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://cdn.example.com/a.png", true},
		{"http://example.com/a.png?w=1", true},
		{"not a url", false},
		{"/relative/path.png", false},
		{"images/a.png", false},
		{"mailto:someone@example.com", false},
		{"https:///a.png", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isValidMediaURL(tt.raw), tt.raw)
	}
}
