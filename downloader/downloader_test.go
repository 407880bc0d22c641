package downloader_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabianabarca/estimator/downloader"
)

func testServer(t *testing.T, body string) (*httptest.Server, *int32) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "" {
			w.Write([]byte(r.Header.Get("Authorization")))
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestHTTPGet(t *testing.T) {
	server, _ := testServer(t, "hello")

	body, err := downloader.HTTPGet(context.Background(), server.URL, nil, downloader.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	body, err = downloader.HTTPGet(
		context.Background(),
		server.URL,
		map[string]string{"Authorization": "Bearer xyz"},
		downloader.GetOptions{},
	)
	require.NoError(t, err)
	assert.Equal(t, "Bearer xyz", string(body))

	_, err = downloader.HTTPGet(context.Background(), server.URL+"/missing", nil, downloader.GetOptions{})
	assert.Error(t, err)
}

func TestHTTPGetMaxSize(t *testing.T) {
	server, _ := testServer(t, "0123456789")

	body, err := downloader.HTTPGet(context.Background(), server.URL, nil, downloader.GetOptions{MaxSize: 10})
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))

	_, err = downloader.HTTPGet(context.Background(), server.URL, nil, downloader.GetOptions{MaxSize: 9})
	assert.ErrorIs(t, err, downloader.ErrTooLarge)
}

func TestFetch(t *testing.T) {
	server, _ := testServer(t, "remote")

	path := filepath.Join(t.TempDir(), "input.zip")
	require.NoError(t, os.WriteFile(path, []byte("local"), 0644))

	d := downloader.NewMemoryDownloader()

	body, err := downloader.Fetch(context.Background(), d, server.URL, nil, downloader.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "remote", string(body))

	body, err = downloader.Fetch(context.Background(), d, path, nil, downloader.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "local", string(body))

	_, err = downloader.Fetch(context.Background(), d, path, nil, downloader.GetOptions{MaxSize: 2})
	assert.ErrorIs(t, err, downloader.ErrTooLarge)

	_, err = downloader.Fetch(context.Background(), d, path+".nope", nil, downloader.GetOptions{})
	assert.Error(t, err)
}

func TestIsURL(t *testing.T) {
	assert.True(t, downloader.IsURL("http://example.com/a.zip"))
	assert.True(t, downloader.IsURL("HTTPS://example.com/a.zip"))
	assert.False(t, downloader.IsURL("/tmp/a.zip"))
	assert.False(t, downloader.IsURL("http.zip"))
}

func TestMemoryDownloaderCache(t *testing.T) {
	server, hits := testServer(t, "body")

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := downloader.NewMemoryDownloader()
	d.TimeNow = func() time.Time { return now }

	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Minute}

	for i := 0; i < 3; i++ {
		body, err := d.Get(context.Background(), server.URL, nil, opts)
		require.NoError(t, err)
		assert.Equal(t, "body", string(body))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	// Different headers, different entry
	_, err := d.Get(context.Background(), server.URL, map[string]string{"Authorization": "x"}, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))

	assert.Equal(t, 2, d.Len())

	// Expired, and the stale header entry is dropped on refresh
	now = now.Add(2 * time.Minute)
	_, err = d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	assert.Equal(t, 1, d.Len())

	// Caching disabled
	_, err = d.Get(context.Background(), server.URL, nil, downloader.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(hits))
}

func TestMemoryDownloaderMaxEntries(t *testing.T) {
	server, hits := testServer(t, "body")

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := downloader.NewMemoryDownloader()
	d.TimeNow = func() time.Time { return now }
	d.MaxEntries = 2

	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Hour}
	get := func(path string) {
		_, err := d.Get(context.Background(), server.URL+path, nil, opts)
		require.NoError(t, err)
	}

	get("/a")
	now = now.Add(time.Minute)
	get("/b")
	now = now.Add(time.Minute)
	get("/c")
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))

	// /a was evicted, /c still cached
	get("/c")
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	get("/a")
	assert.Equal(t, int32(4), atomic.LoadInt32(hits))
}

func TestFilesystemDownloaderCache(t *testing.T) {
	server, hits := testServer(t, "body")

	dir := filepath.Join(t.TempDir(), "cache")
	now := time.Now()

	d, err := downloader.NewFilesystemDownloader(dir)
	require.NoError(t, err)
	d.TimeNow = func() time.Time { return now }

	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Hour}

	body, err := d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "body", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	// A fresh downloader on the same directory hits the cache
	d2, err := downloader.NewFilesystemDownloader(dir)
	require.NoError(t, err)
	d2.TimeNow = func() time.Time { return now }

	body, err = d2.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "body", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	// Expired
	d2.TimeNow = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = d2.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))

	_, err = d2.Get(context.Background(), server.URL+"/missing", nil, opts)
	assert.Error(t, err)
}
