package downloader

import (
	"context"
	"sync"
	"time"
)

// Caches downloaded files in memory, keyed by URL and headers. Useful
// when the estimator input and the GTFS feed are served from the same
// URL, or when a long running process reloads the same GTFS feed.
//
// Expired entries are dropped whenever a new one is stored. If
// MaxEntries is set, the entry closest to expiry is evicted to make
// room.
type MemoryDownloader struct {
	MaxEntries int
	TimeNow    func() time.Time

	mutex sync.Mutex
	cache map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		TimeNow: time.Now,
		cache:   map[string]memoryEntry{},
	}
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if !options.Cache {
		return HTTPGet(ctx, url, headers, options)
	}

	key := cacheKey(url, headers)
	if data, ok := d.lookup(key); ok {
		return data, nil
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	d.store(key, body, options.CacheTTL)

	return body, nil
}

// Number of cached entries, expired ones included.
func (d *MemoryDownloader) Len() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.cache)
}

func (d *MemoryDownloader) lookup(key string) ([]byte, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	entry, found := d.cache[key]
	if !found || !entry.expires.After(d.TimeNow()) {
		return nil, false
	}
	return entry.data, true
}

func (d *MemoryDownloader) store(key string, data []byte, ttl time.Duration) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	now := d.TimeNow()
	for k, entry := range d.cache {
		if !entry.expires.After(now) {
			delete(d.cache, k)
		}
	}

	if d.MaxEntries > 0 {
		for len(d.cache) >= d.MaxEntries {
			oldest := ""
			for k, entry := range d.cache {
				if oldest == "" || entry.expires.Before(d.cache[oldest].expires) {
					oldest = k
				}
			}
			delete(d.cache, oldest)
		}
	}

	d.cache[key] = memoryEntry{data: data, expires: now.Add(ttl)}
}
