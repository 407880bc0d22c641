package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Caches downloaded files on disk, one file per URL and header
// combination. Survives between runs of the CLI. Entries expire
// based on file modification time.
type FilesystemDownloader struct {
	Dir string

	TimeNow func() time.Time

	mutex sync.Mutex
}

func NewFilesystemDownloader(dir string) (*FilesystemDownloader, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	return &FilesystemDownloader{
		Dir:     dir,
		TimeNow: time.Now,
	}, nil
}

func (f *FilesystemDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {

	f.mutex.Lock()
	defer f.mutex.Unlock()

	path := filepath.Join(f.Dir, cacheKey(url, headers)+".cache")

	if options.Cache {
		info, err := os.Stat(path)
		if err == nil && info.ModTime().Add(options.CacheTTL).After(f.TimeNow()) {
			body, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading cache: %w", err)
			}
			return body, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}

	if options.Cache {
		// Entries are replaced atomically.
		tmp, err := os.CreateTemp(f.Dir, "download-*")
		if err != nil {
			return nil, fmt.Errorf("creating temp file: %w", err)
		}
		_, err = tmp.Write(body)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("writing cache: %w", err)
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("saving cache: %w", err)
		}
		now := f.TimeNow()
		if err := os.Chtimes(path, now, now); err != nil {
			return nil, fmt.Errorf("touching cache: %w", err)
		}
	}

	return body, nil
}

func cacheKey(url string, headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(url)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headers[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
