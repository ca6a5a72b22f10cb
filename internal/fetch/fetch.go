// Package fetch is the parallel download engine: a worker pool of
// retryablehttp clients that fetch a batch of entries to temp files,
// verify size/SHA-1, and atomically rename into place.
package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/pmcerr"
)

// Entry is a single file to fetch and verify.
type Entry struct {
	URL        string
	Dest       string
	SHA1       string // empty skips verification
	Size       int64  // 0 means unknown, skip the size check
	Executable bool   // chmod +x after a successful fetch (JVM/native binaries)
}

// Engine runs batches of Entry fetches across a fixed worker pool.
type Engine struct {
	client  *http.Client
	workers int
}

// New builds an Engine with workers parallel download slots. workers <= 0
// defaults to 4.
func New(workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	retryClient.HTTPClient.Transport = &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	retryClient.HTTPClient.Timeout = 5 * time.Minute

	return &Engine{client: retryClient.StandardClient(), workers: workers}
}

// Batch fetches every entry, skipping any already present with a matching
// SHA-1, and reports progress through d as events.KindDownloadProgress.
// A context cancellation stops in-flight transfers; entries already
// written stay on disk, the rest are reported as failures.
func (e *Engine) Batch(ctx context.Context, entries []Entry, d *events.Dispatcher) error {
	if len(entries) == 0 {
		return nil
	}

	var totalBytes int64
	for _, entry := range entries {
		totalBytes += entry.Size
	}

	work := make(chan Entry, len(entries))
	for _, entry := range entries {
		work <- entry
	}
	close(work)

	var (
		doneCount int64
		doneBytes int64
		failMu    sync.Mutex
		failures  []pmcerr.DownloadFailure
	)
	total := int64(len(entries))

	progressDone := make(chan struct{})
	stopProgress := make(chan struct{})
	go func() {
		defer close(progressDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopProgress:
				return
			case <-ticker.C:
				d.Emit(events.Event{
					Kind: events.KindDownloadProgress,
					Data: events.DownloadProgressData{
						DoneCount:  int(atomic.LoadInt64(&doneCount)),
						TotalCount: int(total),
						DoneBytes:  atomic.LoadInt64(&doneBytes),
						TotalBytes: totalBytes,
					},
				})
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range work {
				select {
				case <-ctx.Done():
					failMu.Lock()
					failures = append(failures, pmcerr.DownloadFailure{URL: entry.URL, Dest: entry.Dest, Cause: ctx.Err().Error()})
					failMu.Unlock()
					continue
				default:
				}

				n, err := e.fetchOne(ctx, entry)
				if err != nil {
					failMu.Lock()
					failures = append(failures, pmcerr.DownloadFailure{URL: entry.URL, Dest: entry.Dest, Cause: err.Error()})
					failMu.Unlock()
					continue
				}
				atomic.AddInt64(&doneBytes, n)
				atomic.AddInt64(&doneCount, 1)
			}
		}()
	}
	wg.Wait()
	close(stopProgress)
	<-progressDone

	d.Emit(events.Event{
		Kind: events.KindDownloadProgress,
		Data: events.DownloadProgressData{
			DoneCount:  int(atomic.LoadInt64(&doneCount)),
			TotalCount: int(total),
			DoneBytes:  atomic.LoadInt64(&doneBytes),
			TotalBytes: totalBytes,
		},
	})

	if ctx.Err() != nil && len(failures) > 0 {
		return pmcerr.Wrap(pmcerr.KindDownloadCancelled, ctx.Err(), "download batch cancelled")
	}
	if len(failures) > 0 {
		return pmcerr.WithPayload(pmcerr.KindDownload, pmcerr.DownloadPayload{Failures: failures}, fmt.Sprintf("%d of %d downloads failed", len(failures), total))
	}
	return nil
}

// maxCorruptionRetries bounds how many times fetchOne re-downloads an
// entry whose body came back 200-OK but failed its SHA-1/size check.
// retryablehttp already retries transport faults and 5xx responses; this
// is the corruption case it doesn't cover.
const maxCorruptionRetries = 3

// fetchOne fetches a single entry, skipping it if an existing file already
// matches the expected SHA-1, and returns the number of bytes actually
// transferred. A body that downloads cleanly but fails verification is
// re-fetched up to maxCorruptionRetries times before giving up.
func (e *Engine) fetchOne(ctx context.Context, entry Entry) (int64, error) {
	if entry.SHA1 != "" {
		if hash, err := hashFile(entry.Dest); err == nil && hash == entry.SHA1 {
			return 0, nil
		}
	}

	var n int64
	var err error
	for attempt := 0; attempt <= maxCorruptionRetries; attempt++ {
		n, err = e.fetchOnceVerified(ctx, entry)
		if err == nil || !isCorruption(err) {
			break
		}
	}
	return n, err
}

var errCorruptBody = fmt.Errorf("fetch: downloaded body failed verification")

// isCorruption reports whether err signals a verified-but-corrupt body
// (as opposed to a transport failure retryablehttp would already have
// retried), the only case fetchOne re-downloads for.
func isCorruption(err error) bool {
	return errors.Is(err, errCorruptBody)
}

func (e *Engine) fetchOnceVerified(ctx context.Context, entry Entry) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(entry.Dest), 0755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	tmpPath := entry.Dest + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}

	hasher := sha1.New()
	writer := io.MultiWriter(f, hasher)

	n, err := io.Copy(writer, resp.Body)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing file: %w", err)
	}

	if entry.SHA1 != "" {
		hash := hex.EncodeToString(hasher.Sum(nil))
		if hash != entry.SHA1 {
			os.Remove(tmpPath)
			return 0, fmt.Errorf("hash mismatch: expected %s, got %s: %w", entry.SHA1, hash, errCorruptBody)
		}
	}
	if entry.Size > 0 && n != entry.Size {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("size mismatch: expected %d, got %d: %w", entry.Size, n, errCorruptBody)
	}

	if entry.Executable {
		if err := os.Chmod(tmpPath, 0755); err != nil {
			os.Remove(tmpPath)
			return 0, fmt.Errorf("chmod: %w", err)
		}
	}

	if err := os.Rename(tmpPath, entry.Dest); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming file: %w", err)
	}

	return n, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
