// Package download fetches a batch of URLs to local paths with a bounded
// number of simultaneous transfers.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when a server answers 404 for a URL
var ErrNotFound = errors.New("not found")

// Files maps destination paths to the URL they are fetched from
type Files map[string]string

// Downloader materializes a batch of files
type Downloader interface {
	// Download fetches every entry of files, skipping destinations that
	// already exist. A 404 on any URL fails the whole batch.
	Download(ctx context.Context, files Files, concurrency int) error
}

// HTTPDownloader implements Downloader over a retrying HTTP client
type HTTPDownloader struct {
	client  *retryablehttp.Client
	fs      afero.Fs
	limiter *rate.Limiter
}

// Option configures an HTTPDownloader
type Option func(*HTTPDownloader)

// WithFs writes files to fs instead of the OS filesystem
func WithFs(fs afero.Fs) Option {
	return func(d *HTTPDownloader) {
		d.fs = fs
	}
}

// WithRetries sets how many times a failed request is retried
func WithRetries(n int) Option {
	return func(d *HTTPDownloader) {
		d.client.RetryMax = n
	}
}

// WithRetryWait bounds the backoff between retries
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(d *HTTPDownloader) {
		d.client.RetryWaitMin = minWait
		d.client.RetryWaitMax = maxWait
	}
}

// WithRateLimit caps the number of requests started per second; 0 disables it
func WithRateLimit(rps float64) Option {
	return func(d *HTTPDownloader) {
		if rps > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(d *HTTPDownloader) {
		d.client.HTTPClient = c
	}
}

// NewHTTPDownloader creates a downloader writing to the OS filesystem
func NewHTTPDownloader(opts ...Option) *HTTPDownloader {
	client := retryablehttp.NewClient()
	client.Logger = NewLeveledLogrus(logrus.StandardLogger())

	d := &HTTPDownloader{
		client: client,
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download implements Downloader
func (d *HTTPDownloader) Download(ctx context.Context, files Files, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	dests := make([]string, 0, len(files))
	for dest := range files {
		dests = append(dests, dest)
	}
	sort.Strings(dests)

	// Stat everything up front, no fetch may outlive a stat error
	pending := make([]string, 0, len(dests))
	var skipped int
	for _, dest := range dests {
		exists, err := afero.Exists(d.fs, dest)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", dest, err)
		}
		if exists {
			logrus.Debugf("Skipping %s, already downloaded", dest)
			skipped++
			continue
		}
		pending = append(pending, dest)
	}

	var fetched, total atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, dest := range pending {
		dest := dest
		url := files[dest]
		g.Go(func() error {
			n, err := d.fetch(ctx, url, dest)
			if err != nil {
				return err
			}
			fetched.Add(1)
			total.Add(n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logrus.Infof("Downloaded %d files (%s), %d already present",
		fetched.Load(), humanize.Bytes(uint64(total.Load())), skipped)
	return nil
}

// fetch downloads url to a temporary file next to dest and renames it
// into place once complete, so an interrupted run never leaves a partial
// file at dest.
func (d *HTTPDownloader) fetch(ctx context.Context, url, dest string) (int64, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid url %s: %w", url, err)
	}

	logrus.Debugf("GET %s", url)
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	if err := d.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, err
	}

	tmp := dest + ".part"
	f, err := d.fs.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = d.fs.Remove(tmp)
		return 0, fmt.Errorf("failed to write %s: %w", dest, err)
	}

	if err := d.fs.Rename(tmp, dest); err != nil {
		return 0, fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	return n, nil
}
