// Package fetch implements the bootstrap Downloader: batch-fetching
// resolved packages from a mirror into an archive directory, per spec.md
// §4.3.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/rootstrap/rootstrap/internal/config"
	"github.com/rootstrap/rootstrap/internal/httputil"
	"github.com/rootstrap/rootstrap/internal/log"
	"github.com/rootstrap/rootstrap/internal/progress"
	"github.com/rootstrap/rootstrap/internal/rootstraperr"
	"github.com/rootstrap/rootstrap/internal/universe"
)

// RetryPolicy controls the bounded retry behavior for a single package
// download. A checksum mismatch is never retried regardless of attempts
// remaining.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy honors spec.md §4.3's "at least 3 attempts with
// exponential backoff" requirement.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: config.GetRetryMaxAttempts(),
		BaseDelay:   500 * time.Millisecond,
	}
}

// Downloader fetches resolved packages into an archive directory.
type Downloader struct {
	client      *http.Client
	logger      log.Logger
	retry       RetryPolicy
	maxParallel int
	progressOut io.Writer
}

// Option configures a Downloader.
type Option func(*Downloader)

func WithLogger(logger log.Logger) Option {
	return func(d *Downloader) { d.logger = logger }
}

func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) { d.client = client }
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(d *Downloader) { d.retry = policy }
}

func WithMaxParallel(n int) Option {
	return func(d *Downloader) { d.maxParallel = n }
}

func WithProgressOutput(w io.Writer) Option {
	return func(d *Downloader) { d.progressOut = w }
}

func New(opts ...Option) *Downloader {
	d := &Downloader{
		client:      httputil.NewSecureClient(httputil.DefaultOptions()),
		logger:      log.Default(),
		retry:       DefaultRetryPolicy(),
		maxParallel: config.GetMaxParallelDownloads(),
		progressOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BatchDownload fetches every package in packages into archiveDir, skipping
// ones already present with matching size and checksum. Downloads proceed
// with bounded parallelism, never exceeding len(packages). The first
// unrecoverable failure is returned; all other in-flight downloads are
// canceled.
func (d *Downloader) BatchDownload(ctx context.Context, packages []universe.PackageMeta, mirrorBase, archiveDir string) error {
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "download", err)
	}

	workers := d.maxParallel
	if workers > len(packages) {
		workers = len(packages)
	}
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan universe.PackageMeta)
	errs := make(chan error, len(packages))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pkg := range jobs {
				if err := d.fetchOne(ctx, pkg, mirrorBase, archiveDir); err != nil {
					errs <- err
					cancel()
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, pkg := range packages {
			select {
			case jobs <- pkg:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		return err
	}
	return ctx.Err()
	// A canceled ctx with no collected error means the caller's own context
	// was canceled, not a download failure; that distinction is preserved
	// because a worker-triggered cancel always enqueues to errs first.
}

func (d *Downloader) fetchOne(ctx context.Context, pkg universe.PackageMeta, mirrorBase, archiveDir string) error {
	destPath := filepath.Join(archiveDir, path.Base(pkg.Path))

	if matchesExisting(destPath, pkg) {
		d.logger.Debug("skipping cached package", "name", pkg.Name, "path", destPath)
		return nil
	}

	sourceURL := mirrorBase + "/" + pkg.Path

	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := d.download(ctx, sourceURL, destPath, pkg)
		if err == nil {
			return nil
		}

		var mismatch *ChecksumMismatchError
		if errors.As(err, &mismatch) {
			return rootstraperr.New(rootstraperr.KindExtraction, "download", err)
		}

		lastErr = err
		d.logger.Warn("download attempt failed", "name", pkg.Name, "attempt", attempt, "error", err)

		if attempt < d.retry.MaxAttempts {
			delay := d.retry.BaseDelay * time.Duration(1<<uint(attempt-1))
			delay += time.Duration(rand.Int63n(int64(d.retry.BaseDelay)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return rootstraperr.New(rootstraperr.KindNetwork, "download",
		fmt.Errorf("failed to download %s after %d attempts: %w", pkg.Name, d.retry.MaxAttempts, lastErr))
}

func (d *Downloader) download(ctx context.Context, sourceURL, destPath string, pkg universe.PackageMeta) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s fetching %s", resp.Status, sourceURL)
	}

	partPath := destPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return err
	}

	h := sha256.New()
	var dest io.Writer = io.MultiWriter(out, h)
	if progress.ShouldShowProgress() {
		pw := progress.NewWriter(dest, resp.ContentLength, d.progressOut)
		defer pw.Finish()
		dest = pw
	}

	_, copyErr := io.Copy(dest, resp.Body)
	out.Close()
	if copyErr != nil {
		os.Remove(partPath)
		return copyErr
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if pkg.Checksum != "" && actual != pkg.Checksum {
		os.Remove(partPath)
		return &ChecksumMismatchError{Name: pkg.Name, Expected: pkg.Checksum, Actual: actual}
	}

	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return err
	}
	return nil
}

// matchesExisting reports whether destPath already holds a file whose size
// and checksum match pkg, making the download skippable.
func matchesExisting(destPath string, pkg universe.PackageMeta) bool {
	info, err := os.Stat(destPath)
	if err != nil {
		return false
	}
	if pkg.Size > 0 && info.Size() != pkg.Size {
		return false
	}
	if pkg.Checksum == "" {
		return true
	}

	f, err := os.Open(destPath)
	if err != nil {
		return false
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	return hex.EncodeToString(h.Sum(nil)) == pkg.Checksum
}

// ChecksumMismatchError reports that a downloaded file's SHA256 does not
// match the index-provided checksum. Non-retryable.
type ChecksumMismatchError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Name, e.Expected, e.Actual)
}
