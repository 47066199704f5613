// Package manifest downloads per-(branch, component, architecture) Packages
// indices from a Debian-style mirror, per spec.md §4.1.
package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rootstrap/rootstrap/internal/httputil"
	"github.com/rootstrap/rootstrap/internal/log"
)

// DefaultComponents is the standard component set the manifest fetcher
// requests. The sources.list entry the Filesystem Preparer writes names
// "main" directly and does not read this variable.
var DefaultComponents = []string{"main"}

// Fetcher downloads Packages indices into a lists directory.
type Fetcher struct {
	client *http.Client
	logger log.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger log.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithHTTPClient overrides the HTTP client (used by tests to point at a
// local test server without touching DNS/SSRF checks meant for mirrors).
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

// New creates a Fetcher using the secure HTTP client from internal/httputil.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: httputil.NewSecureClient(httputil.DefaultOptions()),
		logger: log.NewNoop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchManifests downloads the Packages index for every (component,
// architecture) pair under branch and returns the local filenames it wrote
// into listsDir. Architectures passed by the caller must already include
// "all" (the driver is responsible for appending it per spec.md §4.1).
func (f *Fetcher) FetchManifests(ctx context.Context, mirror, branch string, arches []string, listsDir string) ([]string, error) {
	if err := os.MkdirAll(listsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lists dir: %w", err)
	}

	var filenames []string
	for _, component := range DefaultComponents {
		for _, arch := range arches {
			sourceURL := fmt.Sprintf("%s/dists/%s/%s/binary-%s/Packages", mirror, branch, component, arch)
			filename, err := f.fetchOne(ctx, sourceURL, listsDir)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch manifest for %s/%s: %w", component, arch, err)
			}
			filenames = append(filenames, filename)
		}
	}

	return filenames, nil
}

// fetchOne downloads a single manifest URL, trying the plain, .gz, and .xz
// variants in that order, decompressing as needed, and writing the
// uncompressed index under the APT-compatible escaped filename.
func (f *Fetcher) fetchOne(ctx context.Context, sourceURL, listsDir string) (string, error) {
	filename := EscapeURL(sourceURL)
	destPath := filepath.Join(listsDir, filename)

	for _, suffix := range []string{"", ".gz", ".xz"} {
		body, err := f.get(ctx, sourceURL+suffix)
		if err != nil {
			continue
		}

		decompressed, err := decompress(suffix, body)
		body.Close()
		if err != nil {
			return "", err
		}

		if err := writeAtomic(destPath, decompressed); err != nil {
			return "", err
		}
		f.logger.Info("fetched manifest", "url", sourceURL+suffix, "dest", destPath)
		return filename, nil
	}

	return "", fmt.Errorf("no manifest variant (plain/.gz/.xz) succeeded for %s", sourceURL)
}

func (f *Fetcher) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}

// writeAtomic writes r to a temp file beside path and renames it into place,
// removing the partial file if writing fails, per spec.md §4.1's "partial
// files are removed before the error propagates".
func writeAtomic(path string, r io.Reader) error {
	tmp := path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}

// EscapeURL mimics APT's lists/ filename scheme: every "/" becomes "_", and
// any literal "_" or ":" already present in the source URL is percent-escaped
// first so the mapping stays unambiguous and reversible enough for APT's own
// tooling to recognize the cache entry.
func EscapeURL(url string) string {
	var b strings.Builder
	for _, r := range url {
		switch r {
		case '_':
			b.WriteString("%5f")
		case ':':
			b.WriteString("%3a")
		case '/':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
