package manifest

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// decompress reads all of r and returns a reader over its decompressed
// content, dispatching on the suffix used to fetch it (spec.md §4.1:
// "Packages[.gz|.xz]").
func decompress(suffix string, r io.Reader) (io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch suffix {
	case "":
		return bytes.NewReader(data), nil
	case ".gz":
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip manifest: %w", err)
		}
		defer gz.Close()
		out, err := io.ReadAll(gz)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip manifest: %w", err)
		}
		return bytes.NewReader(out), nil
	case ".xz":
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open xz manifest: %w", err)
		}
		out, err := io.ReadAll(xr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress xz manifest: %w", err)
		}
		return bytes.NewReader(out), nil
	default:
		return nil, fmt.Errorf("unsupported manifest suffix %q", suffix)
	}
}
