// Package debarchive extracts Debian .deb archives, per spec.md §4.6. A
// .deb is an `ar` archive of debian-binary, control.tar.*, and data.tar.*;
// only data.tar.* is installed into the target root.
package debarchive

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"

	"github.com/rootstrap/rootstrap/internal/rootstraperr"
)

// ExtractDeb reads a .deb stream and installs its data.tar.* member into
// targetDir, preserving permissions, symlinks, hard links, numeric
// ownership, and timestamps. Path traversal entries (containing ".." or
// starting with "/") are rejected. Existing files are overwritten.
func ExtractDeb(r io.Reader, targetDir string) error {
	ar, err := newARReader(r)
	if err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "extract", err)
	}

	for {
		entry, err := ar.next()
		if err == io.EOF {
			return rootstraperr.Newf(rootstraperr.KindExtraction, "extract", "data.tar.* member not found in archive")
		}
		if err != nil {
			return rootstraperr.New(rootstraperr.KindExtraction, "extract", err)
		}

		if !strings.HasPrefix(entry.name, "data.tar") {
			continue
		}

		tr, err := dataTarReader(entry.name, entry.r)
		if err != nil {
			return rootstraperr.New(rootstraperr.KindExtraction, "extract", err)
		}
		if err := extractTar(tr, targetDir); err != nil {
			return rootstraperr.New(rootstraperr.KindExtraction, "extract", err)
		}
		return nil
	}
}

// dataTarReader wraps r with the decompressor matching entry's suffix, or
// sniffs the first bytes when the suffix is absent/unrecognized.
func dataTarReader(memberName string, r io.Reader) (*tar.Reader, error) {
	switch {
	case strings.HasSuffix(memberName, ".gz"):
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return tar.NewReader(gzr), nil
	case strings.HasSuffix(memberName, ".xz"):
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return tar.NewReader(xzr), nil
	case strings.HasSuffix(memberName, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return tar.NewReader(zr), nil
	case strings.HasSuffix(memberName, ".tar"):
		return tar.NewReader(r), nil
	default:
		return sniffAndWrap(r)
	}
}

// sniffAndWrap detects the compression format by magic bytes when the
// member name carries no recognizable suffix.
func sniffAndWrap(r io.Reader) (*tar.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, err
	}

	switch {
	case len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return tar.NewReader(gzr), nil
	case len(magic) >= 6 && string(magic[:6]) == "\xfd7zXZ\x00":
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, err
		}
		return tar.NewReader(xzr), nil
	case len(magic) >= 4 && magic[0] == 0x28 && magic[1] == 0xb5 && magic[2] == 0x2f && magic[3] == 0xfd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		return tar.NewReader(zr), nil
	default:
		return tar.NewReader(br), nil
	}
}

// extractTar writes every entry of tr into targetDir, rejecting any entry
// that would escape it.
func extractTar(tr *tar.Reader, targetDir string) error {
	hardlinks := make(map[string]string) // deferred until all regular files are written

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "./")
		if name == "." || name == "" {
			continue
		}
		if strings.HasPrefix(name, "/") || containsDotDot(name) {
			return fmt.Errorf("rejecting archive entry with unsafe path: %s", header.Name)
		}

		target := filepath.Join(targetDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)&0o777); err != nil {
				return err
			}
			if err := applyMeta(target, header); err != nil {
				return err
			}

		case tar.TypeReg, tar.TypeRegA:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.RemoveAll(target); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
			if err := applyMeta(target, header); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
			unix.Lchown(target, header.Uid, header.Gid)

		case tar.TypeLink:
			// Hard link targets are relative to the archive root and may not
			// have been written yet; defer until after the full pass.
			hardlinks[target] = filepath.Join(targetDir, strings.TrimPrefix(header.Linkname, "./"))

		default:
			// char/block devices, fifos: skip. A bootstrap root's own
			// device nodes are created separately by the filesystem
			// preparer with explicit major/minor numbers.
		}
	}

	for link, existing := range hardlinks {
		if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
			return err
		}
		os.Remove(link)
		if err := os.Link(existing, link); err != nil {
			return fmt.Errorf("creating hard link %s -> %s: %w", link, existing, err)
		}
	}

	return nil
}

func containsDotDot(name string) bool {
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// applyMeta sets numeric ownership, permission bits (including
// setuid/setgid/sticky) and modification time on an already written file or
// directory. The mode is set after the chown, which would otherwise clear
// setuid/setgid.
func applyMeta(path string, header *tar.Header) error {
	if err := unix.Lchown(path, header.Uid, header.Gid); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	if err := os.Chmod(path, header.FileInfo().Mode()); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	modTime := header.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		return fmt.Errorf("chtimes %s: %w", path, err)
	}
	return nil
}
