package debarchive

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// arMagic is the fixed 8-byte signature every ar archive begins with.
const arMagic = "!<arch>\n"

// arHeaderSize is the fixed size of each ar member header, per the common
// ("GNU"/System V) ar format that dpkg's .deb archives use.
const arHeaderSize = 60

// arEntry describes one member of an ar archive: its name and a reader
// bounded to exactly its declared size.
type arEntry struct {
	name string
	size int64
	r    io.Reader
}

// arReader walks the members of an ar archive sequentially. There is no
// library for this format anywhere in the example corpus; the format itself
// is a fixed 60-byte-header-plus-payload sequence simple enough that a
// dependency would add more overhead than it removes.
type arReader struct {
	br      *bufio.Reader
	pending int64             // padding byte still to skip after the current member
	cur     *io.LimitedReader // payload of the current member; N is its unread byte count
}

func newARReader(r io.Reader) (*arReader, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(arMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("reading ar magic: %w", err)
	}
	if string(magic) != arMagic {
		return nil, fmt.Errorf("not an ar archive: bad magic %q", magic)
	}
	return &arReader{br: br}, nil
}

// next advances to the next member header and returns it, or io.EOF when the
// archive is exhausted.
func (a *arReader) next() (*arEntry, error) {
	skip := a.pending
	if a.cur != nil {
		skip += a.cur.N
		a.cur = nil
	}
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, a.br, skip); err != nil {
			return nil, fmt.Errorf("skipping ar member padding: %w", err)
		}
		a.pending = 0
	}

	header := make([]byte, arHeaderSize)
	n, err := io.ReadFull(a.br, header)
	if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("reading ar member header: %w", err)
	}

	name := strings.TrimRight(string(header[0:16]), " ")
	name = strings.TrimSuffix(name, "/") // GNU ar appends a trailing slash

	sizeField := strings.TrimSpace(string(header[48:58]))
	size, err := strconv.ParseInt(sizeField, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing ar member size %q: %w", sizeField, err)
	}

	if string(header[58:60]) != "`\n" {
		return nil, fmt.Errorf("malformed ar member header for %q: bad terminator", name)
	}

	a.pending = size % 2
	a.cur = &io.LimitedReader{R: a.br, N: size}

	return &arEntry{
		name: name,
		size: size,
		r:    a.cur,
	}, nil
}
