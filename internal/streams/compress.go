package streams

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var first error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens path and transparently decompresses gzip or xz content.
// Anything else is read as plain text.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	rc, err := decompress(f, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return rc, nil
}

// Decompress wraps r the same way Open does. Closing the result does not
// close r.
func Decompress(r io.Reader) (io.ReadCloser, error) {
	return decompress(r, nil)
}

func decompress(r io.Reader, owner io.Closer) (io.ReadCloser, error) {
	var closers []io.Closer
	if owner != nil {
		closers = append(closers, owner)
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("sniff compression: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		closers = append(closers, gzr)
		return &multiCloser{Reader: gzr, closers: closers}, nil
	case bytes.HasPrefix(head, xzMagic):
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		// xz reader doesn't need closing
		return &multiCloser{Reader: xzr, closers: closers}, nil
	default:
		return &multiCloser{Reader: br, closers: closers}, nil
	}
}

// Compression selects the codec used by Writer.
type Compression string

const (
	Gzip Compression = "gz"
	XZ   Compression = "xz"
)

// ParseCompression accepts "gz"/"gzip" and "xz".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "gz", "gzip":
		return Gzip, nil
	case "xz":
		return XZ, nil
	default:
		return "", fmt.Errorf("unsupported compression %q", s)
	}
}

func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case XZ:
		xzw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return xzw, nil
	default:
		return gzip.NewWriter(w), nil
	}
}
