package streams

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/standoffalign/internal/blocks"
)

type streamFile struct {
	f   *os.File
	zw  io.WriteCloser
	buf *bufio.Writer
}

func createStream(path string, c Compression) (*streamFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	zw, err := compressor(f, c)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &streamFile{f: f, zw: zw, buf: bufio.NewWriter(zw)}, nil
}

func (s *streamFile) writeLine(line string) error {
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return s.buf.WriteByte('\n')
}

func (s *streamFile) close() error {
	return errors.Join(s.buf.Flush(), s.zw.Close(), s.f.Close())
}

// Writer produces the url, base64 text and deferred standoff streams of
// one side, one line per document in each.
type Writer struct {
	Paths Paths

	url, text, standoff *streamFile
	docs                int
}

// NewWriter creates dir and the three stream files inside it.
func NewWriter(dir string, c Compression) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}
	w := &Writer{Paths: PathsIn(dir, c)}
	var err error
	if w.url, err = createStream(w.Paths.URL, c); err != nil {
		return nil, err
	}
	if w.text, err = createStream(w.Paths.Text, c); err != nil {
		w.url.close()
		return nil, err
	}
	if w.standoff, err = createStream(w.Paths.Standoff, c); err != nil {
		w.url.close()
		w.text.close()
		return nil, err
	}
	return w, nil
}

// WriteDocument appends one document. Documents without blocks are skipped.
func (w *Writer) WriteDocument(url string, bs []blocks.Block) error {
	if len(bs) == 0 {
		return nil
	}
	if strings.ContainsAny(url, "\n\r") {
		return fmt.Errorf("url %q contains a line break", url)
	}

	texts := make([]string, len(bs))
	cells := make([]string, len(bs))
	for i, b := range bs {
		if strings.Contains(b.Text, "\n") {
			return fmt.Errorf("%s: block %d contains a line break", url, i)
		}
		if strings.Contains(b.Standoff, CellSep) {
			return fmt.Errorf("%s: block %d standoff contains %q", url, i, CellSep)
		}
		texts[i] = b.Text
		cells[i] = b.Standoff
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(strings.Join(texts, "\n") + "\n"))
	if err := w.url.writeLine(url); err != nil {
		return fmt.Errorf("write url stream: %w", err)
	}
	if err := w.text.writeLine(encoded); err != nil {
		return fmt.Errorf("write text stream: %w", err)
	}
	if err := w.standoff.writeLine(strings.Join(cells, CellSep)); err != nil {
		return fmt.Errorf("write standoff stream: %w", err)
	}
	w.docs++
	return nil
}

// Documents returns how many documents were written.
func (w *Writer) Documents() int { return w.docs }

// Close flushes and closes all three streams.
func (w *Writer) Close() error {
	return errors.Join(w.url.close(), w.text.close(), w.standoff.close())
}
