// Package streams reads and writes the per-side url / text / deferred
// standoff streams that connect text extraction to alignment.
package streams

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dgallion1/standoffalign/internal/blocks"
)

const (
	// CellSep separates the standoff cells of one document.
	CellSep = ";"

	defaultMaxLineBytes = 64 * 1024 * 1024
)

// ErrDesync means the three streams of a side do not line up.
var ErrDesync = errors.New("streams out of sync")

// DesyncError reports where the streams stopped lining up.
type DesyncError struct {
	Line   int
	URL    string
	Reason string
}

func (e *DesyncError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("line %d (%s): %s", e.Line, e.URL, e.Reason)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func (e *DesyncError) Unwrap() error { return ErrDesync }

// Paths names the three stream files of one side.
type Paths struct {
	URL      string
	Text     string
	Standoff string
}

// PathsIn returns the conventional file names inside dir.
func PathsIn(dir string, c Compression) Paths {
	ext := "." + string(c)
	return Paths{
		URL:      filepath.Join(dir, "url"+ext),
		Text:     filepath.Join(dir, "text"+ext),
		Standoff: filepath.Join(dir, "deferred"+ext),
	}
}

// Loader builds block stores from stream triples.
type Loader struct {
	MaxLineBytes int
	Log          *slog.Logger
}

func NewLoader(maxLineBytes int, log *slog.Logger) *Loader {
	if maxLineBytes <= 0 {
		maxLineBytes = defaultMaxLineBytes
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{MaxLineBytes: maxLineBytes, Log: log}
}

// Load opens the files in p and reads them with Read.
func (l *Loader) Load(ctx context.Context, side blocks.Side, p Paths) (*blocks.Store, error) {
	var files []io.ReadCloser
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, path := range []string{p.URL, p.Text, p.Standoff} {
		f, err := Open(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	store, err := l.Read(ctx, side, files[0], files[1], files[2])
	if err != nil {
		return nil, fmt.Errorf("load %s streams: %w", side, err)
	}
	return store, nil
}

// Read consumes the three streams in lock step. Each url line pairs with
// one base64 text line and one standoff line; the decoded text is split
// into blocks and the standoff line into one cell per block. Any stream
// ending early, or a cell count that differs from the block count, is a
// *DesyncError.
func (l *Loader) Read(ctx context.Context, side blocks.Side, urls, texts, standoffs io.Reader) (*blocks.Store, error) {
	urlSc := l.scanner(urls)
	textSc := l.scanner(texts)
	cellSc := l.scanner(standoffs)

	store := blocks.NewStore(side)
	line := 0
	for urlSc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		url := urlSc.Text()

		if !textSc.Scan() {
			if err := textSc.Err(); err != nil {
				return nil, fmt.Errorf("read text stream: %w", err)
			}
			return nil, &DesyncError{Line: line, URL: url, Reason: "text stream ended early"}
		}
		if !cellSc.Scan() {
			if err := cellSc.Err(); err != nil {
				return nil, fmt.Errorf("read standoff stream: %w", err)
			}
			return nil, &DesyncError{Line: line, URL: url, Reason: "standoff stream ended early"}
		}

		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(textSc.Text()))
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): decode text: %w", line, url, err)
		}
		lines := splitLines(string(decoded))
		cells := splitCells(cellSc.Text(), len(lines))
		if len(cells) != len(lines) {
			return nil, &DesyncError{
				Line:   line,
				URL:    url,
				Reason: fmt.Sprintf("%d text lines but %d standoff cells", len(lines), len(cells)),
			}
		}

		bs := make([]blocks.Block, len(lines))
		for i := range lines {
			bs[i] = blocks.Block{Text: lines[i], Standoff: cells[i]}
		}
		store.Append(url, bs...)
	}
	if err := urlSc.Err(); err != nil {
		return nil, fmt.Errorf("read url stream: %w", err)
	}
	if textSc.Scan() {
		return nil, &DesyncError{Line: line + 1, Reason: "text stream has more lines than url stream"}
	}
	if cellSc.Scan() {
		return nil, &DesyncError{Line: line + 1, Reason: "standoff stream has more lines than url stream"}
	}

	l.Log.Info("loaded block store",
		"side", side,
		"documents", store.Len(),
		"blocks", store.BlockCount(),
	)
	return store, nil
}

func (l *Loader) scanner(r io.Reader) *bufio.Scanner {
	limit := l.MaxLineBytes
	if limit <= 0 {
		limit = defaultMaxLineBytes
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64*1024, limit)), limit)
	return sc
}

// splitLines splits decoded document text into blocks. A trailing newline
// does not produce an empty block.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// splitCells splits a standoff line. An empty line holds no cells only
// when the document has no blocks; otherwise it is one empty cell.
func splitCells(line string, n int) []string {
	if line == "" && n == 0 {
		return nil
	}
	return strings.Split(line, CellSep)
}
