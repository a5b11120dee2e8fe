package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/standoffalign/internal/blocks"
	"github.com/dgallion1/standoffalign/internal/standoff"
)

// Parser converts a raw document into blocks of plain text, each carrying
// the standoff annotation of the markup it came from.
type Parser interface {
	Parse(r io.Reader, name string) ([]blocks.Block, error)
}

// SupportedExtensions lists file extensions the extractor can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// lineBuilder accumulates blocks and their spans. Offsets are cumulative
// over the document text: each block continues where the previous ended.
type lineBuilder struct {
	pos          int
	text         strings.Builder
	spans        []standoff.Span
	pendingSpace bool
	out          []blocks.Block
}

// write appends s to the current line under tag, extending the previous
// span when it has the same tag.
func (b *lineBuilder) write(tag, s string) {
	if s == "" {
		return
	}
	tag = cleanTag(tag)
	if last := len(b.spans) - 1; last >= 0 && b.spans[last].Tag == tag && b.spans[last].End == b.pos {
		b.spans[last].End += len(s)
	} else {
		b.spans = append(b.spans, standoff.Span{Tag: tag, Start: b.pos, End: b.pos + len(s)})
	}
	b.text.WriteString(s)
	b.pos += len(s)
}

// writeCollapsed appends s with whitespace runs folded into one space.
// Whitespace at the start or end of a line is dropped.
func (b *lineBuilder) writeCollapsed(tag, s string) {
	if s == "" {
		return
	}
	first, _ := utf8.DecodeRuneInString(s)
	if unicode.IsSpace(first) {
		b.pendingSpace = true
	}
	for i, w := range strings.Fields(s) {
		if (i > 0 || b.pendingSpace) && b.text.Len() > 0 {
			b.write(tag, " ")
		}
		b.pendingSpace = false
		b.write(tag, w)
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	if unicode.IsSpace(last) {
		b.pendingSpace = true
	}
}

// endLine closes the current line. Empty lines produce no block.
func (b *lineBuilder) endLine() {
	b.pendingSpace = false
	if b.text.Len() == 0 {
		return
	}
	b.out = append(b.out, blocks.Block{Text: b.text.String(), Standoff: standoff.Format(b.spans)})
	b.text.Reset()
	b.spans = nil
}

// finish closes the last line and returns every block.
func (b *lineBuilder) finish() []blocks.Block {
	b.endLine()
	return b.out
}

// cleanTag keeps span and cell separators out of tag names.
func cleanTag(tag string) string {
	if tag == "" {
		return "text"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '+', ';', '\n', '\r':
			return '_'
		}
		return r
	}, tag)
}
