// Package locate finds aligned sentences inside a document's block sequence.
package locate

import (
	"strings"

	"github.com/dgallion1/standoffalign/internal/blocks"
)

// Cursor is the (block, offset) position a search resumes from.
// The zero value is the start of the document.
type Cursor struct {
	Block  int `json:"block"`
	Offset int `json:"offset"`
}

// Position is where a pattern was found.
type Position = Cursor

// NotFound is the position reported when a pattern does not occur.
var NotFound = Position{Block: -1, Offset: -1}

// Locate returns the first occurrence of pattern at or after start.
//
// The block at start.Block is scanned from start.Offset, every later
// block from 0, and the leftmost exact match wins. Matches never span two
// blocks. An empty pattern, a nil document or a cursor outside the
// document yield (NotFound, false).
func Locate(doc *blocks.Document, start Cursor, pattern string) (Position, bool) {
	if pattern == "" || doc == nil || start.Block < 0 || start.Offset < 0 {
		return NotFound, false
	}
	from := start.Offset
	for b := start.Block; b < len(doc.Blocks); b++ {
		text := doc.Blocks[b].Text
		if from+len(pattern) <= len(text) {
			if i := strings.Index(text[from:], pattern); i >= 0 {
				return Position{Block: b, Offset: from + i}, true
			}
		}
		from = 0
	}
	return NotFound, false
}
