package blocks

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Side identifies which language of the bitext a store or result belongs to.
type Side string

const (
	Source Side = "source"
	Target Side = "target"
)

// Label is the short tag used in diagnostic output (SL/TL).
func (s Side) Label() string {
	if s == Target {
		return "TL"
	}
	return "SL"
}

// ParseSide accepts "source"/"target" and the SL/TL labels.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "source", "sl", "src":
		return Source, nil
	case "target", "tl", "tgt":
		return Target, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Block is one extracted text line plus its raw standoff annotation.
type Block struct {
	Text     string `json:"text"`
	Standoff string `json:"standoff"`
}

// Document is the ordered block sequence extracted for one URL.
type Document struct {
	URL    string  `json:"url"`
	Blocks []Block `json:"blocks"`
}

// Len returns the number of blocks.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Blocks)
}

// Fingerprint is the BLAKE3 hash of the document text, one block per line.
func (d *Document) Fingerprint() string {
	h := blake3.New()
	if d != nil {
		for _, b := range d.Blocks {
			h.Write([]byte(b.Text))
			h.Write([]byte{'\n'})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store maps URL to document for one side. It is built once by a loader
// and only read afterwards, so concurrent readers need no locking.
type Store struct {
	Side Side
	docs map[string]*Document
}

func NewStore(side Side) *Store {
	return &Store{Side: side, docs: make(map[string]*Document)}
}

// Append adds blocks to the document for url, creating it on first use.
// Repeated URLs keep appending in input order.
func (s *Store) Append(url string, bs ...Block) {
	doc, ok := s.docs[url]
	if !ok {
		doc = &Document{URL: url}
		s.docs[url] = doc
	}
	doc.Blocks = append(doc.Blocks, bs...)
}

// Get returns the document for url, or nil if the store has none.
func (s *Store) Get(url string) *Document {
	return s.docs[url]
}

// Len returns the number of documents.
func (s *Store) Len() int {
	return len(s.docs)
}

// BlockCount returns the total number of blocks across all documents.
func (s *Store) BlockCount() int {
	n := 0
	for _, d := range s.docs {
		n += len(d.Blocks)
	}
	return n
}

// URLs returns the stored URLs in sorted order.
func (s *Store) URLs() []string {
	urls := make([]string, 0, len(s.docs))
	for u := range s.docs {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}
