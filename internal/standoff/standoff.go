// Package standoff parses and clips standoff annotations.
//
// A raw annotation describes one block as an ordered, contiguous partition
// of its text into spans of the form tag:start-end joined by '+', e.g.
// "p:0-5+b:5-9". Reconstruct restricts such an annotation to a sub-range of
// the block text.
package standoff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	spanSep  = "+"
	tagSep   = ':'
	rangeSep = "-"
)

var (
	// ErrMalformed marks an annotation cell that is not tag:start-end.
	ErrMalformed = errors.New("malformed standoff")
	// ErrShortAnnotation means the spans end before the requested range does.
	ErrShortAnnotation = errors.New("standoff shorter than requested range")
)

// MalformedError reports the offending cell.
type MalformedError struct {
	Cell   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed standoff cell %q: %s", e.Cell, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Span is one tag:start-end element of an annotation.
type Span struct {
	Tag   string
	Start int
	End   int
}

// Len returns End-Start.
func (s Span) Len() int { return s.End - s.Start }

func (s Span) String() string {
	return s.Tag + string(tagSep) + strconv.Itoa(s.Start) + rangeSep + strconv.Itoa(s.End)
}

// Parse splits a raw annotation into spans. An empty string has no spans.
func Parse(raw string) ([]Span, error) {
	if raw == "" {
		return nil, nil
	}
	cells := strings.Split(raw, spanSep)
	spans := make([]Span, 0, len(cells))
	for _, cell := range cells {
		sp, err := parseSpan(cell)
		if err != nil {
			return nil, err
		}
		spans = append(spans, sp)
	}
	return spans, nil
}

func parseSpan(cell string) (Span, error) {
	i := strings.LastIndexByte(cell, tagSep)
	if i <= 0 {
		return Span{}, &MalformedError{Cell: cell, Reason: "missing tag"}
	}
	from, to, ok := strings.Cut(cell[i+1:], rangeSep)
	if !ok {
		return Span{}, &MalformedError{Cell: cell, Reason: "missing range"}
	}
	start, err := strconv.Atoi(from)
	if err != nil {
		return Span{}, &MalformedError{Cell: cell, Reason: "bad start offset"}
	}
	end, err := strconv.Atoi(to)
	if err != nil {
		return Span{}, &MalformedError{Cell: cell, Reason: "bad end offset"}
	}
	if start < 0 || end < start {
		return Span{}, &MalformedError{Cell: cell, Reason: "inverted range"}
	}
	return Span{Tag: cell[:i], Start: start, End: end}, nil
}

// Format joins spans back into the raw form.
func Format(spans []Span) string {
	var sb strings.Builder
	for i, sp := range spans {
		if i > 0 {
			sb.WriteString(spanSep)
		}
		sb.WriteString(sp.String())
	}
	return sb.String()
}
