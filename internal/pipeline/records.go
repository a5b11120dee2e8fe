package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// minFields is the number of positional fields every aligned record needs:
// source URL, target URL, source sentence, target sentence.
const minFields = 4

// ErrShortRecord marks an aligned record with fewer than four fields.
var ErrShortRecord = errors.New("aligned record has fewer than 4 fields")

// RecordError reports a malformed line of the aligned-sentence stream.
type RecordError struct {
	Line   int
	Fields int
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %d fields, need at least %d", e.Line, e.Fields, minFields)
}

func (e *RecordError) Unwrap() error { return ErrShortRecord }

// Record is one line of sentence aligner output.
type Record struct {
	Line           int
	SourceURL      string
	TargetURL      string
	SourceSentence string
	TargetSentence string
	Extra          []string // columns after the fourth, e.g. aligner scores
}

// ParseRecord splits a tab separated line. Any number of columns beyond
// the first four is accepted and kept in Extra.
func ParseRecord(line int, text string) (Record, error) {
	fields := strings.Split(strings.TrimSuffix(text, "\r"), "\t")
	if len(fields) < minFields {
		return Record{}, &RecordError{Line: line, Fields: len(fields)}
	}
	rec := Record{
		Line:           line,
		SourceURL:      fields[0],
		TargetURL:      fields[1],
		SourceSentence: fields[2],
		TargetSentence: fields[3],
	}
	if len(fields) > minFields {
		rec.Extra = fields[minFields:]
	}
	return rec, nil
}

// RecordSource yields aligned records in stream order and io.EOF at the end.
// A *RecordError leaves the source usable for the next call.
type RecordSource interface {
	Next() (Record, error)
}

// RecordReader reads aligned records from a TSV stream.
type RecordReader struct {
	sc   *bufio.Scanner
	line int
}

func NewRecordReader(r io.Reader, maxLineBytes int) *RecordReader {
	if maxLineBytes <= 0 {
		maxLineBytes = 1024 * 1024
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64*1024, maxLineBytes)), maxLineBytes)
	return &RecordReader{sc: sc}
}

func (rr *RecordReader) Next() (Record, error) {
	if !rr.sc.Scan() {
		if err := rr.sc.Err(); err != nil {
			return Record{}, fmt.Errorf("read aligned sentences: %w", err)
		}
		return Record{}, io.EOF
	}
	rr.line++
	return ParseRecord(rr.line, rr.sc.Text())
}
