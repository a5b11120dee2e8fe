package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Sink receives alignment results in emission order.
type Sink interface {
	Emit(Result) error
}

// TextSink writes one human-readable diagnostic line per result.
type TextSink struct {
	w io.Writer
}

func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

func (s *TextSink) Emit(r Result) error {
	_, err := io.WriteString(s.w, FormatText(r)+"\n")
	return err
}

// FormatText renders one result the way the diagnostic output prints it.
func FormatText(r Result) string {
	label := r.Side.Label()
	switch r.Status {
	case StatusFound:
		return fmt.Sprintf("%s Sentence '%s' found at block %d at position %d. Its final standoff annotation is %s",
			label, r.Sentence, r.Block, r.Offset, r.Standoff)
	case StatusNotFound:
		return fmt.Sprintf("%s Sentence could not be found (maybe a glued one from sentence aligner)", label)
	case StatusUnknownURL:
		return fmt.Sprintf("%s Sentence could not be found (no blocks for url %s)", label, r.URL)
	case StatusBadStandoff:
		return fmt.Sprintf("%s Sentence '%s' found at block %d at position %d. Its standoff annotation could not be rebuilt: %s",
			label, r.Sentence, r.Block, r.Offset, r.Reason)
	default:
		return fmt.Sprintf("%s Line %d skipped: %s", label, r.Line, r.Reason)
	}
}

// JSONSink writes one JSON object per result.
type JSONSink struct {
	enc *json.Encoder
}

func NewJSONSink(w io.Writer) *JSONSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONSink{enc: enc}
}

func (s *JSONSink) Emit(r Result) error {
	return s.enc.Encode(r)
}

// CollectSink keeps results in memory.
type CollectSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *CollectSink) Emit(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

// Results returns a copy of the collected results.
func (s *CollectSink) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// MultiSink fans every result out to all sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(r Result) error {
	for _, s := range m {
		if err := s.Emit(r); err != nil {
			return err
		}
	}
	return nil
}
