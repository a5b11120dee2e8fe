package pipeline

import "github.com/dgallion1/standoffalign/internal/blocks"

// Status is the outcome of aligning one side of one record.
type Status string

const (
	StatusFound         Status = "found"
	StatusNotFound      Status = "not_found"
	StatusUnknownURL    Status = "unknown_url"
	StatusBadStandoff   Status = "bad_standoff"
	StatusInvalidRecord Status = "invalid_record"
)

// Result is emitted once per side per record.
type Result struct {
	Line     int         `json:"line"`
	Side     blocks.Side `json:"side"`
	URL      string      `json:"url"`
	Sentence string      `json:"sentence"`
	Status   Status      `json:"status"`
	Block    int         `json:"block"`
	Offset   int         `json:"offset"`
	Standoff string      `json:"standoff,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// Located reports whether the sentence was found in the blocks, whether or
// not its annotation could be rebuilt.
func (r Result) Located() bool {
	return r.Status == StatusFound || r.Status == StatusBadStandoff
}
