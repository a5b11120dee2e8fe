package standoff

import "fmt"

// Policy decides where spans emitted after the first one start.
type Policy int

const (
	// ContinueAtSpanStart restarts every continuation span at the start of
	// the span it falls into.
	ContinueAtSpanStart Policy = iota
	// ContinueAtOffset reuses the offset counter of the first emitted span
	// for every continuation span. Older annotation files were written
	// this way.
	ContinueAtOffset
)

func (p Policy) String() string {
	switch p {
	case ContinueAtOffset:
		return "offset"
	default:
		return "span"
	}
}

// ParsePolicy maps a config value ("span" or "offset") to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "span":
		return ContinueAtSpanStart, nil
	case "offset":
		return ContinueAtOffset, nil
	default:
		return 0, fmt.Errorf("unknown standoff continuation policy %q", s)
	}
}

// Reconstructor clips block annotations to a located sentence.
type Reconstructor struct {
	Policy Policy
}

// Reconstruct restricts the raw annotation of a block to the range of
// length bytes starting at offset.
//
// Spans whose end does not exceed the remaining offset are skipped and
// their end is subtracted from it. The first overlapping span is emitted
// as tag:remaining-min(remaining+length, end); if the range continues
// past it, following spans are emitted according to the Policy until the
// length is used up. A non-positive length yields an empty annotation.
func (r Reconstructor) Reconstruct(raw string, offset, length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	spans, err := Parse(raw)
	if err != nil {
		return "", err
	}

	remOffset, remLength := offset, length
	var out []Span
	for _, sp := range spans {
		if len(out) == 0 {
			if sp.End <= remOffset {
				remOffset -= sp.End
				continue
			}
			out = append(out, Span{Tag: sp.Tag, Start: remOffset, End: min(remOffset+remLength, sp.End)})
			if remOffset+remLength <= sp.End {
				return Format(out), nil
			}
			remLength -= sp.End - remOffset
			continue
		}

		start := sp.Start
		if r.Policy == ContinueAtOffset {
			start = remOffset
		}
		if sp.End <= start {
			continue
		}
		out = append(out, Span{Tag: sp.Tag, Start: start, End: min(start+remLength, sp.End)})
		if start+remLength <= sp.End {
			return Format(out), nil
		}
		remLength -= sp.End - start
	}
	return Format(out), ErrShortAnnotation
}

// Reconstruct uses the default ContinueAtSpanStart policy.
func Reconstruct(raw string, offset, length int) (string, error) {
	return Reconstructor{}.Reconstruct(raw, offset, length)
}
