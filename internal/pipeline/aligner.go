package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dgallion1/standoffalign/internal/blocks"
	"github.com/dgallion1/standoffalign/internal/locate"
	"github.com/dgallion1/standoffalign/internal/standoff"
)

const gluedReason = "sentence could not be found (maybe a glued one from sentence aligner)"

// SideState is the search state of one side: where the previous search on
// PrevURL stopped.
type SideState struct {
	Cursor  locate.Cursor
	PrevURL string
}

// Enter returns the state to search url with. The cursor restarts at (0,0)
// whenever url differs from the previous record's url on this side.
func (s SideState) Enter(url string) SideState {
	if url != s.PrevURL {
		s.Cursor = locate.Cursor{}
	}
	s.PrevURL = url
	return s
}

// State holds both sides. Records must be fed to Step in stream order.
type State struct {
	Source SideState
	Target SideState
}

// Aligner relocates aligned sentences in the block stores and rebuilds
// their standoff annotations, one record at a time.
type Aligner struct {
	Source        *blocks.Store
	Target        *blocks.Store
	Reconstructor standoff.Reconstructor
	// Strict aborts Run on the first malformed record instead of reporting it.
	Strict bool
	Log    *slog.Logger
}

func NewAligner(src, tgt *blocks.Store, rc standoff.Reconstructor, log *slog.Logger) *Aligner {
	if log == nil {
		log = slog.Default()
	}
	return &Aligner{Source: src, Target: tgt, Reconstructor: rc, Log: log}
}

// Step aligns one record and returns the next state with one result per
// side (source first). A side whose sentence is not found keeps its cursor.
func (a *Aligner) Step(st State, rec Record) (State, [2]Result) {
	var out [2]Result
	st.Source, out[0] = a.alignSide(st.Source, a.Source, blocks.Source, rec.Line, rec.SourceURL, rec.SourceSentence)
	st.Target, out[1] = a.alignSide(st.Target, a.Target, blocks.Target, rec.Line, rec.TargetURL, rec.TargetSentence)
	return st, out
}

func (a *Aligner) alignSide(ss SideState, store *blocks.Store, side blocks.Side, line int, url, sentence string) (SideState, Result) {
	ss = ss.Enter(url)
	res := Result{
		Line:     line,
		Side:     side,
		URL:      url,
		Sentence: sentence,
		Block:    locate.NotFound.Block,
		Offset:   locate.NotFound.Offset,
	}

	var doc *blocks.Document
	if store != nil {
		doc = store.Get(url)
	}
	if doc == nil {
		res.Status = StatusUnknownURL
		res.Reason = "no blocks for url"
		return ss, res
	}

	pos, ok := locate.Locate(doc, ss.Cursor, sentence)
	if !ok {
		res.Status = StatusNotFound
		res.Reason = gluedReason
		return ss, res
	}
	ss.Cursor = pos
	res.Block, res.Offset = pos.Block, pos.Offset

	so, err := a.Reconstructor.Reconstruct(doc.Blocks[pos.Block].Standoff, pos.Offset, len(sentence))
	if err != nil {
		res.Status = StatusBadStandoff
		res.Reason = err.Error()
		if errors.Is(err, standoff.ErrShortAnnotation) {
			res.Standoff = so
		}
		return ss, res
	}
	res.Status = StatusFound
	res.Standoff = so
	return ss, res
}

// Run reads records until io.EOF and emits every result to sink. Per-side
// failures are reported as results and never stop the run; only read
// errors, sink errors, cancellation and (in Strict mode) malformed records
// do.
func (a *Aligner) Run(ctx context.Context, records RecordSource, sink Sink) (Stats, error) {
	start := time.Now()
	stats, err := a.run(ctx, records, sink)
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}
	a.Log.Info("alignment finished",
		"records", stats.Records,
		"source_found", stats.Source.Found,
		"target_found", stats.Target.Found,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

func (a *Aligner) run(ctx context.Context, records RecordSource, sink Sink) (Stats, error) {
	var (
		st    State
		stats Stats
	)

	emit := func(rs ...Result) error {
		for _, r := range rs {
			stats.Add(r)
			if err := sink.Emit(r); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, err := records.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var recErr *RecordError
		if errors.As(err, &recErr) {
			if a.Strict {
				return stats, err
			}
			a.Log.Warn("skipping malformed record", "line", recErr.Line, "fields", recErr.Fields)
			stats.Records++
			if err := emit(invalidResults(recErr)...); err != nil {
				return stats, err
			}
			continue
		}
		if err != nil {
			return stats, err
		}

		stats.Records++
		var out [2]Result
		st, out = a.Step(st, rec)
		for _, r := range out {
			if r.Status != StatusFound {
				a.Log.Debug("sentence not aligned",
					"line", r.Line, "side", r.Side, "status", r.Status, "url", r.URL, "reason", r.Reason)
			}
		}
		if err := emit(out[:]...); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func invalidResults(e *RecordError) []Result {
	out := make([]Result, 0, 2)
	for _, side := range []blocks.Side{blocks.Source, blocks.Target} {
		out = append(out, Result{
			Line:   e.Line,
			Side:   side,
			Status: StatusInvalidRecord,
			Block:  locate.NotFound.Block,
			Offset: locate.NotFound.Offset,
			Reason: e.Error(),
		})
	}
	return out
}
