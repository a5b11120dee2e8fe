package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/standoffalign/internal/blocks"
	"github.com/dgallion1/standoffalign/internal/standoff"
	"github.com/dgallion1/standoffalign/internal/streams"
)

// Worker runs queued alignment jobs against the shared block stores.
type Worker struct {
	source        *blocks.Store
	target        *blocks.Store
	reconstructor standoff.Reconstructor
	strict        bool
	maxLineBytes  int
	log           *slog.Logger

	totals  *Totals
	latency *LatencyStats
}

func NewWorker(src, tgt *blocks.Store, rc standoff.Reconstructor, strict bool, maxLineBytes int, log *slog.Logger, totals *Totals, latency *LatencyStats) *Worker {
	return &Worker{
		source:        src,
		target:        tgt,
		reconstructor: rc,
		strict:        strict,
		maxLineBytes:  maxLineBytes,
		log:           log,
		totals:        totals,
		latency:       latency,
	}
}

// Align runs one record stream (plain, gzip or xz) through a fresh Aligner.
// Each call owns its cursors, so calls may run concurrently.
func (w *Worker) Align(ctx context.Context, data []byte, sink Sink, log *slog.Logger) (Stats, error) {
	rc, err := streams.Decompress(bytes.NewReader(data))
	if err != nil {
		return Stats{}, fmt.Errorf("open records: %w", err)
	}
	defer rc.Close()

	a := NewAligner(w.source, w.target, w.reconstructor, log)
	a.Strict = w.strict
	stats, err := a.Run(ctx, NewRecordReader(rc, w.maxLineBytes), sink)
	if err != nil {
		return stats, err
	}
	if w.totals != nil {
		w.totals.Record(stats)
	}
	if w.latency != nil {
		w.latency.Record(stats.Duration)
	}
	return stats, nil
}

// Process runs a queued job to completion.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "name", job.Name)
	start := time.Now()

	job.SetStatus(JobRunning, "aligning")
	var sink CollectSink
	stats, err := w.Align(ctx, job.Data(), &sink, log)
	if err != nil {
		log.Error("alignment failed", "error", err)
		job.AddError(err.Error())
		job.Finish(nil, stats)
		job.SetStatus(JobFailed, "aligning")
		return
	}

	job.Finish(sink.Results(), stats)
	job.SetStatus(JobCompleted, "done")
	log.Info("job complete", "records", stats.Records, "elapsed_ms", time.Since(start).Milliseconds())
}
