package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/standoffalign/internal/blocks"
	"github.com/dgallion1/standoffalign/internal/config"
	"github.com/dgallion1/standoffalign/internal/standoff"
)

// Orchestrator owns the loaded block stores and the alignment job queue.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	source  *blocks.Store
	target  *blocks.Store
	log     *slog.Logger
	cfg     config.Config
	worker  *Worker
	totals  *Totals
	latency *LatencyStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline; call Start to launch workers.
func NewOrchestrator(cfg config.Config, src, tgt *blocks.Store, log *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		jobs:    NewJobStore(cfg.JobTTL),
		queue:   make(chan *Job, cfg.MaxQueueSize),
		source:  src,
		target:  tgt,
		log:     log,
		cfg:     cfg,
		totals:  &Totals{},
		latency: NewLatencyStats(cfg.StatsWindow),
	}
	o.worker = NewWorker(src, tgt, standoff.Reconstructor{Policy: cfg.Policy()}, cfg.Strict, cfg.MaxLineBytes, log, o.totals, o.latency)
	return o
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for i := 0; i < o.cfg.WorkerCount; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.worker.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a job. An identical upload that is still queued, running
// or completed is returned instead of a new job.
func (o *Orchestrator) Submit(job *Job) (*Job, error) {
	if existing := o.jobs.FindByHash(job.ContentHash); existing != nil {
		o.log.Info("duplicate upload, reusing job", "job_id", existing.ID)
		return existing, nil
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return job, nil
	default:
		job.SetStatus(JobFailed, "queue_full")
		job.AddError("job queue is full")
		return job, fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// Align runs a record stream synchronously, bypassing the queue.
func (o *Orchestrator) Align(ctx context.Context, data []byte, sink Sink) (Stats, error) {
	return o.worker.Align(ctx, data, sink, o.log)
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Store returns the block store of one side.
func (o *Orchestrator) Store(side blocks.Side) *blocks.Store {
	if side == blocks.Target {
		return o.target
	}
	return o.source
}

// Totals returns counters summed over every finished run.
func (o *Orchestrator) Totals() *Totals {
	return o.totals
}

// Latency returns the rolling run latency window.
func (o *Orchestrator) Latency() *LatencyStats {
	return o.latency
}
