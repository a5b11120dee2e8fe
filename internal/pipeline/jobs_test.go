package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/standoffalign/internal/blocks"
	"github.com/dgallion1/standoffalign/internal/config"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	// BLAKE3 of empty input is well-known.
	want := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	if h := ContentHashHex([]byte{}); h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	if ContentHashHex([]byte("aaa")) == ContentHashHex([]byte("bbb")) {
		t.Error("expected different hashes for different inputs")
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("upload.tsv", []byte("a\tb\tc\td\n"))
	if job.ID == "" {
		t.Fatal("expected job id")
	}
	if job.Status != JobQueued {
		t.Errorf("expected queued, got %q", job.Status)
	}
	if job.ContentHash != ContentHashHex([]byte("a\tb\tc\td\n")) {
		t.Errorf("expected content hash of upload, got %q", job.ContentHash)
	}
	if other := NewJob("upload.tsv", nil); other.ID == job.ID {
		t.Error("expected unique job ids")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("x", nil)
	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{JobRunning, "aligning"},
		{JobCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
	if !job.Status.Terminal() {
		t.Error("expected completed to be terminal")
	}
	if JobRunning.Terminal() {
		t.Error("expected running not to be terminal")
	}
}

func TestJob_SnapshotHidesResultsUntilCompleted(t *testing.T) {
	job := NewJob("x", []byte("data"))
	job.Finish([]Result{{Line: 1, Status: StatusFound}}, Stats{Records: 1})
	job.SetStatus(JobRunning, "aligning")

	snap := job.Snapshot()
	if snap.Errors == nil {
		t.Error("expected errors to be non-nil empty slice")
	}
	if snap.Stats != nil || snap.Results != nil {
		t.Error("expected no stats or results before completion")
	}
	if job.Data() != nil {
		t.Error("expected upload to be released after Finish")
	}

	job.SetStatus(JobCompleted, "done")
	snap = job.Snapshot()
	if snap.Stats == nil || snap.Stats.Records != 1 {
		t.Errorf("expected stats after completion, got %+v", snap.Stats)
	}
	if len(snap.Results) != 1 {
		t.Errorf("expected 1 result, got %d", len(snap.Results))
	}
}

func TestJob_AddError(t *testing.T) {
	job := NewJob("x", nil)
	job.AddError("first")
	job.AddError("second")
	snap := job.Snapshot()
	if len(snap.Errors) != 2 || snap.Errors[1] != "second" {
		t.Errorf("expected 2 errors, got %v", snap.Errors)
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := NewJob("x", nil)
	store.Put(job)

	if got := store.Get(job.ID); got != job {
		t.Errorf("expected same job pointer, got %v", got)
	}
	if got := store.Get("nonexistent"); got != nil {
		t.Errorf("expected nil for missing job, got %v", got)
	}
}

func TestJobStore_FindByHash(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := NewJob("x", []byte("same"))
	store.Put(job)

	if got := store.FindByHash(ContentHashHex([]byte("same"))); got != job {
		t.Errorf("expected to find job by hash, got %v", got)
	}
	job.SetStatus(JobFailed, "aligning")
	if got := store.FindByHash(job.ContentHash); got != nil {
		t.Errorf("expected failed job not to be reused, got %v", got)
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(10 * time.Millisecond)

	old := NewJob("old", nil)
	old.UpdatedAt = time.Now().Add(-time.Second)
	store.Put(old)
	fresh := NewJob("fresh", nil)
	store.Put(fresh)

	store.Cleanup()

	if store.Get(old.ID) != nil {
		t.Error("expected expired job to be removed")
	}
	if store.Get(fresh.ID) == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 job, got %d", store.Len())
	}
}

func testOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	src, tgt := testStores()
	cfg := config.Defaults()
	cfg.WorkerCount = 2
	cfg.MaxQueueSize = 4
	o := NewOrchestrator(cfg, src, tgt, quietLogger())
	return o
}

const jobInput = "http://a.example/en\thttp://a.example/fr\tworld.\tle monde.\n"

func waitTerminal(t *testing.T, job *Job) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := job.Snapshot()
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", job.ID)
	return JobSnapshot{}
}

func TestOrchestrator_ProcessesJob(t *testing.T) {
	o := testOrchestrator(t)
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.Submit(NewJob("a.tsv", []byte(jobInput)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := waitTerminal(t, job)
	if snap.Status != JobCompleted {
		t.Fatalf("expected completed, got %s (%v)", snap.Status, snap.Errors)
	}
	if len(snap.Results) != 2 || snap.Results[0].Standoff != "p:6-12" {
		t.Errorf("unexpected results %+v", snap.Results)
	}
	if o.GetJob(job.ID) != job {
		t.Error("expected job to be retrievable")
	}

	runs, totals := o.Totals().Snapshot()
	if runs != 1 || totals.Source.Found != 1 {
		t.Errorf("expected 1 run with 1 source match, got %d runs %+v", runs, totals.Source)
	}
	if o.Latency().Snapshot().Count != 1 {
		t.Error("expected one latency sample")
	}

	again, err := o.Submit(NewJob("b.tsv", []byte(jobInput)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != job {
		t.Error("expected duplicate upload to reuse the existing job")
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	o := testOrchestrator(t)
	// Workers not started, so the queue only fills.
	for i := 0; i < o.cfg.MaxQueueSize; i++ {
		if _, err := o.Submit(NewJob("x", []byte(strings.Repeat("x", i+1)))); err != nil {
			t.Fatalf("unexpected error on job %d: %v", i, err)
		}
	}
	job, err := o.Submit(NewJob("x", []byte("overflow")))
	if err == nil {
		t.Fatal("expected queue full error")
	}
	if job.Snapshot().Status != JobFailed {
		t.Errorf("expected failed status, got %s", job.Snapshot().Status)
	}
	if o.QueueDepth() != o.cfg.MaxQueueSize {
		t.Errorf("expected queue depth %d, got %d", o.cfg.MaxQueueSize, o.QueueDepth())
	}
}

func TestOrchestrator_AlignCompressed(t *testing.T) {
	o := testOrchestrator(t)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(jobInput))
	zw.Close()

	var sink CollectSink
	stats, err := o.Align(context.Background(), buf.Bytes(), &sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Records != 1 || stats.Target.Found != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if o.Store(blocks.Target).Get("http://a.example/fr") == nil {
		t.Error("expected target store to be exposed")
	}
}

func TestOrchestrator_StrictJobFails(t *testing.T) {
	src, tgt := testStores()
	cfg := config.Defaults()
	cfg.WorkerCount = 1
	cfg.Strict = true
	o := NewOrchestrator(cfg, src, tgt, quietLogger())
	o.Start(context.Background())
	defer o.Stop()

	job, _ := o.Submit(NewJob("bad.tsv", []byte("only\ttwo\n")))
	snap := waitTerminal(t, job)
	if snap.Status != JobFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if len(snap.Errors) == 0 {
		t.Error("expected error message")
	}
}
