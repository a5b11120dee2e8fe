package pipeline

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// JobStatus represents the state of an alignment job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job will not change any more.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job tracks one queued alignment of an uploaded record stream.
type Job struct {
	mu sync.Mutex

	ID     string    `json:"job_id"`
	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`
	Name   string    `json:"name"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	data    []byte
	results []Result
	stats   Stats
	errors  []string
}

// NewJob creates a queued job for a record stream.
func NewJob(name string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		Status:      JobQueued,
		Phase:       "queued",
		Name:        name,
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		data:        data,
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// Data returns the uploaded record stream.
func (j *Job) Data() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.data
}

// Finish stores the outcome of a run and releases the upload.
func (j *Job) Finish(results []Result, stats Stats) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = results
	j.stats = stats
	j.data = nil
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Name        string    `json:"name"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Errors      []string  `json:"errors"`
	Stats       *Stats    `json:"stats,omitempty"`
	Results     []Result  `json:"results,omitempty"`
}

// Snapshot returns a JSON-safe copy of the job state. Stats and results
// are only present once the job completed.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	snap := JobSnapshot{
		ID:          j.ID,
		Status:      j.Status,
		Phase:       j.Phase,
		Name:        j.Name,
		ContentHash: j.ContentHash,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		Errors:      errs,
	}
	if j.Status == JobCompleted {
		stats := j.stats
		snap.Stats = &stats
		snap.Results = append([]Result(nil), j.results...)
	}
	return snap
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// FindByHash returns a live job for the same upload, if any. Failed jobs
// are not reused.
func (s *JobStore) FindByHash(hash string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		job.mu.Lock()
		match := job.ContentHash == hash && job.Status != JobFailed
		job.mu.Unlock()
		if match {
			return job
		}
	}
	return nil
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// ContentHashHex computes the BLAKE3 digest of content as a hex string.
func ContentHashHex(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
