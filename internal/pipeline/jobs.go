package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/x12ctx/internal/doctree"
	"github.com/dgallion1/x12ctx/internal/errh"
	"github.com/dgallion1/x12ctx/internal/x12"
)

// JobStatus represents the state of a parse job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusParsing   JobStatus = "parsing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
)

// Job tracks the state of a single interchange parse.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	Filename string `json:"filename"`
	LoopID   string `json:"loop_id"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData     []byte
	trees        []*doctree.Tree
	interchanges []*errh.Interchange
	orphans      []x12.Diagnostic
	errors       []string
}

// Progress tracks processing progress.
type Progress struct {
	Segments    int      `json:"segments"`
	Trees       int      `json:"trees"`
	Diagnostics int      `json:"diagnostics"`
	Errors      []string `json:"errors"`
}

// Result is what a finished job produced.
type Result struct {
	Trees        []*doctree.Tree     `json:"trees"`
	Interchanges []*errh.Interchange `json:"interchanges"`
	Orphans      []x12.Diagnostic    `json:"orphan_diagnostics"`
}

// NewJob returns a queued job for data.
func NewJob(filename, loopID string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:          newJobID(),
		Filename:    filename,
		LoopID:      loopID,
		Status:      StatusQueued,
		Phase:       "queued",
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
	}
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

// FindCompleted returns a completed job that parsed the same content with the
// same tracked loop, or nil.
func (s *JobStore) FindCompleted(contentHash, loopID string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		snap := job.Snapshot()
		if snap.Status == StatusCompleted && snap.ContentHash == contentHash && snap.LoopID == loopID {
			return job
		}
	}
	return nil
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
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// AddTree appends a yielded tree and counts its segments.
func (j *Job) AddTree(t *doctree.Tree) {
	n := 0
	for range t.Segments() {
		n++
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trees = append(j.trees, t)
	j.Progress.Trees++
	j.Progress.Segments += n
	j.UpdatedAt = time.Now()
}

// SetDiagnostics stores the envelope diagnostics gathered while parsing.
func (j *Job) SetDiagnostics(c *errh.Collector) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.interchanges = c.Interchanges()
	j.orphans = c.Orphans()
	j.Progress.Diagnostics = c.Count()
	j.UpdatedAt = time.Now()
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// releaseFile drops the upload once it has been parsed.
func (j *Job) releaseFile() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// Result returns the trees and diagnostics gathered so far.
func (j *Job) Result() Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	res := Result{
		Trees:        append([]*doctree.Tree{}, j.trees...),
		Interchanges: append([]*errh.Interchange{}, j.interchanges...),
		Orphans:      append([]x12.Diagnostic{}, j.orphans...),
	}
	return res
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	Filename    string    `json:"filename"`
	LoopID      string    `json:"loop_id"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	ContentHash string    `json:"content_hash"`
	Progress    Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:          j.ID,
		Filename:    j.Filename,
		LoopID:      j.LoopID,
		Status:      j.Status,
		Phase:       j.Phase,
		ContentHash: j.ContentHash,
		Progress: Progress{
			Segments:    j.Progress.Segments,
			Trees:       j.Progress.Trees,
			Diagnostics: j.Progress.Diagnostics,
			Errors:      append([]string{}, errs...),
		},
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
