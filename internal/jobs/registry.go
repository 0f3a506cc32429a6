package jobs

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Status is the lifecycle state of a job. "done" covers both clean and
// errored completion; error detail travels in the message and log.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

// Job is the mutable state of one asynchronous pipeline run. It is owned by
// the registry and must only be touched inside Mutate.
type Job struct {
	ID        string
	Status    Status
	Current   int
	Total     int
	Message   string
	Log       strings.Builder
	StartedAt time.Time
}

// Snapshot is a point-in-time copy of a job's fields, safe to hand to any
// number of pollers.
type Snapshot struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Message   string    `json:"message"`
	Log       string    `json:"log"`
	StartedAt time.Time `json:"started_at"`
}

// Registry is a concurrency-safe table of jobs. One coarse lock guards the
// whole table; per-row updates are infrequent relative to lock hold time.
// Jobs in state done are evicted once they are older than the retention
// window, swept on each Create, so the table stays bounded in a long-lived
// server process.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	retention time.Duration
	now       func() time.Time
}

// NewRegistry creates a registry evicting finished jobs retention after
// their start time. Zero or negative retention disables eviction.
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		jobs:      make(map[string]*Job),
		retention: retention,
		now:       time.Now,
	}
}

// Create allocates a queued job and returns its generated id.
func (r *Registry) Create() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked()

	id := uuid.NewString()
	r.jobs[id] = &Job{
		ID:        id,
		Status:    StatusQueued,
		Message:   "Queued",
		StartedAt: r.now(),
	}
	log.Debugf("Created job %s", id)
	return id
}

// Mutate applies fn to the job under the registry lock. Returns false for an
// unknown id.
func (r *Registry) Mutate(id string, fn func(*Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	return true
}

// Start marks the job running.
func (r *Registry) Start(id string) {
	r.Mutate(id, func(j *Job) {
		j.Status = StatusRunning
		j.Message = "Starting..."
	})
}

// UpdateProgress records the per-row progress relay values.
func (r *Registry) UpdateProgress(id string, current, total int, message string) {
	r.Mutate(id, func(j *Job) {
		j.Current = current
		j.Total = total
		j.Message = message
	})
}

// AppendLog appends one line to the job's captured log.
func (r *Registry) AppendLog(id, line string) {
	r.Mutate(id, func(j *Job) {
		j.Log.WriteString(line)
		j.Log.WriteString("\n")
	})
}

// Finish marks the job done with a terminal message.
func (r *Registry) Finish(id, message string) {
	r.Mutate(id, func(j *Job) {
		j.Status = StatusDone
		j.Message = message
	})
}

// Snapshot returns a copy of the job's fields. Polling is idempotent and
// side-effect-free.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		ID:        job.ID,
		Status:    job.Status,
		Current:   job.Current,
		Total:     job.Total,
		Message:   job.Message,
		Log:       job.Log.String(),
		StartedAt: job.StartedAt,
	}, true
}

// Remove deletes a job outright.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	return true
}

func (r *Registry) sweepLocked() {
	if r.retention <= 0 {
		return
	}
	cutoff := r.now().Add(-r.retention)
	for id, job := range r.jobs {
		if job.Status == StatusDone && job.StartedAt.Before(cutoff) {
			log.Debugf("Evicting finished job %s", id)
			delete(r.jobs, id)
		}
	}
}
