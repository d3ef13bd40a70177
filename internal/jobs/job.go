// Package jobs tracks transcode jobs: their status, progress and uploaded
// segments, stored in a Registry and driven by a Manager.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/zsiec/reel/internal/pipeline"
)

var (
	// ErrJobNotFound is returned when a job is not in the registry.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when creating a job whose ID is taken.
	ErrJobExists = errors.New("job already exists")
	// ErrRegistryClosed is returned after Close.
	ErrRegistryClosed = errors.New("registry is closed")
	// ErrJobRunning is returned when deleting a job that has not ended.
	ErrJobRunning = errors.New("job is still running")
)

// IsNotFound reports whether err means the job does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// Status is a job's lifecycle state: pending, then running, then done or
// failed.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is the registry record of one transcode.
type Job struct {
	ID         string         `json:"id"`
	Input      string         `json:"input"`
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	ErrorType  string         `json:"error_type,omitempty"`
	Progress   pipeline.Stats `json:"progress"`
	Uploaded   []string       `json:"uploaded,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

func (j *Job) clone() *Job {
	c := *j
	c.Uploaded = append([]string(nil), j.Uploaded...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Registry stores jobs.
type Registry interface {
	// Create adds a new job. It fails with ErrJobExists for a taken ID.
	Create(ctx context.Context, job *Job) error

	Get(ctx context.Context, id string) (*Job, error)

	// List returns every known job, oldest first.
	List(ctx context.Context) ([]*Job, error)

	// Update replaces an existing job.
	Update(ctx context.Context, job *Job) error

	// UpdateProgress replaces only the progress counters of a job.
	UpdateProgress(ctx context.Context, id string, stats pipeline.Stats) error

	Delete(ctx context.Context, id string) error

	Close() error
}
