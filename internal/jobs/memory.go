package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zsiec/reel/internal/pipeline"
)

// MemoryRegistry keeps jobs in process memory.
type MemoryRegistry struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	closed bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]*Job)}
}

func (m *MemoryRegistry) Create(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrRegistryClosed
	}
	if _, exists := m.jobs[job.ID]; exists {
		return ErrJobExists
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = job.clone()
	return nil
}

func (m *MemoryRegistry) Get(ctx context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrRegistryClosed
	}
	job, exists := m.jobs[id]
	if !exists {
		return nil, ErrJobNotFound
	}
	return job.clone(), nil
}

func (m *MemoryRegistry) List(ctx context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrRegistryClosed
	}
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.clone())
	}
	sortJobs(jobs)
	return jobs, nil
}

func (m *MemoryRegistry) Update(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrRegistryClosed
	}
	if _, exists := m.jobs[job.ID]; !exists {
		return ErrJobNotFound
	}
	job.UpdatedAt = time.Now()
	m.jobs[job.ID] = job.clone()
	return nil
}

func (m *MemoryRegistry) UpdateProgress(ctx context.Context, id string, stats pipeline.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrRegistryClosed
	}
	job, exists := m.jobs[id]
	if !exists {
		return ErrJobNotFound
	}
	job.Progress = stats
	job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRegistry) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrRegistryClosed
	}
	if _, exists := m.jobs[id]; !exists {
		return ErrJobNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrRegistryClosed
	}
	m.closed = true
	m.jobs = nil
	return nil
}

func sortJobs(jobs []*Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}

var _ Registry = (*MemoryRegistry)(nil)
