package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/config"
	apperrors "github.com/zsiec/reel/internal/errors"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/metrics"
	"github.com/zsiec/reel/internal/pipeline"
	"github.com/zsiec/reel/internal/render"
)

// DefaultProgressInterval is how often running jobs write their progress
// to the registry.
const DefaultProgressInterval = time.Second

// ErrShuttingDown is returned by Submit once Shutdown has started.
var ErrShuttingDown = errors.New("job manager is shutting down")

// Manager runs each submitted input through its own pipeline and records
// the job's lifecycle in the registry.
type Manager struct {
	registry Registry
	options  pipeline.Options
	encoder  codec.EncoderConfig
	preview  config.PreviewConfig
	logger   logger.Logger

	// ProgressInterval overrides DefaultProgressInterval when positive.
	ProgressInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closing  bool
	cancels  map[string]context.CancelFunc
	previews map[string]*render.LatestFrame
}

// NewManager creates a manager. options is the template for every job's
// pipeline; its Progress observer is replaced per job.
func NewManager(registry Registry, options pipeline.Options, encoder codec.EncoderConfig, preview config.PreviewConfig, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry: registry,
		options:  options,
		encoder:  encoder,
		preview:  preview,
		logger:   logger.WithComponent(log, "jobs"),
		ctx:      ctx,
		cancel:   cancel,
		cancels:  make(map[string]context.CancelFunc),
		previews: make(map[string]*render.LatestFrame),
	}
}

// Submit registers a pending job for body and starts it in the
// background. body is closed when the job ends.
func (m *Manager) Submit(ctx context.Context, name string, body io.ReadSeekCloser) (*Job, error) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		_ = body.Close()
		return nil, ErrShuttingDown
	}
	m.mu.Unlock()

	job := &Job{
		ID:     uuid.New().String(),
		Input:  name,
		Status: StatusPending,
	}
	if err := m.registry.Create(ctx, job); err != nil {
		_ = body.Close()
		return nil, fmt.Errorf("failed to register job: %w", err)
	}

	preview := render.NewLatestFrame(m.preview.MaxWidth, m.preview.MaxHeight)
	jobCtx, cancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		cancel()
		_ = body.Close()
		return nil, ErrShuttingDown
	}
	m.cancels[job.ID] = cancel
	m.previews[job.ID] = preview
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"input":  name,
	}).Info("Job submitted")

	submitted := job.clone()
	go m.run(jobCtx, job, body, preview)
	return submitted, nil
}

func (m *Manager) run(ctx context.Context, job *Job, body io.ReadSeekCloser, preview *render.LatestFrame) {
	defer m.wg.Done()
	defer body.Close()
	defer func() {
		m.mu.Lock()
		if cancel, ok := m.cancels[job.ID]; ok {
			cancel()
			delete(m.cancels, job.ID)
		}
		m.mu.Unlock()
	}()

	metrics.JobStarted()
	defer metrics.JobFinished()

	ctx = logger.WithJobID(ctx, job.ID)
	log := m.logger.WithField("job_id", job.ID)

	started := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &started
	if err := m.registry.Update(ctx, job); err != nil {
		log.WithError(err).Warn("Failed to record job start")
	}

	counters := &pipeline.Counters{}
	opts := m.options
	opts.Progress = counters
	if opts.RefreshRate == 0 {
		opts.RefreshRate = m.preview.RefreshRate
	}

	var (
		status pipeline.Status
		err    error
	)
	p, err := pipeline.New(opts)
	if err == nil {
		reported := make(chan struct{})
		stop := make(chan struct{})
		go func() {
			defer close(reported)
			m.reportProgress(ctx, job.ID, counters, stop)
		}()

		err = p.Start(ctx, pipeline.Input{Name: job.Input, Body: body}, m.encoder, preview,
			func(s pipeline.Status) { status = s })

		close(stop)
		<-reported
	}

	finished := time.Now()
	job.FinishedAt = &finished
	job.Progress = counters.Snapshot()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		job.ErrorType = errorType(err)
	} else {
		job.Status = StatusDone
		job.Uploaded = status.Uploaded
	}

	// The job context may already be cancelled; the final record is
	// written regardless.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if updateErr := m.registry.Update(saveCtx, job); updateErr != nil {
		log.WithError(updateErr).Error("Failed to record job result")
	}

	fields := map[string]interface{}{
		"status":   job.Status,
		"elapsed":  finished.Sub(started),
		"segments": job.Progress.SegmentsUploaded,
	}
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("Job failed")
		return
	}
	log.WithFields(fields).Info("Job completed")
}

func (m *Manager) reportProgress(ctx context.Context, id string, counters *pipeline.Counters, stop <-chan struct{}) {
	interval := m.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last pipeline.Stats
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := counters.Snapshot()
			if stats == last {
				continue
			}
			if err := m.registry.UpdateProgress(ctx, id, stats); err != nil {
				m.logger.WithField("job_id", id).WithError(err).Debug("Failed to record job progress")
				continue
			}
			last = stats
		}
	}
}

func errorType(err error) string {
	if appErr, ok := apperrors.GetAppError(err); ok {
		return string(appErr.Type)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELLED"
	}
	return string(apperrors.ErrorTypeInternal)
}

// Get returns the job with the given ID. A job the registry no longer
// knows, for example one expired by TTL, loses its preview.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	job, err := m.registry.Get(ctx, id)
	if IsNotFound(err) {
		m.forget(id)
	}
	return job, err
}

// List returns every job in the registry and drops the previews of jobs
// missing from it.
func (m *Manager) List(ctx context.Context) ([]*Job, error) {
	list, err := m.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(list))
	for _, job := range list {
		known[job.ID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.previews {
		if _, ok := known[id]; ok {
			continue
		}
		if _, running := m.cancels[id]; !running {
			delete(m.previews, id)
		}
	}
	return list, nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.cancels[id]; !running {
		delete(m.previews, id)
	}
}

// Preview returns the latest-frame sink of a job started by this manager.
func (m *Manager) Preview(id string) (*render.LatestFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	preview, ok := m.previews[id]
	return preview, ok
}

// Cancel stops a running job. The job ends as failed.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s is not running: %w", id, ErrJobNotFound)
	}
	cancel()
	return nil
}

// Delete removes a finished job and its preview.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, running := m.cancels[id]
	m.mu.Unlock()
	if running {
		return fmt.Errorf("job %s: %w", id, ErrJobRunning)
	}
	if err := m.registry.Delete(ctx, id); err != nil {
		return err
	}
	m.forget(id)
	return nil
}

// Running returns the number of jobs in progress.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancels)
}

// Wait blocks until every submitted job has ended.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown refuses new jobs, cancels running ones and waits for them to
// record their result or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
