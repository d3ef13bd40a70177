package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Frame pool metrics
	framesAllocatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reel_frames_allocated_total",
		Help: "Total frames handed out by the frame pool",
	})

	framesReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reel_frames_released_total",
		Help: "Total frames returned to the frame pool",
	})

	framesOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reel_frames_outstanding",
		Help: "Frames currently held by pipeline stages",
	})

	frameDoubleReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reel_frame_double_releases_total",
		Help: "Release calls on frames that were already released",
	})

	// Stage throughput
	framesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_frames_processed_total",
		Help: "Frames emitted per pipeline stage",
	}, []string{"stage"})

	chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_chunks_total",
		Help: "Compressed chunks emitted per stage and chunk kind",
	}, []string{"stage", "kind"})

	containerBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reel_container_bytes_total",
		Help: "Bytes produced by the output container writer",
	})

	// Preview metrics
	previewPresentedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reel_preview_presented_total",
		Help: "Frames handed to the preview sink",
	})

	previewDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reel_preview_dropped_total",
		Help: "Pending preview frames superseded before presentation",
	})

	// Upload metrics
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_uploads_total",
		Help: "Upload attempts by backend and outcome",
	}, []string{"backend", "status"})

	uploadBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_upload_bytes_total",
		Help: "Bytes uploaded by backend",
	}, []string{"backend"})

	uploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reel_upload_duration_seconds",
		Help:    "Upload duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"backend"})

	// Pipeline metrics
	pipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_pipeline_runs_total",
		Help: "Completed pipeline runs by outcome",
	}, []string{"status"})

	pipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reel_pipeline_duration_seconds",
		Help:    "Wall-clock pipeline duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 15), // 100ms to ~27m
	}, []string{"status"})

	pipelineErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reel_pipeline_errors_total",
		Help: "Pipeline failures by error type",
	}, []string{"error_type"})

	jobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reel_jobs_active",
		Help: "Transcode jobs currently running",
	})

	codecProcessesActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reel_codec_processes_active",
		Help: "Running ffmpeg child processes by role",
	}, []string{"role"})
)

// FrameAllocated records a frame leaving the pool.
func FrameAllocated() {
	framesAllocatedTotal.Inc()
	framesOutstanding.Inc()
}

// FrameReleased records a frame returning to the pool.
func FrameReleased() {
	framesReleasedTotal.Inc()
	framesOutstanding.Dec()
}

// FrameDoubleReleased records a rejected second release.
func FrameDoubleReleased() {
	frameDoubleReleasesTotal.Inc()
}

// IncrementFramesProcessed counts a frame emitted by stage.
func IncrementFramesProcessed(stage string) {
	framesProcessedTotal.WithLabelValues(stage).Inc()
}

// IncrementChunks counts a chunk of the given kind emitted by stage.
func IncrementChunks(stage, kind string) {
	chunksTotal.WithLabelValues(stage, kind).Inc()
}

// AddContainerBytes counts bytes written by the container writer.
func AddContainerBytes(n int) {
	containerBytesTotal.Add(float64(n))
}

// PreviewPresented counts a frame handed to the preview sink.
func PreviewPresented() {
	previewPresentedTotal.Inc()
}

// PreviewDropped counts a pending frame superseded before it was shown.
func PreviewDropped() {
	previewDroppedTotal.Inc()
}

// RecordUpload records the outcome of one upload.
func RecordUpload(backend string, bytes int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	} else {
		uploadBytesTotal.WithLabelValues(backend).Add(float64(bytes))
	}
	uploadsTotal.WithLabelValues(backend, status).Inc()
	uploadDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordPipelineRun records a finished pipeline and its outcome.
func RecordPipelineRun(status string, duration time.Duration) {
	pipelineRunsTotal.WithLabelValues(status).Inc()
	pipelineDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncrementPipelineError counts a pipeline failure by error type.
func IncrementPipelineError(errorType string) {
	pipelineErrorsTotal.WithLabelValues(errorType).Inc()
}

// JobStarted and JobFinished track running jobs.
func JobStarted()  { jobsActive.Inc() }
func JobFinished() { jobsActive.Dec() }

// CodecProcessStarted and CodecProcessExited track ffmpeg children by role.
func CodecProcessStarted(role string) { codecProcessesActive.WithLabelValues(role).Inc() }
func CodecProcessExited(role string)  { codecProcessesActive.WithLabelValues(role).Dec() }
