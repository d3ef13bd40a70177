package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramePoolMetrics(t *testing.T) {
	initialAllocated := testutil.ToFloat64(framesAllocatedTotal)
	initialReleased := testutil.ToFloat64(framesReleasedTotal)
	initialOutstanding := testutil.ToFloat64(framesOutstanding)

	FrameAllocated()
	FrameAllocated()
	FrameReleased()

	assert.Equal(t, initialAllocated+2, testutil.ToFloat64(framesAllocatedTotal))
	assert.Equal(t, initialReleased+1, testutil.ToFloat64(framesReleasedTotal))
	assert.Equal(t, initialOutstanding+1, testutil.ToFloat64(framesOutstanding))

	FrameReleased()
	assert.Equal(t, initialOutstanding, testutil.ToFloat64(framesOutstanding))
}

func TestFrameDoubleReleased(t *testing.T) {
	initial := testutil.ToFloat64(frameDoubleReleasesTotal)
	FrameDoubleReleased()
	assert.Equal(t, initial+1, testutil.ToFloat64(frameDoubleReleasesTotal))
}

func TestStageCounters(t *testing.T) {
	initialFrames := testutil.ToFloat64(framesProcessedTotal.WithLabelValues("decode"))
	initialChunks := testutil.ToFloat64(chunksTotal.WithLabelValues("encode", "config"))
	initialBytes := testutil.ToFloat64(containerBytesTotal)

	IncrementFramesProcessed("decode")
	IncrementFramesProcessed("decode")
	IncrementChunks("encode", "config")
	AddContainerBytes(4096)

	assert.Equal(t, initialFrames+2, testutil.ToFloat64(framesProcessedTotal.WithLabelValues("decode")))
	assert.Equal(t, initialChunks+1, testutil.ToFloat64(chunksTotal.WithLabelValues("encode", "config")))
	assert.Equal(t, initialBytes+4096, testutil.ToFloat64(containerBytesTotal))
}

func TestPreviewCounters(t *testing.T) {
	initialPresented := testutil.ToFloat64(previewPresentedTotal)
	initialDropped := testutil.ToFloat64(previewDroppedTotal)

	PreviewPresented()
	PreviewDropped()
	PreviewDropped()

	assert.Equal(t, initialPresented+1, testutil.ToFloat64(previewPresentedTotal))
	assert.Equal(t, initialDropped+2, testutil.ToFloat64(previewDroppedTotal))
}

func TestRecordUpload(t *testing.T) {
	backend := "file"

	initialOK := testutil.ToFloat64(uploadsTotal.WithLabelValues(backend, "success"))
	initialErr := testutil.ToFloat64(uploadsTotal.WithLabelValues(backend, "error"))
	initialBytes := testutil.ToFloat64(uploadBytesTotal.WithLabelValues(backend))

	RecordUpload(backend, 1000, 20*time.Millisecond, nil)
	RecordUpload(backend, 500, 5*time.Millisecond, errors.New("disk full"))

	assert.Equal(t, initialOK+1, testutil.ToFloat64(uploadsTotal.WithLabelValues(backend, "success")))
	assert.Equal(t, initialErr+1, testutil.ToFloat64(uploadsTotal.WithLabelValues(backend, "error")))
	// failed uploads do not count bytes
	assert.Equal(t, initialBytes+1000, testutil.ToFloat64(uploadBytesTotal.WithLabelValues(backend)))

	histogram := uploadDuration.WithLabelValues(backend)
	var m dto.Metric
	require.NoError(t, histogram.(interface{ Write(*dto.Metric) error }).Write(&m))
	assert.GreaterOrEqual(t, m.Histogram.GetSampleCount(), uint64(2))
}

func TestRecordPipelineRun(t *testing.T) {
	initial := testutil.ToFloat64(pipelineRunsTotal.WithLabelValues("done"))
	RecordPipelineRun("done", 3*time.Second)
	assert.Equal(t, initial+1, testutil.ToFloat64(pipelineRunsTotal.WithLabelValues("done")))

	initialErr := testutil.ToFloat64(pipelineErrorsTotal.WithLabelValues("DECODE_FAILURE"))
	IncrementPipelineError("DECODE_FAILURE")
	assert.Equal(t, initialErr+1, testutil.ToFloat64(pipelineErrorsTotal.WithLabelValues("DECODE_FAILURE")))
}

func TestActiveGauges(t *testing.T) {
	initialJobs := testutil.ToFloat64(jobsActive)
	JobStarted()
	assert.Equal(t, initialJobs+1, testutil.ToFloat64(jobsActive))
	JobFinished()
	assert.Equal(t, initialJobs, testutil.ToFloat64(jobsActive))

	initialProcs := testutil.ToFloat64(codecProcessesActive.WithLabelValues("encoder"))
	CodecProcessStarted("encoder")
	assert.Equal(t, initialProcs+1, testutil.ToFloat64(codecProcessesActive.WithLabelValues("encoder")))
	CodecProcessExited("encoder")
	assert.Equal(t, initialProcs, testutil.ToFloat64(codecProcessesActive.WithLabelValues("encoder")))
}
