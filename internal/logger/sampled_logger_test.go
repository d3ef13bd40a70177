package logger

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type recordedCall struct {
	Level  logrus.Level
	Args   []interface{}
	Fields map[string]interface{}
}

// recordingLogger captures calls so sampling decisions can be asserted.
type recordingLogger struct {
	mu     *sync.Mutex
	fields map[string]interface{}
	calls  *[]recordedCall
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, calls: &[]recordedCall{}}
}

func (r *recordingLogger) with(fields map[string]interface{}) *recordingLogger {
	merged := make(map[string]interface{}, len(r.fields)+len(fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &recordingLogger{mu: r.mu, fields: merged, calls: r.calls}
}

func (r *recordingLogger) record(level logrus.Level, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.calls = append(*r.calls, recordedCall{Level: level, Args: args, Fields: r.fields})
}

func (r *recordingLogger) WithFields(fields map[string]interface{}) Logger { return r.with(fields) }
func (r *recordingLogger) WithField(key string, value interface{}) Logger {
	return r.with(map[string]interface{}{key: value})
}
func (r *recordingLogger) WithError(err error) Logger {
	return r.with(map[string]interface{}{"error": err})
}
func (r *recordingLogger) Debug(args ...interface{})                   { r.record(logrus.DebugLevel, args...) }
func (r *recordingLogger) Info(args ...interface{})                    { r.record(logrus.InfoLevel, args...) }
func (r *recordingLogger) Warn(args ...interface{})                    { r.record(logrus.WarnLevel, args...) }
func (r *recordingLogger) Error(args ...interface{})                   { r.record(logrus.ErrorLevel, args...) }
func (r *recordingLogger) Log(level logrus.Level, args ...interface{}) { r.record(level, args...) }
func (r *recordingLogger) Debugf(format string, args ...interface{})   { r.record(logrus.DebugLevel, format) }
func (r *recordingLogger) Infof(format string, args ...interface{})    { r.record(logrus.InfoLevel, format) }
func (r *recordingLogger) Warnf(format string, args ...interface{})    { r.record(logrus.WarnLevel, format) }
func (r *recordingLogger) Errorf(format string, args ...interface{})   { r.record(logrus.ErrorLevel, format) }

func (r *recordingLogger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(*r.calls)
}

func TestSampledLoggerBurst(t *testing.T) {
	rec := newRecordingLogger()
	// effectively no refill during the test
	sl := NewSampledLogger(rec).WithSampler(CategoryFrame, 0.001, 3)

	for i := 0; i < 10; i++ {
		sl.InfoWithCategory(CategoryFrame, "frame decoded", map[string]interface{}{"index": i})
	}

	assert.Equal(t, 3, rec.count())

	stats := sl.GetSamplerStats()[CategoryFrame]
	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(3), stats.Logged)
	assert.Equal(t, int64(7), stats.Dropped)
}

func TestSampledLoggerUnconfiguredCategory(t *testing.T) {
	rec := newRecordingLogger()
	sl := NewPipelineLogger(rec)

	for i := 0; i < 50; i++ {
		sl.InfoWithCategory(CategorySegment, "segment written", nil)
	}
	assert.Equal(t, 50, rec.count())
	assert.NotContains(t, sl.GetSamplerStats(), CategorySegment)
}

func TestSampledLoggerErrorsNeverSampled(t *testing.T) {
	rec := newRecordingLogger()
	sl := NewSampledLogger(rec).WithSampler(CategoryCodec, 0.001, 1)

	for i := 0; i < 5; i++ {
		sl.ErrorWithCategory(CategoryCodec, "codec failed", nil)
	}
	assert.Equal(t, 5, rec.count())
}

func TestSampledLoggerCategoryField(t *testing.T) {
	rec := newRecordingLogger()
	sl := NewSampledLogger(rec)

	sl.WarnWithCategory(CategoryPreview, "preview dropped", nil)

	calls := *rec.calls
	if assert.Len(t, calls, 1) {
		assert.Equal(t, logrus.WarnLevel, calls[0].Level)
		assert.Equal(t, CategoryPreview, calls[0].Fields["category"])
	}
}

func TestSampledLoggerSharesSamplers(t *testing.T) {
	rec := newRecordingLogger()
	sl := NewSampledLogger(rec).WithSampler(CategoryChunk, 0.001, 2)
	child := sl.WithField("job_id", "j1").(*SampledLogger)

	sl.DebugWithCategory(CategoryChunk, "a", nil)
	child.DebugWithCategory(CategoryChunk, "b", nil)
	child.DebugWithCategory(CategoryChunk, "c", nil)

	assert.Equal(t, 2, rec.count())
	assert.Equal(t, int64(1), sl.GetSamplerStats()[CategoryChunk].Dropped)
}

func TestSampledLoggerConcurrent(t *testing.T) {
	rec := newRecordingLogger()
	sl := NewSampledLogger(rec).WithSampler(CategoryFrame, 0.001, 10)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				sl.DebugWithCategory(CategoryFrame, "frame", nil)
			}
		}()
	}
	wg.Wait()

	stats := sl.GetSamplerStats()[CategoryFrame]
	assert.Equal(t, int64(800), stats.Total)
	assert.Equal(t, stats.Total, stats.Logged+stats.Dropped)
	assert.Equal(t, 10, rec.count())
}
