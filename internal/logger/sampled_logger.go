package logger

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// SampledLogger rate-limits high-frequency log categories. Each configured
// category gets a token bucket; messages beyond it are counted and dropped.
type SampledLogger struct {
	base     Logger
	samplers *samplerSet
}

type samplerSet struct {
	mu sync.RWMutex
	m  map[string]*logSampler
}

type logSampler struct {
	limiter *rate.Limiter

	total   atomic.Int64
	logged  atomic.Int64
	dropped atomic.Int64
}

// NewSampledLogger creates a new sampled logger
func NewSampledLogger(base Logger) *SampledLogger {
	return &SampledLogger{
		base:     base,
		samplers: &samplerSet{m: make(map[string]*logSampler)},
	}
}

// WithSampler allows perSecond messages for category with the given burst.
func (s *SampledLogger) WithSampler(category string, perSecond float64, burst int) *SampledLogger {
	s.samplers.mu.Lock()
	defer s.samplers.mu.Unlock()

	s.samplers.m[category] = &logSampler{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
	return s
}

func (s *SampledLogger) shouldLog(category string) bool {
	s.samplers.mu.RLock()
	sampler, ok := s.samplers.m[category]
	s.samplers.mu.RUnlock()

	if !ok {
		return true
	}

	sampler.total.Add(1)
	if sampler.limiter.Allow() {
		sampler.logged.Add(1)
		return true
	}
	sampler.dropped.Add(1)
	return false
}

func (s *SampledLogger) logCategory(level logrus.Level, category, msg string, fields map[string]interface{}) {
	if !s.shouldLog(category) {
		return
	}
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["category"] = category

	s.samplers.mu.RLock()
	if sampler, ok := s.samplers.m[category]; ok {
		if dropped := sampler.dropped.Load(); dropped > 0 {
			fields["_sampling_dropped"] = dropped
		}
	}
	s.samplers.mu.RUnlock()

	s.base.WithFields(fields).Log(level, msg)
}

// DebugWithCategory logs a debug message subject to the category's sampler.
func (s *SampledLogger) DebugWithCategory(category, msg string, fields map[string]interface{}) {
	s.logCategory(logrus.DebugLevel, category, msg, fields)
}

// InfoWithCategory logs an info message subject to the category's sampler.
func (s *SampledLogger) InfoWithCategory(category, msg string, fields map[string]interface{}) {
	s.logCategory(logrus.InfoLevel, category, msg, fields)
}

// WarnWithCategory logs a warning subject to the category's sampler.
func (s *SampledLogger) WarnWithCategory(category, msg string, fields map[string]interface{}) {
	s.logCategory(logrus.WarnLevel, category, msg, fields)
}

// ErrorWithCategory always logs; errors are never sampled.
func (s *SampledLogger) ErrorWithCategory(category, msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["category"] = category
	s.base.WithFields(fields).Error(msg)
}

// SamplerStats holds statistics for a log sampler
type SamplerStats struct {
	Name    string `json:"name"`
	Total   int64  `json:"total"`
	Logged  int64  `json:"logged"`
	Dropped int64  `json:"dropped"`
}

// GetSamplerStats returns statistics for all samplers
func (s *SampledLogger) GetSamplerStats() map[string]SamplerStats {
	s.samplers.mu.RLock()
	defer s.samplers.mu.RUnlock()

	stats := make(map[string]SamplerStats, len(s.samplers.m))
	for name, sampler := range s.samplers.m {
		stats[name] = SamplerStats{
			Name:    name,
			Total:   sampler.total.Load(),
			Logged:  sampler.logged.Load(),
			Dropped: sampler.dropped.Load(),
		}
	}
	return stats
}

// Pipeline log categories
const (
	CategoryFrame   = "frame"
	CategoryChunk   = "chunk"
	CategorySegment = "segment"
	CategoryPreview = "preview"
	CategoryCodec   = "codec"
)

// NewPipelineLogger creates a sampled logger tuned for per-frame pipeline events.
func NewPipelineLogger(base Logger) *SampledLogger {
	return NewSampledLogger(base).
		WithSampler(CategoryFrame, 5, 10).
		WithSampler(CategoryChunk, 5, 10).
		WithSampler(CategoryPreview, 1, 2).
		WithSampler(CategoryCodec, 2, 4)
	// segments are rare enough to log unsampled
}

func (s *SampledLogger) WithFields(fields map[string]interface{}) Logger {
	return &SampledLogger{base: s.base.WithFields(fields), samplers: s.samplers}
}

func (s *SampledLogger) WithField(key string, value interface{}) Logger {
	return &SampledLogger{base: s.base.WithField(key, value), samplers: s.samplers}
}

func (s *SampledLogger) WithError(err error) Logger {
	return &SampledLogger{base: s.base.WithError(err), samplers: s.samplers}
}

func (s *SampledLogger) Debug(args ...interface{}) { s.base.Debug(args...) }
func (s *SampledLogger) Info(args ...interface{})  { s.base.Info(args...) }
func (s *SampledLogger) Warn(args ...interface{})  { s.base.Warn(args...) }
func (s *SampledLogger) Error(args ...interface{}) { s.base.Error(args...) }

func (s *SampledLogger) Log(level logrus.Level, args ...interface{}) {
	s.base.Log(level, args...)
}

func (s *SampledLogger) Debugf(format string, args ...interface{}) { s.base.Debugf(format, args...) }
func (s *SampledLogger) Infof(format string, args ...interface{})  { s.base.Infof(format, args...) }
func (s *SampledLogger) Warnf(format string, args ...interface{})  { s.base.Warnf(format, args...) }
func (s *SampledLogger) Errorf(format string, args ...interface{}) { s.base.Errorf(format, args...) }

