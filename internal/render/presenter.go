// Package render drives preview display. A Presenter paces decoded preview
// frames to a Sink at the display refresh rate, keeping at most one frame
// waiting.
package render

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/metrics"
)

// Sink displays frames. The frame is released once Present returns, so a
// sink that needs the pixels later must copy them.
type Sink interface {
	Present(frame *media.Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(frame *media.Frame) error

func (f SinkFunc) Present(frame *media.Frame) error { return f(frame) }

// State is the presenter's scheduling state.
type State int

const (
	StateIdle State = iota
	StatePending
	StatePresenting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StatePresenting:
		return "presenting"
	default:
		return "unknown"
	}
}

// Presenter owns the sink and the single pending-frame slot.
type Presenter struct {
	sink    Sink
	limiter *rate.Limiter
	logger  *logger.SampledLogger

	onPresent func()
	onDrop    func()

	mu      sync.Mutex
	state   State
	pending *media.Frame
	stopped bool

	wake      chan struct{}
	abort     chan struct{}
	abortOnce sync.Once
	drain     chan struct{}
	drainOnce sync.Once

	presented atomic.Int64
	dropped   atomic.Int64
}

// PresenterOption configures a Presenter.
type PresenterOption func(*Presenter)

// WithPresentHook registers fn to run after every presentation.
func WithPresentHook(fn func()) PresenterOption {
	return func(p *Presenter) { p.onPresent = fn }
}

// WithDropHook registers fn to run for every frame released undisplayed.
func WithDropHook(fn func()) PresenterOption {
	return func(p *Presenter) { p.onDrop = fn }
}

// NewPresenter creates a presenter for sink. refreshRate is in
// presentations per second; zero or less presents as fast as the sink
// allows.
func NewPresenter(sink Sink, refreshRate float64, log logger.Logger, opts ...PresenterOption) *Presenter {
	limit := rate.Inf
	if refreshRate > 0 {
		limit = rate.Limit(refreshRate)
	}
	p := &Presenter{
		sink:    sink,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.NewPipelineLogger(logger.WithComponent(log, "presenter")),
		wake:    make(chan struct{}, 1),
		abort:   make(chan struct{}),
		drain:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit hands a frame to the presenter, which takes ownership of it. A
// frame still waiting for display is superseded and released.
func (p *Presenter) Submit(frame *media.Frame) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.drop(frame)
		return
	}

	superseded := p.pending
	p.pending = frame
	if p.state == StateIdle {
		p.state = StatePending
	}
	p.mu.Unlock()

	if superseded != nil {
		p.drop(superseded)
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Presenter) drop(frame *media.Frame) {
	_ = frame.Release()
	p.dropped.Add(1)
	metrics.PreviewDropped()
	if p.onDrop != nil {
		p.onDrop()
	}
	p.logger.DebugWithCategory(logger.CategoryPreview, "Preview frame dropped", map[string]interface{}{
		"timestamp": frame.Timestamp,
	})
}

// Run presents frames until ctx is done, Close is called, or a Drain
// completes. Frames left in the slot are released.
func (p *Presenter) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.abort:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer p.discardPending()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.drain:
			for p.presentNext(ctx) {
			}
			return
		case <-p.wake:
		}
		for p.presentNext(ctx) {
		}
	}
}

// presentNext displays the pending frame, reporting false when the slot
// was empty or presentation was cut short.
func (p *Presenter) presentNext(ctx context.Context) bool {
	p.mu.Lock()
	frame := p.pending
	if frame == nil {
		p.state = StateIdle
		p.mu.Unlock()
		return false
	}
	p.pending = nil
	p.state = StatePresenting
	p.mu.Unlock()

	if err := p.limiter.Wait(ctx); err != nil {
		p.mu.Lock()
		p.state = StateIdle
		p.mu.Unlock()
		p.drop(frame)
		return false
	}

	if err := p.sink.Present(frame); err != nil {
		p.logger.WarnWithCategory(logger.CategoryPreview, "Sink failed to present frame", map[string]interface{}{
			"error":     err.Error(),
			"timestamp": frame.Timestamp,
		})
	}
	_ = frame.Release()
	p.presented.Add(1)
	metrics.PreviewPresented()
	if p.onPresent != nil {
		p.onPresent()
	}
	return true
}

func (p *Presenter) discardPending() {
	p.mu.Lock()
	frame := p.pending
	p.pending = nil
	p.state = StateIdle
	p.mu.Unlock()
	if frame != nil {
		p.drop(frame)
	}
}

// Drain stops accepting frames. Run presents the frame still pending, if
// any, at the next refresh slot and then returns. Later submissions are
// released immediately.
func (p *Presenter) Drain() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.drainOnce.Do(func() { close(p.drain) })
}

// Close stops the presenter and releases the pending frame undisplayed.
// Later submissions are released immediately.
func (p *Presenter) Close() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.abortOnce.Do(func() { close(p.abort) })
	p.discardPending()
}

// State returns the current scheduling state.
func (p *Presenter) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PresenterStats holds presentation counters.
type PresenterStats struct {
	Presented int64 `json:"presented"`
	Dropped   int64 `json:"dropped"`
	State     State `json:"-"`
}

func (p *Presenter) Stats() PresenterStats {
	return PresenterStats{
		Presented: p.presented.Load(),
		Dropped:   p.dropped.Load(),
		State:     p.State(),
	}
}
