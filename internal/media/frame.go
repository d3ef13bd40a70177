package media

import (
	"errors"
	"image"
	"sync/atomic"
	"time"
)

// ErrFrameReleased is returned by Release on a frame that was already released.
var ErrFrameReleased = errors.New("frame already released")

// Frame is a decoded RGBA picture whose pixel buffer is leased from a
// FramePool. The holder must call Release exactly once.
type Frame struct {
	Timestamp time.Duration
	Duration  time.Duration

	width  int
	height int
	pix    []byte

	pool     *FramePool
	released atomic.Bool
}

// DisplayWidth returns the frame width in pixels.
func (f *Frame) DisplayWidth() int { return f.width }

// DisplayHeight returns the frame height in pixels.
func (f *Frame) DisplayHeight() int { return f.height }

// Stride is the byte length of one pixel row.
func (f *Frame) Stride() int { return f.width * 4 }

// Pix returns the RGBA pixel data. It is only valid until Release.
func (f *Frame) Pix() []byte { return f.pix }

// Image wraps the pixel data without copying. The image shares the frame's
// buffer and must not be used after Release.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.pix,
		Stride: f.Stride(),
		Rect:   image.Rect(0, 0, f.width, f.height),
	}
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool { return f.released.Load() }

// Release returns the pixel buffer to the pool. Only the first call has any
// effect; later calls return ErrFrameReleased.
func (f *Frame) Release() error {
	if !f.released.CompareAndSwap(false, true) {
		if f.pool != nil {
			f.pool.doubleRelease()
		}
		return ErrFrameReleased
	}
	pix := f.pix
	f.pix = nil
	if f.pool != nil {
		f.pool.put(pix)
	}
	return nil
}
