package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/zsiec/reel/internal/media"
)

const jpegQuality = 80

// scaled returns a copy of the frame's image fitted inside maxW x maxH.
// Zero bounds keep the frame size.
func scaled(frame *media.Frame, maxW, maxH int) *image.NRGBA {
	img := frame.Image()
	if maxW <= 0 && maxH <= 0 {
		return imaging.Clone(img)
	}
	if maxW <= 0 {
		maxW = frame.DisplayWidth()
	}
	if maxH <= 0 {
		maxH = frame.DisplayHeight()
	}
	return imaging.Fit(img, maxW, maxH, imaging.Lanczos)
}

// SnapshotSink writes every presented frame to a JPEG file, replacing the
// previous one.
type SnapshotSink struct {
	path string
	maxW int
	maxH int
}

func NewSnapshotSink(path string, maxW, maxH int) *SnapshotSink {
	return &SnapshotSink{path: path, maxW: maxW, maxH: maxH}
}

func (s *SnapshotSink) Present(frame *media.Frame) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled(frame, s.maxW, s.maxH), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// LatestFrame keeps a copy of the most recently presented frame for the
// HTTP preview endpoint.
type LatestFrame struct {
	maxW int
	maxH int

	mu        sync.RWMutex
	img       *image.NRGBA
	timestamp time.Duration
	count     int64
}

func NewLatestFrame(maxW, maxH int) *LatestFrame {
	return &LatestFrame{maxW: maxW, maxH: maxH}
}

func (l *LatestFrame) Present(frame *media.Frame) error {
	img := scaled(frame, l.maxW, l.maxH)

	l.mu.Lock()
	l.img = img
	l.timestamp = frame.Timestamp
	l.count++
	l.mu.Unlock()
	return nil
}

// Latest returns the last frame copy and its timestamp. ok is false until
// the first presentation.
func (l *LatestFrame) Latest() (img image.Image, timestamp time.Duration, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.img == nil {
		return nil, 0, false
	}
	return l.img, l.timestamp, true
}

// Count returns how many frames were presented.
func (l *LatestFrame) Count() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// ErrNoFrame is returned by WriteJPEG before anything was presented.
var ErrNoFrame = errors.New("no frame presented yet")

// WriteJPEG encodes the latest frame to w.
func (l *LatestFrame) WriteJPEG(w io.Writer) error {
	img, _, ok := l.Latest()
	if !ok {
		return ErrNoFrame
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
}

// MultiSink presents each frame to every sink in order.
type MultiSink []Sink

func (m MultiSink) Present(frame *media.Frame) error {
	var errs []error
	for _, s := range m {
		if err := s.Present(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a sink that displays nothing.
var Discard Sink = SinkFunc(func(*media.Frame) error { return nil })
