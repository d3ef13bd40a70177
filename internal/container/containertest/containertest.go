// Package containertest provides an in-memory container writer.
package containertest

import (
	"context"
	"errors"
	"sync"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/container"
	"github.com/zsiec/reel/internal/media"
)

// ErrInjected is raised by FailAt.
var ErrInjected = errors.New("injected writer failure")

// Header is the segment emitted for the first Config chunk.
var Header = []byte("HDR!")

// Writer emits Header for the first Config chunk and then one segment per
// Data chunk carrying its payload verbatim.
type Writer struct {
	out *codec.Emitter[media.Segment]

	// FailAt makes the n-th AddChunk call (1-based) fail.
	FailAt int

	mu      sync.Mutex
	cfg     *media.CodecConfig
	calls   int
	offset  int64
	chunks  []media.Chunk
	aborted bool
}

// NewWriter creates an in-memory writer.
func NewWriter() *Writer {
	return &Writer{out: codec.NewEmitter[media.Segment](1, nil)}
}

func (w *Writer) AddChunk(chunk media.Chunk) error {
	w.mu.Lock()
	if err := w.out.Err(); err != nil {
		w.mu.Unlock()
		return err
	}
	w.calls++
	if w.FailAt > 0 && w.calls == w.FailAt {
		w.mu.Unlock()
		w.out.Fail(ErrInjected)
		return ErrInjected
	}
	w.chunks = append(w.chunks, chunk)

	var data []byte
	switch chunk.Kind {
	case media.ChunkConfig:
		if w.cfg == nil {
			data = Header
		}
		w.cfg = chunk.Config
	case media.ChunkData:
		if w.cfg == nil {
			w.mu.Unlock()
			return container.ErrNoConfig
		}
		data = chunk.Payload
	}
	if len(data) == 0 {
		w.mu.Unlock()
		return nil
	}
	seg := media.Segment{Data: data, Offset: w.offset}
	w.offset += int64(len(data))
	w.mu.Unlock()

	w.out.Emit(seg)
	return nil
}

func (w *Writer) Close() error {
	if err := w.out.Err(); err != nil {
		return err
	}
	w.out.Close()
	return nil
}

func (w *Writer) Abort() {
	w.mu.Lock()
	w.aborted = true
	w.mu.Unlock()
	w.out.Close()
}

func (w *Writer) Segments() <-chan media.Segment { return w.out.C() }
func (w *Writer) Err() error                     { return w.out.Err() }

// Chunks returns every chunk accepted so far.
func (w *Writer) Chunks() []media.Chunk {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]media.Chunk(nil), w.chunks...)
}

// Aborted reports whether Abort was called.
func (w *Writer) Aborted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aborted
}

// Factory hands out in-memory writers and keeps them for inspection.
type Factory struct {
	Setup func(w *Writer)

	mu      sync.Mutex
	writers []*Writer
}

var _ container.Factory = (*Factory)(nil)

func (f *Factory) NewWriter(ctx context.Context) (container.Writer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := NewWriter()
	if f.Setup != nil {
		f.Setup(w)
	}
	f.writers = append(f.writers, w)
	return w, nil
}

// Writers returns the writers created so far.
func (f *Factory) Writers() []*Writer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Writer(nil), f.writers...)
}
