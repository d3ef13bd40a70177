// Package codectest provides in-memory codecs for exercising pipeline stages
// without ffmpeg.
package codectest

import (
	"context"
	"errors"
	"sync"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/media"
)

// ErrInjected is the default failure raised by FailAt.
var ErrInjected = errors.New("injected codec failure")

// Decoder emits one frame per Data chunk, sized from the configured
// dimensions and stamped with the chunk timestamp.
type Decoder struct {
	pool *media.FramePool
	out  *codec.Emitter[*media.Frame]

	// FailAt makes the n-th Decode call (1-based) fail asynchronously.
	FailAt  int
	FailErr error

	mu       sync.Mutex
	cfg      *media.CodecConfig
	decoded  int
	flushed  bool
	configs  []media.CodecConfig
	chunks   []media.Chunk
	closeCnt int
}

// NewDecoder creates a fake decoder leasing frames from pool.
func NewDecoder(pool *media.FramePool) *Decoder {
	return &Decoder{
		pool: pool,
		out: codec.NewEmitter(1, func(f *media.Frame) {
			_ = f.Release()
		}),
	}
}

func (d *Decoder) Configure(cfg media.CodecConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.out.Err(); err != nil {
		return err
	}
	if d.flushed {
		return codec.ErrClosed
	}
	if cfg.Family() == media.FamilyUnknown {
		return codec.ErrUnsupported
	}
	d.cfg = &cfg
	d.configs = append(d.configs, cfg)
	return nil
}

func (d *Decoder) Decode(chunk media.Chunk) error {
	d.mu.Lock()
	if err := d.out.Err(); err != nil {
		d.mu.Unlock()
		return err
	}
	if d.flushed {
		d.mu.Unlock()
		return codec.ErrClosed
	}
	if d.cfg == nil {
		d.mu.Unlock()
		return codec.ErrNotConfigured
	}
	d.decoded++
	d.chunks = append(d.chunks, chunk)
	n := d.decoded
	w, h := d.cfg.Width, d.cfg.Height
	d.mu.Unlock()

	if d.FailAt > 0 && n == d.FailAt {
		err := d.FailErr
		if err == nil {
			err = ErrInjected
		}
		d.out.Fail(err)
		return nil
	}

	if w <= 0 || h <= 0 {
		w, h = 2, 2
	}
	f := d.pool.Get(w, h, chunk.Timestamp)
	f.Duration = chunk.Duration
	for i := range f.Pix() {
		f.Pix()[i] = byte(n)
	}
	d.out.Emit(f)
	return nil
}

func (d *Decoder) Flush() error {
	d.mu.Lock()
	d.flushed = true
	d.mu.Unlock()

	if err := d.out.Err(); err != nil {
		return err
	}
	d.out.Close()
	return nil
}

func (d *Decoder) Frames() <-chan *media.Frame { return d.out.C() }
func (d *Decoder) Err() error                  { return d.out.Err() }

func (d *Decoder) Close() error {
	d.mu.Lock()
	d.closeCnt++
	d.mu.Unlock()
	d.out.Close()
	return nil
}

// Configs returns every configuration applied so far.
func (d *Decoder) Configs() []media.CodecConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]media.CodecConfig(nil), d.configs...)
}

// Chunks returns every chunk submitted so far.
func (d *Decoder) Chunks() []media.Chunk {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]media.Chunk(nil), d.chunks...)
}

// Closed reports whether Close was called.
func (d *Decoder) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCnt > 0
}

// Encoder emits one Data chunk per frame. The first output carries the
// decoder configuration for the resolved output size.
type Encoder struct {
	out *codec.Emitter[codec.Output]

	// PayloadSize returns the payload length for the i-th (0-based) output.
	// Defaults to 100 bytes.
	PayloadSize func(i int) int
	// KeyframeInterval marks every n-th output as a keyframe. Defaults to 30.
	KeyframeInterval int
	FailAt           int
	FailErr          error

	mu      sync.Mutex
	cfg     *codec.EncoderConfig
	width   int
	height  int
	encoded int
	flushed bool
}

// NewEncoder creates a fake encoder.
func NewEncoder() *Encoder {
	return &Encoder{out: codec.NewEmitter[codec.Output](1, nil)}
}

func (e *Encoder) Configure(cfg codec.EncoderConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.Codec != "vp8" && cfg.Codec != "vp9" {
		return codec.ErrUnsupported
	}
	e.cfg = &cfg
	return nil
}

func (e *Encoder) Encode(frame *media.Frame) error {
	e.mu.Lock()
	if err := e.out.Err(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.flushed {
		e.mu.Unlock()
		return codec.ErrClosed
	}
	if e.cfg == nil {
		e.mu.Unlock()
		return codec.ErrNotConfigured
	}
	if frame.Released() {
		e.mu.Unlock()
		return media.ErrFrameReleased
	}

	i := e.encoded
	e.encoded++

	var decCfg *media.CodecConfig
	if i == 0 {
		e.width, e.height = codec.ResolveSize(*e.cfg, frame.DisplayWidth(), frame.DisplayHeight())
		decCfg = &media.CodecConfig{
			Codec:     codec.CodecString(e.cfg.Codec),
			Width:     e.width,
			Height:    e.height,
			Framerate: e.cfg.Framerate,
		}
	}
	e.mu.Unlock()

	if e.FailAt > 0 && i+1 == e.FailAt {
		err := e.FailErr
		if err == nil {
			err = ErrInjected
		}
		e.out.Fail(err)
		return nil
	}

	size := 100
	if e.PayloadSize != nil {
		size = e.PayloadSize(i)
	}
	payload := make([]byte, size)
	for j := range payload {
		payload[j] = byte(i)
	}

	interval := e.KeyframeInterval
	if interval <= 0 {
		interval = 30
	}

	e.out.Emit(codec.Output{
		Chunk:         media.NewDataChunk(payload, frame.Timestamp, frame.Duration, i%interval == 0),
		DecoderConfig: decCfg,
	})
	return nil
}

func (e *Encoder) Flush() error {
	e.mu.Lock()
	e.flushed = true
	e.mu.Unlock()

	if err := e.out.Err(); err != nil {
		return err
	}
	e.out.Close()
	return nil
}

func (e *Encoder) Output() <-chan codec.Output { return e.out.C() }
func (e *Encoder) Err() error                  { return e.out.Err() }

func (e *Encoder) Close() error {
	e.out.Close()
	return nil
}

// Encoded returns how many frames were submitted.
func (e *Encoder) Encoded() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encoded
}

// Size returns the resolved output dimensions.
func (e *Encoder) Size() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}

// Factory hands out fake codecs and keeps them for inspection. Decoders are
// numbered in creation order; the pipeline creates the main decoder first
// and the preview decoder second.
type Factory struct {
	Pool *media.FramePool

	// SetupDecoder and SetupEncoder adjust each codec before it is returned.
	SetupDecoder func(index int, d *Decoder)
	SetupEncoder func(e *Encoder)

	mu       sync.Mutex
	decoders []*Decoder
	encoders []*Encoder
}

var _ codec.Factory = (*Factory)(nil)

// NewFactory creates a factory leasing frames from pool.
func NewFactory(pool *media.FramePool) *Factory {
	return &Factory{Pool: pool}
}

func (f *Factory) NewDecoder(ctx context.Context) (codec.Decoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := NewDecoder(f.Pool)
	if f.SetupDecoder != nil {
		f.SetupDecoder(len(f.decoders), d)
	}
	f.decoders = append(f.decoders, d)
	return d, nil
}

func (f *Factory) NewEncoder(ctx context.Context) (codec.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := NewEncoder()
	if f.SetupEncoder != nil {
		f.SetupEncoder(e)
	}
	f.encoders = append(f.encoders, e)
	return e, nil
}

// Decoders returns the decoders created so far.
func (f *Factory) Decoders() []*Decoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Decoder(nil), f.decoders...)
}

// Encoders returns the encoders created so far.
func (f *Factory) Encoders() []*Encoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Encoder(nil), f.encoders...)
}
