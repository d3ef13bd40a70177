package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
)

// Decoder decodes H.264 (Annex-B) or VP8/VP9 (IVF) into RGBA frames.
type Decoder struct {
	ctx      context.Context
	binary   string
	logLevel string
	pool     *media.FramePool
	logger   logger.Logger
	out      *codec.Emitter[*media.Frame]
	stamps   ptsQueue

	closed atomic.Bool
	run    atomic.Pointer[run]

	mu      sync.Mutex
	cfg     *media.CodecConfig
	conv    *annexBConverter
	flushed bool
}

var _ codec.Decoder = (*Decoder)(nil)

func newDecoder(ctx context.Context, binary, logLevel string, pool *media.FramePool, log logger.Logger) *Decoder {
	return &Decoder{
		ctx:      ctx,
		binary:   binary,
		logLevel: logLevel,
		pool:     pool,
		logger:   logger.WithComponent(log, "ffmpeg_decoder"),
		out: codec.NewEmitter(1, func(f *media.Frame) {
			_ = f.Release()
		}),
	}
}

func decoderArgs(cfg media.CodecConfig, logLevel string) []string {
	args := []string{"-hide_banner", "-loglevel", logLevel}
	if cfg.Family() == media.FamilyH264 {
		args = append(args, "-probesize", "1M", "-f", "h264")
	} else {
		args = append(args, "-f", "ivf")
	}
	return append(args,
		"-i", "pipe:0",
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", cfg.Width, cfg.Height),
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
}

// Configure starts a decoder process for cfg. Reconfiguring with a
// different config drains the running process first.
func (d *Decoder) Configure(cfg media.CodecConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed.Load() || d.flushed {
		return codec.ErrClosed
	}
	if err := d.out.Err(); err != nil {
		return err
	}
	family := cfg.Family()
	if family == media.FamilyUnknown {
		return fmt.Errorf("%w: %q", codec.ErrUnsupported, cfg.Codec)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("decoder config needs dimensions, got %dx%d", cfg.Width, cfg.Height)
	}
	if d.cfg != nil && sameConfig(*d.cfg, cfg) {
		return nil
	}

	var conv *annexBConverter
	if family == media.FamilyH264 {
		c, err := newAnnexBConverter(cfg.Description)
		if err != nil {
			return err
		}
		conv = c
	}

	if old := d.run.Load(); old != nil {
		_ = old.proc.closeInput()
		<-old.done
		if err := d.out.Err(); err != nil {
			return err
		}
	}

	proc, err := startProcess(d.ctx, d.binary, "decoder", decoderArgs(cfg, d.logLevel), d.logger)
	if err != nil {
		return err
	}
	if family != media.FamilyH264 {
		hdr := ivfHeader{
			FourCC:    fourCC(family),
			Width:     uint16(cfg.Width),
			Height:    uint16(cfg.Height),
			RateNum:   1000,
			RateScale: 1,
		}
		if err := writeIVFHeader(proc.stdin, hdr); err != nil {
			proc.kill()
			_ = proc.wait()
			return fmt.Errorf("write ivf header: %w", err)
		}
	}

	r := &run{proc: proc, done: make(chan struct{})}
	d.run.Store(r)
	d.cfg = &cfg
	d.conv = conv
	go d.readFrames(r, cfg.Width, cfg.Height)

	if d.closed.Load() {
		proc.kill()
	}

	d.logger.WithFields(map[string]interface{}{
		"codec":  cfg.Codec,
		"width":  cfg.Width,
		"height": cfg.Height,
	}).Debug("Decoder configured")
	return nil
}

func sameConfig(a, b media.CodecConfig) bool {
	return a.Codec == b.Codec && a.Width == b.Width && a.Height == b.Height &&
		string(a.Description) == string(b.Description)
}

func (d *Decoder) readFrames(r *run, width, height int) {
	defer close(r.done)

	var readErr error
	for {
		f := d.pool.Get(width, height, 0)
		if _, err := io.ReadFull(r.proc.stdout, f.Pix()); err != nil {
			_ = f.Release()
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
		s := d.stamps.pop()
		f.Timestamp, f.Duration = s.pts, s.dur

		if !d.out.Emit(f) {
			r.abandon()
			return
		}
	}

	if err := r.proc.wait(); err != nil {
		d.out.Fail(err)
		return
	}
	if readErr != nil && !d.closed.Load() {
		d.out.Fail(fmt.Errorf("read decoded frame: %w", readErr))
	}
}

// Decode submits one chunk. Output arrives asynchronously on Frames.
func (d *Decoder) Decode(chunk media.Chunk) error {
	if d.closed.Load() {
		return codec.ErrClosed
	}

	d.mu.Lock()
	if d.flushed {
		d.mu.Unlock()
		return codec.ErrClosed
	}
	if err := d.out.Err(); err != nil {
		d.mu.Unlock()
		return err
	}
	if d.cfg == nil {
		d.mu.Unlock()
		return codec.ErrNotConfigured
	}
	r := d.run.Load()
	conv := d.conv
	d.mu.Unlock()

	d.stamps.push(chunk.Timestamp, chunk.Duration)

	var err error
	if conv != nil {
		var payload []byte
		if payload, err = conv.convert(chunk.Payload); err != nil {
			return err
		}
		_, err = r.proc.stdin.Write(payload)
	} else {
		err = writeIVFFrame(r.proc.stdin, chunk.Timestamp.Milliseconds(), chunk.Payload)
	}
	if err != nil {
		// The process is gone; its exit status says why.
		<-r.done
		if failErr := d.out.Err(); failErr != nil {
			return failErr
		}
		if d.closed.Load() {
			return codec.ErrClosed
		}
		return fmt.Errorf("write decoder input: %w", err)
	}
	return nil
}

// Flush ends input and waits for every remaining frame to be delivered.
func (d *Decoder) Flush() error {
	d.mu.Lock()
	if d.flushed || d.closed.Load() {
		d.mu.Unlock()
		return codec.ErrClosed
	}
	d.flushed = true
	d.mu.Unlock()

	if r := d.run.Load(); r != nil {
		_ = r.proc.closeInput()
		<-r.done
	}
	if err := d.out.Err(); err != nil {
		return err
	}
	d.out.Close()
	return nil
}

func (d *Decoder) Frames() <-chan *media.Frame { return d.out.C() }
func (d *Decoder) Err() error                  { return d.out.Err() }

// Close aborts decoding and reaps the process.
func (d *Decoder) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.out.Close()
	if r := d.run.Load(); r != nil {
		r.proc.kill()
		<-r.done
	}
	return nil
}
