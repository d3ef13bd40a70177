package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
)

// Encoder encodes RGBA frames to VP8 or VP9 through libvpx. The process is
// started on the first frame, once the source size is known.
type Encoder struct {
	ctx      context.Context
	binary   string
	logLevel string
	logger   logger.Logger
	out      *codec.Emitter[codec.Output]
	stamps   ptsQueue

	closed atomic.Bool
	run    atomic.Pointer[run]

	mu      sync.Mutex
	cfg     *codec.EncoderConfig
	srcW    int
	srcH    int
	flushed bool
}

var _ codec.Encoder = (*Encoder)(nil)

func newEncoder(ctx context.Context, binary, logLevel string, log logger.Logger) *Encoder {
	return &Encoder{
		ctx:      ctx,
		binary:   binary,
		logLevel: logLevel,
		logger:   logger.WithComponent(log, "ffmpeg_encoder"),
		out:      codec.NewEmitter[codec.Output](1, nil),
		stamps:   ptsQueue{ordered: true},
	}
}

func encoderLib(codecName string) string {
	if codecName == "vp9" {
		return "libvpx-vp9"
	}
	return "libvpx"
}

func encoderArgs(cfg codec.EncoderConfig, srcW, srcH, w, h int, logLevel string) []string {
	fps := strconv.FormatFloat(cfg.Framerate, 'f', -1, 64)
	keyint := int(cfg.Framerate * 2)
	if keyint < 1 {
		keyint = 1
	}
	args := []string{
		"-hide_banner", "-loglevel", logLevel,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", srcW, srcH),
		"-framerate", fps,
		"-i", "pipe:0",
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", w, h),
		"-pix_fmt", "yuv420p",
		"-c:v", encoderLib(cfg.Codec),
		"-b:v", strconv.Itoa(cfg.Bitrate),
		"-g", strconv.Itoa(keyint),
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-lag-in-frames", "0",
		"-auto-alt-ref", "0",
	}
	if cfg.Codec == "vp9" {
		args = append(args, "-row-mt", "1")
	}
	return append(args, "-f", "ivf", "pipe:1")
}

func (e *Encoder) Configure(cfg codec.EncoderConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() || e.flushed {
		return codec.ErrClosed
	}
	if cfg.Codec != "vp8" && cfg.Codec != "vp9" {
		return fmt.Errorf("%w: %q", codec.ErrUnsupported, cfg.Codec)
	}
	if e.run.Load() != nil {
		return errors.New("encoder already running")
	}
	e.cfg = &cfg
	return nil
}

func (e *Encoder) start(srcW, srcH int) error {
	cfg := *e.cfg
	w, h := codec.ResolveSize(cfg, srcW, srcH)

	proc, err := startProcess(e.ctx, e.binary, "encoder", encoderArgs(cfg, srcW, srcH, w, h, e.logLevel), e.logger)
	if err != nil {
		return err
	}
	e.srcW, e.srcH = srcW, srcH

	r := &run{proc: proc, done: make(chan struct{})}
	e.run.Store(r)
	decCfg := media.CodecConfig{
		Codec:     codec.CodecString(cfg.Codec),
		Width:     w,
		Height:    h,
		Framerate: cfg.Framerate,
	}
	go e.readOutput(r, cfg.Codec, decCfg)

	if e.closed.Load() {
		proc.kill()
	}

	e.logger.WithFields(map[string]interface{}{
		"codec":      cfg.Codec,
		"source":     fmt.Sprintf("%dx%d", srcW, srcH),
		"resolution": fmt.Sprintf("%dx%d", w, h),
		"bitrate":    cfg.Bitrate,
	}).Info("Encoder started")
	return nil
}

func (e *Encoder) readOutput(r *run, family string, decCfg media.CodecConfig) {
	defer close(r.done)

	var readErr error
	if _, err := readIVFHeader(r.proc.stdout); err != nil {
		if !errors.Is(err, io.EOF) {
			readErr = fmt.Errorf("read ivf header: %w", err)
		}
	} else {
		first := true
		for {
			_, data, err := readIVFFrame(r.proc.stdout)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr = fmt.Errorf("read ivf frame: %w", err)
				}
				break
			}
			s := e.stamps.pop()

			out := codec.Output{
				Chunk: media.NewDataChunk(data, s.pts, s.dur, isKeyframe(family, data)),
			}
			if first {
				cfg := decCfg
				out.DecoderConfig = &cfg
				first = false
			}
			if !e.out.Emit(out) {
				r.abandon()
				return
			}
		}
	}

	if err := r.proc.wait(); err != nil {
		e.out.Fail(err)
		return
	}
	if readErr != nil && !e.closed.Load() {
		e.out.Fail(readErr)
	}
}

// Encode writes the frame's pixels to the encoder. The frame may be
// released as soon as Encode returns.
func (e *Encoder) Encode(frame *media.Frame) error {
	if e.closed.Load() {
		return codec.ErrClosed
	}

	e.mu.Lock()
	if e.flushed {
		e.mu.Unlock()
		return codec.ErrClosed
	}
	if err := e.out.Err(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.cfg == nil {
		e.mu.Unlock()
		return codec.ErrNotConfigured
	}
	if frame.Released() {
		e.mu.Unlock()
		return media.ErrFrameReleased
	}
	if e.run.Load() == nil {
		if err := e.start(frame.DisplayWidth(), frame.DisplayHeight()); err != nil {
			e.mu.Unlock()
			return err
		}
	} else if frame.DisplayWidth() != e.srcW || frame.DisplayHeight() != e.srcH {
		e.mu.Unlock()
		return fmt.Errorf("frame size changed from %dx%d to %dx%d",
			e.srcW, e.srcH, frame.DisplayWidth(), frame.DisplayHeight())
	}
	r := e.run.Load()
	e.mu.Unlock()

	e.stamps.push(frame.Timestamp, frame.Duration)
	if _, err := r.proc.stdin.Write(frame.Pix()); err != nil {
		<-r.done
		if failErr := e.out.Err(); failErr != nil {
			return failErr
		}
		if e.closed.Load() {
			return codec.ErrClosed
		}
		return fmt.Errorf("write encoder input: %w", err)
	}
	return nil
}

func (e *Encoder) Flush() error {
	e.mu.Lock()
	if e.flushed || e.closed.Load() {
		e.mu.Unlock()
		return codec.ErrClosed
	}
	e.flushed = true
	e.mu.Unlock()

	if r := e.run.Load(); r != nil {
		_ = r.proc.closeInput()
		<-r.done
	}
	if err := e.out.Err(); err != nil {
		return err
	}
	e.out.Close()
	return nil
}

func (e *Encoder) Output() <-chan codec.Output { return e.out.C() }
func (e *Encoder) Err() error                  { return e.out.Err() }

func (e *Encoder) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.out.Close()
	if r := e.run.Load(); r != nil {
		r.proc.kill()
		<-r.done
	}
	return nil
}
