package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/container"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/metrics"
)

const segmentReadSize = 64 << 10

// WebMWriter muxes VP8/VP9 chunks into a WebM stream with ffmpeg stream
// copy. Chunks are handed over as IVF; the WebM bytes are read back as
// segments in write order.
type WebMWriter struct {
	ctx      context.Context
	binary   string
	logLevel string
	logger   logger.Logger
	out      *codec.Emitter[media.Segment]

	closed atomic.Bool

	mu        sync.Mutex
	cfg       *media.CodecConfig
	run       *run
	finalized bool
}

var _ container.Writer = (*WebMWriter)(nil)

func newWebMWriter(ctx context.Context, binary, logLevel string, log logger.Logger) *WebMWriter {
	return &WebMWriter{
		ctx:      ctx,
		binary:   binary,
		logLevel: logLevel,
		logger:   logger.WithComponent(log, "webm_writer"),
		out:      codec.NewEmitter[media.Segment](1, nil),
	}
}

func webmArgs(logLevel string) []string {
	return []string{
		"-hide_banner", "-loglevel", logLevel,
		"-f", "ivf",
		"-i", "pipe:0",
		"-c:v", "copy",
		"-f", "webm",
		"-live", "1",
		"pipe:1",
	}
}

func (w *WebMWriter) AddChunk(chunk media.Chunk) error {
	if w.closed.Load() {
		return codec.ErrClosed
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return codec.ErrClosed
	}
	if err := w.out.Err(); err != nil {
		return err
	}

	if chunk.Kind == media.ChunkConfig {
		if w.cfg == nil {
			w.cfg = chunk.Config
			return nil
		}
		if chunk.Config.Width != w.cfg.Width || chunk.Config.Height != w.cfg.Height {
			w.logger.WithFields(map[string]interface{}{
				"from": fmt.Sprintf("%dx%d", w.cfg.Width, w.cfg.Height),
				"to":   fmt.Sprintf("%dx%d", chunk.Config.Width, chunk.Config.Height),
			}).Warn("Ignoring mid-stream track reconfiguration")
		}
		return nil
	}

	if w.cfg == nil {
		return container.ErrNoConfig
	}
	if w.run == nil {
		if err := w.start(); err != nil {
			return err
		}
	}

	if err := writeIVFFrame(w.run.proc.stdin, chunk.Timestamp.Milliseconds(), chunk.Payload); err != nil {
		<-w.run.done
		if failErr := w.out.Err(); failErr != nil {
			return failErr
		}
		return fmt.Errorf("write container input: %w", err)
	}
	return nil
}

func (w *WebMWriter) start() error {
	family := w.cfg.Family()
	if family != media.FamilyVP8 && family != media.FamilyVP9 {
		return fmt.Errorf("webm: %w: %q", codec.ErrUnsupported, w.cfg.Codec)
	}

	proc, err := startProcess(w.ctx, w.binary, "muxer", webmArgs(w.logLevel), w.logger)
	if err != nil {
		return err
	}
	hdr := ivfHeader{
		FourCC:    fourCC(family),
		Width:     uint16(w.cfg.Width),
		Height:    uint16(w.cfg.Height),
		RateNum:   1000,
		RateScale: 1,
	}
	if err := writeIVFHeader(proc.stdin, hdr); err != nil {
		proc.kill()
		_ = proc.wait()
		return fmt.Errorf("write ivf header: %w", err)
	}

	w.run = &run{proc: proc, done: make(chan struct{})}
	go w.readSegments(w.run)

	if w.closed.Load() {
		proc.kill()
	}
	return nil
}

func (w *WebMWriter) readSegments(r *run) {
	defer close(r.done)

	var (
		offset  int64
		readErr error
	)
	buf := make([]byte, segmentReadSize)
	for {
		n, err := r.proc.stdout.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			metrics.AddContainerBytes(n)
			if !w.out.Emit(media.Segment{Data: data, Offset: offset}) {
				r.abandon()
				return
			}
			offset += int64(n)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}

	if err := r.proc.wait(); err != nil {
		w.out.Fail(err)
		return
	}
	if readErr != nil && !w.closed.Load() {
		w.out.Fail(fmt.Errorf("read container output: %w", readErr))
	}
	w.logger.WithField("bytes", offset).Debug("Container finalized")
}

// Close finalizes the container and waits for its trailing bytes.
func (w *WebMWriter) Close() error {
	w.mu.Lock()
	if w.finalized || w.closed.Load() {
		w.mu.Unlock()
		return codec.ErrClosed
	}
	w.finalized = true
	r := w.run
	w.mu.Unlock()

	if r != nil {
		_ = r.proc.closeInput()
		<-r.done
	}
	if err := w.out.Err(); err != nil {
		return err
	}
	w.out.Close()
	return nil
}

func (w *WebMWriter) Abort() {
	if w.closed.Swap(true) {
		return
	}
	w.out.Close()

	w.mu.Lock()
	r := w.run
	w.mu.Unlock()
	if r != nil {
		r.proc.kill()
		<-r.done
	}
}

func (w *WebMWriter) Segments() <-chan media.Segment { return w.out.C() }
func (w *WebMWriter) Err() error                     { return w.out.Err() }
