package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/demux"
	apperrors "github.com/zsiec/reel/internal/errors"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/metrics"
)

// DecodeStage demuxes the input and decodes it into frames.
type DecodeStage struct {
	Demuxer  demux.Demuxer
	Decoder  codec.Decoder
	Logger   *logger.SampledLogger
	Progress Progress
}

// codecError marks handler failures raised by the decoder rather than by
// the demuxer.
type codecError struct{ err error }

func (e codecError) Error() string { return e.err.Error() }
func (e codecError) Unwrap() error { return e.err }

// Run decodes input into out, closing out when done. On failure, fail is
// called with the classified error before out is closed.
func (s *DecodeStage) Run(ctx context.Context, fail context.CancelCauseFunc, input io.ReadSeeker, out chan<- *media.Frame) error {
	defer close(out)
	defer s.Decoder.Close()

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		s.forwardFrames(ctx, out)
		if err := s.Decoder.Err(); err != nil {
			fail(stageError(apperrors.NewDecodeFailure, err))
		}
	}()

	err := s.Demuxer.Run(ctx, input, demux.Handler{
		OnConfig: func(cfg media.CodecConfig) error {
			s.Logger.WithFields(map[string]interface{}{
				"codec":  cfg.Codec,
				"width":  cfg.Width,
				"height": cfg.Height,
			}).Info("Configuring decoder")
			if err := s.Decoder.Configure(cfg); err != nil {
				return codecError{firstError(s.Decoder.Err(), err)}
			}
			return nil
		},
		OnChunk: func(chunk media.Chunk) error {
			if err := s.Decoder.Decode(chunk); err != nil {
				return codecError{firstError(s.Decoder.Err(), err)}
			}
			return nil
		},
	})

	if err == nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		} else if flushErr := s.Decoder.Flush(); flushErr != nil {
			err = codecError{firstError(s.Decoder.Err(), flushErr)}
		}
	}

	if err != nil {
		var ce codecError
		switch {
		case errors.As(err, &ce):
			err = stageError(apperrors.NewDecodeFailure, ce.err)
		case context.Cause(ctx) != nil:
			err = context.Cause(ctx)
		default:
			err = stageError(apperrors.NewDemuxFailure, err)
		}
		fail(err)
		_ = s.Decoder.Close()
	}

	<-forwarded
	if err == nil {
		err = context.Cause(ctx)
	}
	return err
}

func (s *DecodeStage) forwardFrames(ctx context.Context, out chan<- *media.Frame) {
	forward(s.Decoder.Frames(),
		func(f *media.Frame) bool {
			ts := f.Timestamp
			if !send(ctx, out, f) {
				return false
			}
			metrics.IncrementFramesProcessed("decode")
			if s.Progress != nil {
				s.Progress.FrameDecoded()
			}
			s.Logger.DebugWithCategory(logger.CategoryFrame, "Frame decoded", map[string]interface{}{
				"timestamp": ts,
			})
			return true
		},
		func() { _ = s.Decoder.Close() },
		func(f *media.Frame) { _ = f.Release() },
	)
}
