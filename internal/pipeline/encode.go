package pipeline

import (
	"context"

	"github.com/zsiec/reel/internal/codec"
	apperrors "github.com/zsiec/reel/internal/errors"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/metrics"
)

// EncodeStage re-encodes frames at the target resolution. A Config chunk
// is emitted ahead of the Data chunk of every output that carries decoder
// configuration.
type EncodeStage struct {
	Encoder  codec.Encoder
	Config   codec.EncoderConfig
	Logger   *logger.SampledLogger
	Progress Progress
}

// Run encodes frames from in into out, closing out when done. Every
// received frame is released, whether or not it was encoded.
func (s *EncodeStage) Run(ctx context.Context, fail context.CancelCauseFunc, in <-chan *media.Frame, out chan<- media.Chunk) error {
	defer close(out)
	defer s.Encoder.Close()

	if err := s.Encoder.Configure(s.Config); err != nil {
		err = stageError(apperrors.NewEncodeFailure, err)
		fail(err)
		return err
	}
	s.Logger.WithFields(map[string]interface{}{
		"codec":     s.Config.Codec,
		"width":     s.Config.Width,
		"height":    s.Config.Height,
		"bitrate":   s.Config.Bitrate,
		"framerate": s.Config.Framerate,
	}).Info("Encoder configured")

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		s.forwardChunks(ctx, out)
		if err := s.Encoder.Err(); err != nil {
			fail(stageError(apperrors.NewEncodeFailure, err))
		}
	}()

	var err error
	for {
		frame, ok := receive(ctx, in)
		if !ok {
			break
		}
		encErr := s.Encoder.Encode(frame)
		_ = frame.Release()
		if encErr != nil {
			err = stageError(apperrors.NewEncodeFailure, firstError(s.Encoder.Err(), encErr))
			break
		}
	}

	if err == nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		} else if flushErr := s.Encoder.Flush(); flushErr != nil {
			err = stageError(apperrors.NewEncodeFailure, firstError(s.Encoder.Err(), flushErr))
		}
	}
	if err != nil {
		fail(err)
		_ = s.Encoder.Close()
	}

	<-forwarded
	if err == nil {
		err = context.Cause(ctx)
	}
	return err
}

func (s *EncodeStage) forwardChunks(ctx context.Context, out chan<- media.Chunk) {
	forward(s.Encoder.Output(),
		func(o codec.Output) bool {
			if o.DecoderConfig != nil {
				if !send(ctx, out, media.NewConfigChunk(*o.DecoderConfig)) {
					return false
				}
				metrics.IncrementChunks("encode", media.ChunkConfig.String())
				s.Logger.WithFields(map[string]interface{}{
					"codec":  o.DecoderConfig.Codec,
					"width":  o.DecoderConfig.Width,
					"height": o.DecoderConfig.Height,
				}).Info("Encoder output configured")
			}
			if !send(ctx, out, o.Chunk) {
				return false
			}
			metrics.IncrementChunks("encode", media.ChunkData.String())
			if s.Progress != nil {
				s.Progress.ChunkEncoded()
			}
			s.Logger.DebugWithCategory(logger.CategoryChunk, "Chunk encoded", map[string]interface{}{
				"timestamp": o.Chunk.Timestamp,
				"size":      o.Chunk.Size(),
				"keyframe":  o.Chunk.Keyframe,
			})
			return true
		},
		func() { _ = s.Encoder.Close() },
		nil,
	)
}
