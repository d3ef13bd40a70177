package pipeline

import (
	"context"

	"github.com/zsiec/reel/internal/container"
	apperrors "github.com/zsiec/reel/internal/errors"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
)

// MuxStage writes chunks into the container and emits its output segments.
type MuxStage struct {
	Writer container.Writer
	Logger *logger.SampledLogger
}

func (s *MuxStage) Run(ctx context.Context, fail context.CancelCauseFunc, in <-chan media.Chunk, out chan<- media.Segment) error {
	defer close(out)

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		forward(s.Writer.Segments(),
			func(seg media.Segment) bool {
				if !send(ctx, out, seg) {
					return false
				}
				s.Logger.DebugWithCategory(logger.CategorySegment, "Container segment", map[string]interface{}{
					"offset": seg.Offset,
					"size":   len(seg.Data),
				})
				return true
			},
			s.Writer.Abort,
			nil,
		)
		if err := s.Writer.Err(); err != nil {
			fail(stageError(apperrors.NewMuxFailure, err))
		}
	}()

	var err error
	for {
		chunk, ok := receive(ctx, in)
		if !ok {
			break
		}
		if addErr := s.Writer.AddChunk(chunk); addErr != nil {
			err = stageError(apperrors.NewMuxFailure, firstError(s.Writer.Err(), addErr))
			break
		}
	}

	if err == nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		} else if closeErr := s.Writer.Close(); closeErr != nil {
			err = stageError(apperrors.NewMuxFailure, firstError(s.Writer.Err(), closeErr))
		}
	}
	if err != nil {
		fail(err)
		s.Writer.Abort()
	}

	<-forwarded
	if err == nil {
		err = context.Cause(ctx)
	}
	return err
}
