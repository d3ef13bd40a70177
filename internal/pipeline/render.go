package pipeline

import (
	"context"

	"github.com/zsiec/reel/internal/codec"
	apperrors "github.com/zsiec/reel/internal/errors"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/render"
)

// RenderStage passes chunks through unchanged while decoding them a
// second time for the preview presenter.
type RenderStage struct {
	Decoder   codec.Decoder
	Presenter *render.Presenter
	Logger    *logger.SampledLogger
}

// Run forwards chunks from in to out. On a clean end of stream the last
// preview frame is still presented before Run returns; on failure it is
// discarded.
func (s *RenderStage) Run(ctx context.Context, fail context.CancelCauseFunc, in <-chan media.Chunk, out chan<- media.Chunk) (err error) {
	defer close(out)
	defer s.Decoder.Close()

	presenting := make(chan struct{})
	go func() {
		defer close(presenting)
		s.Presenter.Run(ctx)
	}()
	defer func() {
		if err == nil {
			s.Presenter.Drain()
		} else {
			s.Presenter.Close()
		}
		<-presenting
	}()

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for f := range s.Decoder.Frames() {
			s.Presenter.Submit(f)
		}
		if err := s.Decoder.Err(); err != nil {
			fail(stageError(apperrors.NewDecodeFailure, err))
		}
	}()

	for {
		chunk, ok := receive(ctx, in)
		if !ok {
			break
		}
		if err = s.preview(chunk); err != nil {
			break
		}
		if !send(ctx, out, chunk) {
			break
		}
	}

	if err == nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		} else if flushErr := s.Decoder.Flush(); flushErr != nil {
			err = stageError(apperrors.NewDecodeFailure, firstError(s.Decoder.Err(), flushErr))
		}
	}
	if err != nil {
		fail(err)
		_ = s.Decoder.Close()
	}

	<-forwarded
	if err == nil {
		err = context.Cause(ctx)
	}
	return err
}

// preview submits chunk to the preview decoder.
func (s *RenderStage) preview(chunk media.Chunk) error {
	var err error
	switch chunk.Kind {
	case media.ChunkConfig:
		s.Logger.WithFields(map[string]interface{}{
			"codec":  chunk.Config.Codec,
			"width":  chunk.Config.Width,
			"height": chunk.Config.Height,
		}).Info("Configuring preview decoder")
		err = s.Decoder.Configure(*chunk.Config)
	case media.ChunkData:
		err = s.Decoder.Decode(chunk)
	}
	if err != nil {
		return stageError(apperrors.NewDecodeFailure, firstError(s.Decoder.Err(), err))
	}
	return nil
}
