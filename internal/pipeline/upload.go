package pipeline

import (
	"context"

	apperrors "github.com/zsiec/reel/internal/errors"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/upload"
)

// UploadStage batches container segments and uploads each batch once it
// exceeds the threshold, plus the remainder at end of stream.
type UploadStage struct {
	Service  upload.Service
	Batch    *upload.Batch
	Logger   *logger.SampledLogger
	Progress Progress
}

func (s *UploadStage) Run(ctx context.Context, fail context.CancelCauseFunc, in <-chan media.Segment) error {
	for {
		seg, ok := receive(ctx, in)
		if !ok {
			break
		}
		if file, full := s.Batch.Add(seg.Data); full {
			if err := s.upload(ctx, fail, file); err != nil {
				return err
			}
		}
	}

	// A cancelled pipeline never uploads its partial batch.
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	if file, ok := s.Batch.Flush(); ok {
		return s.upload(ctx, fail, file)
	}
	return nil
}

func (s *UploadStage) upload(ctx context.Context, fail context.CancelCauseFunc, file upload.File) error {
	if err := s.Service.UploadFile(ctx, file); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		err = stageError(apperrors.NewUploadFailure, err)
		fail(err)
		return err
	}
	if s.Progress != nil {
		s.Progress.SegmentUploaded(file.Name, len(file.Payload))
	}
	s.Logger.InfoWithCategory(logger.CategorySegment, "Segment uploaded", map[string]interface{}{
		"name":  file.Name,
		"bytes": len(file.Payload),
	})
	return nil
}
