package upload

import (
	"context"
	"time"

	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/metrics"
)

// Instrumented records metrics and logs for every upload.
type Instrumented struct {
	next    Service
	backend string
	logger  logger.Logger
}

func NewInstrumented(next Service, backend string, log logger.Logger) *Instrumented {
	return &Instrumented{
		next:    next,
		backend: backend,
		logger:  logger.WithComponent(log, "upload"),
	}
}

func (i *Instrumented) UploadFile(ctx context.Context, file File) error {
	start := time.Now()
	err := i.next.UploadFile(ctx, file)
	elapsed := time.Since(start)
	metrics.RecordUpload(i.backend, len(file.Payload), elapsed, err)

	entry := i.logger.WithFields(map[string]interface{}{
		"backend":  i.backend,
		"name":     file.Name,
		"bytes":    len(file.Payload),
		"duration": elapsed,
	})
	if err != nil {
		entry.WithError(err).Error("Upload failed")
		return err
	}
	entry.Info("Segment uploaded")
	return nil
}
