// Package pipeline wires the transcoding stages together: decode, encode,
// render-and-passthrough, mux and upload. Stages run in their own
// goroutines joined by unbuffered channels, so a slow stage throttles
// everything upstream of it. The first failure cancels the run with that
// failure as the context cause.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/container"
	"github.com/zsiec/reel/internal/demux"
	apperrors "github.com/zsiec/reel/internal/errors"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/metrics"
	"github.com/zsiec/reel/internal/render"
	"github.com/zsiec/reel/internal/upload"
)

// Run states reported in Status.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Status describes a pipeline run.
type Status struct {
	State    string        `json:"state"`
	Name     string        `json:"name"`
	Stats    Stats         `json:"stats"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    string        `json:"error,omitempty"`
	Uploaded []string      `json:"uploaded,omitempty"`
}

// Input is the video to transcode. Name is used to derive upload names.
type Input struct {
	Name string
	Body io.ReadSeeker
}

// Options configures a Pipeline.
type Options struct {
	Demuxer    demux.Demuxer
	Codecs     codec.Factory
	Containers container.Factory
	Uploader   upload.Service

	ResolutionLabel  string
	Extension        string
	SegmentThreshold int
	// RefreshRate paces preview presentations per second.
	RefreshRate float64

	Logger   logger.Logger
	Progress Progress
}

// Pipeline runs transcodes with a fixed set of collaborators. It may be
// started any number of times, concurrently.
type Pipeline struct {
	opts   Options
	logger logger.Logger
}

// New validates opts and creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Demuxer == nil:
		return nil, errors.New("pipeline: demuxer required")
	case opts.Codecs == nil:
		return nil, errors.New("pipeline: codec factory required")
	case opts.Containers == nil:
		return nil, errors.New("pipeline: container factory required")
	case opts.Uploader == nil:
		return nil, errors.New("pipeline: upload service required")
	}
	if opts.ResolutionLabel == "" {
		opts.ResolutionLabel = "144p"
	}
	if opts.Extension == "" {
		opts.Extension = "webm"
	}
	if opts.SegmentThreshold <= 0 {
		opts.SegmentThreshold = upload.DefaultThreshold
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Pipeline{opts: opts, logger: logger.WithComponent(opts.Logger, "pipeline")}, nil
}

// BaseName derives the upload base name from an input name: its last path
// element with the first ".mp4" removed, wherever it appears.
func BaseName(name string) string {
	return strings.Replace(path.Base(strings.ReplaceAll(name, "\\", "/")), ".mp4", "", 1)
}

// recorder tracks uploaded names on top of the counters.
type recorder struct {
	*Counters
	mu    sync.Mutex
	names []string
}

func (r *recorder) SegmentUploaded(name string, size int) {
	r.Counters.SegmentUploaded(name, size)
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
}

func (r *recorder) uploaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// Start transcodes input and blocks until the run ends. On success
// onComplete receives the final status and Start returns nil. On failure
// the first stage error is returned and onComplete is not called.
func (p *Pipeline) Start(ctx context.Context, input Input, encCfg codec.EncoderConfig, sink render.Sink, onComplete func(Status)) error {
	started := time.Now()
	base := BaseName(input.Name)
	log := p.logger.WithFields(map[string]interface{}{"input": base})
	if jobID := logger.GetJobID(ctx); jobID != "" {
		log = log.WithField("job_id", jobID)
	}
	stageLog := logger.NewPipelineLogger(log)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	rec := &recorder{Counters: &Counters{}}
	var progress Progress = rec
	if p.opts.Progress != nil {
		progress = multiProgress{rec, p.opts.Progress}
	}

	if sink == nil {
		sink = render.Discard
	}
	presenter := render.NewPresenter(sink, p.opts.RefreshRate, log,
		render.WithPresentHook(progress.PreviewPresented),
		render.WithDropHook(progress.PreviewDropped),
	)

	stages, err := p.newStages(ctx, stageLog, presenter, progress, encCfg, base)
	if err != nil {
		presenter.Close()
		return p.finish(log, started, err)
	}

	log.WithFields(map[string]interface{}{
		"codec":     encCfg.Codec,
		"height":    encCfg.Height,
		"bitrate":   encCfg.Bitrate,
		"threshold": p.opts.SegmentThreshold,
	}).Info("Pipeline started")

	frames := make(chan *media.Frame)
	encoded := make(chan media.Chunk)
	passed := make(chan media.Chunk)
	segments := make(chan media.Segment)

	var g errgroup.Group
	g.Go(func() error { return stages.decode.Run(ctx, cancel, input.Body, frames) })
	g.Go(func() error { return stages.encode.Run(ctx, cancel, frames, encoded) })
	g.Go(func() error { return stages.render.Run(ctx, cancel, encoded, passed) })
	g.Go(func() error { return stages.mux.Run(ctx, cancel, passed, segments) })
	g.Go(func() error { return stages.upload.Run(ctx, cancel, segments) })

	if err := g.Wait(); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
		return p.finish(log, started, err)
	}

	status := Status{
		State:    StatusDone,
		Name:     base,
		Stats:    rec.Snapshot(),
		Elapsed:  time.Since(started),
		Uploaded: rec.uploaded(),
	}
	p.finish(log.WithFields(map[string]interface{}{
		"frames":   status.Stats.FramesDecoded,
		"chunks":   status.Stats.ChunksEncoded,
		"previews": status.Stats.PreviewsShown,
		"dropped":  status.Stats.PreviewsDropped,
		"segments": status.Stats.SegmentsUploaded,
		"bytes":    status.Stats.BytesUploaded,
	}), started, nil)

	if onComplete != nil {
		onComplete(status)
	}
	return nil
}

type stageSet struct {
	decode *DecodeStage
	encode *EncodeStage
	render *RenderStage
	mux    *MuxStage
	upload *UploadStage
}

// newStages creates every codec instance up front so each stage owns its
// own, created in a fixed order: main decoder, encoder, preview decoder,
// container writer.
func (p *Pipeline) newStages(ctx context.Context, log *logger.SampledLogger, presenter *render.Presenter,
	progress Progress, encCfg codec.EncoderConfig, base string) (*stageSet, error) {
	dec, err := p.opts.Codecs.NewDecoder(ctx)
	if err != nil {
		return nil, apperrors.NewDecodeFailure(fmt.Errorf("create decoder: %w", err))
	}
	enc, err := p.opts.Codecs.NewEncoder(ctx)
	if err != nil {
		_ = dec.Close()
		return nil, apperrors.NewEncodeFailure(fmt.Errorf("create encoder: %w", err))
	}
	preview, err := p.opts.Codecs.NewDecoder(ctx)
	if err != nil {
		_ = dec.Close()
		_ = enc.Close()
		return nil, apperrors.NewDecodeFailure(fmt.Errorf("create preview decoder: %w", err))
	}
	writer, err := p.opts.Containers.NewWriter(ctx)
	if err != nil {
		_ = dec.Close()
		_ = enc.Close()
		_ = preview.Close()
		return nil, apperrors.NewMuxFailure(fmt.Errorf("create container writer: %w", err))
	}

	batch := upload.NewBatch(upload.Naming{
		BaseName:  base,
		Label:     p.opts.ResolutionLabel,
		Extension: p.opts.Extension,
	}, p.opts.SegmentThreshold)

	stageLogger := func(name string) *logger.SampledLogger {
		return log.WithField("stage", name).(*logger.SampledLogger)
	}
	return &stageSet{
		decode: &DecodeStage{Demuxer: p.opts.Demuxer, Decoder: dec, Logger: stageLogger("decode"), Progress: progress},
		encode: &EncodeStage{Encoder: enc, Config: encCfg, Logger: stageLogger("encode"), Progress: progress},
		render: &RenderStage{Decoder: preview, Presenter: presenter, Logger: stageLogger("render")},
		mux:    &MuxStage{Writer: writer, Logger: stageLogger("mux")},
		upload: &UploadStage{Service: p.opts.Uploader, Batch: batch, Logger: stageLogger("upload"), Progress: progress},
	}, nil
}

// finish records the outcome and logs failures once.
func (p *Pipeline) finish(log logger.Logger, started time.Time, err error) error {
	elapsed := time.Since(started)
	if err == nil {
		metrics.RecordPipelineRun(StatusDone, elapsed)
		log.WithField("elapsed", elapsed).Info("Pipeline completed")
		return nil
	}

	errType := "unknown"
	if appErr, ok := apperrors.GetAppError(err); ok {
		errType = string(appErr.Type)
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		errType = "cancelled"
	}
	metrics.RecordPipelineRun(StatusFailed, elapsed)
	metrics.IncrementPipelineError(errType)
	log.WithFields(map[string]interface{}{
		"error_type": errType,
		"elapsed":    elapsed,
	}).WithError(err).Error("Pipeline failed")
	return err
}
