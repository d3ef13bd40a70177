package main

import (
	"context"
	"fmt"
	"os"

	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/dashboard"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/pipeline"
	"github.com/zsiec/reel/internal/render"
)

// transcode runs one input through the pipeline and blocks until it ends.
func transcode(ctx context.Context, cfg *config.Config, log logger.Logger, path string, useDashboard bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	st, err := newStack(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer st.Close(log)

	if cfg.Metrics.Enabled {
		go startMetricsServer(ctx, cfg.Metrics, log)
	}

	opts := st.options(cfg, log)
	preview := cfg.Pipeline.Preview

	var sinks render.MultiSink
	if preview.SnapshotPath != "" {
		sinks = append(sinks, render.NewSnapshotSink(preview.SnapshotPath, preview.MaxWidth, preview.MaxHeight))
	}
	var dash *dashboard.Dashboard
	if useDashboard {
		dash = dashboard.New(path)
		opts.Progress = dash
		sinks = append(sinks, dash)
	}
	var sink render.Sink = render.Discard
	if len(sinks) > 0 {
		sink = sinks
	}

	p, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	input := pipeline.Input{Name: path, Body: f}
	enc := encoderConfig(cfg.Pipeline.Encoder)
	onComplete := func(status pipeline.Status) {
		log.WithFields(map[string]interface{}{
			"segments": len(status.Uploaded),
			"frames":   status.Stats.FramesDecoded,
			"elapsed":  status.Elapsed.String(),
		}).Info("Transcode complete")
		if !useDashboard {
			for _, name := range status.Uploaded {
				fmt.Println(name)
			}
		}
	}

	if dash == nil {
		return p.Start(ctx, input, enc, sink, onComplete)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		err := p.Start(runCtx, input, enc, sink, onComplete)
		dash.Finish(err)
		errCh <- err
	}()

	if err := dash.Run(ctx, os.Stdout, cancel); err != nil {
		log.WithError(err).Warn("Dashboard exited")
		cancel()
	}
	return <-errCh
}
