package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/container"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
)

// Factory creates ffmpeg-backed decoders, encoders and WebM writers.
type Factory struct {
	binary   string
	logLevel string
	pool     *media.FramePool
	logger   logger.Logger
}

var (
	_ codec.Factory     = (*Factory)(nil)
	_ container.Factory = (*Factory)(nil)
)

// NewFactory resolves the ffmpeg binary and returns a factory for it.
func NewFactory(cfg config.FFmpegConfig, pool *media.FramePool, log logger.Logger) (*Factory, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg binary %q: %w", binary, err)
	}
	logLevel := cfg.LogLevel
	if logLevel == "" {
		logLevel = "error"
	}
	return &Factory{
		binary:   path,
		logLevel: logLevel,
		pool:     pool,
		logger:   log,
	}, nil
}

func (f *Factory) NewDecoder(ctx context.Context) (codec.Decoder, error) {
	return newDecoder(ctx, f.binary, f.logLevel, f.pool, f.logger), nil
}

func (f *Factory) NewEncoder(ctx context.Context) (codec.Encoder, error) {
	return newEncoder(ctx, f.binary, f.logLevel, f.logger), nil
}

func (f *Factory) NewWriter(ctx context.Context) (container.Writer, error) {
	return newWebMWriter(ctx, f.binary, f.logLevel, f.logger), nil
}

// Binary returns the resolved ffmpeg path.
func (f *Factory) Binary() string { return f.binary }
