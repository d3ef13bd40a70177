// Package demux reads compressed video tracks out of container files.
package demux

import (
	"context"
	"errors"
	"io"

	"github.com/zsiec/reel/internal/media"
)

var (
	// ErrNoVideoTrack is returned when the input holds no video stream.
	ErrNoVideoTrack = errors.New("no video track in input")
	// ErrUnsupportedCodec is returned for video tracks other than H.264.
	ErrUnsupportedCodec = errors.New("unsupported video codec")
)

// Handler receives the demuxed track. OnConfig is called before any
// OnChunk that depends on it. Returning an error from either callback
// stops the demuxer, which then returns that error.
type Handler struct {
	OnConfig func(cfg media.CodecConfig) error
	OnChunk  func(chunk media.Chunk) error
}

// Demuxer extracts the first video track from r.
type Demuxer interface {
	Run(ctx context.Context, r io.ReadSeeker, h Handler) error
}
