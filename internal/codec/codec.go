// Package codec defines the asynchronous video decoder and encoder contracts
// used by the pipeline stages.
package codec

import (
	"context"
	"errors"

	"github.com/zsiec/reel/internal/media"
)

var (
	// ErrNotConfigured is returned when input arrives before Configure.
	ErrNotConfigured = errors.New("codec not configured")
	// ErrClosed is returned by calls on a closed or flushed codec.
	ErrClosed = errors.New("codec closed")
	// ErrUnsupported is returned by Configure for unknown codecs.
	ErrUnsupported = errors.New("unsupported codec")
)

// Decoder turns compressed chunks into frames. Decode only submits work;
// frames arrive on Frames in presentation order. The Frames channel is
// closed after Close, after Flush has drained everything, or on failure, in
// which case Err reports the cause. Frames received from the channel are
// owned by the receiver.
type Decoder interface {
	Configure(cfg media.CodecConfig) error
	Decode(chunk media.Chunk) error
	// Flush blocks until every submitted chunk has produced its frames.
	// The decoder accepts no further input afterwards.
	Flush() error
	Frames() <-chan *media.Frame
	Err() error
	Close() error
}

// EncoderConfig selects the output codec and geometry.
type EncoderConfig struct {
	Codec string // vp8 or vp9
	// Width 0 derives the width from the first frame's aspect ratio.
	Width     int
	Height    int
	Bitrate   int
	Framerate float64
}

// Output is one encoded chunk. DecoderConfig is set when the encoder has
// (re)established the configuration a decoder needs for this and later
// chunks.
type Output struct {
	Chunk         media.Chunk
	DecoderConfig *media.CodecConfig
}

// Encoder turns frames into compressed chunks. Encode copies what it needs
// from the frame before returning; the caller keeps ownership and releases
// it. Output follows the same closing rules as Decoder.Frames.
type Encoder interface {
	Configure(cfg EncoderConfig) error
	Encode(frame *media.Frame) error
	Flush() error
	Output() <-chan Output
	Err() error
	Close() error
}

// Factory creates codec instances. Each instance is owned by one stage.
type Factory interface {
	NewDecoder(ctx context.Context) (Decoder, error)
	NewEncoder(ctx context.Context) (Encoder, error)
}

// ResolveSize returns the output dimensions for a source of srcW x srcH.
// A zero configured width keeps the source aspect ratio, rounded to an even
// number of pixels.
func ResolveSize(cfg EncoderConfig, srcW, srcH int) (int, int) {
	w, h := cfg.Width, cfg.Height
	if h <= 0 {
		h = srcH
	}
	if w <= 0 {
		if srcH <= 0 {
			return 0, h
		}
		w = (srcW*h + srcH/2) / srcH
		if w%2 != 0 {
			w++
		}
		if w < 2 {
			w = 2
		}
	}
	return w, h
}

// CodecString maps an encoder codec name to the codec string carried in
// decoder configurations.
func CodecString(codec string) string {
	switch codec {
	case "vp9":
		return "vp09.00.10.08"
	default:
		return codec
	}
}
