// Package container defines the output container writer contract.
package container

import (
	"context"
	"errors"

	"github.com/zsiec/reel/internal/media"
)

// ErrNoConfig is returned when a Data chunk reaches a writer before any
// Config chunk.
var ErrNoConfig = errors.New("container: data chunk before codec config")

// Writer muxes encoded chunks into a container byte stream, exposed as a
// sequence of segments in stream order.
type Writer interface {
	// AddChunk appends a chunk. Config chunks set up the track.
	AddChunk(chunk media.Chunk) error
	// Close finalizes the container. Segments is closed once every
	// trailing byte has been delivered.
	Close() error
	// Abort stops the writer without finalizing.
	Abort()
	Segments() <-chan media.Segment
	Err() error
}

// Factory creates writers. Each writer is owned by one stage.
type Factory interface {
	NewWriter(ctx context.Context) (Writer, error)
}
