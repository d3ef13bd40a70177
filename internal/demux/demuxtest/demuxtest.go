// Package demuxtest builds small H.264 MP4 files and scripted demuxers for
// tests.
package demuxtest

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/livepeer/joy4/av"
	"github.com/livepeer/joy4/codec/h264parser"
	"github.com/livepeer/joy4/format/mp4"

	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/media"
)

// Baseline profile, level 3.0, 640x480, no VUI.
var (
	SPS = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x02, 0x80, 0xf6, 0x40}
	PPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

// FrameDuration is the spacing of samples written by WriteMP4.
const FrameDuration = 40 * time.Millisecond

// KeyframeInterval is the GOP length used by WriteMP4.
const KeyframeInterval = 5

// WriteMP4 writes a 640x480 H.264 MP4 with the given number of samples to
// path. Sample payloads are single NAL units and not decodable pictures.
func WriteMP4(path string, frames int) error {
	cd, err := h264parser.NewCodecDataFromSPSAndPPS(SPS, PPS)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	mux := mp4.NewMuxer(f)
	if err := mux.WriteHeader([]av.CodecData{cd}); err != nil {
		return err
	}
	for i := 0; i < frames; i++ {
		nal := []byte{0x00, 0x00, 0x00, 0x03, 0x41, 0x9a, byte(i)}
		key := i%KeyframeInterval == 0
		if key {
			nal[4] = 0x65
		}
		if err := mux.WritePacket(av.Packet{
			IsKeyFrame: key,
			Time:       time.Duration(i) * FrameDuration,
			Data:       nal,
		}); err != nil {
			return err
		}
	}
	if err := mux.WriteTrailer(); err != nil {
		return err
	}
	return f.Close()
}

// Script replays a fixed configuration and chunk list. When Err is set it
// is returned after FailAfter chunks.
type Script struct {
	Config    *media.CodecConfig
	Chunks    []media.Chunk
	Err       error
	FailAfter int
}

var _ demux.Demuxer = (*Script)(nil)

// Frames returns a script of n 640x480 H.264 chunks.
func Frames(n int) *Script {
	s := &Script{Config: &media.CodecConfig{Codec: "avc1.42c01e", Width: 640, Height: 480}}
	for i := 0; i < n; i++ {
		s.Chunks = append(s.Chunks, media.NewDataChunk(
			[]byte{0x65, byte(i)},
			time.Duration(i)*FrameDuration,
			FrameDuration,
			i%KeyframeInterval == 0,
		))
	}
	return s
}

func (s *Script) Run(ctx context.Context, r io.ReadSeeker, h demux.Handler) error {
	if s.Config != nil {
		if err := h.OnConfig(*s.Config); err != nil {
			return err
		}
	}
	for i, c := range s.Chunks {
		if s.Err != nil && i == s.FailAfter {
			return s.Err
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if err := h.OnChunk(c); err != nil {
			return err
		}
	}
	if s.Err != nil && s.FailAfter >= len(s.Chunks) {
		return s.Err
	}
	return nil
}
