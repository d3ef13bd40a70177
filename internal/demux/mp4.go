package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/livepeer/joy4/av"
	"github.com/livepeer/joy4/codec/h264parser"
	"github.com/livepeer/joy4/format/mp4"

	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/media"
)

// MP4Demuxer reads the first H.264 track of an ISO-BMFF file.
type MP4Demuxer struct {
	logger logger.Logger
}

// NewMP4Demuxer creates an MP4 demuxer.
func NewMP4Demuxer(log logger.Logger) *MP4Demuxer {
	return &MP4Demuxer{logger: logger.WithComponent(log, "demux")}
}

// Run parses r and feeds the handler. Samples are emitted in decode order
// with presentation timestamps. Audio tracks are ignored.
func (d *MP4Demuxer) Run(ctx context.Context, r io.ReadSeeker, h Handler) error {
	dmx := mp4.NewDemuxer(r)

	streams, err := dmx.Streams()
	if err != nil {
		return fmt.Errorf("read mp4 header: %w", err)
	}

	videoIdx := -1
	var codecData h264parser.CodecData
	for i, s := range streams {
		if !s.Type().IsVideo() {
			continue
		}
		cd, ok := s.(h264parser.CodecData)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedCodec, s.Type())
		}
		videoIdx = i
		codecData = cd
		break
	}
	if videoIdx < 0 {
		return ErrNoVideoTrack
	}

	cfg := H264Config(codecData)
	d.logger.WithFields(map[string]interface{}{
		"codec":  cfg.Codec,
		"width":  cfg.Width,
		"height": cfg.Height,
		"tracks": len(streams),
	}).Info("Video track found")

	if h.OnConfig != nil {
		if err := h.OnConfig(cfg); err != nil {
			return err
		}
	}

	// Each sample is held until the next one arrives so its duration can be
	// taken from the decode-time delta.
	var (
		pending     *av.Packet
		lastDur     time.Duration
		samples     int
		emitPending = func(next *av.Packet) error {
			dur := lastDur
			if next != nil {
				dur = next.Time - pending.Time
				lastDur = dur
			}
			samples++
			if h.OnChunk == nil {
				return nil
			}
			return h.OnChunk(media.NewDataChunk(
				pending.Data,
				pending.Time+pending.CompositionTime,
				dur,
				pending.IsKeyFrame,
			))
		}
	)

	for {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}

		pkt, err := dmx.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read mp4 sample %d: %w", samples, err)
		}
		if int(pkt.Idx) != videoIdx {
			continue
		}

		if pending != nil {
			if err := emitPending(&pkt); err != nil {
				return err
			}
		}
		p := pkt
		pending = &p
	}

	if pending != nil {
		if err := emitPending(nil); err != nil {
			return err
		}
	}

	d.logger.WithField("samples", samples).Debug("Demux finished")
	return nil
}

// H264Config builds a decoder configuration from joy4 codec data. The codec
// string follows the avc1.PPCCLL form.
func H264Config(cd h264parser.CodecData) media.CodecConfig {
	rec := cd.RecordInfo
	return media.CodecConfig{
		Codec: fmt.Sprintf("avc1.%02x%02x%02x",
			rec.AVCProfileIndication, rec.ProfileCompatibility, rec.AVCLevelIndication),
		Width:       cd.Width(),
		Height:      cd.Height(),
		Description: cd.AVCDecoderConfRecordBytes(),
	}
}
