package media

import (
	"strings"
	"time"
)

// ChunkKind tags the two chunk variants.
type ChunkKind int

const (
	ChunkData ChunkKind = iota
	ChunkConfig
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkData:
		return "data"
	case ChunkConfig:
		return "config"
	default:
		return "unknown"
	}
}

// CodecConfig describes a compressed stream well enough to configure a
// decoder for it.
type CodecConfig struct {
	// Codec is a codec string such as "avc1.64001f", "vp8" or "vp09.00.10.08".
	Codec  string
	Width  int
	Height int
	// Description is codec-specific setup data, for H.264 the
	// AVCDecoderConfigurationRecord. Empty for VP8 and VP9.
	Description []byte
	Framerate   float64
}

// Codec families returned by Family.
const (
	FamilyH264    = "h264"
	FamilyVP8     = "vp8"
	FamilyVP9     = "vp9"
	FamilyUnknown = ""
)

// Family maps the codec string to its codec family.
func (c *CodecConfig) Family() string {
	codec := strings.ToLower(c.Codec)
	switch {
	case strings.HasPrefix(codec, "avc1"), strings.HasPrefix(codec, "avc3"), codec == "h264":
		return FamilyH264
	case codec == "vp8":
		return FamilyVP8
	case strings.HasPrefix(codec, "vp09"), codec == "vp9":
		return FamilyVP9
	default:
		return FamilyUnknown
	}
}

// Chunk is one unit of compressed video: either a configuration record or
// a data packet. A Config chunk precedes the Data chunks that depend on it.
type Chunk struct {
	Kind ChunkKind

	// Config is set for ChunkConfig.
	Config *CodecConfig

	// Data fields
	Payload   []byte
	Timestamp time.Duration
	Duration  time.Duration
	Keyframe  bool
}

// NewConfigChunk wraps cfg in a Config chunk.
func NewConfigChunk(cfg CodecConfig) Chunk {
	return Chunk{Kind: ChunkConfig, Config: &cfg}
}

// NewDataChunk builds a Data chunk.
func NewDataChunk(payload []byte, ts, dur time.Duration, keyframe bool) Chunk {
	return Chunk{
		Kind:      ChunkData,
		Payload:   payload,
		Timestamp: ts,
		Duration:  dur,
		Keyframe:  keyframe,
	}
}

// Size is the payload length; zero for Config chunks.
func (c Chunk) Size() int { return len(c.Payload) }

// Segment is one write event from a container writer.
type Segment struct {
	Data []byte
	// Offset is the byte position of Data within the container stream.
	Offset int64
}
