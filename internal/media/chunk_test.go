package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodecConfigFamily(t *testing.T) {
	tests := []struct {
		codec string
		want  string
	}{
		{"avc1.64001f", FamilyH264},
		{"avc3.42E01E", FamilyH264},
		{"h264", FamilyH264},
		{"vp8", FamilyVP8},
		{"vp09.00.10.08", FamilyVP9},
		{"VP9", FamilyVP9},
		{"av01.0.04M.08", FamilyUnknown},
		{"", FamilyUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.codec, func(t *testing.T) {
			cfg := CodecConfig{Codec: tt.codec}
			assert.Equal(t, tt.want, cfg.Family())
		})
	}
}

func TestChunkConstructors(t *testing.T) {
	cfg := NewConfigChunk(CodecConfig{Codec: "vp8", Width: 192, Height: 144})
	assert.Equal(t, ChunkConfig, cfg.Kind)
	assert.Equal(t, "config", cfg.Kind.String())
	assert.Equal(t, 192, cfg.Config.Width)
	assert.Zero(t, cfg.Size())

	data := NewDataChunk([]byte{1, 2, 3}, time.Second, 33*time.Millisecond, true)
	assert.Equal(t, ChunkData, data.Kind)
	assert.Equal(t, "data", data.Kind.String())
	assert.Nil(t, data.Config)
	assert.Equal(t, 3, data.Size())
	assert.True(t, data.Keyframe)
	assert.Equal(t, time.Second, data.Timestamp)

	assert.Equal(t, "unknown", ChunkKind(9).String())
}
