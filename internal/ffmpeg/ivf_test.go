package ffmpeg

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIVFStream(t *testing.T) {
	var buf bytes.Buffer
	hdr := ivfHeader{FourCC: "VP90", Width: 256, Height: 144, RateNum: 1000, RateScale: 1}
	require.NoError(t, writeIVFHeader(&buf, hdr))
	require.NoError(t, writeIVFFrame(&buf, 0, []byte{0x82, 0x49, 0x83}))
	require.NoError(t, writeIVFFrame(&buf, 40, []byte{0x86}))
	assert.Equal(t, ivfHeaderSize+2*ivfFrameHeaderSize+4, buf.Len())

	got, err := readIVFHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, hdr, got)

	pts, data, err := readIVFFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pts)
	assert.Equal(t, []byte{0x82, 0x49, 0x83}, data)

	pts, data, err = readIVFFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(40), pts)
	assert.Equal(t, []byte{0x86}, data)

	_, _, err = readIVFFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestIVFBadInput(t *testing.T) {
	t.Run("bad signature", func(t *testing.T) {
		_, err := readIVFHeader(bytes.NewReader(make([]byte, ivfHeaderSize)))
		assert.ErrorIs(t, err, errBadIVF)
	})

	t.Run("truncated frame", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeIVFFrame(&buf, 0, []byte{1, 2, 3, 4}))
		_, _, err := readIVFFrame(bytes.NewReader(buf.Bytes()[:buf.Len()-2]))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("oversized frame", func(t *testing.T) {
		hdr := make([]byte, ivfFrameHeaderSize)
		binary.LittleEndian.PutUint32(hdr, maxIVFFrame+1)
		_, _, err := readIVFFrame(bytes.NewReader(hdr))
		assert.Error(t, err)
	})
}

func TestIsKeyframe(t *testing.T) {
	tests := []struct {
		name   string
		family string
		frame  []byte
		want   bool
	}{
		{"vp8 key", "vp8", []byte{0x10, 0x02, 0x00}, true},
		{"vp8 inter", "vp8", []byte{0x11, 0x02, 0x00}, false},
		// frame_marker=2 profile=0 show_existing=0 frame_type=0
		{"vp9 key", "vp9", []byte{0x82, 0x49, 0x83}, true},
		// frame_type=1
		{"vp9 inter", "vp9", []byte{0x86, 0x00}, false},
		// show_existing_frame=1
		{"vp9 show existing", "vp9", []byte{0x88}, false},
		{"vp9 bad marker", "vp9", []byte{0x02}, false},
		{"empty", "vp9", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isKeyframe(tt.family, tt.frame))
		})
	}
}
