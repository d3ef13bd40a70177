package ffmpeg

import (
	"testing"

	"github.com/livepeer/joy4/codec/h264parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSPS = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x02, 0x80, 0xf6, 0x40}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

func avcc(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		l := len(n)
		out = append(out, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
		out = append(out, n...)
	}
	return out
}

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, startCode...)
		out = append(out, n...)
	}
	return out
}

func TestAnnexBConverter(t *testing.T) {
	cd, err := h264parser.NewCodecDataFromSPSAndPPS(testSPS, testPPS)
	require.NoError(t, err)

	c, err := newAnnexBConverter(cd.AVCDecoderConfRecordBytes())
	require.NoError(t, err)
	assert.Equal(t, 4, c.lengthSize)

	idr := []byte{0x65, 0x88, 0x84}
	sei := []byte{0x06, 0x05}
	slice := []byte{0x41, 0x9a}

	t.Run("idr gets parameter sets", func(t *testing.T) {
		out, err := c.convert(avcc(sei, idr))
		require.NoError(t, err)
		assert.Equal(t, annexB(sei, testSPS, testPPS, idr), out)
	})

	t.Run("non-idr passes through", func(t *testing.T) {
		out, err := c.convert(avcc(slice))
		require.NoError(t, err)
		assert.Equal(t, annexB(slice), out)
	})

	t.Run("truncated", func(t *testing.T) {
		sample := avcc(slice)
		_, err := c.convert(sample[:len(sample)-1])
		assert.ErrorIs(t, err, errTruncatedNALU)

		_, err = c.convert([]byte{0x00, 0x00})
		assert.ErrorIs(t, err, errTruncatedNALU)
	})
}

func TestAnnexBConverterPassthrough(t *testing.T) {
	c, err := newAnnexBConverter(nil)
	require.NoError(t, err)

	in := annexB(testSPS, testPPS, []byte{0x65, 0x01})
	out, err := c.convert(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestAnnexBConverterBadRecord(t *testing.T) {
	_, err := newAnnexBConverter([]byte{0x01, 0x02})
	assert.Error(t, err)
}
