package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/livepeer/joy4/codec/h264parser"
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

const naluTypeIDR = 5

// annexBConverter rewrites length-prefixed (AVCC) samples into an Annex-B
// byte stream, inserting SPS and PPS ahead of every IDR access unit.
type annexBConverter struct {
	lengthSize int
	paramSets  []byte
}

func newAnnexBConverter(description []byte) (*annexBConverter, error) {
	if len(description) == 0 {
		// Stream is already Annex-B with in-band parameter sets.
		return &annexBConverter{}, nil
	}

	cd, err := h264parser.NewCodecDataFromAVCDecoderConfRecord(description)
	if err != nil {
		return nil, fmt.Errorf("parse avcC: %w", err)
	}

	c := &annexBConverter{lengthSize: int(cd.RecordInfo.LengthSizeMinusOne&0x03) + 1}
	for _, sps := range cd.RecordInfo.SPS {
		c.paramSets = append(c.paramSets, startCode...)
		c.paramSets = append(c.paramSets, sps...)
	}
	for _, pps := range cd.RecordInfo.PPS {
		c.paramSets = append(c.paramSets, startCode...)
		c.paramSets = append(c.paramSets, pps...)
	}
	return c, nil
}

var errTruncatedNALU = errors.New("h264: truncated NAL unit")

// convert returns the Annex-B form of one sample.
func (c *annexBConverter) convert(sample []byte) ([]byte, error) {
	if c.lengthSize == 0 {
		return sample, nil
	}

	out := make([]byte, 0, len(sample)+len(c.paramSets)+16)
	insertedParams := false

	for rest := sample; len(rest) > 0; {
		if len(rest) < c.lengthSize {
			return nil, errTruncatedNALU
		}
		n := 0
		for i := 0; i < c.lengthSize; i++ {
			n = n<<8 | int(rest[i])
		}
		rest = rest[c.lengthSize:]
		if n > len(rest) {
			return nil, errTruncatedNALU
		}
		nalu := rest[:n]
		rest = rest[n:]
		if len(nalu) == 0 {
			continue
		}

		if nalu[0]&0x1f == naluTypeIDR && !insertedParams {
			out = append(out, c.paramSets...)
			insertedParams = true
		}
		out = append(out, startCode...)
		out = append(out, nalu...)
	}
	return out, nil
}
