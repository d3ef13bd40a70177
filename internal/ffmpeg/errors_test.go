package ffmpeg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		stderr string
		want   string
	}{
		{"[vist#0:0/h264] Unknown encoder 'libvpx-vp9'", ReasonUnknownEncoder},
		{"Error while opening encoder for output stream #0:0", ReasonUnknownEncoder},
		{"Decoder (codec av1) not found for input stream #0:0", ReasonUnknownDecoder},
		{"pipe:0: Invalid data found when processing input", ReasonInvalidData},
		{"[h264 @ 0x1] non-existing PPS 0 referenced", ReasonInvalidData},
		{"[webm @ 0x1] Non-monotonous DTS in output stream 0:0", ReasonTimestamps},
		{"av_interleaved_write_frame(): Broken pipe", ReasonBrokenPipe},
		{"something else entirely", ReasonUnknown},
		{"", ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.stderr, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.stderr))
		})
	}
}

func TestExitError(t *testing.T) {
	base := errors.New("exit status 1")
	err := &ExitError{
		Role:   "decoder",
		Reason: ReasonInvalidData,
		Stderr: "Input #0, h264\n  Stream #0:0: Video: h264\npipe:0: Invalid data found when processing input\n",
		Err:    base,
	}

	assert.Equal(t,
		"ffmpeg decoder failed (invalid_data): exit status 1: pipe:0: Invalid data found when processing input",
		err.Error())
	assert.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("decode: %w", err)
	assert.True(t, IsReason(wrapped, ReasonInvalidData))
	assert.False(t, IsReason(wrapped, ReasonBrokenPipe))
	assert.False(t, IsReason(base, ReasonInvalidData))
}
