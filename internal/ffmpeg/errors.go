package ffmpeg

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Failure reasons derived from ffmpeg stderr.
const (
	ReasonInvalidData    = "invalid_data"
	ReasonUnknownEncoder = "unknown_encoder"
	ReasonUnknownDecoder = "unknown_decoder"
	ReasonBrokenPipe     = "broken_pipe"
	ReasonTimestamps     = "timestamps"
	ReasonUnknown        = "unknown"
)

// Pre-compiled stderr patterns, checked in order by Classify.
var (
	reUnknownEncoder = regexp.MustCompile(
		`(?i)Unknown encoder|Encoder .* not found|Error while opening encoder`)

	reUnknownDecoder = regexp.MustCompile(
		`(?i)Decoder .* not found|Unknown decoder|Could not find codec parameters`)

	reInvalidData = regexp.MustCompile(
		`(?i)Invalid data found when processing input|` +
			`no frame!|non-existing PPS|decode_slice_header error|` +
			`Invalid NAL unit size|Error splitting the input into NAL units|` +
			`Corrupt frame|Truncated packet`)

	reBrokenPipe = regexp.MustCompile(`(?i)Broken pipe|End of file|Conversion failed!`)

	reTimestamps = regexp.MustCompile(
		`(?i)Non-monotonous DTS|non monotonically increasing dts|` +
			`pts has no value|Timestamps are unset`)
)

// Classify maps captured stderr to a failure reason.
func Classify(stderr string) string {
	switch {
	case reUnknownEncoder.MatchString(stderr):
		return ReasonUnknownEncoder
	case reUnknownDecoder.MatchString(stderr):
		return ReasonUnknownDecoder
	case reInvalidData.MatchString(stderr):
		return ReasonInvalidData
	case reTimestamps.MatchString(stderr):
		return ReasonTimestamps
	case reBrokenPipe.MatchString(stderr):
		return ReasonBrokenPipe
	default:
		return ReasonUnknown
	}
}

// ExitError is returned when an ffmpeg process fails.
type ExitError struct {
	Role   string
	Reason string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("ffmpeg %s failed (%s): %v", e.Role, e.Reason, e.Err)
	if line := lastLine(e.Stderr); line != "" {
		msg += ": " + line
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// FailureReason is the stderr classification, used as the job error code.
func (e *ExitError) FailureReason() string { return e.Reason }

// IsReason reports whether err is an ExitError with the given reason.
func IsReason(err error, reason string) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reason == reason
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
