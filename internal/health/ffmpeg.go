package health

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Codecs the transcoder depends on: an H.264 decoder plus VP8 and VP9
// encoders.
var (
	RequiredDecoders = []string{"h264"}
	RequiredEncoders = []string{"libvpx", "libvpx-vp9"}
)

// FFmpegChecker verifies the ffmpeg binary runs and provides the codecs
// the pipeline uses.
type FFmpegChecker struct {
	binaryPath string
	timeout    time.Duration
}

// NewFFmpegChecker creates a checker. An empty binaryPath looks ffmpeg up
// in PATH.
func NewFFmpegChecker(binaryPath string) *FFmpegChecker {
	if binaryPath == "" {
		if path, err := exec.LookPath("ffmpeg"); err == nil {
			binaryPath = path
		}
	}
	return &FFmpegChecker{
		binaryPath: binaryPath,
		timeout:    DefaultCheckTimeout,
	}
}

func (f *FFmpegChecker) Name() string {
	return "ffmpeg"
}

func (f *FFmpegChecker) Check(ctx context.Context) error {
	if f.binaryPath == "" {
		return fmt.Errorf("ffmpeg binary not found in PATH")
	}

	out, err := f.run(ctx, "-version")
	if err != nil {
		return fmt.Errorf("ffmpeg version check failed: %w", err)
	}
	if !bytes.Contains(out, []byte("ffmpeg version")) {
		return fmt.Errorf("unexpected ffmpeg version output")
	}

	decoders, err := f.codecList(ctx, "-decoders")
	if err != nil {
		return err
	}
	encoders, err := f.codecList(ctx, "-encoders")
	if err != nil {
		return err
	}

	var missing []string
	for _, name := range RequiredDecoders {
		if !decoders[name] {
			missing = append(missing, "decoder "+name)
		}
	}
	for _, name := range RequiredEncoders {
		if !encoders[name] {
			missing = append(missing, "encoder "+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing codecs: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Version returns the first line of `ffmpeg -version`.
func (f *FFmpegChecker) Version(ctx context.Context) (string, error) {
	out, err := f.run(ctx, "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

func (f *FFmpegChecker) run(ctx context.Context, args ...string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return exec.CommandContext(cmdCtx, f.binaryPath, append([]string{"-hide_banner"}, args...)...).Output()
}

func (f *FFmpegChecker) codecList(ctx context.Context, flag string) (map[string]bool, error) {
	out, err := f.run(ctx, flag)
	if err != nil {
		return nil, fmt.Errorf("failed to list codecs with %s: %w", flag, err)
	}
	return parseCodecList(out), nil
}

// parseCodecList reads `ffmpeg -decoders` / `-encoders` output, whose
// entries look like " V....D h264    H.264 / AVC". Lines before the
// " ------" separator are the legend.
func parseCodecList(out []byte) map[string]bool {
	codecs := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	inList := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !inList {
			inList = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			codecs[fields[1]] = true
		}
	}
	return codecs
}
