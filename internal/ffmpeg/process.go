package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/metrics"
)

// stderrTail keeps the last max bytes written to it.
type stderrTail struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// process is one running ffmpeg child with piped stdin and stdout.
type process struct {
	role   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *stderrTail
	logger logger.Logger

	waitOnce sync.Once
	waitErr  error
	killed   bool
	mu       sync.Mutex
}

func startProcess(ctx context.Context, binary, role string, args []string, log logger.Logger) (*process, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg %s stdin: %w", role, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg %s stdout: %w", role, err)
	}

	tail := &stderrTail{max: 8 << 10}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg %s: %w", role, err)
	}
	metrics.CodecProcessStarted(role)

	log.WithFields(map[string]interface{}{
		"role": role,
		"pid":  cmd.Process.Pid,
	}).Debugf("Started %s %v", binary, args)

	return &process{
		role:   role,
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: tail,
		logger: log,
	}, nil
}

// closeInput signals end of input to ffmpeg.
func (p *process) closeInput() error {
	return p.stdin.Close()
}

// kill terminates the process and closes its input. Wait still has to be
// called.
func (p *process) kill() {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// wait reaps the process once stdout has been drained. A killed process
// reports no error.
func (p *process) wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		metrics.CodecProcessExited(p.role)

		p.mu.Lock()
		killed := p.killed
		p.mu.Unlock()

		if err == nil || killed {
			return
		}
		stderr := p.stderr.String()
		p.waitErr = &ExitError{
			Role:   p.role,
			Reason: Classify(stderr),
			Stderr: stderr,
			Err:    err,
		}
		p.logger.WithFields(map[string]interface{}{
			"role":   p.role,
			"reason": p.waitErr.(*ExitError).Reason,
		}).WithError(err).Warn("ffmpeg process failed")
	})
	return p.waitErr
}
