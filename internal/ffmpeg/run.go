package ffmpeg

import "io"

// run is one process together with the goroutine draining its stdout.
type run struct {
	proc *process
	done chan struct{}
}

// abandon kills the process and discards remaining output so it can be
// reaped. Called by readers whose consumer has gone away.
func (r *run) abandon() {
	r.proc.kill()
	_, _ = io.Copy(io.Discard, r.proc.stdout)
	_ = r.proc.wait()
}
