// Package dashboard is a terminal view of a single transcode: live
// counters, an ASCII rendition of the latest preview frame and the
// uploaded segments.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/disintegration/imaging"

	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/pipeline"
	"github.com/zsiec/reel/internal/render"
)

// Dashboard states.
const (
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

const (
	previewCols = 48
	previewRows = 14
	maxUploads  = 6
)

// ramp maps luminance to characters, dark to bright.
const ramp = " .:-=+*#%@"

// Dashboard collects pipeline progress and preview frames for the
// terminal view. It is both a pipeline.Progress and a render.Sink.
type Dashboard struct {
	pipeline.Counters

	input   string
	started time.Time

	mu        sync.RWMutex
	state     string
	err       error
	finished  time.Time
	preview   []string
	previewTS time.Duration
	uploads   []string
}

var (
	_ pipeline.Progress = (*Dashboard)(nil)
	_ render.Sink       = (*Dashboard)(nil)
)

// New creates a dashboard for input.
func New(input string) *Dashboard {
	return &Dashboard{
		input:   input,
		started: time.Now(),
		state:   StateRunning,
	}
}

func (d *Dashboard) SegmentUploaded(name string, size int) {
	d.Counters.SegmentUploaded(name, size)
	d.mu.Lock()
	d.uploads = append(d.uploads, fmt.Sprintf("%s (%s)", name, formatBytes(int64(size))))
	d.mu.Unlock()
}

// Present renders frame as ASCII art. The frame is not retained.
func (d *Dashboard) Present(frame *media.Frame) error {
	small := imaging.Resize(frame.Image(), previewCols, previewRows, imaging.Box)
	lines := make([]string, previewRows)
	var b strings.Builder
	for y := 0; y < previewRows; y++ {
		b.Reset()
		for x := 0; x < previewCols; x++ {
			i := small.PixOffset(x, y)
			r, g, bl := int(small.Pix[i]), int(small.Pix[i+1]), int(small.Pix[i+2])
			lum := (299*r + 587*g + 114*bl) / 1000
			b.WriteByte(ramp[lum*(len(ramp)-1)/255])
		}
		lines[y] = b.String()
	}

	d.mu.Lock()
	d.preview = lines
	d.previewTS = frame.Timestamp
	d.mu.Unlock()
	return nil
}

// Finish records the outcome of the run.
func (d *Dashboard) Finish(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished = time.Now()
	d.err = err
	if err != nil {
		d.state = StateFailed
	} else {
		d.state = StateDone
	}
}

// Snapshot is a consistent copy of the dashboard's state.
type Snapshot struct {
	Input     string
	State     string
	Err       error
	Elapsed   time.Duration
	Stats     pipeline.Stats
	Preview   []string
	PreviewTS time.Duration
	Uploads   []string
}

func (d *Dashboard) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	end := time.Now()
	if !d.finished.IsZero() {
		end = d.finished
	}
	return Snapshot{
		Input:     d.input,
		State:     d.state,
		Err:       d.err,
		Elapsed:   end.Sub(d.started),
		Stats:     d.Counters.Snapshot(),
		Preview:   append([]string(nil), d.preview...),
		PreviewTS: d.previewTS,
		Uploads:   append([]string(nil), d.uploads...),
	}
}

// Run shows the dashboard on out until the run finishes and the user
// quits, or ctx ends. onQuit is called if the user quits early.
func (d *Dashboard) Run(ctx context.Context, out io.Writer, onQuit func()) error {
	p := tea.NewProgram(NewModel(d, onQuit),
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func formatBytes(bytes int64) string {
	switch {
	case bytes >= 1024*1024*1024:
		return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%d B", bytes)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}
