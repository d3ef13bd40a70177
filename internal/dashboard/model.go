package dashboard

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 250 * time.Millisecond

type tickMsg time.Time

// Model is the bubbletea model over a Dashboard.
type Model struct {
	dash   *Dashboard
	onQuit func()

	snap     Snapshot
	width    int
	height   int
	tick     int
	quitting bool
}

// NewModel creates a model. onQuit may be nil.
func NewModel(d *Dashboard, onQuit func()) *Model {
	return &Model{dash: d, onQuit: onQuit, snap: d.Snapshot()}
}

func (m *Model) Init() tea.Cmd {
	return tickEvery(refreshInterval)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.onQuit != nil && m.snap.State == StateRunning {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case tickMsg:
		m.tick = (m.tick + 1) % 4
		m.snap = m.dash.Snapshot()
		return m, tickEvery(refreshInterval)
	}
	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return "Shutting down dashboard...\n"
	}

	width := m.width
	if width == 0 {
		width = 100
	}

	header := HeaderStyle.Width(width - 2).Render(
		fmt.Sprintf("reel  %s  %s", m.snap.Input, StateBadge(m.snap.State)))

	stats := m.statsPanel()
	preview := m.previewPanel()
	body := lipgloss.JoinHorizontal(lipgloss.Top, stats, " ", preview)

	sections := []string{header, body, m.uploadsPanel()}
	if m.snap.Err != nil {
		sections = append(sections, ErrorStyle.Render("error: "+m.snap.Err.Error()))
	}
	sections = append(sections, MutedStyle.Render("q: quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) statsPanel() string {
	s := m.snap.Stats
	fps := 0.0
	if secs := m.snap.Elapsed.Seconds(); secs > 0 {
		fps = float64(s.ChunksEncoded) / secs
	}

	rows := []string{
		PanelTitleStyle.Render("Pipeline" + m.activity()),
		row("Elapsed", formatDuration(m.snap.Elapsed)),
		row("Frames decoded", fmt.Sprintf("%d", s.FramesDecoded)),
		row("Chunks encoded", fmt.Sprintf("%d", s.ChunksEncoded)),
		row("Encode rate", fmt.Sprintf("%.1f fps", fps)),
		row("Previews shown", fmt.Sprintf("%d", s.PreviewsShown)),
		row("Previews dropped", dropped(s.PreviewsDropped, s.PreviewsShown+s.PreviewsDropped)),
		row("Segments", fmt.Sprintf("%d", s.SegmentsUploaded)),
		row("Uploaded", formatBytes(s.BytesUploaded)),
	}
	return PanelStyle.Width(40).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) previewPanel() string {
	lines := m.snap.Preview
	if len(lines) == 0 {
		lines = []string{MutedStyle.Render("waiting for first frame")}
	}
	title := PanelTitleStyle.Render(fmt.Sprintf("Preview @ %s", m.snap.PreviewTS.Round(time.Millisecond)))
	return PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, append([]string{title}, lines...)...))
}

func (m *Model) uploadsPanel() string {
	uploads := m.snap.Uploads
	rows := []string{PanelTitleStyle.Render(fmt.Sprintf("Uploads (%d)", len(uploads)))}
	if len(uploads) > maxUploads {
		rows = append(rows, MutedStyle.Render(fmt.Sprintf("… %d earlier", len(uploads)-maxUploads)))
		uploads = uploads[len(uploads)-maxUploads:]
	}
	for _, u := range uploads {
		rows = append(rows, SuccessStyle.Render("↑ ")+u)
	}
	return PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) activity() string {
	if m.snap.State != StateRunning {
		return ""
	}
	return " " + strings.Repeat(".", m.tick)
}

func row(label, value string) string {
	return MetricStyle.Render(label) + ValueStyle.Render(value)
}

func dropped(n, total int64) string {
	if total == 0 {
		return "0"
	}
	pct := float64(n) * 100 / float64(total)
	text := fmt.Sprintf("%d (%.1f%%)", n, pct)
	switch {
	case pct > 50:
		return WarningStyle.Render(text)
	default:
		return text
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
