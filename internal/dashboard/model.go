// Package dashboard renders the live link view of `fdclink watch`.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zsiec/fdclink/internal/link"
	"github.com/zsiec/fdclink/internal/telemetry"
)

const (
	historyLen = 40
	recentLen  = 8
)

// StatsFunc returns the current link counters.
type StatsFunc func() link.Stats

type tickMsg time.Time
type frameMsg telemetry.Frame
type feedClosedMsg struct{}

type recentFrame struct {
	at      time.Time
	schema  string
	uptime  time.Duration
	valid   bool
	skipped int
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	feed     <-chan telemetry.Frame
	stats    StatsFunc
	cancel   context.CancelFunc
	interval time.Duration

	snapshot   link.Stats
	lastFrames uint64
	lastTick   time.Time
	rates      []float64

	compact  *telemetry.CompactRecord
	extended *telemetry.ExtendedRecord
	recent   []recentFrame

	width    int
	height   int
	quitting bool
	feedDone bool
}

// NewModel builds a model reading frames from feed. cancel, when set, is
// called when the user quits so the link driver stops too.
func NewModel(feed <-chan telemetry.Frame, stats StatsFunc, cancel context.CancelFunc) *Model {
	return &Model{
		feed:     feed,
		stats:    stats,
		cancel:   cancel,
		interval: 500 * time.Millisecond,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tickEvery(m.interval),
		waitForFrame(m.feed),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case frameMsg:
		m.addFrame(telemetry.Frame(msg))
		return m, waitForFrame(m.feed)

	case feedClosedMsg:
		m.feedDone = true
		return m, nil

	case tickMsg:
		m.refresh(time.Time(msg))
		return m, tickEvery(m.interval)
	}

	return m, nil
}

func (m *Model) addFrame(f telemetry.Frame) {
	switch rec := f.Record.(type) {
	case telemetry.CompactRecord:
		m.compact = &rec
	case telemetry.ExtendedRecord:
		m.extended = &rec
	}

	rf := recentFrame{
		at:      time.Now(),
		schema:  f.Schema.Name,
		uptime:  f.Record.Uptime(),
		valid:   f.Valid,
		skipped: f.Skipped,
	}
	m.recent = append([]recentFrame{rf}, m.recent...)
	if len(m.recent) > recentLen {
		m.recent = m.recent[:recentLen]
	}
}

// refresh pulls the link counters and derives the frame rate since the
// previous tick.
func (m *Model) refresh(now time.Time) {
	if m.stats == nil {
		return
	}
	s := m.stats()
	if !m.lastTick.IsZero() {
		if dt := now.Sub(m.lastTick).Seconds(); dt > 0 && s.Frames >= m.lastFrames {
			m.rates = append(m.rates, float64(s.Frames-m.lastFrames)/dt)
			if len(m.rates) > historyLen {
				m.rates = m.rates[len(m.rates)-historyLen:]
			}
		}
	}
	m.lastFrames = s.Frames
	m.lastTick = now
	m.snapshot = s
}

func (m *Model) View() string {
	if m.quitting {
		return "Closing dashboard...\n"
	}

	header := HeaderStyle.Render("fdclink  " + m.snapshot.Source + "  " + m.linkStatus())

	linkPanel := m.renderLinkPanel()
	daqPanel := m.renderCompactPanel()
	navPanel := m.renderExtendedPanel()
	recentPanel := m.renderRecentPanel()

	var body string
	if m.width >= 100 {
		body = lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.JoinHorizontal(lipgloss.Top, linkPanel, " ", daqPanel),
			lipgloss.JoinHorizontal(lipgloss.Top, navPanel, " ", recentPanel),
		)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left, linkPanel, daqPanel, navPanel, recentPanel)
	}

	footer := MutedStyle.Render("q to quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer) + "\n"
}

func (m *Model) linkStatus() string {
	switch {
	case m.snapshot.Connected:
		return SuccessStyle.Render("LINK UP")
	case m.feedDone:
		return MutedStyle.Render("ENDED")
	default:
		return ErrorStyle.Render("LINK DOWN")
	}
}

func (m *Model) renderLinkPanel() string {
	s := m.snapshot
	rate := 0.0
	if len(m.rates) > 0 {
		rate = m.rates[len(m.rates)-1]
	}

	lines := []string{
		PanelTitleStyle.Render("Link"),
		row("Frames", formatNumber(s.Frames)),
		row("Valid", validStyle(s.ValidRatio()).Render(fmt.Sprintf("%.2f%%", s.ValidRatio()*100))),
		row("Rate", fmt.Sprintf("%.1f/s", rate)),
		"  " + renderSparkline(m.rates, 24),
		row("Read", formatBytes(s.BytesRead)),
		row("Discarded", formatBytes(s.BytesDiscarded)),
		row("Exhausted", fmt.Sprintf("%d", s.Exhaustions)),
		row("Reopens", fmt.Sprintf("%d", s.Reopens)),
	}
	for _, name := range sortedSchemas(s.Schemas) {
		ss := s.Schemas[name]
		lines = append(lines, row(name, fmt.Sprintf("%d (%d bad)", ss.Frames, ss.Invalid)))
	}
	if s.LastError != "" {
		lines = append(lines, WarningStyle.Render(truncate(s.LastError, 48)))
	}
	return PanelStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderCompactPanel() string {
	lines := []string{PanelTitleStyle.Render("DAQ channels")}
	if m.compact == nil {
		lines = append(lines, MutedStyle.Render("waiting for daq frames"))
		return PanelStyle.Render(strings.Join(lines, "\n"))
	}

	rec := m.compact
	for r := 0; r < 4; r++ {
		var b strings.Builder
		for c := 0; c < 4; c++ {
			i := r*4 + c
			fmt.Fprintf(&b, "%2d %10.3f  ", i, rec.Channels[i])
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}
	lines = append(lines, row("Uptime", rec.Uptime().String()))
	return PanelStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderExtendedPanel() string {
	lines := []string{PanelTitleStyle.Render("Navigation")}
	if m.extended == nil {
		lines = append(lines, MutedStyle.Render("waiting for nav frames"))
		return PanelStyle.Render(strings.Join(lines, "\n"))
	}

	rec := m.extended
	lines = append(lines,
		row("Position", fmt.Sprintf("%.6f, %.6f  %.1f m", rec.Latitude, rec.Longitude, rec.Altitude)),
		row("Velocity", fmt.Sprintf("N %.2f  E %.2f  D %.2f", rec.VelNorth, rec.VelEast, rec.VelDown)),
		row("Attitude", fmt.Sprintf("%.2f  %.2f  %.2f", rec.Attitude[0], rec.Attitude[1], rec.Attitude[2])),
		row("Accel", fmt.Sprintf("%.3f  %.3f  %.3f", rec.Accel[0], rec.Accel[1], rec.Accel[2])),
		row("Gyro", fmt.Sprintf("%.4f  %.4f  %.4f", rec.Gyro[0], rec.Gyro[1], rec.Gyro[2])),
		row("Air", fmt.Sprintf("ps %.1f  qc %.2f  %.1f C", rec.StaticPressure, rec.DynamicPressure, rec.AirTemperature)),
		row("AoA/AoS", fmt.Sprintf("%.2f  %.2f", rec.AngleOfAttack, rec.Sideslip)),
		row("Uptime", rec.Uptime().String()),
	)
	return PanelStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderRecentPanel() string {
	lines := []string{PanelTitleStyle.Render("Recent frames")}
	if len(m.recent) == 0 {
		lines = append(lines, MutedStyle.Render("none yet"))
	}
	for _, f := range m.recent {
		mark := SuccessStyle.Render("ok ")
		if !f.valid {
			mark = ErrorStyle.Render("BAD")
		}
		line := fmt.Sprintf("%s %s %-4s %14s", f.at.Format("15:04:05.000"), mark, f.schema, f.uptime)
		if f.skipped > 0 {
			line += MutedStyle.Render(fmt.Sprintf(" +%d noise", f.skipped))
		}
		lines = append(lines, line)
	}
	return PanelStyle.Render(strings.Join(lines, "\n"))
}

func row(label, value string) string {
	return LabelStyle.Render(fmt.Sprintf("%-10s", label)) + " " + ValueStyle.Render(value)
}

func validStyle(ratio float64) lipgloss.Style {
	switch {
	case ratio >= 0.99:
		return SuccessStyle
	case ratio >= 0.9:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForFrame(ch <-chan telemetry.Frame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return frameMsg(f)
	}
}

// Run shows the dashboard until the user quits or ctx is done.
func Run(ctx context.Context, m *Model, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(m, opts...).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
