// Package tui provides a Bubble Tea live monitor for a running motionwatch
// daemon.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/motionwatch/internal/control"
	"github.com/fakeyudi/motionwatch/internal/events"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	kindControlStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	kindStartedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	kindCapturedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)

	stateStyles = map[string]lipgloss.Style{
		"watching":         lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		"recording_motion": lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		"recording_idle":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// maxEvents bounds the in-memory event log.
const maxEvents = 500

const pollInterval = time.Second

// Controller is the part of the control client the monitor drives.
type Controller interface {
	Start(ctx context.Context) (control.CommandResponse, error)
	Stop(ctx context.Context) (control.CommandResponse, error)
	Status(ctx context.Context) (control.StatusResponse, error)
}

// ── Messages ────────────

type eventMsg events.Event

type streamClosedMsg struct{}

type statusMsg control.StatusResponse

type errMsg struct{ err error }

type tickMsg time.Time

// ── Model ────────────────────

// Model is the root Bubble Tea model for the monitor.
type Model struct {
	ctl    Controller
	stream <-chan events.Event
	addr   string

	status    control.StatusResponse
	haveState bool
	events    []events.Event
	onlyClips bool
	closed    bool
	lastErr   error

	viewport viewport.Model
	width    int
	height   int
	ready    bool
}

// New creates a monitor fed by stream and polling ctl for status.
func New(ctl Controller, stream <-chan events.Event, addr string) Model {
	return Model{ctl: ctl, stream: stream, addr: addr}
}

// ── Commands ────────────

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func fetchStatus(ctl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st, err := ctl.Status(ctx)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg(st)
	}
}

func sendCommand(fn func(context.Context) (control.CommandResponse, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := fn(ctx); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.stream), fetchStatus(m.ctl), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			return m, sendCommand(m.ctl.Start)
		case "x":
			return m, sendCommand(m.ctl.Stop)
		case "f":
			m.onlyClips = !m.onlyClips
			m.refresh()
			return m, nil
		case "c":
			m.events = nil
			m.refresh()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// title(1) + status panel(1) + status bar(1)
		h := m.height - 3
		if h < 1 {
			h = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, h)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = h
		}
		m.refresh()
		return m, nil

	case eventMsg:
		m.events = append(m.events, events.Event(msg))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		m.refresh()
		cmds := []tea.Cmd{waitForEvent(m.stream)}
		// Lifecycle changes are reflected in the status panel right away.
		cmds = append(cmds, fetchStatus(m.ctl))
		return m, tea.Batch(cmds...)

	case streamClosedMsg:
		m.closed = true
		return m, nil

	case statusMsg:
		m.status = control.StatusResponse(msg)
		m.haveState = true
		m.lastErr = nil
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		return m, nil

	case tickMsg:
		if m.closed {
			return m, nil
		}
		return m, tea.Batch(fetchStatus(m.ctl), tick())
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Connecting…"
	}

	title := titleStyle.Width(m.width).Render("  motionwatch  " + m.addr)
	panel := panelStyle.Width(m.width).Render(m.statusLine())

	hint := "  s start  x stop  f clips only  c clear  ↑/↓ scroll  q quit"
	right := fmt.Sprintf("%d events", len(m.events))
	switch {
	case m.lastErr != nil:
		right = errStyle.Render(m.lastErr.Error())
	case m.closed:
		right = errStyle.Render("stream closed")
	}
	pad := m.width - lipgloss.Width(hint) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	bar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + right)

	return lipgloss.JoinVertical(lipgloss.Left, title, panel, m.viewport.View(), bar)
}

func (m *Model) statusLine() string {
	if !m.haveState {
		return dimStyle.Render("waiting for status")
	}
	st := m.status
	camera := "stopped"
	if st.CameraRunning {
		camera = "running"
	}
	state := st.State
	if style, ok := stateStyles[state]; ok {
		state = style.Render(state)
	}
	parts := []string{
		labelStyle.Render("camera ") + camera,
		labelStyle.Render("state ") + state,
		labelStyle.Render("frames ") + fmt.Sprint(st.Frames),
		labelStyle.Render("clips ") + fmt.Sprint(st.Clips),
	}
	if st.Buffered > 0 {
		parts = append(parts, labelStyle.Render("buffered ")+fmt.Sprint(st.Buffered))
	}
	if errs := st.CaptureErrors + st.CompareErrors + st.WriteErrors; errs > 0 {
		parts = append(parts, errStyle.Render(fmt.Sprintf("errors %d", errs)))
	}
	return strings.Join(parts, "   ")
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderEvents())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderEvents() string {
	var sb strings.Builder
	n := 0
	for _, ev := range m.events {
		if m.onlyClips && ev.Kind != events.MotionCaptured {
			continue
		}
		n++
		sb.WriteString(FormatEvent(ev, true))
		sb.WriteString("\n")
	}
	if n == 0 {
		return dimStyle.Render("  (no events yet)") + "\n"
	}
	return sb.String()
}

// FormatEvent renders one event as a single line. styled adds colour.
func FormatEvent(ev events.Event, styled bool) string {
	ts := ev.Time.Local().Format("15:04:05")
	kind := fmt.Sprintf("%-16s", ev.Kind.String())
	var detail string
	switch ev.Kind {
	case events.MotionStarted:
		detail = "session " + ev.SessionID
	case events.MotionCaptured:
		detail = fmt.Sprintf("%s (%d frames, session %s)", ev.Path, ev.Frames, ev.SessionID)
	}
	if !styled {
		return strings.TrimRight(fmt.Sprintf("%s  %s  %s", ts, kind, detail), " ")
	}
	var badge string
	switch ev.Kind {
	case events.MotionStarted:
		badge = kindStartedStyle.Render(kind)
	case events.MotionCaptured:
		badge = kindCapturedStyle.Render(kind)
	default:
		badge = kindControlStyle.Render(kind)
	}
	return "  " + timeStyle.Render(ts) + "  " + badge + "  " + detail
}

// Run starts the monitor.
func Run(ctl Controller, stream <-chan events.Event, addr string) error {
	p := tea.NewProgram(New(ctl, stream, addr), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
