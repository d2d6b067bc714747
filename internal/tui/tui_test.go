package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/motionwatch/internal/control"
	"github.com/fakeyudi/motionwatch/internal/events"
	"github.com/fakeyudi/motionwatch/internal/runner"
)

type fakeController struct {
	starts, stops int
	status        control.StatusResponse
	err           error
}

func (f *fakeController) Start(context.Context) (control.CommandResponse, error) {
	f.starts++
	return control.CommandResponse{Command: events.StartCamera}, f.err
}

func (f *fakeController) Stop(context.Context) (control.CommandResponse, error) {
	f.stops++
	return control.CommandResponse{Command: events.StopCamera}, f.err
}

func (f *fakeController) Status(context.Context) (control.StatusResponse, error) {
	return f.status, f.err
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return next.(Model)
}

func TestEventsAppearInView(t *testing.T) {
	ctl := &fakeController{}
	ch := make(chan events.Event)
	m := sized(t, New(ctl, ch, "127.0.0.1:7878"))

	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	next, cmd := m.Update(eventMsg(events.Captured("output/a.avi", "s1", 48, at)))
	m = next.(Model)
	require.NotNil(t, cmd, "the monitor keeps listening after an event")

	view := m.View()
	assert.Contains(t, view, "motion_captured")
	assert.Contains(t, view, "output/a.avi (48 frames, session s1)")
	assert.Contains(t, view, "1 events")
}

func TestStatusPanel(t *testing.T) {
	m := sized(t, New(&fakeController{}, nil, "addr"))
	assert.Contains(t, m.View(), "waiting for status")

	next, _ := m.Update(statusMsg(control.StatusResponse{Status: runner.Status{
		CameraRunning: true,
		State:         "recording_motion",
		Frames:        120,
		Clips:         2,
		Buffered:      14,
	}}))
	view := next.(Model).View()
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "recording_motion")
	assert.Contains(t, view, "120")
	assert.Contains(t, view, "buffered")
}

func TestKeysDriveController(t *testing.T) {
	ctl := &fakeController{}
	m := sized(t, New(ctl, nil, "addr"))

	_, cmd := m.Update(key("s"))
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())
	assert.Equal(t, 1, ctl.starts)

	_, cmd = m.Update(key("x"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, ctl.stops)

	ctl.err = errors.New("daemon is not reachable")
	_, cmd = m.Update(key("s"))
	msg := cmd()
	next, _ := m.Update(msg)
	assert.Contains(t, next.(Model).View(), "daemon is not reachable")
}

func TestClipFilterAndClear(t *testing.T) {
	m := sized(t, New(&fakeController{}, nil, "addr"))
	for _, ev := range []events.Event{
		events.Control(events.StopCamera, time.Now()),
		{Kind: events.MotionStarted, SessionID: "s9", Time: time.Now()},
		events.Captured("b.avi", "s9", 3, time.Now()),
	} {
		next, _ := m.Update(eventMsg(ev))
		m = next.(Model)
	}

	next, _ := m.Update(key("f"))
	m = next.(Model)
	view := m.View()
	assert.Contains(t, view, "b.avi")
	assert.NotContains(t, view, "stop_camera")

	next, _ = m.Update(key("c"))
	assert.Contains(t, next.(Model).View(), "(no events yet)")
}

func TestStreamClosed(t *testing.T) {
	ch := make(chan events.Event)
	close(ch)
	msg := waitForEvent(ch)()
	assert.IsType(t, streamClosedMsg{}, msg)

	m := sized(t, New(&fakeController{}, ch, "addr"))
	next, _ := m.Update(msg)
	m = next.(Model)
	assert.Contains(t, m.View(), "stream closed")

	_, cmd := m.Update(tickMsg(time.Now()))
	assert.Nil(t, cmd, "polling stops once the stream is gone")
}

func TestEventLogIsBounded(t *testing.T) {
	m := sized(t, New(&fakeController{}, nil, "addr"))
	for i := 0; i < maxEvents+25; i++ {
		next, _ := m.Update(eventMsg(events.Control(events.StartCamera, time.Now())))
		m = next.(Model)
	}
	assert.Len(t, m.events, maxEvents)
}

func TestFormatEventPlain(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.Local)
	line := FormatEvent(events.Captured("a.avi", "s1", 5, at), false)
	assert.Equal(t, "08:00:00  motion_captured   a.avi (5 frames, session s1)", line)

	line = FormatEvent(events.Control(events.StopCamera, at), false)
	assert.Equal(t, "08:00:00  stop_camera", line)
	assert.False(t, strings.HasSuffix(line, " "))
}
