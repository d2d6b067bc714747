// Package motion implements the recording lifecycle: a three-state machine
// that turns a stream of changed/unchanged verdicts into clip boundaries.
//
//	Watching --changed--> RecordingMotion --unchanged--> RecordingIdle
//	   ^                      |   ^                           |
//	   |                      |   +---------changed-----------+
//	   +----idle gap over-----+-------------------------------+
//
// A Machine is driven by a single goroutine; it is not safe for concurrent
// use.
package motion

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/motionwatch/internal/events"
	"github.com/fakeyudi/motionwatch/internal/frame"
)

// State is the lifecycle phase.
type State int

const (
	// Watching: no session, frames are dropped until motion appears.
	Watching State = iota
	// RecordingMotion: a session is open and motion is present.
	RecordingMotion
	// RecordingIdle: a session is open but motion stopped; the clip stays open
	// until the idle gap runs out.
	RecordingIdle
)

func (s State) String() string {
	switch s {
	case Watching:
		return "watching"
	case RecordingMotion:
		return "recording_motion"
	case RecordingIdle:
		return "recording_idle"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Saver persists a finished clip and returns its artifact identifier.
type Saver interface {
	Save(frames []frame.Frame) (string, error)
}

// WriteError reports a clip that could not be saved. The episode is lost
// and the machine is back in Watching.
type WriteError struct {
	SessionID string
	Frames    int
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("save clip for session %s (%d frames dropped): %v", e.SessionID, e.Frames, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// session is the live recording. It exists only in the two recording
// states and always holds at least one frame. Moving between states moves
// the pointer; frames are never copied.
type session struct {
	id        string
	start     time.Time
	idleSince time.Time // zero while motion is present
	frames    []frame.Frame
}

// Option customises a Machine.
type Option func(*Machine)

// WithClock replaces time.Now for frames without a capture time and for Flush.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithSessionIDs replaces the random session ID generator.
func WithSessionIDs(next func() string) Option {
	return func(m *Machine) { m.newID = next }
}

// Machine is the lifecycle state machine.
type Machine struct {
	policy Policy
	saver  Saver
	pub    events.Publisher
	log    *zap.SugaredLogger
	now    func() time.Time
	newID  func() string
	seen   time.Time // capture time of the latest frame

	state State
	sess  *session

	clips    int
	lastClip string
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) int { return 0 }

// New builds a machine in the Watching state. pub and log may be nil.
func New(policy Policy, saver Saver, pub events.Publisher, log *zap.SugaredLogger, opts ...Option) (*Machine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timing policy: %w", err)
	}
	if saver == nil {
		return nil, fmt.Errorf("motion: nil saver")
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &Machine{
		policy: policy,
		saver:  saver,
		pub:    pub,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
		state:  Watching,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns the current phase.
func (m *Machine) State() State { return m.state }

// Buffered returns the number of frames held by the live session.
func (m *Machine) Buffered() int {
	if m.sess == nil {
		return 0
	}
	return len(m.sess.frames)
}

// SessionID returns the live session's ID, or "" while Watching.
func (m *Machine) SessionID() string {
	if m.sess == nil {
		return ""
	}
	return m.sess.id
}

// Clips returns how many clips were saved and the identifier of the last.
func (m *Machine) Clips() (int, string) { return m.clips, m.lastClip }

// Handle feeds one frame and its verdict into the machine. A returned
// error is always a *WriteError; the machine has already fallen back to
// Watching and the caller decides whether the failure is fatal.
func (m *Machine) Handle(f frame.Frame, changed bool) error {
	if changed {
		return m.handleChanged(f)
	}
	return m.handleUnchanged(f)
}

// at returns the time a frame stands for: its capture time, or the clock
// for frames that carry none.
func (m *Machine) at(f frame.Frame) time.Time {
	t := f.Time
	if t.IsZero() {
		t = m.now()
	}
	if t.After(m.seen) {
		m.seen = t
	}
	return t
}

func (m *Machine) handleChanged(f frame.Frame) error {
	now := m.at(f)

	switch m.state {
	case Watching:
		m.open(f, now)

	case RecordingMotion:
		if now.Sub(m.sess.start) > m.policy.MaxDuration {
			// Cut: the buffered frames become a clip and this frame opens
			// the next session, so nothing is lost or written twice.
			done := m.close()
			m.log.Debugw("max clip duration reached", "session", done.id, "frames", len(done.frames))
			if err := m.finalize(done, now); err != nil {
				return err
			}
			m.open(f, now)
			return nil
		}
		m.sess.frames = append(m.sess.frames, f)

	case RecordingIdle:
		m.sess.frames = append(m.sess.frames, f)
		m.sess.idleSince = time.Time{}
		m.transition(RecordingMotion)
	}
	return nil
}

func (m *Machine) handleUnchanged(f frame.Frame) error {
	now := m.at(f)

	switch m.state {
	case Watching:
		// Nothing is buffered while quiet.

	case RecordingMotion:
		m.sess.idleSince = now
		m.transition(RecordingIdle)

	case RecordingIdle:
		m.sess.frames = append(m.sess.frames, f)
		if now.Sub(m.sess.idleSince) <= m.policy.MaxIdleGap {
			return nil
		}
		motion := MotionDuration(m.sess.start, m.sess.idleSince, now)
		done := m.close()
		if motion < m.policy.MinDuration {
			m.log.Debugw("discarding short clip", "session", done.id, "motion", motion, "frames", len(done.frames))
			return nil
		}
		return m.finalize(done, now)
	}
	return nil
}

// Flush ends the live session early, e.g. when the camera is stopped or
// the process shuts down. The clip is kept if its motion portion meets the
// minimum duration, exactly as when an idle gap runs out.
func (m *Machine) Flush() error {
	if m.sess == nil {
		return nil
	}
	now := m.now()
	if m.seen.After(now) {
		now = m.seen
	}
	motion := MotionDuration(m.sess.start, m.sess.idleSince, now)
	done := m.close()
	if motion < m.policy.MinDuration {
		m.log.Debugw("discarding short clip on flush", "session", done.id, "motion", motion)
		return nil
	}
	return m.finalize(done, now)
}

func (m *Machine) open(f frame.Frame, now time.Time) {
	m.sess = &session{
		id:     m.newID(),
		start:  now,
		frames: []frame.Frame{f},
	}
	m.transition(RecordingMotion)
	m.pub.Publish(events.Event{Kind: events.MotionStarted, SessionID: m.sess.id, Time: now})
}

// close detaches the live session and returns to Watching.
func (m *Machine) close() *session {
	s := m.sess
	m.sess = nil
	m.transition(Watching)
	return s
}

func (m *Machine) transition(to State) {
	if m.state == to {
		return
	}
	m.log.Debugw("lifecycle transition", "from", m.state, "to", to, "session", m.SessionID(), "frames", m.Buffered())
	m.state = to
}

// finalize saves s and announces the clip. The machine is already in
// Watching when this runs, so a failed save leaves it there.
func (m *Machine) finalize(s *session, now time.Time) error {
	if len(s.frames) == 0 {
		panic("motion: finalizing session " + s.id + " with no frames")
	}
	path, err := m.saver.Save(s.frames)
	if err != nil {
		return &WriteError{SessionID: s.id, Frames: len(s.frames), Err: err}
	}
	m.clips++
	m.lastClip = path
	m.log.Infow("clip saved", "session", s.id, "path", path, "frames", len(s.frames))
	m.pub.Publish(events.Captured(path, s.id, len(s.frames), now))
	return nil
}
