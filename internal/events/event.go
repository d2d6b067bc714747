// Package events carries lifecycle events between the frame loop, the
// lifecycle state machine and any number of independent consumers.
package events

import (
	"fmt"
	"time"
)

// Kind identifies what happened.
type Kind int

const (
	// StartCamera asks the frame loop to resume capturing.
	StartCamera Kind = iota + 1
	// StopCamera asks the frame loop to pause capturing.
	StopCamera
	// MotionStarted is published when a recording session opens.
	MotionStarted
	// MotionCaptured is published once per persisted clip; Path holds the
	// artifact identifier returned by the clip writer.
	MotionCaptured
)

var kindNames = map[Kind]string{
	StartCamera:    "start_camera",
	StopCamera:     "stop_camera",
	MotionStarted:  "motion_started",
	MotionCaptured: "motion_captured",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(s), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", string(b))
}

// Control reports whether the kind is a camera control signal.
func (k Kind) Control() bool {
	return k == StartCamera || k == StopCamera
}

// Event is an immutable description of one lifecycle occurrence. It is
// passed by value, so every subscriber gets its own copy.
type Event struct {
	Kind      Kind      `json:"kind"`
	Time      time.Time `json:"time"`
	SessionID string    `json:"session_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Frames    int       `json:"frames,omitempty"`
}

// Captured builds a MotionCaptured event for the clip at path.
func Captured(path, sessionID string, frames int, at time.Time) Event {
	return Event{Kind: MotionCaptured, Path: path, SessionID: sessionID, Frames: frames, Time: at}
}

// Control builds a camera control event.
func Control(kind Kind, at time.Time) Event {
	return Event{Kind: kind, Time: at}
}
