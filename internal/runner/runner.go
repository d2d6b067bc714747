// Package runner drives frames from a capture source through the
// comparator into the lifecycle state machine.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/motionwatch/internal/capture"
	"github.com/fakeyudi/motionwatch/internal/compare"
	"github.com/fakeyudi/motionwatch/internal/events"
	"github.com/fakeyudi/motionwatch/internal/frame"
	"github.com/fakeyudi/motionwatch/internal/motion"
)

// Status is a point-in-time snapshot of the frame loop.
type Status struct {
	CameraRunning bool      `json:"camera_running"`
	State         string    `json:"state"`
	SessionID     string    `json:"session_id,omitempty"`
	Buffered      int       `json:"buffered_frames"`
	Frames        uint64    `json:"frames_processed"`
	Clips         int       `json:"clips_written"`
	LastClip      string    `json:"last_clip,omitempty"`
	CaptureErrors uint64    `json:"capture_errors"`
	CompareErrors uint64    `json:"compare_errors"`
	WriteErrors   uint64    `json:"write_errors"`
	StartedAt     time.Time `json:"started_at"`
	LastFrameAt   time.Time `json:"last_frame_at,omitempty"`
}

// Options tunes the loop.
type Options struct {
	// RetryDelay is the pause after a failed capture.
	RetryDelay time.Duration
	// MaxCaptureErrors stops the loop after that many consecutive capture
	// failures. Zero retries forever.
	MaxCaptureErrors int
	// StartStopped makes the loop wait for a start signal before capturing.
	StartStopped bool
}

// Runner is the frame loop. Run must be called at most once; Status may be
// called from any goroutine.
type Runner struct {
	src     capture.Source
	engine  compare.Engine
	machine *motion.Machine
	control *events.Subscription
	log     *zap.SugaredLogger
	opts    Options

	baseline    *frame.Frame
	consecutive int

	mu     sync.RWMutex
	status Status
}

// New wires a runner. control receives camera start/stop events; any other
// event kind on it is ignored. control may be nil.
func New(src capture.Source, engine compare.Engine, machine *motion.Machine, control *events.Subscription, log *zap.SugaredLogger, opts Options) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{
		src:     src,
		engine:  engine,
		machine: machine,
		control: control,
		log:     log,
		opts:    opts,
		status:  Status{CameraRunning: !opts.StartStopped, State: motion.Watching.String()},
	}
}

// Status returns a snapshot of the loop's counters.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) update(fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
	r.status.State = r.machine.State().String()
	r.status.SessionID = r.machine.SessionID()
	r.status.Buffered = r.machine.Buffered()
	r.status.Clips, r.status.LastClip = r.machine.Clips()
}

func (r *Runner) running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.CameraRunning
}

// Run processes frames until ctx is cancelled or the source ends. The live
// recording session is flushed on the way out. It returns an error only
// when the source keeps failing past Options.MaxCaptureErrors.
func (r *Runner) Run(ctx context.Context) error {
	r.update(func(s *Status) { s.StartedAt = time.Now() })
	r.log.Infow("frame loop started", "camera_running", r.running())
	defer func() {
		r.flush("shutdown")
		r.log.Infow("frame loop stopped", "frames", r.Status().Frames)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		r.drainControl()

		if !r.running() {
			if r.control == nil {
				return nil
			}
			ev, err := r.control.Receive(ctx)
			if err != nil {
				// Cancelled, or nobody can ever start the camera again.
				return nil
			}
			r.apply(ev)
			continue
		}

		f, err := r.src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, capture.ErrEndOfStream):
				r.log.Infow("capture source exhausted")
				return nil
			case ctx.Err() != nil:
				return nil
			}
			if err := r.captureFailed(ctx, err); err != nil {
				return err
			}
			continue
		}
		r.consecutive = 0
		r.process(f)
	}
}

func (r *Runner) captureFailed(ctx context.Context, err error) error {
	r.consecutive++
	r.update(func(s *Status) { s.CaptureErrors++ })
	r.log.Warnw("capture failed", "error", err, "consecutive", r.consecutive)

	if r.opts.MaxCaptureErrors > 0 && r.consecutive >= r.opts.MaxCaptureErrors {
		return fmt.Errorf("capture failed %d times in a row: %w", r.consecutive, err)
	}
	if r.opts.RetryDelay > 0 {
		t := time.NewTimer(r.opts.RetryDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	return nil
}

// drainControl applies every pending control event without blocking.
func (r *Runner) drainControl() {
	if r.control == nil {
		return
	}
	for {
		ev, ok := r.control.TryReceive()
		if !ok {
			return
		}
		r.apply(ev)
	}
}

func (r *Runner) apply(ev events.Event) {
	switch ev.Kind {
	case events.StartCamera:
		if r.running() {
			return
		}
		r.log.Infow("camera started")
		r.update(func(s *Status) { s.CameraRunning = true })

	case events.StopCamera:
		if !r.running() {
			return
		}
		r.log.Infow("camera stopped")
		r.flush("camera stopped")
		r.baseline = nil
		r.update(func(s *Status) { s.CameraRunning = false })
	}
}

// process compares f with the previous frame and feeds the verdict to the
// state machine. The first frame after start has nothing to compare with
// and counts as unchanged.
func (r *Runner) process(f frame.Frame) {
	changed := false
	if r.baseline != nil {
		v, err := r.engine.Diff(*r.baseline, f)
		if err != nil {
			r.log.Warnw("comparison failed, skipping frame", "seq", f.Seq, "error", err)
			r.baseline = &f
			r.update(func(s *Status) { s.CompareErrors++; s.Frames++ })
			return
		}
		changed = v.Changed
		if changed {
			r.log.Debugw("motion detected", "seq", f.Seq, "regions", len(v.Regions))
		}
	}
	r.baseline = &f

	err := r.machine.Handle(f, changed)
	r.update(func(s *Status) {
		s.Frames++
		s.LastFrameAt = f.Time
		if err != nil {
			s.WriteErrors++
		}
	})
	if err != nil {
		r.writeFailed(err)
	}
}

func (r *Runner) flush(reason string) {
	err := r.machine.Flush()
	r.update(func(s *Status) {
		if err != nil {
			s.WriteErrors++
		}
	})
	if err != nil {
		r.writeFailed(err)
		return
	}
	r.log.Debugw("recording flushed", "reason", reason)
}

func (r *Runner) writeFailed(err error) {
	var we *motion.WriteError
	if errors.As(err, &we) {
		r.log.Errorw("clip lost", "session", we.SessionID, "frames", we.Frames, "error", we.Err)
		return
	}
	r.log.Errorw("clip lost", "error", err)
}
