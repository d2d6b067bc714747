// Package notify reacts to captured clips: it logs each one and optionally
// hands the clip path to a user hook command.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/motionwatch/internal/events"
)

// HookRunner executes a hook command.
// This abstraction allows mocking in tests.
type HookRunner func(ctx context.Context, name string, args ...string) error

// defaultHookRunner runs the hook as a real subprocess and reports the last
// line of its stderr on failure.
func defaultHookRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Notifier consumes lifecycle events from its own subscription.
type Notifier struct {
	sub     *events.Subscription
	command []string
	timeout time.Duration
	runner  HookRunner
	log     *zap.SugaredLogger

	notified atomic.Uint64
	failed   atomic.Uint64
}

// Options configures a Notifier.
type Options struct {
	// Command is the hook argv; the clip path is appended as the last
	// argument. Empty disables the hook.
	Command []string
	// Timeout bounds each hook run. Zero means no limit.
	Timeout time.Duration
	// Runner overrides the subprocess runner.
	Runner HookRunner
}

// New returns a notifier reading from sub.
func New(sub *events.Subscription, log *zap.SugaredLogger, opts Options) *Notifier {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	runner := opts.Runner
	if runner == nil {
		runner = defaultHookRunner
	}
	return &Notifier{
		sub:     sub,
		command: opts.Command,
		timeout: opts.Timeout,
		runner:  runner,
		log:     log,
	}
}

// Run handles events until ctx is cancelled or the subscription closes.
func (n *Notifier) Run(ctx context.Context) error {
	defer n.sub.Close()
	for {
		ev, err := n.sub.Receive(ctx)
		if err != nil {
			if errors.Is(err, events.ErrSubscriptionClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		n.Handle(ctx, ev)
	}
}

// Handle processes one event. Only motion_captured events are acted on.
func (n *Notifier) Handle(ctx context.Context, ev events.Event) {
	if ev.Kind != events.MotionCaptured {
		return
	}
	n.notified.Add(1)
	n.log.Infow("motion captured", "path", ev.Path, "session", ev.SessionID, "frames", ev.Frames, "at", ev.Time)

	if len(n.command) == 0 {
		return
	}
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	args := append(append([]string(nil), n.command[1:]...), ev.Path)
	if err := n.runner(ctx, n.command[0], args...); err != nil {
		n.failed.Add(1)
		n.log.Warnw("notify hook failed", "command", n.command[0], "path", ev.Path, "error", err)
		return
	}
	n.log.Debugw("notify hook ran", "command", n.command[0], "path", ev.Path)
}

// Notified returns how many captured clips have been handled.
func (n *Notifier) Notified() uint64 { return n.notified.Load() }

// Failed returns how many hook runs failed.
func (n *Notifier) Failed() uint64 { return n.failed.Load() }
