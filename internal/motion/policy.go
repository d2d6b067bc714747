package motion

import (
	"errors"
	"fmt"
	"time"
)

// Policy holds the timing rules of the lifecycle.
type Policy struct {
	// MinDuration is the shortest motion episode worth keeping.
	MinDuration time.Duration
	// MaxDuration forces a clip to be cut once a session has run this long.
	MaxDuration time.Duration
	// MaxIdleGap is how long motion may be absent before the clip closes.
	MaxIdleGap time.Duration
}

// DefaultPolicy returns 3s minimum, 15s maximum and a 3s idle gap.
func DefaultPolicy() Policy {
	return Policy{
		MinDuration: 3 * time.Second,
		MaxDuration: 15 * time.Second,
		MaxIdleGap:  3 * time.Second,
	}
}

// Validate reports every invalid duration.
func (p Policy) Validate() error {
	var errs []error
	if p.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("min duration must not be negative, got %s", p.MinDuration))
	}
	if p.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("max duration must be positive, got %s", p.MaxDuration))
	}
	if p.MaxIdleGap <= 0 {
		errs = append(errs, fmt.Errorf("max idle gap must be positive, got %s", p.MaxIdleGap))
	}
	if p.MaxDuration > 0 && p.MinDuration > p.MaxDuration {
		errs = append(errs, fmt.Errorf("min duration %s exceeds max duration %s", p.MinDuration, p.MaxDuration))
	}
	return errors.Join(errs...)
}

// MotionDuration returns how much of a session was spent in motion when it
// closes at now: the time since the session started minus the time since
// the current idle episode began. With idleSince zero the whole session
// counts.
func MotionDuration(start, idleSince, now time.Time) time.Duration {
	if idleSince.IsZero() {
		return now.Sub(start)
	}
	return now.Sub(start) - now.Sub(idleSince)
}
