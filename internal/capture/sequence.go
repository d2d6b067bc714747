package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fakeyudi/motionwatch/internal/frame"
)

// ReplayFramePeriod spaces the timestamps of an unpaced sequence replay.
const ReplayFramePeriod = time.Second / 24

// Sequence replays image files matching a glob in lexical order. Frames are
// stamped at a steady rate from the first read (the pacing interval, or
// ReplayFramePeriod when unpaced) so recorded durations follow the footage
// rather than how fast it was decoded.
type Sequence struct {
	files    []string
	interval time.Duration
	loop     bool
	now      func() time.Time

	next   int
	seq    uint64
	last   time.Time
	origin time.Time
}

// NewSequence globs pattern and returns a source over the matching images.
func NewSequence(pattern string, interval time.Duration, loop bool) (*Sequence, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad sequence pattern %q: %w", pattern, err)
	}
	var files []string
	for _, m := range matches {
		if IsImage(m) {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images match %q", pattern)
	}
	sort.Strings(files)
	return &Sequence{files: files, interval: interval, loop: loop, now: time.Now}, nil
}

// Len returns the number of files in one pass.
func (s *Sequence) Len() int { return len(s.files) }

// Next implements Source.
func (s *Sequence) Next(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	if s.next >= len(s.files) {
		if !s.loop {
			return frame.Frame{}, ErrEndOfStream
		}
		s.next = 0
	}
	if s.interval > 0 && !s.last.IsZero() {
		if err := sleep(ctx, s.interval-s.now().Sub(s.last)); err != nil {
			return frame.Frame{}, err
		}
	}

	path := s.files[s.next]
	s.next++
	img, err := Decode(path)
	if err != nil {
		return frame.Frame{}, err
	}
	s.last = s.now()
	if s.seq == 0 {
		s.origin = s.last
	}
	at := s.origin.Add(time.Duration(s.seq) * s.period())
	s.seq++
	return frame.New(img, s.seq, at), nil
}

func (s *Sequence) period() time.Duration {
	if s.interval > 0 {
		return s.interval
	}
	return ReplayFramePeriod
}

// Close implements Source.
func (s *Sequence) Close() error { return nil }
