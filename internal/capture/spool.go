package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fakeyudi/motionwatch/internal/frame"
)

// Spool yields images dropped into a directory, in arrival order. Files
// already present when the spool opens are yielded first, sorted by name.
//
// Producers should write under a temporary name (a dotfile, or one matching
// an ignore pattern) and rename into place, so the spool never sees a
// partially written image.
type Spool struct {
	dir     string
	remove  bool
	ignore  []string
	watcher *fsnotify.Watcher

	pending []string
	queued  map[string]bool
	seq     uint64
}

// NewSpool starts watching dir.
func NewSpool(dir string, remove bool, ignore []string) (*Spool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("spool directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spool directory %s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	s := &Spool{dir: dir, remove: remove, ignore: ignore, watcher: watcher, queued: make(map[string]bool)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		s.enqueue(filepath.Join(dir, n))
	}
	return s, nil
}

func (s *Spool) enqueue(path string) {
	if s.queued[path] || s.isIgnored(path) {
		return
	}
	s.queued[path] = true
	s.pending = append(s.pending, path)
}

// isIgnored reports whether path is a dotfile, not an image, or matches
// an ignore pattern.
func (s *Spool) isIgnored(path string) bool {
	base := filepath.Base(path)
	if base == "" || base[0] == '.' || !IsImage(base) {
		return true
	}
	for _, pattern := range s.ignore {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// Pending returns the number of files waiting to be yielded.
func (s *Spool) Pending() int { return len(s.pending) }

// Next implements Source.
func (s *Spool) Next(ctx context.Context) (frame.Frame, error) {
	for {
		if len(s.pending) > 0 {
			path := s.pending[0]
			s.pending = s.pending[1:]
			delete(s.queued, path)

			img, err := Decode(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					// Removed before we got to it.
					continue
				}
				return frame.Frame{}, err
			}
			if s.remove {
				os.Remove(path)
			}
			s.seq++
			return frame.New(img, s.seq, time.Now()), nil
		}

		select {
		case <-ctx.Done():
			return frame.Frame{}, ctx.Err()

		case event, ok := <-s.watcher.Events:
			if !ok {
				return frame.Frame{}, ErrEndOfStream
			}
			if event.Has(fsnotify.Create) {
				s.enqueue(event.Name)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return frame.Frame{}, ErrEndOfStream
			}
			return frame.Frame{}, fmt.Errorf("spool watcher: %w", err)
		}
	}
}

// Close stops watching. A blocked Next returns ErrEndOfStream.
func (s *Spool) Close() error {
	return s.watcher.Close()
}
