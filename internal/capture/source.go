// Package capture provides frame sources for the frame loop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fakeyudi/motionwatch/internal/frame"
)

var (
	// ErrEndOfStream is returned by Next once a finite source is exhausted.
	ErrEndOfStream = errors.New("capture: end of stream")
	// ErrUnsupported is returned for a source kind this binary was built without.
	ErrUnsupported = errors.New("capture: source not supported by this build")
)

// Source yields frames in capture order. Next blocks until a frame is
// available, the source is exhausted or ctx is done.
type Source interface {
	Next(ctx context.Context) (frame.Frame, error)
	Close() error
}

// Kind names a source implementation.
type Kind string

const (
	KindSequence Kind = "sequence"
	KindSpool    Kind = "spool"
	KindDevice   Kind = "device"
)

// Options selects and configures a source.
type Options struct {
	Kind Kind
	// Path is a glob for KindSequence, a directory for KindSpool and a
	// camera index or stream URL for KindDevice.
	Path string
	// Interval paces a sequence replay; zero replays as fast as possible.
	Interval time.Duration
	// Loop restarts a sequence from the first file instead of ending.
	Loop bool
	// Remove deletes spool files once they are decoded.
	Remove bool
	// Ignore holds glob patterns of spool file names to skip, matched
	// against the base name.
	Ignore []string
	Width  int
	Height int
}

// Open builds the source described by o.
func Open(o Options) (Source, error) {
	switch o.Kind {
	case KindSequence, "":
		return NewSequence(o.Path, o.Interval, o.Loop)
	case KindSpool:
		return NewSpool(o.Path, o.Remove, o.Ignore)
	case KindDevice:
		return OpenDevice(o.Path, o.Width, o.Height)
	}
	return nil, fmt.Errorf("unknown source kind %q", o.Kind)
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// IsImage reports whether name has a decodable image extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Decode reads the image file at path.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
