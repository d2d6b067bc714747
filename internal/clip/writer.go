// Package clip persists finished recording sessions as video files.
package clip

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/gift"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/motionwatch/internal/frame"
)

// ErrNoFrames is returned by Save when asked to write an empty clip.
var ErrNoFrames = errors.New("clip: no frames to write")

// Encoder turns a sequence of equally sized images into a video file at path.
type Encoder interface {
	Encode(path string, frames []image.Image, g Geometry) error
}

// Writer names, normalizes and encodes clips. It satisfies motion.Saver.
type Writer struct {
	settings Settings
	enc      Encoder
	log      *zap.SugaredLogger
	now      func() time.Time
	resample gift.Resampling
}

// NewWriter validates s and returns a Writer that encodes with enc.
func NewWriter(s Settings, enc Encoder, log *zap.SugaredLogger) (*Writer, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clip settings: %w", err)
	}
	if enc == nil {
		return nil, errors.New("clip: nil encoder")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r, _ := s.Resampling.filter()
	return &Writer{settings: s, enc: enc, log: log, now: time.Now, resample: r}, nil
}

// Settings returns the writer's configuration.
func (w *Writer) Settings() Settings { return w.settings }

// Save writes frames as one clip and returns the clip's path.
func (w *Writer) Save(frames []frame.Frame) (string, error) {
	if len(frames) == 0 {
		return "", ErrNoFrames
	}

	g := w.geometry(frames)
	images, err := w.normalize(frames, g)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.settings.Folder, 0o755); err != nil {
		return "", fmt.Errorf("creating output folder: %w", err)
	}
	start := frames[0].Time
	if start.IsZero() {
		start = w.now()
	}
	path, err := w.reserve(start)
	if err != nil {
		return "", err
	}

	w.log.Debugw("encoding clip", "path", path, "frames", len(images), "width", g.Width, "height", g.Height, "fps", g.FPS)
	if err := w.enc.Encode(path, images, g); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encoding %s: %w", path, err)
	}

	if w.settings.Manifest {
		m := Manifest{
			ID:     uuid.NewString(),
			Path:   path,
			Start:  start,
			End:    frames[len(frames)-1].Time,
			Frames: len(frames),
			FPS:    g.FPS,
			Width:  g.Width,
			Height: g.Height,
			Codec:  g.Codec,
		}
		if m.End.IsZero() {
			m.End = start
		}
		if err := WriteManifest(m); err != nil {
			w.log.Warnw("clip written without manifest", "path", path, "error", err)
		}
	}
	return path, nil
}

func (w *Writer) geometry(frames []frame.Frame) Geometry {
	g := Geometry{
		Width:  w.settings.Width,
		Height: w.settings.Height,
		FPS:    w.settings.FPS,
		Color:  w.settings.Color,
		Codec:  w.settings.Codec,
	}
	if w.settings.Size == SizeDerive || w.settings.Size == SizeDeriveResize {
		b := frames[0].Bounds()
		g.Width, g.Height = b.Dx(), b.Dy()
	}
	if w.settings.FPSMode == FPSDerived {
		g.FPS = DeriveFPS(frames, w.settings.FPS)
	}
	return g
}

// DeriveFPS returns len(frames) divided by the capture span, or fallback
// when the span is empty.
func DeriveFPS(frames []frame.Frame, fallback float64) float64 {
	if len(frames) < 2 {
		return fallback
	}
	span := frames[len(frames)-1].Time.Sub(frames[0].Time)
	if span <= 0 {
		return fallback
	}
	return float64(len(frames)) / span.Seconds()
}

// normalize converts every frame to the clip's size and pixel format.
func (w *Writer) normalize(frames []frame.Frame, g Geometry) ([]image.Image, error) {
	var resize *gift.GIFT
	if w.settings.resizes() {
		resize = gift.New(gift.Resize(g.Width, g.Height, w.resample))
	}

	out := make([]image.Image, len(frames))
	for i, f := range frames {
		if f.Empty() {
			return nil, fmt.Errorf("frame %d (seq %d) is empty", i, f.Seq)
		}
		src := f.Image
		b := src.Bounds()
		if b.Dx() != g.Width || b.Dy() != g.Height {
			if resize == nil {
				return nil, fmt.Errorf("frame %d is %dx%d, clip is %dx%d", i, b.Dx(), b.Dy(), g.Width, g.Height)
			}
			dst := image.NewRGBA(resize.Bounds(b))
			resize.Draw(dst, src)
			src = dst
		}
		out[i] = pixels(src, g.Color)
	}
	return out, nil
}

// pixels returns img as *image.RGBA (color) or *image.Gray, anchored at the
// origin, copying only when the layout differs.
func pixels(img image.Image, color bool) image.Image {
	b := img.Bounds()
	r := image.Rect(0, 0, b.Dx(), b.Dy())
	if color {
		if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
			return rgba
		}
		dst := image.NewRGBA(r)
		draw.Draw(dst, r, img, b.Min, draw.Src)
		return dst
	}
	if gray, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return gray
	}
	dst := image.NewGray(r)
	draw.Draw(dst, r, img, b.Min, draw.Src)
	return dst
}

// reserve picks a file name for a clip starting at t and creates it
// exclusively. If the name is taken a numeric suffix is appended.
func (w *Writer) reserve(t time.Time) (string, error) {
	name := t.Format(w.settings.FilenameLayout)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		path := filepath.Join(w.settings.Folder, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("creating clip file: %w", err)
		}
	}
	return "", fmt.Errorf("no free file name for clip %q", name)
}
