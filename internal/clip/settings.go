package clip

import (
	"errors"
	"fmt"
	"time"

	"github.com/disintegration/gift"
)

// FPSMode selects how the encoding frame rate is chosen.
type FPSMode string

const (
	// FPSStatic always encodes at Settings.FPS.
	FPSStatic FPSMode = "static"
	// FPSDerived encodes at frames / (last - first capture time).
	FPSDerived FPSMode = "derived"
)

// SizeMode selects the output geometry.
type SizeMode string

const (
	// SizeStatic uses Width x Height and rejects frames of any other size.
	SizeStatic SizeMode = "static"
	// SizeResize uses Width x Height and resizes frames that differ.
	SizeResize SizeMode = "resize"
	// SizeDerive takes the size of the first frame and rejects frames that differ.
	SizeDerive SizeMode = "derive"
	// SizeDeriveResize takes the size of the first frame and resizes the rest to match.
	SizeDeriveResize SizeMode = "derive_resize"
)

// Resampling names a gift resampling filter.
type Resampling string

const (
	Nearest Resampling = "nearest"
	Linear  Resampling = "linear"
	Cubic   Resampling = "cubic"
	Lanczos Resampling = "lanczos"
	Box     Resampling = "box"
)

func (r Resampling) filter() (gift.Resampling, error) {
	switch r {
	case Nearest:
		return gift.NearestNeighborResampling, nil
	case Linear:
		return gift.LinearResampling, nil
	case Cubic:
		return gift.CubicResampling, nil
	case Lanczos, "":
		return gift.LanczosResampling, nil
	case Box:
		return gift.BoxResampling, nil
	}
	return nil, fmt.Errorf("unknown resampling %q", string(r))
}

// Settings controls where and how clips are written.
type Settings struct {
	Folder         string
	FilenameLayout string // time.Format layout, e.g. "2006-01-02-15-04-05.avi"
	Codec          string // encoder-specific codec name or FOURCC
	FPS            float64
	FPSMode        FPSMode
	Size           SizeMode
	Width          int
	Height         int
	Resampling     Resampling
	Color          bool
	Manifest       bool // write a <clip>.json sidecar next to every clip
}

// DefaultSettings mirrors the stock recorder: 24fps DIVX AVIs under
// ./output, every frame resized to the first frame's size.
func DefaultSettings() Settings {
	return Settings{
		Folder:         "output",
		FilenameLayout: "2006-01-02-15-04-05.avi",
		Codec:          "DIVX",
		FPS:            24,
		FPSMode:        FPSStatic,
		Size:           SizeDeriveResize,
		Resampling:     Lanczos,
		Color:          true,
		Manifest:       true,
	}
}

// Validate reports every inconsistent setting.
func (s Settings) Validate() error {
	var errs []error
	if s.Folder == "" {
		errs = append(errs, errors.New("output folder is empty"))
	}
	if s.FilenameLayout == "" {
		errs = append(errs, errors.New("filename layout is empty"))
	} else if time.Unix(0, 0).UTC().Format(s.FilenameLayout) == s.FilenameLayout {
		errs = append(errs, fmt.Errorf("filename layout %q has no time fields; every clip would overwrite the last", s.FilenameLayout))
	}
	if s.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %g", s.FPS))
	}
	switch s.FPSMode {
	case FPSStatic, FPSDerived:
	default:
		errs = append(errs, fmt.Errorf("unknown fps mode %q", s.FPSMode))
	}
	switch s.Size {
	case SizeStatic, SizeResize:
		if s.Width <= 0 || s.Height <= 0 {
			errs = append(errs, fmt.Errorf("size mode %q needs a positive width and height, got %dx%d", s.Size, s.Width, s.Height))
		}
	case SizeDerive, SizeDeriveResize:
	default:
		errs = append(errs, fmt.Errorf("unknown size mode %q", s.Size))
	}
	if _, err := s.Resampling.filter(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Geometry is what an encoder needs to open an output stream.
type Geometry struct {
	Width  int
	Height int
	FPS    float64
	Color  bool
	Codec  string
}

// resizes reports whether frames that do not match the geometry are
// resampled rather than rejected.
func (s Settings) resizes() bool {
	return s.Size == SizeResize || s.Size == SizeDeriveResize
}
