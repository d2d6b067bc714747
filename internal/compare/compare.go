// Package compare reduces a pair of frames to a "scene changed" verdict.
//
// The pipeline is fixed: grayscale, Gaussian blur, absolute difference,
// binary threshold, dilation, external region extraction and a bounding-box
// area filter. A Comparator holds only its configuration and precomputed
// kernels, so it is safe for concurrent use.
package compare

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/gift"

	"github.com/fakeyudi/motionwatch/internal/frame"
)

// ErrSizeMismatch is returned when the two frames have different dimensions.
var ErrSizeMismatch = errors.New("frames differ in size")

// Verdict is the outcome of one comparison.
type Verdict struct {
	Changed bool
	// Regions holds the bounding boxes of the regions that passed the area
	// filter, in scan order.
	Regions []image.Rectangle
}

// Engine compares two frames. Comparator is the pure Go engine; builds with
// the gocv tag also provide an OpenCV-backed one.
type Engine interface {
	Diff(a, b frame.Frame) (Verdict, error)
}

// Comparator is the pure Go comparison engine.
type Comparator struct {
	cfg     Config
	prep    *gift.GIFT
	element []image.Point // dilation offsets relative to the anchor
}

// New validates cfg and builds a Comparator.
func New(cfg Config) (*Comparator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid comparison config: %w", err)
	}
	return &Comparator{
		cfg: cfg,
		prep: gift.New(
			gift.Grayscale(),
			gift.Convolution(gaussianKernel(cfg.BlurSize, cfg.sigma()), true, false, false, 0),
		),
		element: structuringElement(cfg.DilateShape, cfg.DilateSize),
	}, nil
}

// Config returns the configuration the comparator was built with.
func (c *Comparator) Config() Config {
	return c.cfg
}

// Compare reports whether the scene changed between a and b.
func (c *Comparator) Compare(a, b frame.Frame) (bool, error) {
	v, err := c.Diff(a, b)
	if err != nil {
		return false, err
	}
	return v.Changed, nil
}

// Diff runs the full pipeline and returns the qualifying regions.
func (c *Comparator) Diff(a, b frame.Frame) (Verdict, error) {
	if a.Empty() || b.Empty() {
		return Verdict{}, errors.New("compare: empty frame")
	}
	if a.Bounds().Size() != b.Bounds().Size() {
		return Verdict{}, fmt.Errorf("compare: %w: %v vs %v", ErrSizeMismatch, a.Bounds().Size(), b.Bounds().Size())
	}

	ga := c.prepare(a.Image)
	gb := c.prepare(b.Image)

	mask := absDiff(ga, gb)
	threshold(mask, uint8(c.cfg.Threshold))
	for i := 0; i < c.cfg.DilateIterations; i++ {
		mask = dilate(mask, c.element)
	}

	var v Verdict
	for _, r := range regions(mask) {
		if r.Dx()*r.Dy() >= c.cfg.ContourAreaThreshold {
			v.Regions = append(v.Regions, r)
		}
	}
	v.Changed = len(v.Regions) > 0
	return v, nil
}

// prepare converts src to a blurred grayscale image anchored at the origin.
func (c *Comparator) prepare(src image.Image) *image.Gray {
	dst := image.NewGray(c.prep.Bounds(src.Bounds()))
	c.prep.Draw(dst, src)
	return dst
}

// gaussianKernel builds a normalized size x size Gaussian kernel.
func gaussianKernel(size int, sigma float64) []float32 {
	half := size / 2
	k := make([]float32, size*size)
	var sum float64
	for y := -half; y <= half; y++ {
		for x := -half; x <= half; x++ {
			v := math.Exp(-float64(x*x+y*y) / (2 * sigma * sigma))
			k[(y+half)*size+(x+half)] = float32(v)
			sum += v
		}
	}
	for i := range k {
		k[i] = float32(float64(k[i]) / sum)
	}
	return k
}
