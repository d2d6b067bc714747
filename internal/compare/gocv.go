//go:build gocv

package compare

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/fakeyudi/motionwatch/internal/frame"
)

// GocvComparator runs the same pipeline on OpenCV primitives.
type GocvComparator struct {
	cfg Config
}

// NewGocv validates cfg and builds an OpenCV-backed engine.
func NewGocv(cfg Config) (*GocvComparator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid comparison config: %w", err)
	}
	return &GocvComparator{cfg: cfg}, nil
}

// Diff implements Engine.
func (c *GocvComparator) Diff(a, b frame.Frame) (Verdict, error) {
	if a.Bounds().Size() != b.Bounds().Size() {
		return Verdict{}, fmt.Errorf("compare: %w: %v vs %v", ErrSizeMismatch, a.Bounds().Size(), b.Bounds().Size())
	}
	ga, err := c.prepare(a.Image)
	if err != nil {
		return Verdict{}, err
	}
	defer ga.Close()
	gb, err := c.prepare(b.Image)
	if err != nil {
		return Verdict{}, err
	}
	defer gb.Close()
	return c.diffMats(ga, gb)
}

// diffMats runs the pipeline from the absolute difference onwards on two
// prepared grayscale mats.
func (c *GocvComparator) diffMats(ga, gb gocv.Mat) (Verdict, error) {
	mask := gocv.NewMat()
	defer mask.Close()
	if err := gocv.AbsDiff(ga, gb, &mask); err != nil {
		return Verdict{}, fmt.Errorf("compare: absdiff: %w", err)
	}
	gocv.Threshold(mask, &mask, float32(c.cfg.Threshold), 255, gocv.ThresholdBinary)

	shape := gocv.MorphEllipse
	if c.cfg.DilateShape == ShapeRect {
		shape = gocv.MorphRect
	}
	kernel := gocv.GetStructuringElement(shape, image.Pt(c.cfg.DilateSize, c.cfg.DilateSize))
	defer kernel.Close()
	for i := 0; i < c.cfg.DilateIterations; i++ {
		if err := gocv.Dilate(mask, &mask, kernel); err != nil {
			return Verdict{}, fmt.Errorf("compare: dilate: %w", err)
		}
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var v Verdict
	for i := 0; i < contours.Size(); i++ {
		r := gocv.BoundingRect(contours.At(i))
		if r.Dx()*r.Dy() >= c.cfg.ContourAreaThreshold {
			v.Regions = append(v.Regions, r)
		}
	}
	v.Changed = len(v.Regions) > 0
	return v, nil
}

func (c *GocvComparator) prepare(img image.Image) (gocv.Mat, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("compare: convert frame: %w", err)
	}
	defer src.Close()
	return c.grayBlur(src)
}

// grayBlur converts a BGR mat to a blurred grayscale mat owned by the caller.
func (c *GocvComparator) grayBlur(src gocv.Mat) (gocv.Mat, error) {
	gray := gocv.NewMat()
	if err := gocv.CvtColor(src, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return gocv.Mat{}, fmt.Errorf("compare: grayscale: %w", err)
	}
	sigma := c.cfg.BlurSigma
	if err := gocv.GaussianBlur(gray, &gray, image.Pt(c.cfg.BlurSize, c.cfg.BlurSize), sigma, sigma, gocv.BorderDefault); err != nil {
		gray.Close()
		return gocv.Mat{}, fmt.Errorf("compare: blur: %w", err)
	}
	return gray, nil
}
