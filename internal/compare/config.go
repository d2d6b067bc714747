package compare

import (
	"errors"
	"fmt"
	"strings"
)

// Shape is the structuring element shape used for dilation.
type Shape int

const (
	ShapeEllipse Shape = iota
	ShapeRect
)

// String returns the configuration name of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeRect:
		return "rect"
	default:
		return "ellipse"
	}
}

// ParseShape parses "ellipse" or "rect".
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ellipse":
		return ShapeEllipse, nil
	case "rect", "rectangle":
		return ShapeRect, nil
	}
	return ShapeEllipse, fmt.Errorf("unknown dilate shape %q", s)
}

// Config drives every step of the comparison pipeline. It is created once at
// startup and never mutated.
type Config struct {
	// BlurSize is the Gaussian kernel width and height in pixels (odd).
	BlurSize int
	// BlurSigma is the Gaussian standard deviation. Values <= 0 are derived
	// from BlurSize.
	BlurSigma float64

	DilateShape      Shape
	DilateSize       int // structuring element width and height (odd)
	DilateIterations int

	// Threshold is the binary cutoff: difference pixels strictly above it
	// become foreground.
	Threshold int

	// ContourAreaThreshold is the minimum bounding-box area, in pixels, of a
	// region that counts as motion.
	ContourAreaThreshold int
}

// DefaultConfig returns the tuning the detector ships with.
func DefaultConfig() Config {
	return Config{
		BlurSize:             3,
		BlurSigma:            4.0,
		DilateShape:          ShapeEllipse,
		DilateSize:           7,
		DilateIterations:     4,
		Threshold:            6,
		ContourAreaThreshold: 2000,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.BlurSize < 1 || c.BlurSize%2 == 0 {
		errs = append(errs, fmt.Errorf("blur size must be a positive odd number, got %d", c.BlurSize))
	}
	if c.DilateSize < 1 || c.DilateSize%2 == 0 {
		errs = append(errs, fmt.Errorf("dilate size must be a positive odd number, got %d", c.DilateSize))
	}
	if c.DilateIterations < 0 {
		errs = append(errs, fmt.Errorf("dilate iterations must not be negative, got %d", c.DilateIterations))
	}
	if c.Threshold < 0 || c.Threshold > 255 {
		errs = append(errs, fmt.Errorf("threshold must be within 0..255, got %d", c.Threshold))
	}
	if c.ContourAreaThreshold < 0 {
		errs = append(errs, fmt.Errorf("contour area threshold must not be negative, got %d", c.ContourAreaThreshold))
	}
	return errors.Join(errs...)
}

// sigma returns the effective blur sigma.
func (c Config) sigma() float64 {
	if c.BlurSigma > 0 {
		return c.BlurSigma
	}
	return 0.3*((float64(c.BlurSize)-1)*0.5-1) + 0.8
}
