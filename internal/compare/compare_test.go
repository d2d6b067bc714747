package compare

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/motionwatch/internal/frame"
)

// exactConfig disables blur and dilation so region sizes are exact.
func exactConfig(area int) Config {
	return Config{
		BlurSize:             1,
		BlurSigma:            1,
		DilateShape:          ShapeRect,
		DilateSize:           1,
		DilateIterations:     0,
		Threshold:            10,
		ContourAreaThreshold: area,
	}
}

func grayFrame(w, h int, bg uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = bg
	}
	return img
}

func fill(img *image.Gray, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func wrap(img image.Image) frame.Frame {
	return frame.New(img, 1, time.Unix(0, 0))
}

// Feature: motionwatch, Property 1: identical frames never register as changed
func TestIdenticalFramesUnchanged(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(4, 40).Draw(t, "w")
		h := rapid.IntRange(4, 40).Draw(t, "h")
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := range img.Pix {
			img.Pix[i] = uint8(rapid.IntRange(0, 255).Draw(t, "px"))
		}
		cfg := DefaultConfig()
		cfg.ContourAreaThreshold = rapid.IntRange(0, 100).Draw(t, "area")

		c, err := New(cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		changed, err := c.Compare(wrap(img), wrap(img))
		if err != nil {
			t.Fatalf("Compare: %v", err)
		}
		if changed {
			t.Fatalf("identical %dx%d frames reported as changed", w, h)
		}
	})
}

// Feature: motionwatch, Property 2: differences smaller than the area threshold are ignored
func TestSmallRegionUnchanged(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		area := rapid.IntRange(4, 200).Draw(t, "area")
		bw := rapid.IntRange(1, 12).Draw(t, "bw")
		bh := rapid.IntRange(1, 12).Draw(t, "bh")
		x := rapid.IntRange(0, 20).Draw(t, "x")
		y := rapid.IntRange(0, 20).Draw(t, "y")

		a := grayFrame(32, 32, 100)
		b := grayFrame(32, 32, 100)
		fill(b, image.Rect(x, y, x+bw, y+bh), 180)

		c, err := New(exactConfig(area))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		v, err := c.Diff(wrap(a), wrap(b))
		if err != nil {
			t.Fatalf("Diff: %v", err)
		}

		// The block may be clipped by the frame edge.
		visible := image.Rect(x, y, x+bw, y+bh).Intersect(a.Rect)
		want := visible.Dx()*visible.Dy() >= area
		if v.Changed != want {
			t.Fatalf("block %v (area %d) threshold %d: changed=%v, want %v",
				visible, visible.Dx()*visible.Dy(), area, v.Changed, want)
		}
		if want && (len(v.Regions) != 1 || v.Regions[0] != visible) {
			t.Fatalf("regions = %v, want [%v]", v.Regions, visible)
		}
	})
}

func TestLargeChangeDetectedWithDefaults(t *testing.T) {
	a := grayFrame(120, 120, 40)
	b := grayFrame(120, 120, 40)
	fill(b, image.Rect(30, 30, 90, 90), 220)

	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.Diff(wrap(a), wrap(b))
	if err != nil {
		t.Fatal(err)
	}
	if !v.Changed {
		t.Fatal("expected a change for a 60x60 bright square")
	}
	if len(v.Regions) != 1 {
		t.Fatalf("expected one merged region, got %v", v.Regions)
	}
	if !image.Rect(30, 30, 90, 90).In(v.Regions[0]) {
		t.Errorf("region %v does not cover the changed square", v.Regions[0])
	}
}

func TestSensorNoiseBelowThreshold(t *testing.T) {
	a := grayFrame(64, 64, 120)
	b := grayFrame(64, 64, 120)
	// Noise of 4 levels everywhere stays under the default cutoff of 6.
	for i := range b.Pix {
		if i%3 == 0 {
			b.Pix[i] = 124
		}
	}
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	changed, err := c.Compare(wrap(a), wrap(b))
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("low amplitude noise should not count as motion")
	}
}

func TestDilationMergesNearbyBlobs(t *testing.T) {
	a := grayFrame(40, 30, 0)
	b := grayFrame(40, 30, 0)
	fill(b, image.Rect(10, 10, 14, 14), 255)
	fill(b, image.Rect(16, 10, 20, 14), 255)

	separate, err := New(exactConfig(30))
	if err != nil {
		t.Fatal(err)
	}
	v, err := separate.Diff(wrap(a), wrap(b))
	if err != nil {
		t.Fatal(err)
	}
	if v.Changed || len(v.Regions) != 0 {
		t.Fatalf("two 4x4 blobs should stay below an area of 30: %+v", v)
	}

	cfg := exactConfig(30)
	cfg.DilateSize = 3
	cfg.DilateIterations = 1
	merged, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	v, err = merged.Diff(wrap(a), wrap(b))
	if err != nil {
		t.Fatal(err)
	}
	if !v.Changed {
		t.Fatal("dilation should merge the blobs into one qualifying region")
	}
	if want := image.Rect(9, 9, 21, 15); len(v.Regions) != 1 || v.Regions[0] != want {
		t.Errorf("regions = %v, want [%v]", v.Regions, want)
	}
}

// Feature: motionwatch, Property 3: the comparator is deterministic
func TestDiffDeterministic(t *testing.T) {
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	rapid.Check(t, func(t *rapid.T) {
		a := grayFrame(48, 48, 50)
		b := grayFrame(48, 48, 50)
		n := rapid.IntRange(0, 4).Draw(t, "blocks")
		for i := 0; i < n; i++ {
			x := rapid.IntRange(0, 40).Draw(t, "x")
			y := rapid.IntRange(0, 40).Draw(t, "y")
			fill(b, image.Rect(x, y, x+rapid.IntRange(1, 8).Draw(t, "w"), y+rapid.IntRange(1, 8).Draw(t, "h")), 200)
		}
		v1, err := c.Diff(wrap(a), wrap(b))
		if err != nil {
			t.Fatal(err)
		}
		v2, err := c.Diff(wrap(a), wrap(b))
		if err != nil {
			t.Fatal(err)
		}
		if v1.Changed != v2.Changed || len(v1.Regions) != len(v2.Regions) {
			t.Fatalf("verdicts differ: %+v vs %+v", v1, v2)
		}
		for i := range v1.Regions {
			if v1.Regions[i] != v2.Regions[i] {
				t.Fatalf("region %d differs: %v vs %v", i, v1.Regions[i], v2.Regions[i])
			}
		}
	})
}

func TestDiffErrors(t *testing.T) {
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Diff(wrap(grayFrame(10, 10, 0)), wrap(grayFrame(12, 10, 0)))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("expected ErrSizeMismatch, got %v", err)
	}
	if _, err := c.Diff(frame.Frame{}, wrap(grayFrame(10, 10, 0))); err == nil {
		t.Error("expected an error for an empty frame")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	bad := Config{BlurSize: 2, DilateSize: 0, DilateIterations: -1, Threshold: 300, ContourAreaThreshold: -5}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if _, err := New(bad); err == nil {
		t.Error("New should reject an invalid config")
	}
}

func TestStructuringElement(t *testing.T) {
	if got := len(structuringElement(ShapeRect, 3)); got != 9 {
		t.Errorf("rect 3x3: got %d offsets, want 9", got)
	}
	if got := len(structuringElement(ShapeEllipse, 1)); got != 1 {
		t.Errorf("ellipse 1x1: got %d offsets, want 1", got)
	}
	// A 5x5 ellipse drops the four corners of each outer row.
	if got := len(structuringElement(ShapeEllipse, 5)); got >= 25 || got < 13 {
		t.Errorf("ellipse 5x5: got %d offsets", got)
	}
}

func TestParseShape(t *testing.T) {
	for in, want := range map[string]Shape{"": ShapeEllipse, "ellipse": ShapeEllipse, "RECT": ShapeRect} {
		got, err := ParseShape(in)
		if err != nil || got != want {
			t.Errorf("ParseShape(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseShape("cross"); err == nil {
		t.Error("expected an error for an unknown shape")
	}
}

func TestNewEngine(t *testing.T) {
	e, err := NewEngine("native", DefaultConfig())
	if err != nil || e == nil {
		t.Fatalf("native engine: %v", err)
	}
	if _, err := NewEngine("bogus", DefaultConfig()); err == nil {
		t.Error("expected an error for an unknown engine")
	}
}
