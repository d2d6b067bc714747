// Package frame defines the captured video frame passed between the capture
// sources, the comparator, the lifecycle state machine and the clip writer.
package frame

import (
	"image"
	"image/draw"
	"time"
)

// Frame is one captured image. The Image must not be mutated once the frame
// has been handed out; consumers share it freely and call Clone when they
// need a private copy.
type Frame struct {
	Image image.Image
	Seq   uint64    // capture sequence number, starting at 1
	Time  time.Time // capture time
}

// New wraps img as a frame captured at t.
func New(img image.Image, seq uint64, t time.Time) Frame {
	return Frame{Image: img, Seq: seq, Time: t}
}

// Bounds returns the pixel bounds of the frame, or an empty rectangle for a
// frame without an image.
func (f Frame) Bounds() image.Rectangle {
	if f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Bounds().Empty()
}

// Clone returns a deep copy of the frame. Gray images stay gray; everything
// else is copied into an RGBA buffer.
func (f Frame) Clone() Frame {
	if f.Image == nil {
		return f
	}
	b := f.Image.Bounds()
	var dst draw.Image
	if _, ok := f.Image.(*image.Gray); ok {
		dst = image.NewGray(b)
	} else {
		dst = image.NewRGBA(b)
	}
	draw.Draw(dst, b, f.Image, b.Min, draw.Src)
	return Frame{Image: dst, Seq: f.Seq, Time: f.Time}
}
