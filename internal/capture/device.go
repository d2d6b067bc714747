//go:build gocv

package capture

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/fakeyudi/motionwatch/internal/frame"
)

// Device reads frames from a camera or stream through OpenCV.
type Device struct {
	cap *gocv.VideoCapture
	mat gocv.Mat
	seq uint64
}

// OpenDevice opens target, a camera index ("0") or a stream URL. A
// positive width and height are requested from the driver.
func OpenDevice(target string, width, height int) (Source, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if idx, convErr := strconv.Atoi(target); convErr == nil || target == "" {
		vc, err = gocv.VideoCaptureDevice(idx)
	} else {
		vc, err = gocv.OpenVideoCapture(target)
	}
	if err != nil {
		return nil, fmt.Errorf("opening capture device %q: %w", target, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture device %q did not open", target)
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	return &Device{cap: vc, mat: gocv.NewMat()}, nil
}

// Next implements Source.
func (d *Device) Next(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	if ok := d.cap.Read(&d.mat); !ok {
		return frame.Frame{}, ErrEndOfStream
	}
	if d.mat.Empty() {
		return frame.Frame{}, fmt.Errorf("capture device returned an empty frame")
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return frame.Frame{}, fmt.Errorf("converting frame: %w", err)
	}
	d.seq++
	return frame.New(img, d.seq, time.Now()), nil
}

// Close implements Source.
func (d *Device) Close() error {
	d.mat.Close()
	return d.cap.Close()
}
