//go:build gocv

package clip

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// GocvEncoder writes clips through OpenCV's VideoWriter.
type GocvEncoder struct{}

func newGocvEncoder() (Encoder, error) {
	return GocvEncoder{}, nil
}

// Encode implements Encoder.
func (GocvEncoder) Encode(path string, frames []image.Image, g Geometry) error {
	codec := g.Codec
	if len(codec) != 4 {
		return fmt.Errorf("opencv needs a four character codec, got %q", codec)
	}
	vw, err := gocv.VideoWriterFile(path, codec, g.FPS, g.Width, g.Height, g.Color)
	if err != nil {
		return fmt.Errorf("opening video writer: %w", err)
	}
	defer vw.Close()
	if !vw.IsOpened() {
		return fmt.Errorf("opencv could not open %s with codec %s", path, codec)
	}

	for i, img := range frames {
		if err := writeFrame(vw, img, g.Color); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

func writeFrame(vw *gocv.VideoWriter, img image.Image, color bool) error {
	if !color {
		gray, ok := img.(*image.Gray)
		if !ok {
			return fmt.Errorf("expected gray pixels, got %T", img)
		}
		m, err := gocv.ImageGrayToMatGray(gray)
		if err != nil {
			return err
		}
		defer m.Close()
		return vw.Write(m)
	}

	rgba, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return err
	}
	defer rgba.Close()
	bgr, err := toBGR(rgba)
	if err != nil {
		return err
	}
	defer bgr.Close()
	return vw.Write(bgr)
}

// toBGR returns a BGR copy of an RGBA mat; the caller closes it.
func toBGR(rgba gocv.Mat) (gocv.Mat, error) {
	bgr := gocv.NewMat()
	if err := gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR); err != nil {
		bgr.Close()
		return gocv.Mat{}, fmt.Errorf("converting to BGR: %w", err)
	}
	return bgr, nil
}
