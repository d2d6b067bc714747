package clip

import (
	"errors"
	"fmt"
)

// ErrEncoderUnavailable is returned for an encoder this binary was built without.
var ErrEncoderUnavailable = errors.New("clip: encoder not compiled in")

// NewEncoder returns the encoder registered under name: "ffmpeg" (default)
// or "gocv".
func NewEncoder(name, ffmpegBinary string) (Encoder, error) {
	switch name {
	case "", "ffmpeg":
		return &FFmpegEncoder{Binary: ffmpegBinary}, nil
	case "gocv", "opencv":
		return newGocvEncoder()
	}
	return nil, fmt.Errorf("unknown encoder %q", name)
}
