//go:build !gocv

package clip

import "fmt"

func newGocvEncoder() (Encoder, error) {
	return nil, fmt.Errorf("gocv: %w (rebuild with -tags gocv)", ErrEncoderUnavailable)
}
