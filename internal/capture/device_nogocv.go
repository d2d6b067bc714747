//go:build !gocv

package capture

import "fmt"

// OpenDevice needs OpenCV; rebuild with -tags gocv.
func OpenDevice(target string, width, height int) (Source, error) {
	return nil, fmt.Errorf("device %q: %w (rebuild with -tags gocv)", target, ErrUnsupported)
}
