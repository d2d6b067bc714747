//go:build !gocv

package compare

import "fmt"

func newGocvEngine(Config) (Engine, error) {
	return nil, fmt.Errorf("gocv: %w (rebuild with -tags gocv)", ErrEngineUnavailable)
}
