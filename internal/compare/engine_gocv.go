//go:build gocv

package compare

func newGocvEngine(cfg Config) (Engine, error) {
	return NewGocv(cfg)
}
