package compare

import (
	"errors"
	"fmt"
)

// ErrEngineUnavailable is returned for an engine the binary was built without.
var ErrEngineUnavailable = errors.New("comparison engine not compiled in")

// NewEngine builds the named engine: "native" (the default) or "gocv".
func NewEngine(name string, cfg Config) (Engine, error) {
	switch name {
	case "", "native":
		return New(cfg)
	case "gocv":
		return newGocvEngine(cfg)
	}
	return nil, fmt.Errorf("unknown comparison engine %q", name)
}
