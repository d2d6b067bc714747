//go:build gocv

package clip

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestToBGRFailsOnEmptyMat(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	_, err := toBGR(empty)
	assert.ErrorContains(t, err, "converting to BGR")
}

func TestGocvEncoderRejectsBadCodec(t *testing.T) {
	err := GocvEncoder{}.Encode(filepath.Join(t.TempDir(), "x.avi"),
		[]image.Image{image.NewRGBA(image.Rect(0, 0, 4, 4))},
		Geometry{Width: 4, Height: 4, FPS: 24, Codec: "H264X", Color: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "four character codec")
}
