package clip

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/motionwatch/internal/frame"
)

type fakeEncoder struct {
	calls []encodeCall
	err   error
}

type encodeCall struct {
	path   string
	frames []image.Image
	g      Geometry
}

func (e *fakeEncoder) Encode(path string, frames []image.Image, g Geometry) error {
	e.calls = append(e.calls, encodeCall{path: path, frames: frames, g: g})
	return e.err
}

var t0 = time.Date(2024, 3, 9, 18, 30, 5, 0, time.UTC)

func solid(w, h int, c uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = c
	}
	return img
}

func frames(n int, w, h int, step time.Duration) []frame.Frame {
	out := make([]frame.Frame, n)
	for i := range out {
		out[i] = frame.New(solid(w, h, uint8(i*10)), uint64(i+1), t0.Add(time.Duration(i)*step))
	}
	return out
}

func testSettings(t *testing.T) Settings {
	s := DefaultSettings()
	s.Folder = filepath.Join(t.TempDir(), "clips")
	s.FilenameLayout = "2006-01-02T15-04-05.avi"
	return s
}

func TestSaveEmpty(t *testing.T) {
	w, err := NewWriter(testSettings(t), &fakeEncoder{}, nil)
	require.NoError(t, err)
	_, err = w.Save(nil)
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestSaveDeriveResize(t *testing.T) {
	enc := &fakeEncoder{}
	s := testSettings(t)
	w, err := NewWriter(s, enc, nil)
	require.NoError(t, err)

	in := frames(3, 8, 6, 100*time.Millisecond)
	in[2] = frame.New(solid(16, 12, 200), 3, in[2].Time)

	path, err := w.Save(in)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Folder, "2024-03-09T18-30-05.avi"), path)
	assert.FileExists(t, path)

	require.Len(t, enc.calls, 1)
	call := enc.calls[0]
	assert.Equal(t, path, call.path)
	assert.Equal(t, Geometry{Width: 8, Height: 6, FPS: 24, Color: true, Codec: "DIVX"}, call.g)
	require.Len(t, call.frames, 3)
	for _, img := range call.frames {
		assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())
		assert.IsType(t, &image.RGBA{}, img)
	}

	m, err := ReadManifest(ManifestPath(path))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Frames)
	assert.Equal(t, path, m.Path)
	assert.True(t, m.Start.Equal(t0))
	assert.Equal(t, 200*time.Millisecond, m.Duration())
	assert.NotEmpty(t, m.ID)
}

func TestSaveNameCollision(t *testing.T) {
	enc := &fakeEncoder{}
	s := testSettings(t)
	s.Manifest = false
	w, err := NewWriter(s, enc, nil)
	require.NoError(t, err)

	in := frames(2, 4, 4, time.Second)
	first, err := w.Save(in)
	require.NoError(t, err)
	second, err := w.Save(in)
	require.NoError(t, err)
	third, err := w.Save(in)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-09T18-30-05.avi", filepath.Base(first))
	assert.Equal(t, "2024-03-09T18-30-05-1.avi", filepath.Base(second))
	assert.Equal(t, "2024-03-09T18-30-05-2.avi", filepath.Base(third))
	assert.NoFileExists(t, ManifestPath(first))
}

func TestSaveStaticRejectsMismatch(t *testing.T) {
	s := testSettings(t)
	s.Size = SizeStatic
	s.Width, s.Height = 4, 4
	w, err := NewWriter(s, &fakeEncoder{}, nil)
	require.NoError(t, err)

	_, err = w.Save(frames(2, 8, 8, time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "8x8")
}

func TestSaveResizeToStaticSize(t *testing.T) {
	enc := &fakeEncoder{}
	s := testSettings(t)
	s.Size = SizeResize
	s.Width, s.Height = 4, 2
	s.Resampling = Nearest
	w, err := NewWriter(s, enc, nil)
	require.NoError(t, err)

	_, err = w.Save(frames(2, 8, 4, time.Second))
	require.NoError(t, err)
	require.Len(t, enc.calls, 1)
	for _, img := range enc.calls[0].frames {
		assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
	}
}

func TestSaveGray(t *testing.T) {
	enc := &fakeEncoder{}
	s := testSettings(t)
	s.Color = false
	w, err := NewWriter(s, enc, nil)
	require.NoError(t, err)

	_, err = w.Save(frames(2, 3, 3, time.Second))
	require.NoError(t, err)
	for _, img := range enc.calls[0].frames {
		assert.IsType(t, &image.Gray{}, img)
	}
	assert.False(t, enc.calls[0].g.Color)
}

func TestSaveEncoderFailureRemovesFile(t *testing.T) {
	enc := &fakeEncoder{err: errors.New("codec missing")}
	s := testSettings(t)
	w, err := NewWriter(s, enc, nil)
	require.NoError(t, err)

	_, err = w.Save(frames(1, 2, 2, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "codec missing")

	entries, err := os.ReadDir(s.Folder)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeriveFPS(t *testing.T) {
	assert.Equal(t, 24.0, DeriveFPS(frames(1, 1, 1, time.Second), 24))
	assert.Equal(t, 24.0, DeriveFPS(frames(3, 1, 1, 0), 24))
	assert.InDelta(t, 5.0, DeriveFPS(frames(10, 1, 1, 200*time.Millisecond), 24), 0.6)

	enc := &fakeEncoder{}
	s := testSettings(t)
	s.FPSMode = FPSDerived
	w, err := NewWriter(s, enc, nil)
	require.NoError(t, err)
	_, err = w.Save(frames(5, 2, 2, 250*time.Millisecond))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, enc.calls[0].g.FPS, 0.001)
}

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	bad := Settings{FilenameLayout: "clip.avi", FPSMode: "sometimes", Size: SizeStatic, Resampling: "blurry"}
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"folder", "no time fields", "fps must be positive", "fps mode", "width and height", "resampling"} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = NewWriter(bad, &fakeEncoder{}, nil)
	assert.Error(t, err)
	_, err = NewWriter(DefaultSettings(), nil, nil)
	assert.Error(t, err)
}

func TestFFmpegArgs(t *testing.T) {
	e := &FFmpegEncoder{}
	args := e.Args("out/a.avi", Geometry{Width: 640, Height: 480, FPS: 24, Color: true, Codec: "DIVX"})
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f rawvideo -pix_fmt rgba -s 640x480 -r 24 -i -")
	assert.Contains(t, joined, "-c:v mpeg4")
	assert.Equal(t, "out/a.avi", args[len(args)-1])

	gray := strings.Join(e.Args("b.mkv", Geometry{Width: 2, Height: 2, FPS: 12.5, Codec: "ffv1"}), " ")
	assert.Contains(t, gray, "-pix_fmt gray")
	assert.Contains(t, gray, "-r 12.5")
	assert.Contains(t, gray, "-c:v ffv1")
}

func TestFFmpegEncodeStreamsRawFrames(t *testing.T) {
	var (
		gotName string
		gotArgs []string
		stdin   bytes.Buffer
	)
	e := &FFmpegEncoder{
		Binary: "/opt/ffmpeg",
		Runner: func(r io.Reader, name string, args ...string) error {
			gotName, gotArgs = name, args
			_, err := io.Copy(&stdin, r)
			return err
		},
	}

	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(2, 1, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	g := Geometry{Width: 3, Height: 2, FPS: 24, Color: true}
	require.NoError(t, e.Encode("x.avi", []image.Image{img, img}, g))

	assert.Equal(t, "/opt/ffmpeg", gotName)
	assert.Equal(t, "x.avi", gotArgs[len(gotArgs)-1])
	require.Equal(t, 2*3*2*4, stdin.Len())
	assert.Equal(t, []byte{1, 2, 3, 255}, stdin.Bytes()[20:24])
}

func TestFFmpegEncodeRunnerFailure(t *testing.T) {
	e := &FFmpegEncoder{
		Runner: func(io.Reader, string, ...string) error { return errors.New("exit status 1") },
	}
	frames := make([]image.Image, 50)
	for i := range frames {
		frames[i] = image.NewRGBA(image.Rect(0, 0, 64, 64))
	}
	err := e.Encode("x.avi", frames, Geometry{Width: 64, Height: 64, FPS: 24, Color: true})
	assert.EqualError(t, err, "exit status 1")
}

func TestFFmpegEncodeRejectsWrongLayout(t *testing.T) {
	e := &FFmpegEncoder{
		Runner: func(r io.Reader, _ string, _ ...string) error {
			_, err := io.Copy(io.Discard, r)
			return err
		},
	}
	err := e.Encode("x.avi", []image.Image{image.NewGray(image.Rect(0, 0, 2, 2))}, Geometry{Width: 2, Height: 2, Color: true})
	assert.ErrorContains(t, err, "does not match")
}

func TestNewEncoder(t *testing.T) {
	enc, err := NewEncoder("", "ffmpeg6")
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg6", enc.(*FFmpegEncoder).Binary)

	_, err = NewEncoder("vhs", "")
	assert.Error(t, err)
}
