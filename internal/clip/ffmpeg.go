package clip

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Runner starts name with args, streams stdin into it and waits for it to
// exit. The abstraction lets tests capture the encoder invocation.
type Runner func(stdin io.Reader, name string, args ...string) error

// defaultRunner runs the command as a real subprocess.
func defaultRunner(stdin io.Reader, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
			msg = msg[i+1:]
		}
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// FFmpegEncoder pipes raw frames into an ffmpeg subprocess.
type FFmpegEncoder struct {
	Binary string // defaults to "ffmpeg"
	Runner Runner // if nil, runs the real binary
}

// codecs maps FOURCC codes to ffmpeg encoder names. Anything else is
// handed to ffmpeg unchanged.
var codecs = map[string]string{
	"DIVX": "mpeg4",
	"XVID": "libxvid",
	"MJPG": "mjpeg",
	"MP4V": "mpeg4",
	"H264": "libx264",
	"AVC1": "libx264",
	"PIM1": "mpeg1video",
}

// Args returns the ffmpeg command line for a clip at path.
func (e *FFmpegEncoder) Args(path string, g Geometry) []string {
	pixFmt := "rgba"
	if !g.Color {
		pixFmt = "gray"
	}
	codec := g.Codec
	if c, ok := codecs[strings.ToUpper(codec)]; ok {
		codec = c
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"-s", fmt.Sprintf("%dx%d", g.Width, g.Height),
		"-r", strconv.FormatFloat(g.FPS, 'f', -1, 64),
		"-i", "-",
	}
	if codec != "" {
		args = append(args, "-c:v", codec)
	}
	return append(args, "-y", path)
}

// Encode implements Encoder.
func (e *FFmpegEncoder) Encode(path string, frames []image.Image, g Geometry) error {
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	run := e.Runner
	if run == nil {
		run = defaultRunner
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeRaw(pw, frames, g))
	}()
	err := run(pr, bin, e.Args(path, g)...)
	pr.Close()
	return err
}

// writeRaw streams frames as packed rows with no padding.
func writeRaw(w io.Writer, frames []image.Image, g Geometry) error {
	for i, img := range frames {
		var pix []byte
		var stride, bpp int
		switch p := img.(type) {
		case *image.RGBA:
			pix, stride, bpp = p.Pix, p.Stride, 4
		case *image.Gray:
			pix, stride, bpp = p.Pix, p.Stride, 1
		default:
			return fmt.Errorf("frame %d: unsupported pixel layout %T", i, img)
		}
		if (bpp == 4) != g.Color {
			return fmt.Errorf("frame %d: pixel layout %T does not match color=%t", i, img, g.Color)
		}
		b := img.Bounds()
		if b.Dx() != g.Width || b.Dy() != g.Height {
			return fmt.Errorf("frame %d is %dx%d, stream is %dx%d", i, b.Dx(), b.Dy(), g.Width, g.Height)
		}
		row := g.Width * bpp
		for y := 0; y < g.Height; y++ {
			if _, err := w.Write(pix[y*stride : y*stride+row]); err != nil {
				return err
			}
		}
	}
	return nil
}
