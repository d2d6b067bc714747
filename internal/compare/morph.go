package compare

import (
	"image"
	"math"
)

// absDiff returns |a - b| per pixel. Both images share the same size and
// are anchored at the origin.
func absDiff(a, b *image.Gray) *image.Gray {
	out := image.NewGray(a.Rect)
	for i := range a.Pix {
		pa, pb := a.Pix[i], b.Pix[i]
		if pa > pb {
			out.Pix[i] = pa - pb
		} else {
			out.Pix[i] = pb - pa
		}
	}
	return out
}

// threshold turns m into a binary mask in place: pixels above cutoff become
// 255, the rest 0.
func threshold(m *image.Gray, cutoff uint8) {
	for i, p := range m.Pix {
		if p > cutoff {
			m.Pix[i] = 255
		} else {
			m.Pix[i] = 0
		}
	}
}

// structuringElement returns the offsets covered by a size x size kernel
// centred on its anchor. The ellipse follows the usual raster construction:
// each row spans round(c*sqrt(1-dy^2/r^2)) pixels either side of the centre.
func structuringElement(shape Shape, size int) []image.Point {
	r := size / 2
	var pts []image.Point
	for dy := -r; dy <= r; dy++ {
		dx := r
		if shape == ShapeEllipse && r > 0 {
			dx = int(math.Round(float64(r) * math.Sqrt(float64(r*r-dy*dy)/float64(r*r))))
		}
		for x := -dx; x <= dx; x++ {
			pts = append(pts, image.Pt(x, dy))
		}
	}
	return pts
}

// dilate returns the binary dilation of m by the given element. Offsets
// falling outside the image are ignored.
func dilate(m *image.Gray, element []image.Point) *image.Gray {
	out := image.NewGray(m.Rect)
	w, h := m.Rect.Dx(), m.Rect.Dy()
	for y := 0; y < h; y++ {
		row := y * m.Stride
		for x := 0; x < w; x++ {
			if m.Pix[row+x] == 0 {
				continue
			}
			for _, o := range element {
				nx, ny := x+o.X, y+o.Y
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				out.Pix[ny*out.Stride+nx] = 255
			}
		}
	}
	return out
}

// regions labels the 8-connected foreground regions of m and returns their
// bounding boxes. Only the outer extent matters, so holes are irrelevant.
func regions(m *image.Gray) []image.Rectangle {
	w, h := m.Rect.Dx(), m.Rect.Dy()
	seen := make([]bool, w*h)
	var out []image.Rectangle
	var stack []int

	for start := 0; start < w*h; start++ {
		sx, sy := start%w, start/w
		if seen[start] || m.Pix[sy*m.Stride+sx] == 0 {
			continue
		}
		box := image.Rect(sx, sy, sx+1, sy+1)
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			box = box.Union(image.Rect(x, y, x+1, y+1))
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if seen[j] || m.Pix[ny*m.Stride+nx] == 0 {
						continue
					}
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		out = append(out, box)
	}
	return out
}
