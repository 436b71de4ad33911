// Package region holds the pixel-space rectangle model shared by the scanner,
// the compositor and the API, and the merge pass that collapses overlapping
// detections into covering regions.
package region

import "fmt"

// Region is an axis-aligned rectangle in source-video pixels, origin top-left.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// String renders the region as WxH+X+Y for logs.
func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.W, r.H, r.X, r.Y)
}

// Right returns the exclusive right edge.
func (r Region) Right() int { return r.X + r.W }

// Bottom returns the exclusive bottom edge.
func (r Region) Bottom() int { return r.Y + r.H }

// Valid reports whether the region satisfies x,y >= 0 and w,h > 0.
func (r Region) Valid() bool {
	return r.X >= 0 && r.Y >= 0 && r.W > 0 && r.H > 0
}

// Overlaps reports whether two boxes intersect. Boxes that share an edge
// count as overlapping; only strict separation on one axis keeps them apart.
func (r Region) Overlaps(o Region) bool {
	return !(r.Right() < o.X ||
		o.Right() < r.X ||
		r.Bottom() < o.Y ||
		o.Bottom() < r.Y)
}

// Union returns the bounding rectangle spanning both regions.
func (r Region) Union(o Region) Region {
	x := min(r.X, o.X)
	y := min(r.Y, o.Y)
	right := max(r.Right(), o.Right())
	bottom := max(r.Bottom(), o.Bottom())
	return Region{X: x, Y: y, W: right - x, H: bottom - y}
}

// Pad grows the region by margin on every side. The low side is clamped at
// zero while width and height always grow by 2*margin.
func (r Region) Pad(margin int) Region {
	return Region{
		X: max(0, r.X-margin),
		Y: max(0, r.Y-margin),
		W: r.W + 2*margin,
		H: r.H + 2*margin,
	}
}

// Clamp restricts the region to a width x height frame. A zero dimension
// leaves that axis unbounded. The result may be invalid when the region lies
// entirely outside the frame.
func (r Region) Clamp(width, height int) Region {
	x0, y0 := max(0, r.X), max(0, r.Y)
	x1, y1 := r.Right(), r.Bottom()
	if width > 0 {
		x1 = min(x1, width)
		x0 = min(x0, width)
	}
	if height > 0 {
		y1 = min(y1, height)
		y0 = min(y0, height)
	}
	return Region{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Scale maps a region drawn on a displayW x displayH surface into a
// videoW x videoH frame, rounding to the nearest pixel.
func (r Region) Scale(displayW, displayH, videoW, videoH int) (Region, error) {
	if displayW <= 0 || displayH <= 0 {
		return Region{}, fmt.Errorf("invalid display size %dx%d", displayW, displayH)
	}
	if videoW <= 0 || videoH <= 0 {
		return Region{}, fmt.Errorf("invalid video size %dx%d", videoW, videoH)
	}
	sx := float64(videoW) / float64(displayW)
	sy := float64(videoH) / float64(displayH)
	return Region{
		X: round(float64(r.X) * sx),
		Y: round(float64(r.Y) * sy),
		W: round(float64(r.W) * sx),
		H: round(float64(r.H) * sy),
	}, nil
}

// Sanitize clamps every region to the frame and drops the ones left empty.
func Sanitize(regions []Region, width, height int) []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		c := r.Clamp(width, height)
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}

func round(v float64) int {
	if v < 0 {
		return -int(-v + 0.5)
	}
	return int(v + 0.5)
}
