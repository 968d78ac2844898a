package dom

import "math"

// Rect is an axis-aligned box in viewport coordinates (CSS pixels).
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Area is zero for degenerate or negative boxes.
func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Intersect returns the overlap of r and o, or the zero Rect when they
// do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x1 := math.Max(r.X, o.X)
	y1 := math.Max(r.Y, o.Y)
	x2 := math.Min(r.Right(), o.Right())
	y2 := math.Min(r.Bottom(), o.Bottom())
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func (r Rect) Intersects(o Rect) bool {
	return r.Intersect(o).Area() > 0
}

// Expand grows r by d on every side.
func (r Rect) Expand(d float64) Rect {
	return Rect{X: r.X - d, Y: r.Y - d, Width: r.Width + 2*d, Height: r.Height + 2*d}
}

// ContainmentPct is the overlap of a and b divided by the smaller of the
// two areas. It is 0 when either box is empty.
func ContainmentPct(a, b Rect) float64 {
	smaller := math.Min(a.Area(), b.Area())
	if smaller == 0 {
		return 0
	}
	return a.Intersect(b).Area() / smaller
}

// coverage is the share of a's area that b covers.
func coverage(a, b Rect) float64 {
	area := a.Area()
	if area == 0 {
		return 0
	}
	return a.Intersect(b).Area() / area
}
