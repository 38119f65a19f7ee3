// Package geometry implements the annotation coordinate model. Pin positions
// are stored as percentages of the rendered document area so they survive
// zoom, pan and resize: the zoom/pan transform is applied to the container,
// never to the children's coordinate space, so event coordinates relative to
// the untransformed content box are resolution independent.
package geometry

import "math"

// Point is a normalized annotation position, both axes in 0-100.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is the rendered document's untransformed bounding box.
type Box struct {
	Width  float64
	Height float64
}

// Normalize converts a pointer position relative to the content box into a
// percentage point, clamped to 0-100. A degenerate box yields the origin.
func Normalize(px, py float64, box Box) Point {
	if box.Width <= 0 || box.Height <= 0 {
		return Point{}
	}
	return Point{
		X: clamp(px / box.Width * 100),
		Y: clamp(py / box.Height * 100),
	}
}

// Denormalize maps a stored point back into box coordinates.
func Denormalize(p Point, box Box) (px, py float64) {
	return p.X / 100 * box.Width, p.Y / 100 * box.Height
}

// PageVisible reports whether a comment bound to pageNumber can be shown on
// a document with pageCount pages. Comments on pages that no longer exist
// (the document was replaced by a shorter one) are simply not shown.
func PageVisible(pageNumber, pageCount int) bool {
	if pageNumber < 1 {
		return false
	}
	if pageCount <= 0 {
		// Non-paginated media: only page 1 is addressable.
		return pageNumber == 1
	}
	return pageNumber <= pageCount
}

func clamp(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}

// GestureTracker distinguishes a pin-placement click from a pan gesture. A
// click counts as placement only if no motion occurred between press and
// release; any intervening movement marks the gesture as a pan and the
// release is suppressed.
type GestureTracker struct {
	pressed bool
	moved   bool
	x, y    float64
	// Slop tolerates sub-pixel jitter; zero means any motion is a pan.
	Slop float64
}

// Press records the start of a gesture at the given position.
func (g *GestureTracker) Press(x, y float64) {
	g.pressed = true
	g.moved = false
	g.x, g.y = x, y
}

// Move records pointer motion while pressed.
func (g *GestureTracker) Move(x, y float64) {
	if !g.pressed || g.moved {
		return
	}
	if math.Abs(x-g.x) > g.Slop || math.Abs(y-g.y) > g.Slop {
		g.moved = true
	}
}

// Release ends the gesture and reports whether it should be accepted as a
// pin-placement click.
func (g *GestureTracker) Release() (placePin bool) {
	placePin = g.pressed && !g.moved
	g.pressed = false
	g.moved = false
	return placePin
}
