package geometry

import (
	"math"
	"testing"
)

func TestNormalizeBasics(t *testing.T) {
	box := Box{Width: 800, Height: 600}
	p := Normalize(400, 150, box)
	if p.X != 50 || p.Y != 25 {
		t.Fatalf("Normalize(400,150) = %+v, want {50 25}", p)
	}
}

func TestNormalizeClamps(t *testing.T) {
	box := Box{Width: 100, Height: 100}
	p := Normalize(-10, 250, box)
	if p.X != 0 || p.Y != 100 {
		t.Fatalf("Normalize out of bounds = %+v, want {0 100}", p)
	}
}

func TestNormalizeDegenerateBox(t *testing.T) {
	if p := Normalize(10, 10, Box{}); p != (Point{}) {
		t.Fatalf("degenerate box should yield origin, got %+v", p)
	}
}

// Placing a pin at equivalent content-box positions under different zoom and
// pan combinations must store the same percentages: only the box-relative
// position matters, never the container transform.
func TestCoordinateStabilityAcrossZoomAndPan(t *testing.T) {
	box := Box{Width: 1000, Height: 750}
	contentX, contentY := 620.0, 90.0

	base := Normalize(contentX, contentY, box)

	for _, tc := range []struct {
		scale          float64
		panX, panY     float64
	}{
		{1.0, 0, 0},
		{2.5, -300, 120},
		{0.5, 40, -80},
	} {
		// Viewport position under the transform, mapped back to the
		// untransformed content box before normalization.
		viewX := contentX*tc.scale + tc.panX
		viewY := contentY*tc.scale + tc.panY
		got := Normalize((viewX-tc.panX)/tc.scale, (viewY-tc.panY)/tc.scale, box)
		if math.Abs(got.X-base.X) > 1e-9 || math.Abs(got.Y-base.Y) > 1e-9 {
			t.Fatalf("scale=%v pan=(%v,%v): got %+v, want %+v", tc.scale, tc.panX, tc.panY, got, base)
		}
	}
}

func TestDenormalizeRoundTrip(t *testing.T) {
	box := Box{Width: 640, Height: 480}
	p := Normalize(320, 120, box)
	x, y := Denormalize(p, box)
	if math.Abs(x-320) > 1e-9 || math.Abs(y-120) > 1e-9 {
		t.Fatalf("round trip = (%v,%v), want (320,120)", x, y)
	}
}

func TestPageVisible(t *testing.T) {
	tests := []struct {
		page, count int
		want        bool
	}{
		{1, 5, true},
		{5, 5, true},
		{6, 5, false}, // document replaced by a shorter one
		{0, 5, false},
		{1, 0, true}, // non-paginated media
		{2, 0, false},
	}
	for _, tc := range tests {
		if got := PageVisible(tc.page, tc.count); got != tc.want {
			t.Errorf("PageVisible(%d, %d) = %v, want %v", tc.page, tc.count, got, tc.want)
		}
	}
}

func TestGestureClickPlacesPin(t *testing.T) {
	var g GestureTracker
	g.Press(10, 10)
	if !g.Release() {
		t.Fatal("motionless press-release must place a pin")
	}
}

func TestGesturePanSuppressesPin(t *testing.T) {
	var g GestureTracker
	g.Press(10, 10)
	g.Move(40, 10)
	g.Move(80, 10)
	if g.Release() {
		t.Fatal("a drag must be treated as a pan, not a pin placement")
	}
	// Tracker resets for the next gesture.
	g.Press(5, 5)
	if !g.Release() {
		t.Fatal("tracker must reset after release")
	}
}

func TestGestureSlopToleratesJitter(t *testing.T) {
	g := GestureTracker{Slop: 3}
	g.Press(10, 10)
	g.Move(12, 11)
	if !g.Release() {
		t.Fatal("motion within slop must still count as a click")
	}
}
