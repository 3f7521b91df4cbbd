package geo

import (
	"math"
	"testing"
)

const eps = 1.0

func TestIntersectCrossing(t *testing.T) {
	a := Segment{A: Point{0, 0}, B: Point{1000, 0}}
	b := Segment{A: Point{500, -500}, B: Point{500, 500}}

	p, ok := Intersect(a, b)
	if !ok {
		t.Fatal("expected an intersection")
	}
	if !PointsEqual(p, Point{500, 0}, 1e-9) {
		t.Errorf("expected (500,0), got (%v,%v)", p.X, p.Y)
	}
}

func TestIntersectParallel(t *testing.T) {
	a := Segment{A: Point{0, 0}, B: Point{1000, 0}}
	b := Segment{A: Point{0, 100}, B: Point{1000, 100}}

	if _, ok := Intersect(a, b); ok {
		t.Error("parallel segments must not intersect")
	}
}

func TestIntersectOutsideRange(t *testing.T) {
	a := Segment{A: Point{0, 0}, B: Point{1000, 0}}
	b := Segment{A: Point{2000, -500}, B: Point{2000, 500}}

	if _, ok := Intersect(a, b); ok {
		t.Error("segments whose lines cross beyond their extents must not intersect")
	}
}

func TestCollinear(t *testing.T) {
	cases := []struct {
		name string
		a, b Segment
		want bool
	}{
		{
			name: "same line, disjoint spans",
			a:    Segment{A: Point{0, 0}, B: Point{500, 0}},
			b:    Segment{A: Point{500, 0}, B: Point{1000, 0}},
			want: true,
		},
		{
			name: "opposite direction",
			a:    Segment{A: Point{0, 0}, B: Point{500, 0}},
			b:    Segment{A: Point{1000, 0}, B: Point{500, 0}},
			want: true,
		},
		{
			name: "parallel but offset",
			a:    Segment{A: Point{0, 0}, B: Point{500, 0}},
			b:    Segment{A: Point{0, 100}, B: Point{500, 100}},
			want: false,
		},
		{
			name: "perpendicular",
			a:    Segment{A: Point{0, 0}, B: Point{500, 0}},
			b:    Segment{A: Point{0, 0}, B: Point{0, 500}},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Collinear(tc.a, tc.b, eps); got != tc.want {
				t.Errorf("Collinear = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProjectOntoSegmentClamps(t *testing.T) {
	s := Segment{A: Point{0, 0}, B: Point{1000, 0}}

	p := ProjectOntoSegment(Point{-200, 50}, s)
	if !PointsEqual(p, Point{0, 0}, 1e-9) {
		t.Errorf("projection before the start must clamp to A, got %v", p)
	}

	p = ProjectOntoSegment(Point{400, 300}, s)
	if !PointsEqual(p, Point{400, 0}, 1e-9) {
		t.Errorf("expected perpendicular foot (400,0), got %v", p)
	}
}

func TestOnSegmentBody(t *testing.T) {
	s := Segment{A: Point{0, 0}, B: Point{1000, 0}}

	if !OnSegmentBody(Point{500, 0}, s, eps) {
		t.Error("midpoint must be on the body")
	}
	if OnSegmentBody(Point{0, 0}, s, eps) {
		t.Error("an endpoint is not on the body")
	}
	if OnSegmentBody(Point{500, 10}, s, eps) {
		t.Error("a point off the segment is not on the body")
	}
}

func TestSnapPrefersEndpointOverBody(t *testing.T) {
	segs := []Segment{{A: Point{0, 0}, B: Point{1000, 0}}}

	// Close to both the body and the A endpoint: the endpoint wins even
	// though the body projection is nearer.
	res := Snap(Point{4, 8}, segs, 10)
	if res.Kind != SnapEndpoint {
		t.Fatalf("expected endpoint snap, got %s", res.Kind)
	}
	if !PointsEqual(res.Point, Point{0, 0}, 1e-9) {
		t.Errorf("expected snap to (0,0), got %v", res.Point)
	}
}

func TestSnapToBody(t *testing.T) {
	segs := []Segment{{A: Point{0, 0}, B: Point{1000, 0}}}

	res := Snap(Point{500, 6}, segs, 10)
	if res.Kind != SnapBody {
		t.Fatalf("expected body snap, got %s", res.Kind)
	}
	if !PointsEqual(res.Point, Point{500, 0}, 1e-9) {
		t.Errorf("expected snap to (500,0), got %v", res.Point)
	}
}

func TestSnapOutOfTolerance(t *testing.T) {
	segs := []Segment{{A: Point{0, 0}, B: Point{1000, 0}}}

	raw := Point{500, 50}
	res := Snap(raw, segs, 10)
	if res.Kind != SnapNone {
		t.Fatalf("expected no snap, got %s", res.Kind)
	}
	if res.Point != raw {
		t.Errorf("raw point must pass through unchanged, got %v", res.Point)
	}
}

func TestPointInPolygon(t *testing.T) {
	square := []Point{{0, 0}, {1000, 0}, {1000, 1000}, {0, 1000}}

	if !PointInPolygon(Point{500, 500}, square) {
		t.Error("center must be inside")
	}
	if PointInPolygon(Point{1500, 500}, square) {
		t.Error("point beyond the right edge must be outside")
	}
}

func TestDist(t *testing.T) {
	if d := Dist(Point{0, 0}, Point{3, 4}); math.Abs(d-5) > 1e-12 {
		t.Errorf("expected 5, got %v", d)
	}
}
