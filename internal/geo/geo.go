// Package geo holds the pure 2D primitives the wall network engine is
// built on: segment intersection, collinearity, projection and snapping.
// Everything here is stateless; "no result" outcomes are booleans, never
// errors.
package geo

import "math"

// Point is a position in project length units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is a straight, undirected line segment between two points.
type Segment struct {
	A Point
	B Point
}

func (s Segment) Length() float64 {
	return Dist(s.A, s.B)
}

// Dist returns the Euclidean distance between two points.
func Dist(p, q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PointsEqual reports whether two points are within eps of each other.
func PointsEqual(p, q Point, eps float64) bool {
	return Dist(p, q) < eps
}

// Intersect solves the parametric intersection of two segments. It returns
// false when the direction vectors are parallel or when the solved
// parameters fall outside [0,1] for either segment.
func Intersect(a, b Segment) (Point, bool) {
	rx := a.B.X - a.A.X
	ry := a.B.Y - a.A.Y
	sx := b.B.X - b.A.X
	sy := b.B.Y - b.A.Y

	denom := rx*sy - ry*sx
	if math.Abs(denom) < 1e-12 {
		return Point{}, false
	}

	qpx := b.A.X - a.A.X
	qpy := b.A.Y - a.A.Y
	t := (qpx*sy - qpy*sx) / denom
	u := (qpx*ry - qpy*rx) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Point{}, false
	}
	return Point{X: a.A.X + t*rx, Y: a.A.Y + t*ry}, true
}

// Collinear reports whether two segments lie on the same infinite line:
// their direction vectors must have a near-zero cross product and an
// endpoint of b must lie within eps of the line through a. The angular
// threshold is eps over the longer segment, i.e. the tilt an endpoint
// displaced by eps would introduce.
func Collinear(a, b Segment, eps float64) bool {
	la := a.Length()
	lb := b.Length()
	if la < eps || lb < eps {
		return false
	}
	ax := (a.B.X - a.A.X) / la
	ay := (a.B.Y - a.A.Y) / la
	bx := (b.B.X - b.A.X) / lb
	by := (b.B.Y - b.A.Y) / lb
	if math.Abs(ax*by-ay*bx) > eps/math.Max(la, lb) {
		return false
	}
	return distToLine(b.A, a) < eps
}

// distToLine is the perpendicular distance from p to the infinite line
// through s. Callers guarantee s is non-degenerate.
func distToLine(p Point, s Segment) float64 {
	dx := s.B.X - s.A.X
	dy := s.B.Y - s.A.Y
	length := math.Sqrt(dx*dx + dy*dy)
	return math.Abs(dy*(p.X-s.A.X)-dx*(p.Y-s.A.Y)) / length
}

// param returns the unclamped parametric position of p projected onto s.
func param(p Point, s Segment) float64 {
	dx := s.B.X - s.A.X
	dy := s.B.Y - s.A.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return 0
	}
	return ((p.X-s.A.X)*dx + (p.Y-s.A.Y)*dy) / lenSq
}

// ProjectOntoSegment returns the point on s closest to p (clamped
// parametric projection).
func ProjectOntoSegment(p Point, s Segment) Point {
	t := param(p, s)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return Lerp(s, t)
}

// Lerp returns the point at parametric position t along s.
func Lerp(s Segment, t float64) Point {
	return Point{
		X: s.A.X + t*(s.B.X-s.A.X),
		Y: s.A.Y + t*(s.B.Y-s.A.Y),
	}
}

// OnSegmentBody reports whether p lies on the interior of s: its clamped
// projection equals p within eps and the parametric position is strictly
// between the endpoints. A point at either endpoint is not "on the body".
func OnSegmentBody(p Point, s Segment, eps float64) bool {
	if !PointsEqual(ProjectOntoSegment(p, s), p, eps) {
		return false
	}
	return !PointsEqual(p, s.A, eps) && !PointsEqual(p, s.B, eps)
}

// SnapKind says what a raw input point resolved to.
type SnapKind string

const (
	SnapEndpoint SnapKind = "endpoint"
	SnapBody     SnapKind = "body"
	SnapNone     SnapKind = "none"
)

// SnapResult is the outcome of resolving a raw input point against a set
// of segments.
type SnapResult struct {
	Point Point
	Kind  SnapKind
	Index int // index of the matched segment, -1 for SnapNone
}

// Snap resolves p against segs: the nearest segment endpoint within tol
// wins, else the nearest point on any segment body within tol, else the
// raw point unchanged.
func Snap(p Point, segs []Segment, tol float64) SnapResult {
	best := SnapResult{Point: p, Kind: SnapNone, Index: -1}
	bestDist := tol

	for i, s := range segs {
		for _, end := range [2]Point{s.A, s.B} {
			if d := Dist(p, end); d < bestDist {
				best = SnapResult{Point: end, Kind: SnapEndpoint, Index: i}
				bestDist = d
			}
		}
	}
	if best.Kind == SnapEndpoint {
		return best
	}

	for i, s := range segs {
		proj := ProjectOntoSegment(p, s)
		if d := Dist(p, proj); d < bestDist {
			best = SnapResult{Point: proj, Kind: SnapBody, Index: i}
			bestDist = d
		}
	}
	return best
}

// PointInPolygon reports whether p is inside the closed polygon poly using
// the even-odd ray casting rule.
func PointInPolygon(p Point, poly []Point) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		pi, pj := poly[i], poly[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			x := pi.X + (p.Y-pi.Y)/(pj.Y-pi.Y)*(pj.X-pi.X)
			if p.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
