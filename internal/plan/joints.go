package plan

import "bauplan/api/internal/geo"

// Joints derives the rendering-only joint records for a storey: wherever
// exactly two walls meet endpoint-to-endpoint, the cut is mitred when they
// turn a corner with equal thickness and butt otherwise. Junctions of
// three or more walls get no joint record; the renderer draws them square.
func Joints(walls []Wall, storeyID string, eps float64) []Joint {
	var storeyWalls []Wall
	for _, w := range walls {
		if w.StoreyID == storeyID {
			storeyWalls = append(storeyWalls, w)
		}
	}

	var joints []Joint
	for i := 0; i < len(storeyWalls); i++ {
		for j := i + 1; j < len(storeyWalls); j++ {
			a, b := storeyWalls[i], storeyWalls[j]
			p, ok := sharedEndpoint(a, b, eps)
			if !ok || !exactlyTwoAt(storeyWalls, p, eps) {
				continue
			}
			method := JointButt
			if a.Thickness == b.Thickness && !geo.Collinear(a.Segment(), b.Segment(), eps) {
				method = JointMitred
			}
			joints = append(joints, Joint{WallA: a.ID, WallB: b.ID, At: p, Method: method})
		}
	}
	return joints
}

func sharedEndpoint(a, b Wall, eps float64) (geo.Point, bool) {
	for _, pa := range [2]geo.Point{a.Start, a.End} {
		for _, pb := range [2]geo.Point{b.Start, b.End} {
			if geo.PointsEqual(pa, pb, eps) {
				return pa, true
			}
		}
	}
	return geo.Point{}, false
}

func exactlyTwoAt(walls []Wall, p geo.Point, eps float64) bool {
	count := 0
	for _, w := range walls {
		if geo.PointsEqual(p, w.Start, eps) || geo.PointsEqual(p, w.End, eps) {
			count++
		}
	}
	return count == 2
}
