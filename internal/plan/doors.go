package plan

import "bauplan/api/internal/geo"

// DoorUpdate reattaches a door to a replacement wall at a recomputed
// parametric position.
type DoorUpdate struct {
	DoorID   string
	WallID   string
	Position float64
}

// RevalidateDoors checks every door against the network after a structural
// edit. A door whose wall survived is untouched. A door whose wall was
// replaced is reattached to the piece now under its world position (split
// and merge both land here). A door whose position no longer lies on any
// wall is dropped.
func RevalidateDoors(doors []Door, before, after []Wall, eps float64) (updates []DoorUpdate, removed []string) {
	for _, d := range doors {
		if _, ok := FindWall(after, d.WallID); ok {
			continue
		}
		old, ok := FindWall(before, d.WallID)
		if !ok {
			removed = append(removed, d.ID)
			continue
		}
		at := geo.Lerp(old.Segment(), d.Position)

		host, ok := wallUnder(after, at, old.StoreyID, eps)
		if !ok {
			removed = append(removed, d.ID)
			continue
		}
		seg := host.Segment()
		t := geo.Dist(seg.A, geo.ProjectOntoSegment(at, seg)) / seg.Length()
		updates = append(updates, DoorUpdate{DoorID: d.ID, WallID: host.ID, Position: t})
	}
	return updates, removed
}

// wallUnder finds a wall on the storey whose segment passes within eps of
// p, preferring body contact over endpoint contact so a door never ends up
// attached at a wall seam.
func wallUnder(walls []Wall, p geo.Point, storeyID string, eps float64) (Wall, bool) {
	var atSeam *Wall
	for i, w := range walls {
		if w.StoreyID != storeyID {
			continue
		}
		seg := w.Segment()
		if !geo.PointsEqual(geo.ProjectOntoSegment(p, seg), p, eps) {
			continue
		}
		if geo.OnSegmentBody(p, seg, eps) {
			return w, true
		}
		if atSeam == nil {
			atSeam = &walls[i]
		}
	}
	if atSeam != nil {
		return *atSeam, true
	}
	return Wall{}, false
}
