package plan

import (
	"sort"

	"bauplan/api/internal/geo"
)

// AddOptions configures AddWall. Thickness and Height may be zero to
// inherit from the network per the resolution order in resolveInherited.
type AddOptions struct {
	StoreyID         string
	Thickness        float64
	Height           float64
	Type             WallType
	Material         string
	Eps              float64
	DefaultThickness float64
	DefaultHeight    float64
}

// AddWall computes the diff that inserts the segment start–end into the
// network. Any existing wall whose body the new segment touches or crosses
// is split at the contact point, the new segment is itself split at every
// crossing and at every existing endpoint lying on its body, and the diff
// contains one create per resulting piece. After the diff is applied no
// wall's interior touches another wall: every contact is
// endpoint-to-endpoint.
func AddWall(walls []Wall, start, end geo.Point, opts AddOptions) (Diff, error) {
	eps := opts.Eps
	if geo.Dist(start, end) <= eps {
		return Diff{}, ErrDegenerateWall
	}

	newSeg := geo.Segment{A: start, B: end}

	type hostSplit struct {
		wall   Wall
		points []geo.Point
	}
	var hosts []hostSplit
	newPoints := []geo.Point{start, end}
	var crossed []Wall

	for _, w := range walls {
		if w.StoreyID != opts.StoreyID {
			continue
		}
		seg := w.Segment()
		var pts []geo.Point

		// New segment starting or ending on this wall's body splits it
		// in two at that point.
		for _, p := range [2]geo.Point{start, end} {
			if geo.OnSegmentBody(p, seg, eps) {
				pts = append(pts, p)
			}
		}

		// A genuine crossing splits both walls.
		if p, ok := geo.Intersect(newSeg, seg); ok {
			inHost := geo.OnSegmentBody(p, seg, eps)
			inNew := geo.OnSegmentBody(p, newSeg, eps)
			if inHost && inNew {
				pts = append(pts, p)
				newPoints = append(newPoints, p)
				crossed = append(crossed, w)
			}
		}

		// An existing endpoint on the new segment's body splits only the
		// new segment, so the contact becomes endpoint-to-endpoint.
		for _, p := range [2]geo.Point{w.Start, w.End} {
			if geo.OnSegmentBody(p, newSeg, eps) {
				newPoints = append(newPoints, p)
			}
		}

		if len(pts) > 0 {
			hosts = append(hosts, hostSplit{wall: w, points: pts})
		}
	}

	thickness, height := resolveInherited(walls, crossed, start, opts)

	proto := Wall{
		StoreyID:  opts.StoreyID,
		Thickness: thickness,
		Height:    height,
		Type:      opts.Type,
		Material:  opts.Material,
	}

	var diff Diff
	var cover []geo.Segment
	deleted := make(map[string]bool)
	for _, h := range hosts {
		pieces := splitIntoSpecs(h.wall, h.wall.Segment(), append(h.points, h.wall.Start, h.wall.End), eps)
		if len(pieces) < 2 {
			// Contact resolved to an endpoint once deduplicated; the
			// host wall stays as it is.
			continue
		}
		diff.Create = append(diff.Create, pieces...)
		diff.Delete = append(diff.Delete, h.wall.ID)
		deleted[h.wall.ID] = true
		for _, p := range pieces {
			cover = append(cover, geo.Segment{A: p.Start, B: p.End})
		}
	}
	for _, w := range walls {
		if w.StoreyID == opts.StoreyID && !deleted[w.ID] {
			cover = append(cover, w.Segment())
		}
	}

	// A new-segment piece lying collinearly on a surviving wall or on a
	// piece just emitted from a split would duplicate that geometry, so
	// it is dropped. Happens when the new segment overlaps an existing
	// wall instead of merely crossing it.
	for _, piece := range splitIntoSpecs(proto, newSeg, newPoints, eps) {
		if coveredByAny(geo.Segment{A: piece.Start, B: piece.End}, cover, eps) {
			continue
		}
		diff.Create = append(diff.Create, piece)
	}
	return diff, nil
}

// coveredByAny reports whether seg lies entirely on one of the segments
// in cover.
func coveredByAny(seg geo.Segment, cover []geo.Segment, eps float64) bool {
	for _, c := range cover {
		if geo.PointsEqual(geo.ProjectOntoSegment(seg.A, c), seg.A, eps) &&
			geo.PointsEqual(geo.ProjectOntoSegment(seg.B, c), seg.B, eps) {
			return true
		}
	}
	return false
}

// resolveInherited fills missing thickness/height by priority: a wall the
// new segment crosses, then a wall connected to the start point, then the
// first wall in the project, then the caller defaults.
func resolveInherited(walls, crossed []Wall, start geo.Point, opts AddOptions) (thickness, height float64) {
	thickness = opts.Thickness
	height = opts.Height
	if thickness > 0 && height > 0 {
		return thickness, height
	}

	var source *Wall
	if len(crossed) > 0 {
		source = &crossed[0]
	} else {
		for i, w := range walls {
			if w.StoreyID != opts.StoreyID {
				continue
			}
			seg := w.Segment()
			if geo.PointsEqual(start, w.Start, opts.Eps) ||
				geo.PointsEqual(start, w.End, opts.Eps) ||
				geo.OnSegmentBody(start, seg, opts.Eps) {
				source = &walls[i]
				break
			}
		}
	}
	if source == nil && len(walls) > 0 {
		source = &walls[0]
	}

	if thickness <= 0 {
		if source != nil {
			thickness = source.Thickness
		} else {
			thickness = opts.DefaultThickness
		}
	}
	if height <= 0 {
		if source != nil {
			height = source.Height
		} else {
			height = opts.DefaultHeight
		}
	}
	return thickness, height
}

// splitIntoSpecs orders the given points along seg and emits one spec per
// consecutive pair, dropping zero-length pieces. proto supplies the
// non-geometric attributes.
func splitIntoSpecs(proto Wall, seg geo.Segment, points []geo.Point, eps float64) []WallSpec {
	sorted := append([]geo.Point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool {
		return geo.Dist(seg.A, sorted[i]) < geo.Dist(seg.A, sorted[j])
	})

	var specs []WallSpec
	prev := sorted[0]
	for _, p := range sorted[1:] {
		if geo.Dist(prev, p) <= eps {
			continue
		}
		specs = append(specs, proto.spec(prev, p))
		prev = p
	}
	return specs
}

// SplitOptions carries the manual-split thresholds.
type SplitOptions struct {
	Eps               float64
	EndpointExclusion float64
	MinLength         float64
}

// SplitWall computes the diff for a user-requested split of one wall at a
// target point. The point must be on the wall body, clear of both
// endpoints, and the wall must be long enough to yield two pieces.
func SplitWall(walls []Wall, wallID string, at geo.Point, opts SplitOptions) (Diff, error) {
	w, ok := FindWall(walls, wallID)
	if !ok {
		return Diff{}, ErrWallNotFound
	}
	seg := w.Segment()
	if seg.Length() < opts.MinLength {
		return Diff{}, ErrWallTooShort
	}
	if geo.Dist(at, w.Start) < opts.EndpointExclusion || geo.Dist(at, w.End) < opts.EndpointExclusion {
		return Diff{}, ErrSplitNearEndpoint
	}
	if !geo.OnSegmentBody(at, seg, opts.Eps) {
		return Diff{}, ErrPointOffWall
	}
	return Diff{
		Create: []WallSpec{w.spec(w.Start, at), w.spec(at, w.End)},
		Delete: []string{w.ID},
	}, nil
}

// CanMerge validates the manual-merge preconditions for two walls:
// identical (type, height, thickness), collinear, and sharing exactly one
// endpoint within tolerance.
func CanMerge(a, b Wall, eps float64) error {
	if a.StoreyID != b.StoreyID || a.Type != b.Type || a.Height != b.Height || a.Thickness != b.Thickness {
		return ErrWallsIncompatible
	}
	if !geo.Collinear(a.Segment(), b.Segment(), eps) {
		return ErrWallsNotCollinear
	}
	if _, _, ok := mergedSpan(a, b, eps); !ok {
		return ErrWallsNotConnected
	}
	return nil
}

// MergedSpec validates a merge and returns the spec of the single wall
// spanning the two non-shared endpoints.
func MergedSpec(a, b Wall, eps float64) (WallSpec, error) {
	if err := CanMerge(a, b, eps); err != nil {
		return WallSpec{}, err
	}
	start, end, _ := mergedSpan(a, b, eps)
	return a.spec(start, end), nil
}

// mergedSpan finds the two far endpoints of a candidate merge. ok is false
// unless the walls share exactly one endpoint within eps.
func mergedSpan(a, b Wall, eps float64) (start, end geo.Point, ok bool) {
	aEnds := [2]geo.Point{a.Start, a.End}
	bEnds := [2]geo.Point{b.Start, b.End}

	shared := 0
	var freeA, freeB geo.Point
	for i, pa := range aEnds {
		if geo.PointsEqual(pa, bEnds[0], eps) || geo.PointsEqual(pa, bEnds[1], eps) {
			shared++
			freeA = aEnds[1-i]
		}
	}
	for i, pb := range bEnds {
		if geo.PointsEqual(pb, aEnds[0], eps) || geo.PointsEqual(pb, aEnds[1], eps) {
			freeB = bEnds[1-i]
		}
	}
	if shared != 1 {
		return geo.Point{}, geo.Point{}, false
	}
	return freeA, freeB, true
}

// DeleteCheckPoints collects the points at which merges may become
// possible once the target wall is gone: its two endpoints plus every
// point at which another wall crosses its interior, excluding points that
// are already an endpoint of either wall.
func DeleteCheckPoints(walls []Wall, target Wall, eps float64) []geo.Point {
	points := []geo.Point{target.Start, target.End}
	seg := target.Segment()
	for _, w := range walls {
		if w.ID == target.ID || w.StoreyID != target.StoreyID {
			continue
		}
		p, ok := geo.Intersect(seg, w.Segment())
		if !ok {
			continue
		}
		if isEndpointOf(p, target, eps) || isEndpointOf(p, w, eps) {
			continue
		}
		points = append(points, p)
	}
	return points
}

// MergeCandidateAt looks for a merge opportunity at p on the given storey:
// exactly two walls must touch it with an endpoint, and they must satisfy
// CanMerge. ok is false when there is nothing to do at p.
func MergeCandidateAt(walls []Wall, p geo.Point, storeyID string, eps float64) (a, b Wall, ok bool) {
	var touching []Wall
	for _, w := range walls {
		if w.StoreyID != storeyID {
			continue
		}
		if geo.PointsEqual(p, w.Start, eps) || geo.PointsEqual(p, w.End, eps) {
			touching = append(touching, w)
			if len(touching) > 2 {
				return Wall{}, Wall{}, false
			}
		}
	}
	if len(touching) != 2 {
		return Wall{}, Wall{}, false
	}
	if CanMerge(touching[0], touching[1], eps) != nil {
		return Wall{}, Wall{}, false
	}
	return touching[0], touching[1], true
}

// MergeFunc performs one merge, returning the authoritative merged wall.
// An error skips the merge without stopping convergence; the caller is
// expected to log it.
type MergeFunc func(a, b Wall) (Wall, error)

// ConvergeMerges runs the merge pass on one storey to a fixed point: first
// a worklist of seed points (typically DeleteCheckPoints output), then
// storey-wide passes over every endpoint until a full pass performs no
// merge. Each successful merge strictly decreases the wall count, so the
// iteration terminates. The returned slice is the settled network.
func ConvergeMerges(walls []Wall, seed []geo.Point, storeyID string, eps float64, merge MergeFunc) []Wall {
	current := append([]Wall(nil), walls...)
	worklist := append([]geo.Point(nil), seed...)

	attempt := func(p geo.Point) bool {
		a, b, ok := MergeCandidateAt(current, p, storeyID, eps)
		if !ok {
			return false
		}
		merged, err := merge(a, b)
		if err != nil {
			return false
		}
		current = replaceMerged(current, a.ID, b.ID, merged)
		worklist = append(worklist, merged.Start, merged.End)
		return true
	}

	for {
		for len(worklist) > 0 {
			p := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			attempt(p)
		}

		changed := false
		for _, w := range current {
			if w.StoreyID != storeyID {
				continue
			}
			if attempt(w.Start) || attempt(w.End) {
				changed = true
				break
			}
		}
		if !changed {
			return current
		}
	}
}

func replaceMerged(walls []Wall, idA, idB string, merged Wall) []Wall {
	out := walls[:0]
	for _, w := range walls {
		if w.ID == idA || w.ID == idB {
			continue
		}
		out = append(out, w)
	}
	return append(out, merged)
}

// FindWall looks a wall up by id.
func FindWall(walls []Wall, id string) (Wall, bool) {
	for _, w := range walls {
		if w.ID == id {
			return w, true
		}
	}
	return Wall{}, false
}

func isEndpointOf(p geo.Point, w Wall, eps float64) bool {
	return geo.PointsEqual(p, w.Start, eps) || geo.PointsEqual(p, w.End, eps)
}
