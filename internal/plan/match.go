package plan

import (
	"fmt"
	"sort"

	"bauplan/api/internal/geo"
)

// MatchRoomWalls maps an ordered closed polygon to the walls forming its
// perimeter. For every consecutive vertex pair, including the wrap-around
// edge, a wall whose endpoints coincide with the pair in either direction
// within eps must exist; an unmatched edge fails the whole polygon. The
// result is deduplicated and sorted, so tracing the same cycle from a
// different start vertex or in reverse yields the same set.
func MatchRoomWalls(polygon []geo.Point, walls []Wall, eps float64) ([]string, error) {
	if len(polygon) < 3 {
		return nil, fmt.Errorf("polygon needs at least 3 vertices, got %d: %w", len(polygon), ErrEdgeUnmatched)
	}

	seen := make(map[string]bool)
	var ids []string
	for i := range polygon {
		a := polygon[i]
		b := polygon[(i+1)%len(polygon)]

		id, ok := wallBetween(walls, a, b, eps)
		if !ok {
			return nil, fmt.Errorf("edge %d (%.0f,%.0f)-(%.0f,%.0f): %w", i, a.X, a.Y, b.X, b.Y, ErrEdgeUnmatched)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func wallBetween(walls []Wall, a, b geo.Point, eps float64) (string, bool) {
	for _, w := range walls {
		if geo.PointsEqual(w.Start, a, eps) && geo.PointsEqual(w.End, b, eps) {
			return w.ID, true
		}
		if geo.PointsEqual(w.Start, b, eps) && geo.PointsEqual(w.End, a, eps) {
			return w.ID, true
		}
	}
	return "", false
}
