package plan

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"bauplan/api/internal/geo"
)

// SortStoreys returns the storeys totally ordered by (position, elevation,
// id). The first storey in this order is the default one.
func SortStoreys(storeys []Storey) []Storey {
	sorted := append([]Storey(nil), storeys...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.Elevation != b.Elevation {
			return a.Elevation < b.Elevation
		}
		return a.ID < b.ID
	})
	return sorted
}

// DefaultStorey is the first storey in stack order.
func DefaultStorey(storeys []Storey) (Storey, bool) {
	if len(storeys) == 0 {
		return Storey{}, false
	}
	return SortStoreys(storeys)[0], true
}

// StoreyByID looks a storey up by id.
func StoreyByID(storeys []Storey, id string) (Storey, bool) {
	for _, s := range storeys {
		if s.ID == id {
			return s, true
		}
	}
	return Storey{}, false
}

// DuplicatePlan describes how a room is projected onto a target storey:
// which of the source room's walls are tall and shared enough to be reused
// as-is, and which must be recreated on the target storey.
type DuplicatePlan struct {
	ReuseWallIDs  []string
	CreateWalls   []WallSpec
	BaseElevation float64
	Height        float64
}

// PlanRoomDuplicate computes the duplication of room onto the target
// storey. A source wall is reused when it is already shared by more than
// one room and its top still reaches the duplicated room's required top;
// otherwise a copy is created on the target storey. The base elevation
// defaults to the target storey's elevation and is always clamped to never
// sit below it.
func PlanRoomDuplicate(room Room, walls []Wall, rooms []Room, storeys []Storey, targetStoreyID string, baseOverride *float64, eps float64) (DuplicatePlan, error) {
	target, ok := StoreyByID(storeys, targetStoreyID)
	if !ok {
		return DuplicatePlan{}, ErrStoreyNotFound
	}

	base := target.Elevation
	if baseOverride != nil {
		base = math.Max(*baseOverride, target.Elevation)
	}
	height := room.Height
	if height <= 0 {
		height = target.RoomHeight
	}
	requiredTop := base + height

	var p DuplicatePlan
	p.BaseElevation = base
	p.Height = height
	for _, id := range room.WallIDs {
		w, ok := FindWall(walls, id)
		if !ok {
			return DuplicatePlan{}, fmt.Errorf("room %s references missing wall %s", room.ID, id)
		}
		if roomsClaiming(rooms, id) > 1 && wallTop(w, storeys) >= requiredTop-eps {
			p.ReuseWallIDs = append(p.ReuseWallIDs, id)
			continue
		}
		spec := w.spec(w.Start, w.End)
		spec.StoreyID = targetStoreyID
		p.CreateWalls = append(p.CreateWalls, spec)
	}
	return p, nil
}

// GhostArea is a room polygon from a lower storey that still reaches the
// active storey's elevation, shown as a double-height void. View-only,
// never persisted.
type GhostArea struct {
	RoomID   string      `json:"roomId"`
	StoreyID string      `json:"storeyId"`
	Polygon  []geo.Point `json:"polygon"`
	Top      float64     `json:"top"`
}

// Ghosts is the pure projection of cross-storey geometry onto the active
// storey: walls from other storeys that are shared by more than one room
// and still cover the active storey's vertical span, and room footprints
// from storeys below whose vertical extent still covers the active
// elevation. A footprint already present on the active storey (or already
// ghosted by a higher storey) is never ghosted again.
func Ghosts(walls []Wall, rooms []Room, storeys []Storey, activeStoreyID string, eps float64) ([]Wall, []GhostArea) {
	active, ok := StoreyByID(storeys, activeStoreyID)
	if !ok {
		return nil, nil
	}
	spanTop := active.Elevation + active.RoomHeight

	var ghostWalls []Wall
	for _, w := range walls {
		if w.StoreyID == active.ID {
			continue
		}
		if roomsClaiming(rooms, w.ID) > 1 && wallTop(w, storeys) >= spanTop-eps {
			ghostWalls = append(ghostWalls, w)
		}
	}

	claimed := make(map[string]bool)
	for _, r := range rooms {
		if r.StoreyID == active.ID {
			claimed[footprintSignature(r.Polygon)] = true
		}
	}

	ordered := SortStoreys(storeys)
	activeIdx := 0
	for i, s := range ordered {
		if s.ID == active.ID {
			activeIdx = i
			break
		}
	}

	var ghostAreas []GhostArea
	for i := activeIdx - 1; i >= 0; i-- {
		for _, r := range rooms {
			if r.StoreyID != ordered[i].ID {
				continue
			}
			if r.Top() < active.Elevation-eps {
				continue
			}
			sig := footprintSignature(r.Polygon)
			if claimed[sig] {
				continue
			}
			claimed[sig] = true
			ghostAreas = append(ghostAreas, GhostArea{
				RoomID:   r.ID,
				StoreyID: r.StoreyID,
				Polygon:  append([]geo.Point(nil), r.Polygon...),
				Top:      r.Top(),
			})
		}
	}
	return ghostWalls, ghostAreas
}

// CheckAgainstGhosts rejects a new room polygon when any vertex falls
// inside a current ghost area: a double-height void cannot host a room.
func CheckAgainstGhosts(polygon []geo.Point, areas []GhostArea) error {
	for _, area := range areas {
		for _, v := range polygon {
			if geo.PointInPolygon(v, area.Polygon) {
				return fmt.Errorf("vertex (%.0f,%.0f) overlaps room %s: %w", v.X, v.Y, area.RoomID, ErrInsideGhostArea)
			}
		}
	}
	return nil
}

// footprintSignature is a rotation- and direction-invariant key for a room
// polygon: vertices rounded to whole units, rotated so the smallest vertex
// leads, direction chosen to give the lexicographically smaller sequence.
func footprintSignature(polygon []geo.Point) string {
	n := len(polygon)
	if n == 0 {
		return ""
	}
	rounded := make([]string, n)
	for i, p := range polygon {
		rounded[i] = fmt.Sprintf("%v,%v", roundCoord(p.X), roundCoord(p.Y))
	}

	best := ""
	for start := 0; start < n; start++ {
		for _, dir := range [2]int{1, -1} {
			parts := make([]string, n)
			for k := 0; k < n; k++ {
				parts[k] = rounded[((start+k*dir)%n+n)%n]
			}
			candidate := strings.Join(parts, ";")
			if best == "" || candidate < best {
				best = candidate
			}
		}
	}
	return best
}

// roundCoord rounds to whole units and folds negative zero into zero, so
// coordinates equal within tolerance always print the same.
func roundCoord(v float64) float64 {
	r := math.Round(v)
	if r == 0 {
		return 0
	}
	return r
}

// roomsClaiming counts the rooms whose perimeter includes the wall.
func roomsClaiming(rooms []Room, wallID string) int {
	count := 0
	for _, r := range rooms {
		for _, id := range r.WallIDs {
			if id == wallID {
				count++
				break
			}
		}
	}
	return count
}

// wallTop is the wall's absolute top elevation: its storey's elevation
// plus its own height.
func wallTop(w Wall, storeys []Storey) float64 {
	s, ok := StoreyByID(storeys, w.StoreyID)
	if !ok {
		return w.Height
	}
	return s.Elevation + w.Height
}
