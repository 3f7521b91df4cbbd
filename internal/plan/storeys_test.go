package plan

import (
	"errors"
	"testing"

	"bauplan/api/internal/geo"
)

func testStoreys() []Storey {
	return []Storey{
		{ID: "storey_1", ProjectID: "proj_1", Name: "Ground", Elevation: 0, Position: 0, RoomHeight: 3000},
		{ID: "storey_2", ProjectID: "proj_1", Name: "First", Elevation: 3000, Position: 1, RoomHeight: 3000},
		{ID: "storey_3", ProjectID: "proj_1", Name: "Second", Elevation: 6000, Position: 2, RoomHeight: 3000},
	}
}

func squareRoom(id, storeyID string, wallIDs []string, base, height float64) Room {
	return Room{
		ID:            id,
		StoreyID:      storeyID,
		Polygon:       []geo.Point{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 1000}, {X: 0, Y: 1000}},
		WallIDs:       wallIDs,
		Height:        height,
		BaseElevation: base,
	}
}

func TestSortStoreysOrder(t *testing.T) {
	storeys := []Storey{
		{ID: "storey_b", Position: 1, Elevation: 3000},
		{ID: "storey_c", Position: 1, Elevation: 2800},
		{ID: "storey_a", Position: 0, Elevation: 0},
	}
	sorted := SortStoreys(storeys)
	want := []string{"storey_a", "storey_c", "storey_b"}
	for i, id := range want {
		if sorted[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, sorted[i].ID)
		}
	}

	def, ok := DefaultStorey(storeys)
	if !ok || def.ID != "storey_a" {
		t.Errorf("expected storey_a as default, got %+v", def)
	}
}

func TestPlanRoomDuplicateElevationClamp(t *testing.T) {
	walls := squareWalls()
	room := squareRoom("room_1", "storey_1", []string{"wall_s", "wall_e", "wall_n", "wall_w"}, 0, 3000)

	// No override: base defaults to the target storey's elevation.
	p, err := PlanRoomDuplicate(room, walls, []Room{room}, testStoreys(), "storey_2", nil, testEps)
	if err != nil {
		t.Fatalf("PlanRoomDuplicate failed: %v", err)
	}
	if p.BaseElevation != 3000 {
		t.Errorf("expected base 3000, got %v", p.BaseElevation)
	}

	// An override below the storey is clamped up.
	low := 1200.0
	p, err = PlanRoomDuplicate(room, walls, []Room{room}, testStoreys(), "storey_2", &low, testEps)
	if err != nil {
		t.Fatalf("PlanRoomDuplicate failed: %v", err)
	}
	if p.BaseElevation != 3000 {
		t.Errorf("override below the storey must clamp to 3000, got %v", p.BaseElevation)
	}

	// An override above the storey is honored.
	high := 3500.0
	p, err = PlanRoomDuplicate(room, walls, []Room{room}, testStoreys(), "storey_2", &high, testEps)
	if err != nil {
		t.Fatalf("PlanRoomDuplicate failed: %v", err)
	}
	if p.BaseElevation != 3500 {
		t.Errorf("expected base 3500, got %v", p.BaseElevation)
	}
}

func TestPlanRoomDuplicateRecreatesShortOrUnsharedWalls(t *testing.T) {
	walls := squareWalls() // height 3000, storey_1 at elevation 0
	room := squareRoom("room_1", "storey_1", []string{"wall_s", "wall_e", "wall_n", "wall_w"}, 0, 3000)

	// All walls belong to one room only: everything is recreated.
	p, err := PlanRoomDuplicate(room, walls, []Room{room}, testStoreys(), "storey_2", nil, testEps)
	if err != nil {
		t.Fatalf("PlanRoomDuplicate failed: %v", err)
	}
	if len(p.ReuseWallIDs) != 0 || len(p.CreateWalls) != 4 {
		t.Fatalf("expected 0 reused / 4 created, got %d/%d", len(p.ReuseWallIDs), len(p.CreateWalls))
	}
	for _, spec := range p.CreateWalls {
		if spec.StoreyID != "storey_2" {
			t.Errorf("recreated wall must land on the target storey, got %s", spec.StoreyID)
		}
	}
}

func TestPlanRoomDuplicateReusesTallSharedWalls(t *testing.T) {
	walls := squareWalls()
	// wall_s is double height: tall enough to serve the storey above.
	for i := range walls {
		if walls[i].ID == "wall_s" {
			walls[i].Height = 6000
		}
	}
	room := squareRoom("room_1", "storey_1", []string{"wall_s", "wall_e", "wall_n", "wall_w"}, 0, 3000)
	neighbour := squareRoom("room_2", "storey_1", []string{"wall_s"}, 0, 3000)

	p, err := PlanRoomDuplicate(room, walls, []Room{room, neighbour}, testStoreys(), "storey_2", nil, testEps)
	if err != nil {
		t.Fatalf("PlanRoomDuplicate failed: %v", err)
	}
	if len(p.ReuseWallIDs) != 1 || p.ReuseWallIDs[0] != "wall_s" {
		t.Errorf("expected wall_s to be reused, got %v", p.ReuseWallIDs)
	}
	if len(p.CreateWalls) != 3 {
		t.Errorf("expected 3 recreated walls, got %d", len(p.CreateWalls))
	}
}

func TestPlanRoomDuplicateUnknownStorey(t *testing.T) {
	room := squareRoom("room_1", "storey_1", nil, 0, 3000)
	if _, err := PlanRoomDuplicate(room, nil, nil, testStoreys(), "storey_zz", nil, testEps); !errors.Is(err, ErrStoreyNotFound) {
		t.Errorf("expected ErrStoreyNotFound, got %v", err)
	}
}

func TestGhostWalls(t *testing.T) {
	walls := squareWalls() // storey_1
	for i := range walls {
		if walls[i].ID == "wall_s" {
			walls[i].Height = 6000 // reaches through storey_2
		}
	}
	room1 := squareRoom("room_1", "storey_1", []string{"wall_s", "wall_e", "wall_n", "wall_w"}, 0, 3000)
	room2 := squareRoom("room_2", "storey_1", []string{"wall_s"}, 0, 3000)
	room2.Polygon = []geo.Point{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: -800}, {X: 0, Y: -800}}

	ghostWalls, _ := Ghosts(walls, []Room{room1, room2}, testStoreys(), "storey_2", testEps)
	if len(ghostWalls) != 1 || ghostWalls[0].ID != "wall_s" {
		t.Fatalf("expected only the tall shared wall as ghost, got %+v", ghostWalls)
	}

	// From the third storey even the tall wall no longer reaches.
	ghostWalls, _ = Ghosts(walls, []Room{room1, room2}, testStoreys(), "storey_3", testEps)
	if len(ghostWalls) != 0 {
		t.Errorf("expected no ghost walls at storey_3, got %d", len(ghostWalls))
	}
}

func TestGhostAreas(t *testing.T) {
	// A double-height room on the ground storey ghosts through the first.
	room := squareRoom("room_1", "storey_1", nil, 0, 6000)

	_, areas := Ghosts(nil, []Room{room}, testStoreys(), "storey_2", testEps)
	if len(areas) != 1 || areas[0].RoomID != "room_1" {
		t.Fatalf("expected one ghost area from room_1, got %+v", areas)
	}

	// A normal-height room does not reach the storey above.
	short := squareRoom("room_2", "storey_1", nil, 0, 2800)
	_, areas = Ghosts(nil, []Room{short}, testStoreys(), "storey_2", testEps)
	if len(areas) != 0 {
		t.Errorf("expected no ghost areas, got %d", len(areas))
	}
}

func TestGhostAreaNonDuplication(t *testing.T) {
	tall := squareRoom("room_1", "storey_1", nil, 0, 6000)

	// The same footprint exists on the active storey: never ghosted.
	present := squareRoom("room_2", "storey_2", nil, 3000, 3000)
	_, areas := Ghosts(nil, []Room{tall, present}, testStoreys(), "storey_2", testEps)
	if len(areas) != 0 {
		t.Errorf("footprint present on the active storey must not ghost, got %+v", areas)
	}

	// The same footprint traced from a different vertex still counts.
	rotated := present
	rotated.Polygon = append(append([]geo.Point(nil), present.Polygon[2:]...), present.Polygon[:2]...)
	_, areas = Ghosts(nil, []Room{tall, rotated}, testStoreys(), "storey_2", testEps)
	if len(areas) != 0 {
		t.Errorf("rotated footprint must claim the same signature, got %+v", areas)
	}
}

func TestGhostAreaNonDuplicationWithJitter(t *testing.T) {
	tall := squareRoom("room_1", "storey_1", nil, 0, 6000)

	// The active-storey copy carries sub-unit input noise, including a
	// coordinate just below zero. Equal within tolerance means the same
	// footprint, so nothing ghosts.
	present := squareRoom("room_2", "storey_2", nil, 3000, 3000)
	present.Polygon = []geo.Point{
		{X: -0.3, Y: 0.2}, {X: 1000.4, Y: -0.1}, {X: 999.8, Y: 1000.3}, {X: 0.1, Y: 999.7},
	}

	_, areas := Ghosts(nil, []Room{tall, present}, testStoreys(), "storey_2", testEps)
	if len(areas) != 0 {
		t.Errorf("jittered footprint on the active storey must not ghost, got %+v", areas)
	}
}

func TestGhostAreaHigherStoreyClaimsFirst(t *testing.T) {
	// Identical footprints on storey_1 and storey_2, both tall enough to
	// reach storey_3: only the higher one ghosts.
	tall1 := squareRoom("room_1", "storey_1", nil, 0, 9000)
	tall2 := squareRoom("room_2", "storey_2", nil, 3000, 6000)

	_, areas := Ghosts(nil, []Room{tall1, tall2}, testStoreys(), "storey_3", testEps)
	if len(areas) != 1 || areas[0].RoomID != "room_2" {
		t.Errorf("expected only the higher room to ghost, got %+v", areas)
	}
}

func TestCheckAgainstGhosts(t *testing.T) {
	area := GhostArea{
		RoomID:  "room_1",
		Polygon: []geo.Point{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 1000}, {X: 0, Y: 1000}},
	}

	inside := []geo.Point{{X: 500, Y: 500}, {X: 2000, Y: 500}, {X: 2000, Y: 2000}}
	if err := CheckAgainstGhosts(inside, []GhostArea{area}); !errors.Is(err, ErrInsideGhostArea) {
		t.Errorf("expected ErrInsideGhostArea, got %v", err)
	}

	outside := []geo.Point{{X: 2000, Y: 2000}, {X: 3000, Y: 2000}, {X: 3000, Y: 3000}}
	if err := CheckAgainstGhosts(outside, []GhostArea{area}); err != nil {
		t.Errorf("expected nil for a polygon clear of the void, got %v", err)
	}
}
