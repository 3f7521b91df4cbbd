package plan

import (
	"math"
	"testing"
)

func TestRevalidateDoorsAfterSplit(t *testing.T) {
	before := []Wall{testWall("wall_a", 0, 0, 1000, 0)}
	after := []Wall{
		testWall("wall_a1", 0, 0, 400, 0),
		testWall("wall_a2", 400, 0, 1000, 0),
	}
	door := Door{ID: "door_1", WallID: "wall_a", Position: 0.7, Kind: DoorSwing}

	updates, removed := RevalidateDoors([]Door{door}, before, after, testEps)
	if len(removed) != 0 {
		t.Fatalf("door must survive a split, removed %v", removed)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 reattachment, got %d", len(updates))
	}
	// World position 700 lands on wall_a2 spanning 400..1000: t = 0.5.
	if updates[0].WallID != "wall_a2" {
		t.Errorf("expected reattachment to wall_a2, got %s", updates[0].WallID)
	}
	if math.Abs(updates[0].Position-0.5) > 0.01 {
		t.Errorf("expected position 0.5, got %v", updates[0].Position)
	}
}

func TestRevalidateDoorsAfterMerge(t *testing.T) {
	before := []Wall{
		testWall("wall_a", 0, 0, 500, 0),
		testWall("wall_b", 500, 0, 1000, 0),
	}
	after := []Wall{testWall("wall_m", 0, 0, 1000, 0)}
	door := Door{ID: "door_1", WallID: "wall_b", Position: 0.5}

	updates, removed := RevalidateDoors([]Door{door}, before, after, testEps)
	if len(removed) != 0 || len(updates) != 1 {
		t.Fatalf("expected 1 update / 0 removals, got %d/%d", len(updates), len(removed))
	}
	// World position 750 on the merged wall: t = 0.75.
	if updates[0].WallID != "wall_m" || math.Abs(updates[0].Position-0.75) > 0.01 {
		t.Errorf("expected wall_m at 0.75, got %s at %v", updates[0].WallID, updates[0].Position)
	}
}

func TestRevalidateDoorsAfterDelete(t *testing.T) {
	before := []Wall{testWall("wall_a", 0, 0, 1000, 0)}
	door := Door{ID: "door_1", WallID: "wall_a", Position: 0.5}

	updates, removed := RevalidateDoors([]Door{door}, before, nil, testEps)
	if len(updates) != 0 {
		t.Errorf("no wall left to carry the door, got updates %v", updates)
	}
	if len(removed) != 1 || removed[0] != "door_1" {
		t.Errorf("expected door_1 removed, got %v", removed)
	}
}

func TestRevalidateDoorsUntouchedWall(t *testing.T) {
	walls := []Wall{testWall("wall_a", 0, 0, 1000, 0)}
	door := Door{ID: "door_1", WallID: "wall_a", Position: 0.5}

	updates, removed := RevalidateDoors([]Door{door}, walls, walls, testEps)
	if len(updates) != 0 || len(removed) != 0 {
		t.Errorf("a door on a surviving wall must be untouched, got %v / %v", updates, removed)
	}
}
