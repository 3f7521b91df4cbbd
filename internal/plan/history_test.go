package plan

import "testing"

func TestHistoryUndoRedo(t *testing.T) {
	v0 := []Wall{testWall("wall_a", 0, 0, 1000, 0)}
	v1 := append(copyWalls(v0), testWall("wall_b", 1000, 0, 1000, 1000))
	v2 := append(copyWalls(v1), testWall("wall_c", 1000, 1000, 0, 1000))

	h := NewHistory(v0)
	h.Push(v1)
	h.Push(v2)

	if !h.CanUndo() {
		t.Fatal("expected undo to be available")
	}
	walls, ok := h.Undo()
	if !ok || len(walls) != 2 {
		t.Fatalf("expected v1 (2 walls), got %d", len(walls))
	}
	walls, ok = h.Undo()
	if !ok || len(walls) != 1 {
		t.Fatalf("expected v0 (1 wall), got %d", len(walls))
	}
	if _, ok := h.Undo(); ok {
		t.Error("undo past the oldest snapshot must fail")
	}

	walls, ok = h.Redo()
	if !ok || len(walls) != 2 {
		t.Fatalf("expected redo to v1, got %d walls", len(walls))
	}
}

func TestHistoryPushDiscardsRedoTail(t *testing.T) {
	v0 := []Wall{testWall("wall_a", 0, 0, 1000, 0)}
	v1 := append(copyWalls(v0), testWall("wall_b", 1000, 0, 1000, 1000))

	h := NewHistory(v0)
	h.Push(v1)
	if _, ok := h.Undo(); !ok {
		t.Fatal("undo failed")
	}

	// A new edit from the undone state forks; the old redo tail is gone.
	h.Push([]Wall{testWall("wall_x", 0, 0, 500, 0)})
	if h.CanRedo() {
		t.Error("push must discard snapshots beyond the current index")
	}
}

func TestHistorySnapshotsAreIsolated(t *testing.T) {
	v0 := []Wall{testWall("wall_a", 0, 0, 1000, 0)}
	h := NewHistory(v0)

	v0[0].Height = 9999
	h.Push([]Wall{testWall("wall_b", 0, 0, 1, 1)})
	restored, ok := h.Undo()
	if !ok {
		t.Fatal("undo failed")
	}
	if restored[0].Height != 3000 {
		t.Errorf("snapshot mutated through the caller's slice: height %v", restored[0].Height)
	}
}
