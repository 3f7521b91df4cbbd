package plan

// History is a linear undo/redo stack of full wall-network snapshots.
// Pushing after an edit discards anything beyond the current index; there
// is no branching. Snapshots are defensive copies both ways.
type History struct {
	snapshots [][]Wall
	index     int
}

// NewHistory starts a history whose first snapshot is the current network.
func NewHistory(initial []Wall) *History {
	return &History{snapshots: [][]Wall{copyWalls(initial)}}
}

// Push records the network state after a structural edit, truncating any
// redo tail.
func (h *History) Push(walls []Wall) {
	h.snapshots = append(h.snapshots[:h.index+1], copyWalls(walls))
	h.index = len(h.snapshots) - 1
}

// Undo steps back and returns the snapshot to restore. ok is false at the
// oldest snapshot.
func (h *History) Undo() ([]Wall, bool) {
	if !h.CanUndo() {
		return nil, false
	}
	h.index--
	return copyWalls(h.snapshots[h.index]), true
}

// Redo steps forward and returns the snapshot to restore. ok is false at
// the newest snapshot.
func (h *History) Redo() ([]Wall, bool) {
	if !h.CanRedo() {
		return nil, false
	}
	h.index++
	return copyWalls(h.snapshots[h.index]), true
}

func (h *History) CanUndo() bool { return h.index > 0 }
func (h *History) CanRedo() bool { return h.index < len(h.snapshots)-1 }

// Replace swaps the snapshot at the current index, used after the caller
// re-synchronizes persisted state and ids change underneath a restore.
func (h *History) Replace(walls []Wall) {
	h.snapshots[h.index] = copyWalls(walls)
}

func copyWalls(walls []Wall) []Wall {
	return append([]Wall(nil), walls...)
}
