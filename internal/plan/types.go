// Package plan implements the wall network engine: diff computation for
// structural edits, room boundary matching, storey stacking with ghost
// projection, and the linear edit history. The package performs no I/O;
// every mutation is computed as a plain value the caller applies through
// the persistence service.
package plan

import "bauplan/api/internal/geo"

// WallType tags a wall as load-bearing or a partition.
type WallType string

const (
	WallStructural WallType = "structural"
	WallPartition  WallType = "partition"
)

// Wall is the network primitive: a straight, undirected segment with
// thickness, height and a type tag. Start/end order carries no meaning.
type Wall struct {
	ID        string    `json:"id"`
	StoreyID  string    `json:"storeyId"`
	Start     geo.Point `json:"start"`
	End       geo.Point `json:"end"`
	Thickness float64   `json:"thickness"`
	Height    float64   `json:"height"`
	Type      WallType  `json:"type"`
	Material  string    `json:"material,omitempty"`
}

// Segment returns the wall's geometry.
func (w Wall) Segment() geo.Segment {
	return geo.Segment{A: w.Start, B: w.End}
}

// WallSpec is a proposed wall: the same attributes as Wall but without an
// id, since ids are owned by the persistence service.
type WallSpec struct {
	StoreyID  string    `json:"storeyId"`
	Start     geo.Point `json:"start"`
	End       geo.Point `json:"end"`
	Thickness float64   `json:"thickness"`
	Height    float64   `json:"height"`
	Type      WallType  `json:"type"`
	Material  string    `json:"material,omitempty"`
}

// spec carries a wall's non-geometric attributes into a proposed half.
func (w Wall) spec(start, end geo.Point) WallSpec {
	return WallSpec{
		StoreyID:  w.StoreyID,
		Start:     start,
		End:       end,
		Thickness: w.Thickness,
		Height:    w.Height,
		Type:      w.Type,
		Material:  w.Material,
	}
}

// Diff is the outcome of a structural edit computation: the creates and
// deletes that bring the network to a consistent state once applied, in
// order, through the persistence service.
type Diff struct {
	Create []WallSpec `json:"create"`
	Delete []string   `json:"delete"`
}

// Empty reports whether the diff changes nothing.
func (d Diff) Empty() bool {
	return len(d.Create) == 0 && len(d.Delete) == 0
}

// Room is a closed polygon whose every edge matches exactly one wall.
type Room struct {
	ID             string      `json:"id"`
	StoreyID       string      `json:"storeyId"`
	Polygon        []geo.Point `json:"polygon"`
	WallIDs        []string    `json:"wallIds"`
	FloorType      string      `json:"floorType,omitempty"`
	FloorThickness float64     `json:"floorThickness,omitempty"`
	Height         float64     `json:"height"`
	BaseElevation  float64     `json:"baseElevation"`
	LabelAnchor    *geo.Point  `json:"labelAnchor,omitempty"`
}

// Top is the room's absolute top elevation.
func (r Room) Top() float64 {
	return r.BaseElevation + r.Height
}

// Storey is one level of the building stack.
type Storey struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"projectId"`
	Name          string  `json:"name"`
	Elevation     float64 `json:"elevation"`
	Position      int     `json:"position"`
	RoomHeight    float64 `json:"roomHeight"`
	SlabThickness float64 `json:"slabThickness"`
}

// DoorKind distinguishes swing from sliding doors.
type DoorKind string

const (
	DoorSwing DoorKind = "swing"
	DoorSlide DoorKind = "slide"
)

// Door is attached to exactly one wall at a parametric position in [0,1].
type Door struct {
	ID        string   `json:"id"`
	WallID    string   `json:"wallId"`
	Width     float64  `json:"width"`
	Height    float64  `json:"height"`
	Thickness float64  `json:"thickness"`
	Position  float64  `json:"position"`
	Kind      DoorKind `json:"kind"`
	Double    bool     `json:"double"`
	Side      string   `json:"side"`
	Direction string   `json:"direction"`
}

// JointMethod is how two walls are cut where they meet.
type JointMethod string

const (
	JointButt   JointMethod = "butt"
	JointMitred JointMethod = "mitred"
)

// Joint is a rendering-only record of two walls meeting at a point. It is
// derived, never persisted, and carries no topological meaning.
type Joint struct {
	WallA  string      `json:"wallA"`
	WallB  string      `json:"wallB"`
	At     geo.Point   `json:"at"`
	Method JointMethod `json:"method"`
}
