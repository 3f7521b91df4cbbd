package plan

import "errors"

// Validation failures surfaced to the user as specific rejections; the
// network is left untouched when any of these is returned.
var (
	ErrWallNotFound      = errors.New("wall not found in the current network")
	ErrDegenerateWall    = errors.New("wall length is below tolerance")
	ErrWallTooShort      = errors.New("wall is too short to split")
	ErrPointOffWall      = errors.New("point is not on the wall body")
	ErrSplitNearEndpoint = errors.New("split point is too close to a wall endpoint")
	ErrWallsIncompatible = errors.New("walls differ in type, height or thickness")
	ErrWallsNotCollinear = errors.New("walls are not collinear")
	ErrWallsNotConnected = errors.New("walls do not share exactly one endpoint")
	ErrEdgeUnmatched     = errors.New("polygon edge matches no wall")
	ErrInsideGhostArea   = errors.New("polygon vertex falls inside a double-height void")
	ErrStoreyNotFound    = errors.New("storey not found")
	ErrRoomNotFound      = errors.New("room not found")
)
