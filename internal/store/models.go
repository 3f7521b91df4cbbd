package store

import "time"

// Project is the top-level container a plan belongs to; storeys, walls,
// rooms and doors all hang off it.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// SnapshotInfo describes one committed save point in a project's archive.
type SnapshotInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}
