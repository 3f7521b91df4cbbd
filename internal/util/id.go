package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier with an entity prefix, e.g.
// "wall_9f2c…". Ids are assigned once at creation and never derived
// from geometry, so they stay stable across undo and redo.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
