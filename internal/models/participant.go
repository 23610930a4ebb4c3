package models

import "time"

// Participant is one roster entry for a room. Identity is the dedupe key:
// the same identity rejoining under a new connection id stays one entry.
type Participant struct {
	ID       string    `json:"id"`
	Identity string    `json:"identity"`
	JoinedAt time.Time `json:"joined_at"`
}
