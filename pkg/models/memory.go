package models

import "time"

// MemoryEntry is one durable bullet-point fact about a user, produced by the
// session summariser. Unique on (username, text).
type MemoryEntry struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}
