package collab

import "time"

type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type SelectionRange struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

// UserPresence is written only by its own user's handler path and read
// by everyone else in the room.
type UserPresence struct {
	Username     string         `json:"username,omitempty"`
	Cursor       Cursor         `json:"cursor"`
	Selection    SelectionRange `json:"selection"`
	LastActivity time.Time      `json:"lastActivity"`
}
