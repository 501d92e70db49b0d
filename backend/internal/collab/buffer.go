package collab

import (
	"collabEngine/backend/internal/ot/delta"
)

// Buffer is the in-memory content behind one collaborative document.
// Len and Slice are in runes; Apply takes a delta covering Len exactly.
type Buffer interface {
	Len() int
	Apply(d delta.Delta) error
	Slice(start, end int) (string, error)
	String() string
}
