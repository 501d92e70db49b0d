package collab

import (
	"time"

	"collabEngine/backend/internal/ot/delta"
)

// TextOperation is one user's edit against a known document revision.
type TextOperation struct {
	UserID    uint64      `json:"userId"`
	Timestamp time.Time   `json:"timestamp"`
	Ops       delta.Delta `json:"ops"`
	// Revision the document was at when this operation was applied.
	// Zero until the registry applies it.
	Revision uint64 `json:"revision,omitempty"`
}

// AppliedOp is what the registry hands back after a successful submit,
// for acks, broadcast and the catch-up ring.
type AppliedOp struct {
	OperationID string      `json:"operationId"`
	Revision    uint64      `json:"revision"`
	AuthorID    uint64      `json:"authorId"`
	ClientID    string      `json:"clientId,omitempty"`
	ClientSeq   uint64      `json:"clientSeq,omitempty"`
	Ops         delta.Delta `json:"ops"`
	AppliedAt   time.Time   `json:"appliedAt"`
}
