package collab

import (
	"time"

	"collabEngine/backend/internal/ot/delta"
)

// OpEvent is the cross-instance record of one applied operation,
// published to Kafka keyed by document.
type OpEvent struct {
	EventType    string      `json:"eventType"` // "OP_APPLIED"
	ProjectID    string      `json:"projectId"`
	FileID       string      `json:"fileId"`
	OperationID  string      `json:"operationId"`
	Revision     uint64      `json:"revision"`
	AuthorID     uint64      `json:"authorId"`
	ClientID     string      `json:"clientId"`
	ClientSeq    uint64      `json:"clientSeq"`
	BaseRevision uint64      `json:"baseRevision"`
	Ops          delta.Delta `json:"ops"`
	AppliedAt    time.Time   `json:"appliedAt"`
}

// PartitionKey groups a document's events on one partition so consumers
// see them in revision order.
func (e OpEvent) PartitionKey() string { return e.ProjectID + "/" + e.FileID }

// ActivityEvent mirrors an activity-log record onto the event stream.
type ActivityEvent struct {
	EventType string    `json:"eventType"` // "ACTIVITY"
	ProjectID string    `json:"projectId"`
	UserID    uint64    `json:"userId"`
	FileID    string    `json:"fileId"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

func (e ActivityEvent) PartitionKey() string { return e.ProjectID }

// Event is anything the dispatcher can publish.
type Event interface {
	PartitionKey() string
}
