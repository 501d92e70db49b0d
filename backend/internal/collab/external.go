package collab

import "context"

// The registry owns document content and versions; everything durable or
// policy-shaped lives behind these interfaces and is someone else's
// source of truth.

// PermissionGate answers membership questions. Backed by the project
// service's tables; the registry never caches its answers.
type PermissionGate interface {
	// CanAccess: may the user see the project at all (any role).
	CanAccess(ctx context.Context, userID uint64, projectID string) (bool, error)
	// CanEdit: may the user mutate the file (editor role or better).
	CanEdit(ctx context.Context, userID uint64, projectID, fileID string) (bool, error)
}

// ContentStore loads and saves authoritative file content.
type ContentStore interface {
	Get(ctx context.Context, projectID, fileID string) (content string, version uint64, err error)
	Put(ctx context.Context, projectID, fileID, content string, version uint64) error
}

// SnapshotSink appends a revision snapshot to durable history.
type SnapshotSink interface {
	SaveDocumentSnapshot(ctx context.Context, projectID, fileID string, rev uint64, content string) error
}

// ActivityRecorder is the audit/activity-log sink.
type ActivityRecorder interface {
	Record(ctx context.Context, projectID string, userID uint64, fileID, kind, message string) error
}

// LockStore exposes the external exclusive-lock table; the registry only
// caches holder sets per open document.
type LockStore interface {
	Holders(ctx context.Context, projectID, fileID string) ([]uint64, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// EventSink fans applied operations and activity out to other service
// instances. Must never block the submit path.
type EventSink interface {
	PublishOpApplied(ctx context.Context, evt OpEvent) error
	PublishActivity(ctx context.Context, evt ActivityEvent) error
}
