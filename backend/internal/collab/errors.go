package collab

import (
	"errors"
	"fmt"
)

var (
	// ErrAccessDenied: the user may not even view the project/file.
	ErrAccessDenied = errors.New("ACCESS_DENIED")
	// ErrPermissionDenied: the user may view but not edit (viewer role,
	// missing membership, or an exclusive lock held by someone else).
	ErrPermissionDenied = errors.New("PERMISSION_DENIED")
	// ErrDocumentNotOpen: operation against a file nobody has open.
	ErrDocumentNotOpen = errors.New("DOCUMENT_NOT_OPEN")
	// ErrRevisionConflict: the submitter is too far behind the concurrent
	// history we still hold; it must reload and resubmit.
	ErrRevisionConflict = errors.New("REVISION_CONFLICT")
	// ErrDuplicateOrOutOfOrder: client sequence number replayed or skipped.
	ErrDuplicateOrOutOfOrder = errors.New("DUPLICATE_OR_OUT_OF_ORDER")
	// ErrConflictUnresolved: overlapping concurrent edits the resolver
	// refuses to merge silently.
	ErrConflictUnresolved = errors.New("CONFLICT_UNRESOLVED")
)

// ConflictError carries the full conflicting set back to the submitter
// so the client can surface a manual merge.
type ConflictError struct {
	Conflicted []TextOperation
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %d overlapping operations", ErrConflictUnresolved, len(e.Conflicted))
}

func (e *ConflictError) Unwrap() error { return ErrConflictUnresolved }
