package collab

import (
	"sort"

	"collabEngine/backend/internal/ot/delta"
)

type ResolutionStrategy string

const (
	ResolutionPriority ResolutionStrategy = "priority"
	ResolutionThreeWay ResolutionStrategy = "three-way-merge"
	ResolutionManual   ResolutionStrategy = "manual"
)

// PriorityPolicy maps users to conflict-resolution priorities. Users
// missing from the table get Default, so with an empty table conflicts
// order purely by timestamp and user id.
type PriorityPolicy struct {
	Default int
	ByUser  map[uint64]int
}

func (p PriorityPolicy) Of(userID uint64) int {
	if v, ok := p.ByUser[userID]; ok {
		return v
	}
	return p.Default
}

// ConflictResolution is the outcome of resolving a set of concurrent
// overlapping operations.
type ConflictResolution struct {
	Resolved bool
	// FinalOperation merges the whole set against the base content;
	// only set when Resolved.
	FinalOperation *TextOperation
	Strategy       ResolutionStrategy
	// Conflicted holds the full set when resolution failed.
	Conflicted []TextOperation
}

// ResolveContext carries the inputs resolution is pure over.
type ResolveContext struct {
	BaseContent     string
	Priorities      PriorityPolicy
	DocumentVersion uint64
}

// DetectConflict reports whether two concurrent deltas edit strictly
// overlapping rune ranges of the same base. Adjacent edits and two
// inserts at the same position are not conflicts; plain transform
// handles those.
func DetectConflict(a, b delta.Delta) bool {
	aStart, aEnd, aEdited := a.EditSpan()
	bStart, bEnd, bEdited := b.EditSpan()
	if !aEdited || !bEdited {
		return false
	}
	return aStart < bEnd && bStart < aEnd
}

// irreconcilable reports whether two operations replace overlapping
// spans: both delete from overlapping ranges and both supply their own
// text. Transform would silently drop one side's intent, so such pairs
// go to manual resolution.
func irreconcilable(a, b delta.Delta) bool {
	aStart, aEnd, aDel := a.DeleteSpan()
	bStart, bEnd, bDel := b.DeleteSpan()
	if !aDel || !bDel {
		return false
	}
	if aStart >= bEnd || bStart >= aEnd {
		return false
	}
	return a.HasInsert() && b.HasInsert()
}

// ResolveConflict orders a conflicting set by priority (descending),
// timestamp (ascending) and user id, then merges it into one operation
// by sequential transform+compose. Pure function: callers log and
// broadcast. When any pair replaces overlapping text the whole set is
// returned unresolved with strategy manual.
func ResolveConflict(ops []TextOperation, rctx ResolveContext) ConflictResolution {
	if len(ops) == 0 {
		return ConflictResolution{Resolved: true, Strategy: ResolutionThreeWay}
	}

	sorted := sortConflictSet(ops, rctx.Priorities)

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if DetectConflict(sorted[i].Ops, sorted[j].Ops) && irreconcilable(sorted[i].Ops, sorted[j].Ops) {
				return ConflictResolution{Strategy: ResolutionManual, Conflicted: ops}
			}
		}
	}

	// Fold the sorted set: each later operation is rebased against
	// everything already merged, then composed in.
	combined := sorted[0].Ops
	for _, op := range sorted[1:] {
		rebased, err := delta.Transform(op.Ops, combined, delta.Right)
		if err != nil {
			return ConflictResolution{Strategy: ResolutionManual, Conflicted: ops}
		}
		combined, err = delta.Compose(combined, rebased)
		if err != nil {
			return ConflictResolution{Strategy: ResolutionManual, Conflicted: ops}
		}
	}

	strategy := ResolutionThreeWay
	for _, op := range sorted[1:] {
		if rctx.Priorities.Of(op.UserID) != rctx.Priorities.Of(sorted[0].UserID) {
			strategy = ResolutionPriority
			break
		}
	}
	return ConflictResolution{
		Resolved: true,
		FinalOperation: &TextOperation{
			UserID:    sorted[0].UserID,
			Timestamp: sorted[0].Timestamp,
			Ops:       combined,
		},
		Strategy: strategy,
	}
}

// sortConflictSet orders operations by priority descending, timestamp
// ascending (earlier wins), then user id as the final deterministic
// tie-break.
func sortConflictSet(ops []TextOperation, p PriorityPolicy) []TextOperation {
	sorted := make([]TextOperation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := p.Of(sorted[i].UserID), p.Of(sorted[j].UserID)
		if pi != pj {
			return pi > pj
		}
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].UserID < sorted[j].UserID
	})
	return sorted
}

// Winner returns the user whose operation leads the deterministic
// conflict order, used by the registry to pick the insert tie-break
// side when applying a resolved set.
func Winner(ops []TextOperation, p PriorityPolicy) (uint64, bool) {
	if len(ops) == 0 {
		return 0, false
	}
	return sortConflictSet(ops, p)[0].UserID, true
}
