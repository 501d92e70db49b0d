package collab

import (
	"testing"
	"time"

	"collabEngine/backend/internal/ot/delta"
)

func textOp(user uint64, ts time.Time, ops ...delta.Op) TextOperation {
	return TextOperation{UserID: user, Timestamp: ts, Ops: delta.New(ops...)}
}

func TestDetectConflict(t *testing.T) {
	cases := []struct {
		name string
		a, b delta.Delta
		want bool
	}{
		{
			name: "overlapping deletes",
			a:    delta.New(delta.Retain(1), delta.Delete(3), delta.Retain(2)),
			b:    delta.New(delta.Retain(2), delta.Delete(3), delta.Retain(1)),
			want: true,
		},
		{
			name: "adjacent deletes are not conflicts",
			a:    delta.New(delta.Delete(2), delta.Retain(4)),
			b:    delta.New(delta.Retain(2), delta.Delete(2), delta.Retain(2)),
			want: false,
		},
		{
			name: "inserts at the same position are not conflicts",
			a:    delta.New(delta.Retain(5), delta.Insert(" world")),
			b:    delta.New(delta.Retain(5), delta.Insert("!")),
			want: false,
		},
		{
			name: "insert inside deleted span",
			a:    delta.New(delta.Retain(1), delta.Delete(4), delta.Retain(1)),
			b:    delta.New(delta.Retain(3), delta.Insert("x"), delta.Retain(3)),
			want: true,
		},
		{
			name: "no-op never conflicts",
			a:    delta.New(delta.Retain(6)),
			b:    delta.New(delta.Delete(6)),
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectConflict(tc.a, tc.b); got != tc.want {
				t.Fatalf("DetectConflict() = %v, want %v", got, tc.want)
			}
			if got := DetectConflict(tc.b, tc.a); got != tc.want {
				t.Fatalf("DetectConflict() not symmetric")
			}
		})
	}
}

func TestResolveConflict_ManualWhenBothReplace(t *testing.T) {
	base := "hello"
	t0 := time.Unix(1000, 0)
	a := textOp(1, t0, delta.Delete(5), delta.Insert("HELLO"))
	b := textOp(2, t0.Add(time.Second), delta.Retain(1), delta.Delete(3), delta.Insert("xyz"), delta.Retain(1))

	res := ResolveConflict([]TextOperation{a, b}, ResolveContext{BaseContent: base})
	if res.Resolved {
		t.Fatalf("expected unresolved, got strategy %s", res.Strategy)
	}
	if res.Strategy != ResolutionManual {
		t.Fatalf("Strategy = %s, want %s", res.Strategy, ResolutionManual)
	}
	if len(res.Conflicted) != 2 {
		t.Fatalf("Conflicted = %d ops, want 2", len(res.Conflicted))
	}
}

func TestResolveConflict_MergesOverlappingDeletes(t *testing.T) {
	base := "abcdef"
	t0 := time.Unix(1000, 0)
	a := textOp(1, t0, delta.Retain(1), delta.Delete(3), delta.Retain(2))
	b := textOp(2, t0.Add(time.Second), delta.Retain(2), delta.Delete(3), delta.Retain(1))

	res := ResolveConflict([]TextOperation{a, b}, ResolveContext{BaseContent: base})
	if !res.Resolved {
		t.Fatalf("expected resolved")
	}
	if res.Strategy != ResolutionThreeWay {
		t.Fatalf("Strategy = %s, want %s", res.Strategy, ResolutionThreeWay)
	}
	got, err := res.FinalOperation.Ops.Apply(base)
	if err != nil {
		t.Fatalf("Apply(final) error = %v", err)
	}
	if want := "af"; got != want {
		t.Fatalf("merged content = %q, want %q", got, want)
	}
}

func TestResolveConflict_PriorityOrdersWinner(t *testing.T) {
	base := "hello"
	t0 := time.Unix(1000, 0)
	// user 2 is later but outranks user 1
	a := textOp(1, t0, delta.Retain(5), delta.Insert("A"))
	b := textOp(2, t0.Add(time.Minute), delta.Retain(5), delta.Insert("B"))

	policy := PriorityPolicy{ByUser: map[uint64]int{2: 10}}
	res := ResolveConflict([]TextOperation{a, b}, ResolveContext{BaseContent: base, Priorities: policy})
	if !res.Resolved {
		t.Fatalf("expected resolved")
	}
	if res.Strategy != ResolutionPriority {
		t.Fatalf("Strategy = %s, want %s", res.Strategy, ResolutionPriority)
	}
	if res.FinalOperation.UserID != 2 {
		t.Fatalf("winner = %d, want 2", res.FinalOperation.UserID)
	}
	got, err := res.FinalOperation.Ops.Apply(base)
	if err != nil {
		t.Fatalf("Apply(final) error = %v", err)
	}
	if want := "helloBA"; got != want {
		t.Fatalf("merged content = %q, want %q", got, want)
	}
}

func TestResolveConflict_Deterministic(t *testing.T) {
	base := "abcdef"
	t0 := time.Unix(1000, 0)
	ops := []TextOperation{
		textOp(3, t0, delta.Retain(1), delta.Delete(2), delta.Retain(3)),
		textOp(1, t0, delta.Retain(2), delta.Delete(3), delta.Retain(1)),
		textOp(2, t0.Add(time.Second), delta.Retain(5), delta.Insert("x"), delta.Retain(1)),
	}
	rctx := ResolveContext{BaseContent: base, Priorities: PriorityPolicy{ByUser: map[uint64]int{2: 5}}}

	first := ResolveConflict(ops, rctx)
	for i := 0; i < 20; i++ {
		again := ResolveConflict(ops, rctx)
		if again.Resolved != first.Resolved || again.Strategy != first.Strategy {
			t.Fatalf("resolution not deterministic: run %d gave %v/%s", i, again.Resolved, again.Strategy)
		}
		if first.Resolved {
			g1, _ := first.FinalOperation.Ops.Apply(base)
			g2, _ := again.FinalOperation.Ops.Apply(base)
			if g1 != g2 {
				t.Fatalf("final operation not deterministic: %q vs %q", g1, g2)
			}
		}
	}
}

// With no priorities configured, earlier timestamp wins; equal
// timestamps fall back to user id.
func TestResolveConflict_DefaultPriorityTieBreak(t *testing.T) {
	base := "hello"
	t0 := time.Unix(1000, 0)
	a := textOp(7, t0, delta.Retain(5), delta.Insert("A"))
	b := textOp(2, t0, delta.Retain(5), delta.Insert("B"))

	res := ResolveConflict([]TextOperation{a, b}, ResolveContext{BaseContent: base})
	if !res.Resolved {
		t.Fatalf("expected resolved")
	}
	if res.FinalOperation.UserID != 2 {
		t.Fatalf("winner = %d, want lower user id 2", res.FinalOperation.UserID)
	}
}
