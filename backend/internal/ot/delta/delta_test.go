package delta

import "testing"

func TestApply_InsertMiddle(t *testing.T) {
	d := New(Retain(5), Insert(" collaborative"), Retain(6))
	got, err := d.Apply("Hello world")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if want := "Hello collaborative world"; got != want {
		t.Fatalf("Apply() = %q, want %q", got, want)
	}
}

func TestApply_DeleteAndReplace(t *testing.T) {
	d := New(Retain(6), Delete(5), Insert("there"))
	got, err := d.Apply("Hello world")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if want := "Hello there"; got != want {
		t.Fatalf("Apply() = %q, want %q", got, want)
	}
}

func TestApply_LengthMismatch(t *testing.T) {
	d := New(Retain(3))
	if _, err := d.Apply("Hello"); err == nil {
		t.Fatalf("Apply() with short coverage: expected error")
	}
}

func TestApply_Unicode(t *testing.T) {
	d := New(Retain(2), Insert("好"), Retain(2))
	got, err := d.Apply("你们世界")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if want := "你们好世界"; got != want {
		t.Fatalf("Apply() = %q, want %q", got, want)
	}
}

func TestValidate_RejectsMalformedOps(t *testing.T) {
	bad := []Delta{
		{Op{Kind: KindRetain, Count: -1}},
		{Op{Kind: KindInsert}},
		{Op{Kind: KindDelete, Count: 2, Text: "x"}},
		{Op{Kind: "replace", Count: 1}},
	}
	for i, d := range bad {
		if err := d.Validate(); err == nil {
			t.Fatalf("Validate() case %d: expected error", i)
		}
	}
}

func TestNew_NormalizesAdjacentOps(t *testing.T) {
	d := New(Retain(2), Retain(3), Insert("a"), Insert("b"), Retain(0), Delete(1), Delete(2))
	want := Delta{Retain(5), Insert("ab"), Delete(3)}
	if len(d) != len(want) {
		t.Fatalf("New() = %v, want %v", d, want)
	}
	for i := range want {
		if d[i] != want[i] {
			t.Fatalf("New()[%d] = %v, want %v", i, d[i], want[i])
		}
	}
}

func TestInvert_RoundTrip(t *testing.T) {
	base := "hello world"
	d := New(Retain(6), Delete(5), Insert("gopher"))
	after, err := d.Apply(base)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	inv, err := d.Invert(base)
	if err != nil {
		t.Fatalf("Invert() error = %v", err)
	}
	back, err := inv.Apply(after)
	if err != nil {
		t.Fatalf("Apply(invert) error = %v", err)
	}
	if back != base {
		t.Fatalf("invert round trip = %q, want %q", back, base)
	}
}

func TestCompose_SequentialEdits(t *testing.T) {
	base := "hello"
	a := New(Retain(5), Insert(" world"))
	b := New(Retain(11), Insert("!"))
	ab, err := Compose(a, b)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	got, err := ab.Apply(base)
	if err != nil {
		t.Fatalf("Apply(composed) error = %v", err)
	}
	if want := "hello world!"; got != want {
		t.Fatalf("composed apply = %q, want %q", got, want)
	}
}

func TestCompose_InsertThenDeleteCancels(t *testing.T) {
	a := New(Retain(3), Insert("abc"))
	b := New(Retain(3), Delete(3))
	ab, err := Compose(a, b)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !ab.IsNoop() {
		t.Fatalf("composed = %v, want no-op", ab)
	}
}

// applyBoth applies b then Transform(a,b,sideA) and checks the result
// matches applying a then Transform(b,a,sideB).
func applyBoth(t *testing.T, base string, a, b Delta) string {
	t.Helper()
	aPrime, err := Transform(a, b, Left)
	if err != nil {
		t.Fatalf("Transform(a,b) error = %v", err)
	}
	bPrime, err := Transform(b, a, Right)
	if err != nil {
		t.Fatalf("Transform(b,a) error = %v", err)
	}
	viaB, err := b.Apply(base)
	if err != nil {
		t.Fatalf("Apply(b) error = %v", err)
	}
	viaB, err = aPrime.Apply(viaB)
	if err != nil {
		t.Fatalf("Apply(a') error = %v", err)
	}
	viaA, err := a.Apply(base)
	if err != nil {
		t.Fatalf("Apply(a) error = %v", err)
	}
	viaA, err = bPrime.Apply(viaA)
	if err != nil {
		t.Fatalf("Apply(b') error = %v", err)
	}
	if viaA != viaB {
		t.Fatalf("convergence broken: %q vs %q", viaA, viaB)
	}
	return viaA
}

func TestTransform_Convergence(t *testing.T) {
	cases := []struct {
		name string
		base string
		a, b Delta
		want string
	}{
		{
			name: "inserts at same position",
			base: "hello",
			a:    New(Retain(5), Insert(" world")),
			b:    New(Retain(5), Insert("!")),
			want: "hello world!",
		},
		{
			name: "disjoint insert and delete",
			base: "hello world",
			a:    New(Insert(">"), Retain(11)),
			b:    New(Retain(5), Delete(6)),
			want: ">hello",
		},
		{
			name: "overlapping deletes",
			base: "abcdef",
			a:    New(Retain(1), Delete(3), Retain(2)),
			b:    New(Retain(2), Delete(3), Retain(1)),
			want: "af",
		},
		{
			name: "insert inside other's retained text",
			base: "abc",
			a:    New(Retain(1), Insert("X"), Retain(2)),
			b:    New(Retain(3), Insert("Y")),
			want: "aXbcY",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := applyBoth(t, tc.base, tc.a, tc.b); got != tc.want {
				t.Fatalf("merged = %q, want %q", got, tc.want)
			}
		})
	}
}

// The left side keeps its text in front on an equal-position insert, so
// user B's "!" at position 5 lands after A's " world" — at position 11.
func TestTransform_TieBreakFollowsArrival(t *testing.T) {
	a := New(Retain(5), Insert(" world"))
	b := New(Retain(5), Insert("!"))
	bPrime, err := Transform(b, a, Right)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	afterA, err := a.Apply("hello")
	if err != nil {
		t.Fatalf("Apply(a) error = %v", err)
	}
	got, err := bPrime.Apply(afterA)
	if err != nil {
		t.Fatalf("Apply(b') error = %v", err)
	}
	if want := "hello world!"; got != want {
		t.Fatalf("final = %q, want %q", got, want)
	}
	start, _, ok := bPrime.EditSpan()
	if !ok || start != 11 {
		t.Fatalf("transformed insert position = %d, want 11", start)
	}
}

func TestEditSpan(t *testing.T) {
	cases := []struct {
		d          Delta
		start, end int
		edited     bool
	}{
		{New(Retain(5)), 0, 0, false},
		{New(Retain(5), Insert("x")), 5, 5, true},
		{New(Retain(2), Delete(3), Retain(1)), 2, 5, true},
		{New(Retain(2), Delete(1), Retain(2), Delete(1)), 2, 6, true},
	}
	for i, tc := range cases {
		start, end, edited := tc.d.EditSpan()
		if start != tc.start || end != tc.end || edited != tc.edited {
			t.Fatalf("case %d: EditSpan() = (%d,%d,%v), want (%d,%d,%v)",
				i, start, end, edited, tc.start, tc.end, tc.edited)
		}
	}
}
