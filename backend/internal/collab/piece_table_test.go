package collab

import (
	"testing"

	"collabEngine/backend/internal/ot/delta"
)

func TestPieceTable_BasicString(t *testing.T) {
	pt := NewPieceTable("Hello world")
	if got := pt.String(); got != "Hello world" {
		t.Fatalf("String() = %q, want %q", got, "Hello world")
	}
	if gotLen := pt.Len(); gotLen != len([]rune("Hello world")) {
		t.Fatalf("Len() = %d, want %d", gotLen, len([]rune("Hello world")))
	}
}

func TestPieceTable_InsertMiddle(t *testing.T) {
	pt := NewPieceTable("Hello world")

	d := delta.New(delta.Retain(5), delta.Insert(" collaborative"), delta.Retain(6))
	if err := pt.Apply(d); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello collaborative world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_DeleteMiddle(t *testing.T) {
	pt := NewPieceTable("Hello collaborative world")

	d := delta.New(delta.Retain(5), delta.Delete(14), delta.Retain(6))
	if err := pt.Apply(d); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_DeleteAcrossPieces(t *testing.T) {
	pt := NewPieceTable("Hello world")
	if err := pt.Apply(delta.New(delta.Retain(5), delta.Insert(" big"), delta.Retain(6))); err != nil {
		t.Fatalf("Apply(insert) error = %v", err)
	}
	// delete " big wor": spans the add piece and part of the original
	if err := pt.Apply(delta.New(delta.Retain(5), delta.Delete(8), delta.Retain(2))); err != nil {
		t.Fatalf("Apply(delete) error = %v", err)
	}
	if got, want := pt.String(), "Hellold"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_EmptyDocument(t *testing.T) {
	pt := NewPieceTable("")
	if pt.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", pt.Len())
	}
	if err := pt.Apply(delta.New(delta.Insert("hi"))); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := pt.String(); got != "hi" {
		t.Fatalf("String() = %q, want %q", got, "hi")
	}
}

func TestPieceTable_LengthMismatchRejected(t *testing.T) {
	pt := NewPieceTable("Hello")
	if err := pt.Apply(delta.New(delta.Retain(3))); err == nil {
		t.Fatalf("Apply() with short coverage: expected error")
	}
	if got := pt.String(); got != "Hello" {
		t.Fatalf("content mutated on rejected delta: %q", got)
	}
}

func TestPieceTable_Slice(t *testing.T) {
	pt := NewPieceTable("Hello world")
	if err := pt.Apply(delta.New(delta.Retain(5), delta.Insert(" collaborative"), delta.Retain(6))); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	got, err := pt.Slice(6, 19)
	if err != nil {
		t.Fatalf("Slice() error = %v", err)
	}
	if want := "collaborative"; got != want {
		t.Fatalf("Slice() = %q, want %q", got, want)
	}
	if _, err := pt.Slice(5, 100); err == nil {
		t.Fatalf("Slice() out of range: expected error")
	}
}
