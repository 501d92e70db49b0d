package delta

import "fmt"

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

type Op struct {
	Kind  Kind   `json:"kind"`            // "retain" / "insert" / "delete"
	Count int    `json:"count,omitempty"` // retain/delete length in runes
	Text  string `json:"text,omitempty"`  // insert payload
}

// Delta is an ordered run of ops covering the whole base document:
// the retain/delete counts must sum to the base length in runes.
// "ops":[{"kind":"retain","count":5},{"kind":"insert","text":"Hello"}]
type Delta []Op

func Retain(n int) Op    { return Op{Kind: KindRetain, Count: n} }
func Insert(s string) Op { return Op{Kind: KindInsert, Text: s} }
func Delete(n int) Op    { return Op{Kind: KindDelete, Count: n} }

// New builds a normalized delta from the given ops.
func New(ops ...Op) Delta {
	var d Delta
	for _, op := range ops {
		d = d.push(op)
	}
	return d
}

// push appends an op, merging it into the previous op when both have the
// same kind and dropping empty ops, so deltas stay in canonical form.
func (d Delta) push(op Op) Delta {
	switch op.Kind {
	case KindRetain, KindDelete:
		if op.Count <= 0 {
			return d
		}
	case KindInsert:
		if op.Text == "" {
			return d
		}
	}
	if n := len(d); n > 0 && d[n-1].Kind == op.Kind {
		if op.Kind == KindInsert {
			d[n-1].Text += op.Text
		} else {
			d[n-1].Count += op.Count
		}
		return d
	}
	return append(d, op)
}

// Validate rejects malformed ops before they reach a document buffer.
func (d Delta) Validate() error {
	for i, op := range d {
		switch op.Kind {
		case KindRetain, KindDelete:
			if op.Count <= 0 {
				return fmt.Errorf("%w: op %d: %s count %d", ErrInvalidOp, i, op.Kind, op.Count)
			}
			if op.Text != "" {
				return fmt.Errorf("%w: op %d: %s carries text", ErrInvalidOp, i, op.Kind)
			}
		case KindInsert:
			if op.Text == "" {
				return fmt.Errorf("%w: op %d: empty insert", ErrInvalidOp, i)
			}
			if op.Count != 0 {
				return fmt.Errorf("%w: op %d: insert carries count", ErrInvalidOp, i)
			}
		default:
			return fmt.Errorf("%w: op %d: unknown kind %q", ErrInvalidOp, i, op.Kind)
		}
	}
	return nil
}

// BaseLen is the rune length of the document this delta applies to.
func (d Delta) BaseLen() int {
	n := 0
	for _, op := range d {
		if op.Kind == KindRetain || op.Kind == KindDelete {
			n += op.Count
		}
	}
	return n
}

// TargetLen is the rune length of the document after applying this delta.
func (d Delta) TargetLen() int {
	n := 0
	for _, op := range d {
		switch op.Kind {
		case KindRetain:
			n += op.Count
		case KindInsert:
			n += len([]rune(op.Text))
		}
	}
	return n
}

// IsNoop reports whether the delta changes nothing.
func (d Delta) IsNoop() bool {
	for _, op := range d {
		if op.Kind != KindRetain {
			return false
		}
	}
	return true
}

// HasInsert reports whether the delta adds any text.
func (d Delta) HasInsert() bool {
	for _, op := range d {
		if op.Kind == KindInsert {
			return true
		}
	}
	return false
}

// HasDelete reports whether the delta removes any text.
func (d Delta) HasDelete() bool {
	for _, op := range d {
		if op.Kind == KindDelete {
			return true
		}
	}
	return false
}

func (d Delta) Clone() Delta {
	out := make(Delta, len(d))
	copy(out, d)
	return out
}
