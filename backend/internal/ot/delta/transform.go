package delta

import "fmt"

// Side decides which party's insert lands first when two concurrent
// operations insert at the same position. The "left" side is the
// already-applied / earlier-sequenced one; its text stays in front.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// cursor walks a delta op by op, letting callers consume partial
// retain/delete counts and partial insert text (in runes).
type cursor struct {
	ops []Op
	i   int
	// consumed prefix of the current op
	off int
}

func newCursor(d Delta) *cursor { return &cursor{ops: d} }

func (c *cursor) done() bool { return c.i >= len(c.ops) }

func (c *cursor) kind() Kind { return c.ops[c.i].Kind }

// remaining reports how much of the current op is left, in runes.
func (c *cursor) remaining() int {
	op := c.ops[c.i]
	if op.Kind == KindInsert {
		return len([]rune(op.Text)) - c.off
	}
	return op.Count - c.off
}

// takeText consumes n runes of the current insert op.
func (c *cursor) takeText(n int) string {
	runes := []rune(c.ops[c.i].Text)
	s := string(runes[c.off : c.off+n])
	c.advance(n)
	return s
}

// advance consumes n runes of the current op.
func (c *cursor) advance(n int) {
	c.off += n
	if c.remaining() == 0 {
		c.i++
		c.off = 0
	}
}

// takeAll consumes and returns the rest of the current op.
func (c *cursor) takeAll() Op {
	op := c.ops[c.i]
	if op.Kind == KindInsert {
		op.Text = c.takeText(c.remaining())
	} else {
		op.Count = c.remaining()
		c.advance(op.Count)
	}
	return op
}

// Compose merges two sequential deltas into one: a takes the document
// from S0 to S1, b from S1 to S2, and the result goes S0 to S2 directly.
// Used to keep per-user pending-operation histories short.
func Compose(a, b Delta) (Delta, error) {
	if a.TargetLen() != b.BaseLen() {
		return nil, fmt.Errorf("%w: compose: first targets %d, second covers %d", ErrLengthMismatch, a.TargetLen(), b.BaseLen())
	}
	ca, cb := newCursor(a), newCursor(b)
	var out Delta
	for !ca.done() || !cb.done() {
		// a's deletes act on S0 text b never sees; keep them as-is.
		if !ca.done() && ca.kind() == KindDelete {
			out = out.push(ca.takeAll())
			continue
		}
		// b's inserts are new text independent of a; keep them as-is.
		if !cb.done() && cb.kind() == KindInsert {
			out = out.push(cb.takeAll())
			continue
		}
		if ca.done() || cb.done() {
			return nil, fmt.Errorf("%w: compose: ran out of ops", ErrLengthMismatch)
		}
		n := min(ca.remaining(), cb.remaining())
		switch {
		case ca.kind() == KindRetain && cb.kind() == KindRetain:
			out = out.push(Retain(n))
			ca.advance(n)
			cb.advance(n)
		case ca.kind() == KindRetain && cb.kind() == KindDelete:
			out = out.push(Delete(n))
			ca.advance(n)
			cb.advance(n)
		case ca.kind() == KindInsert && cb.kind() == KindRetain:
			out = out.push(Insert(ca.takeText(n)))
			cb.advance(n)
		case ca.kind() == KindInsert && cb.kind() == KindDelete:
			// b deletes text a just inserted; the pair cancels out.
			ca.advance(n)
			cb.advance(n)
		}
	}
	return out, nil
}

// Transform rebases a against a concurrent b on the same base document,
// returning a' such that applying b then a' gives the same document as
// applying a then b' (with b' = Transform(b, a, other side)). This is
// the standard OT convergence property; side breaks insert ties.
func Transform(a, b Delta, side Side) (Delta, error) {
	if a.BaseLen() != b.BaseLen() {
		return nil, fmt.Errorf("%w: transform: bases differ (%d vs %d)", ErrLengthMismatch, a.BaseLen(), b.BaseLen())
	}
	ca, cb := newCursor(a), newCursor(b)
	var out Delta
	for !ca.done() || !cb.done() {
		// a's insert keeps its place; when both sides insert at the same
		// position, the left one goes first.
		if !ca.done() && ca.kind() == KindInsert &&
			(side == Left || cb.done() || cb.kind() != KindInsert) {
			out = out.push(ca.takeAll())
			continue
		}
		// b inserted text a must now retain over.
		if !cb.done() && cb.kind() == KindInsert {
			n := cb.remaining()
			out = out.push(Retain(n))
			cb.advance(n)
			continue
		}
		if ca.done() || cb.done() {
			return nil, fmt.Errorf("%w: transform: ran out of ops", ErrLengthMismatch)
		}
		n := min(ca.remaining(), cb.remaining())
		switch {
		case ca.kind() == KindRetain && cb.kind() == KindRetain:
			out = out.push(Retain(n))
		case ca.kind() == KindDelete && cb.kind() == KindDelete:
			// both deleted the same text; nothing left for a' to do
		case ca.kind() == KindDelete && cb.kind() == KindRetain:
			out = out.push(Delete(n))
		case ca.kind() == KindRetain && cb.kind() == KindDelete:
			// text a wanted to keep is already gone
		}
		ca.advance(n)
		cb.advance(n)
	}
	return out, nil
}
