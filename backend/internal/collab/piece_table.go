package collab

import (
	"fmt"

	"collabEngine/backend/internal/ot/delta"
)

type bufferKind int

const (
	bufOriginal bufferKind = iota
	bufAdd
)

// piece references a run of runes in either the original or the add buffer.
type piece struct {
	buf    bufferKind
	offset int
	length int
}

// PieceTable keeps document content as an immutable original buffer, an
// append-only add buffer, and a piece list describing the current text.
// Edits only split/merge pieces; the text itself is never moved.
type PieceTable struct {
	original []rune
	add      []rune
	pieces   []piece
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	pt := &PieceTable{original: r}
	if len(r) > 0 {
		pt.pieces = []piece{{buf: bufOriginal, offset: 0, length: len(r)}}
	}
	return pt
}

func (pt *PieceTable) Len() int {
	n := 0
	for _, p := range pt.pieces {
		n += p.length
	}
	return n
}

func (pt *PieceTable) String() string {
	out := make([]rune, 0, pt.Len())
	for _, p := range pt.pieces {
		out = append(out, pt.runesOf(p)...)
	}
	return string(out)
}

// Slice returns the text in the half-open rune range [start, end).
func (pt *PieceTable) Slice(start, end int) (string, error) {
	if start < 0 || end < start || end > pt.Len() {
		return "", fmt.Errorf("slice [%d,%d) out of range for length %d", start, end, pt.Len())
	}
	out := make([]rune, 0, end-start)
	pos := 0
	for _, p := range pt.pieces {
		if pos >= end {
			break
		}
		lo, hi := 0, p.length
		if start > pos {
			lo = start - pos
		}
		if end < pos+p.length {
			hi = end - pos
		}
		if lo < hi {
			out = append(out, pt.runesOf(p)[lo:hi]...)
		}
		pos += p.length
	}
	return string(out), nil
}

// Apply walks the delta over the piece list: retain moves the position,
// insert appends to the add buffer and splits the target piece, delete
// trims or drops pieces. The delta must cover Len exactly.
func (pt *PieceTable) Apply(d delta.Delta) error {
	if got := d.BaseLen(); got != pt.Len() {
		return fmt.Errorf("%w: delta covers %d, buffer has %d", delta.ErrLengthMismatch, got, pt.Len())
	}
	pos := 0
	for _, op := range d {
		switch op.Kind {
		case delta.KindRetain:
			pos += op.Count
		case delta.KindInsert:
			n := pt.insert(pos, op.Text)
			pos += n
		case delta.KindDelete:
			pt.delete(pos, op.Count)
		}
	}
	return nil
}

func (pt *PieceTable) runesOf(p piece) []rune {
	if p.buf == bufAdd {
		return pt.add[p.offset : p.offset+p.length]
	}
	return pt.original[p.offset : p.offset+p.length]
}

// insert places text at rune position pos and returns its rune length.
func (pt *PieceTable) insert(pos int, text string) int {
	r := []rune(text)
	np := piece{buf: bufAdd, offset: len(pt.add), length: len(r)}
	pt.add = append(pt.add, r...)

	idx, off := pt.locate(pos)
	if idx >= len(pt.pieces) {
		pt.pieces = append(pt.pieces, np)
		return len(r)
	}
	cur := pt.pieces[idx]
	out := make([]piece, 0, len(pt.pieces)+2)
	out = append(out, pt.pieces[:idx]...)
	if off > 0 {
		out = append(out, piece{buf: cur.buf, offset: cur.offset, length: off})
	}
	out = append(out, np)
	if off < cur.length {
		out = append(out, piece{buf: cur.buf, offset: cur.offset + off, length: cur.length - off})
	}
	out = append(out, pt.pieces[idx+1:]...)
	pt.pieces = out
	return len(r)
}

// delete removes count runes starting at rune position pos.
func (pt *PieceTable) delete(pos, count int) {
	remain := count
	idx, off := pt.locate(pos)
	for remain > 0 && idx < len(pt.pieces) {
		cur := pt.pieces[idx]
		can := cur.length - off
		if can <= 0 {
			idx++
			off = 0
			continue
		}
		take := min(remain, can)

		if off == 0 && take == cur.length {
			pt.pieces = append(pt.pieces[:idx], pt.pieces[idx+1:]...)
			// idx now points at the piece after the removed one
		} else {
			out := make([]piece, 0, len(pt.pieces)+1)
			out = append(out, pt.pieces[:idx]...)
			if off > 0 {
				out = append(out, piece{buf: cur.buf, offset: cur.offset, length: off})
			}
			if rest := cur.length - off - take; rest > 0 {
				out = append(out, piece{buf: cur.buf, offset: cur.offset + off + take, length: rest})
			}
			out = append(out, pt.pieces[idx+1:]...)
			pt.pieces = out
			if off > 0 {
				idx++ // skip past the kept left part
			}
			off = 0
		}
		remain -= take
	}
}

// locate maps a rune position to (piece index, offset inside that piece).
func (pt *PieceTable) locate(pos int) (idx, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}
