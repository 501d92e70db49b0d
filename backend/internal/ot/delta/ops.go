package delta

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidOp marks a structurally malformed delta.
	ErrInvalidOp = errors.New("INVALID_OPERATION")
	// ErrLengthMismatch marks a delta whose covered length does not equal
	// the length of the document it is applied to.
	ErrLengthMismatch = errors.New("OPERATION_LENGTH_MISMATCH")
)

// Apply runs the delta over base and returns the new content.
// The delta must cover base exactly: BaseLen() == rune length of base.
func (d Delta) Apply(base string) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	runes := []rune(base)
	if d.BaseLen() != len(runes) {
		return "", fmt.Errorf("%w: delta covers %d, document has %d", ErrLengthMismatch, d.BaseLen(), len(runes))
	}
	var b strings.Builder
	pos := 0
	for _, op := range d {
		switch op.Kind {
		case KindRetain:
			b.WriteString(string(runes[pos : pos+op.Count]))
			pos += op.Count
		case KindInsert:
			b.WriteString(op.Text)
		case KindDelete:
			pos += op.Count
		}
	}
	return b.String(), nil
}

// Invert returns the delta that undoes d when applied to d's result:
// Apply(Apply(base, d), d.Invert(base)) == base.
func (d Delta) Invert(base string) (Delta, error) {
	runes := []rune(base)
	if d.BaseLen() != len(runes) {
		return nil, fmt.Errorf("%w: delta covers %d, document has %d", ErrLengthMismatch, d.BaseLen(), len(runes))
	}
	var inv Delta
	pos := 0
	for _, op := range d {
		switch op.Kind {
		case KindRetain:
			inv = inv.push(Retain(op.Count))
			pos += op.Count
		case KindInsert:
			inv = inv.push(Delete(len([]rune(op.Text))))
		case KindDelete:
			inv = inv.push(Insert(string(runes[pos : pos+op.Count])))
			pos += op.Count
		}
	}
	return inv, nil
}

// EditSpan returns the half-open rune range [start, end) of base content
// this delta edits. A pure insert has a zero-width span at its position.
// edited is false for a no-op delta.
func (d Delta) EditSpan() (start, end int, edited bool) {
	pos := 0
	start, end = -1, -1
	for _, op := range d {
		switch op.Kind {
		case KindRetain:
			pos += op.Count
		case KindInsert:
			if start < 0 {
				start = pos
			}
			if pos > end {
				end = pos
			}
		case KindDelete:
			if start < 0 {
				start = pos
			}
			pos += op.Count
			if pos > end {
				end = pos
			}
		}
	}
	if start < 0 {
		return 0, 0, false
	}
	if end < start {
		end = start
	}
	return start, end, true
}

// DeleteSpan is like EditSpan but covers only deleted base content,
// ignoring where insertions land.
func (d Delta) DeleteSpan() (start, end int, deleted bool) {
	pos := 0
	start, end = -1, -1
	for _, op := range d {
		switch op.Kind {
		case KindRetain:
			pos += op.Count
		case KindDelete:
			if start < 0 {
				start = pos
			}
			pos += op.Count
			end = pos
		}
	}
	if start < 0 {
		return 0, 0, false
	}
	return start, end, true
}
