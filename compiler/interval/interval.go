package interval

import (
	"tlog.app/go/tlog/tlwire"
)

// Interval is a closed range of linear instruction positions.
// A point interval has Start == End.
type Interval struct {
	Start, End int
}

func Point(p int) Interval {
	return Interval{Start: p, End: p}
}

func Union(a, b Interval) Interval {
	if b.Start < a.Start {
		a.Start = b.Start
	}

	if b.End > a.End {
		a.End = b.End
	}

	return a
}

func (i Interval) Len() int {
	return i.End - i.Start
}

// ExtendStart moves the start earlier, never later.
func (i *Interval) ExtendStart(p int) {
	if p < i.Start {
		i.Start = p
	}
}

// ExtendEnd moves the end later, never earlier.
func (i *Interval) ExtendEnd(p int) {
	if p > i.End {
		i.End = p
	}
}

// IsInsideWrite reports whether a write at p lands strictly inside the
// interval. Edges are exclusive: a value may be rewritten at the exact
// position an old location for it expired.
func (i Interval) IsInsideWrite(p int) bool {
	return p > i.Start && p < i.End
}

// AliveForReading reports whether the value may be read at p, edges included.
func (i Interval) AliveForReading(p int) bool {
	return p >= i.Start && p <= i.End
}

// Split truncates the interval to end at p and returns the removed tail.
// The tail starts at p so the two parts cover every original position.
func (i *Interval) Split(p int) Interval {
	tail := Interval{Start: p, End: i.End}
	i.End = p

	return tail
}

func (i Interval) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendArray(b, 2)
	b = e.AppendInt(b, i.Start)
	b = e.AppendInt(b, i.End)

	return b
}
