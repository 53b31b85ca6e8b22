package regalloc

import (
	"context"
	"sort"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/c0lang/c0/compiler/interval"
	"github.com/c0lang/c0/compiler/mir"
	"github.com/c0lang/c0/compiler/set"
)

type (
	// blockScan computes live intervals for a single block, given the
	// block's starting position in the linear stream and the set of
	// variables its successors assume live.
	blockScan struct {
		offset int
		bb     *mir.BasicBlk
		next   set.Bits[mir.VarID]

		intervals map[mir.VarID]interval.Interval
		collapse  map[mir.VarID]mir.VarID
	}
)

// scanIntervals walks the arranged blocks and fills the interval and
// collapse tables of the allocator. Intervals end up sorted by start
// position, which is the order variables become relevant to allocation.
func (c *Compiler) scanIntervals(ctx context.Context, f *mir.Func, a *Alloc, order []mir.BlockID, start map[mir.BlockID]int) (err error) {
	tr := tlog.SpanFromContext(ctx)

	for _, b := range order {
		bb := f.Blocks[b]

		next := set.MakeBits[mir.VarID]()

		for _, n := range bb.Term.Next() {
			next.SetAll(f.Blocks[n].UsesVar...)
		}

		s := blockScan{
			offset:    start[b],
			bb:        bb,
			next:      next,
			intervals: a.Intervals,
			collapse:  a.collapse,
		}

		err = s.scan()
		if err != nil {
			return errors.Wrap(err, "block %v", b)
		}
	}

	a.Order = a.Order[:0]

	for v := range a.Intervals {
		a.Order = append(a.Order, v)
	}

	sort.Slice(a.Order, func(i, j int) bool {
		x, y := a.Intervals[a.Order[i]], a.Intervals[a.Order[j]]

		if x.Start != y.Start {
			return x.Start < y.Start
		}

		return a.Order[i] < a.Order[j]
	})

	if tr.If("dump_intervals") {
		for _, v := range a.Order {
			tr.Printw("interval", "var", v, "int", a.Intervals[v])
		}

		for v, to := range a.collapse {
			tr.Printw("collapse", "var", v, "into", to)
		}
	}

	return nil
}

func (s *blockScan) scan() (err error) {
	// variables live on entry are open from the block start
	for _, v := range s.bb.UsesVar {
		s.open(v, s.offset)
	}

	for idx, inst := range s.bb.Inst {
		pos := s.offset + idx

		s.openRef(inst.Tgt, pos)

		switch x := inst.Ins.(type) {
		case mir.TyCast:
			err = s.closeVal(x.Val, pos)
		case mir.Assign:
			err = s.closeVal(x.Val, pos)
		case mir.Bin:
			err = s.closeVal(x.L, pos)
			if err == nil {
				err = s.closeVal(x.R, pos)
			}
		case mir.Una:
			err = s.closeVal(x.Val, pos)
		case mir.Call:
			for _, a := range x.Args {
				err = s.closeVal(a, pos)
				if err != nil {
					break
				}
			}
		case mir.Phi:
			err = s.collapsePhi(inst.Tgt, x, pos)
		case mir.RestRead:
			err = errors.Wrap(ErrUnsupported, "rest read")
		default:
			err = errors.Wrap(ErrInternal, "unexpected instruction %T", x)
		}

		if err != nil {
			return errors.Wrap(err, "inst %v (pos %v)", idx, pos)
		}
	}

	end := s.offset + len(s.bb.Inst)

	switch t := s.bb.Term.(type) {
	case mir.Cond:
		err = s.closeVal(t.Val, end)
	case mir.Return:
		if t.Val != nil {
			err = s.closeVal(t.Val, end)
		}
	}

	if err != nil {
		return errors.Wrap(err, "terminator (pos %v)", end)
	}

	// keep successor-visible values alive across the block boundary
	s.next.Range(func(v mir.VarID) bool {
		s.close(v, end+1)
		return true
	})

	return nil
}

func (s *blockScan) open(v mir.VarID, pos int) {
	v = collapsed(s.collapse, v)

	iv, ok := s.intervals[v]
	if !ok {
		iv = interval.Point(pos)
	}

	iv.ExtendStart(pos)
	s.intervals[v] = iv
}

func (s *blockScan) close(v mir.VarID, pos int) {
	v = collapsed(s.collapse, v)

	iv, ok := s.intervals[v]
	if !ok {
		iv = interval.Point(pos)
	}

	iv.ExtendEnd(pos)
	s.intervals[v] = iv
}

func (s *blockScan) openRef(ref mir.VarRef, pos int) {
	if v, ok := ref.LocalID(); ok {
		s.open(v, pos)
	}

	// a global target is dereferenced directly, nothing to track
}

func (s *blockScan) closeVal(val mir.Value, pos int) error {
	ref, ok := val.(mir.VarRef)
	if !ok {
		return nil
	}

	v, ok := ref.LocalID()
	if !ok {
		return errors.Wrap(ErrUnsupported, "global variable read")
	}

	s.close(v, pos)

	return nil
}

// collapsePhi merges the phi target and all its source variables into one
// canonical variable: the numerically smallest of the group. Their intervals
// are unioned under the canonical id, every other id becomes an alias.
func (s *blockScan) collapsePhi(tgt mir.VarRef, phi mir.Phi, pos int) error {
	vars := make([]mir.VarID, 0, len(phi)+1)

	if v, ok := tgt.LocalID(); ok {
		vars = append(vars, v)
	}

	for _, src := range phi {
		if v, ok := src.Val.LocalID(); ok {
			vars = append(vars, v)
		}
	}

	if len(vars) == 0 {
		return nil
	}

	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })

	canon := collapsed(s.collapse, vars[0])

	iv, ok := s.intervals[canon]
	if !ok {
		iv = interval.Point(pos)
	}

	for _, v := range vars[1:] {
		vi, ok := s.intervals[v]
		if !ok {
			vi = interval.Point(pos)
		}

		iv = interval.Union(iv, vi)

		delete(s.intervals, v)
	}

	s.intervals[canon] = iv

	for _, v := range vars[1:] {
		if v < canon {
			return errors.Wrap(ErrInternal, "collapse target %v is not the smallest of the group (var %v)", canon, v)
		}

		if v == canon {
			continue
		}

		v = collapsed(s.collapse, v)
		if v == canon {
			continue
		}

		if v < canon {
			return errors.Wrap(ErrInternal, "alias %v resolves below collapse target %v", v, canon)
		}

		if _, busy := s.collapse[v]; busy {
			return errors.Wrap(ErrInternal, "alias %v is already collapsed", v)
		}

		s.collapse[v] = canon
	}

	return nil
}

// collapsed resolves a variable through the alias table, caching the final
// target back into every link of the chain.
func collapsed(collapse map[mir.VarID]mir.VarID, v mir.VarID) mir.VarID {
	to, ok := collapse[v]
	if !ok {
		return v
	}

	root := collapsed(collapse, to)
	if root != to {
		collapse[v] = root
	}

	return root
}
