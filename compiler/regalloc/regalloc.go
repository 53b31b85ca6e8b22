// Package regalloc is the register-allocation core of the c0 backend.
//
// For every function it answers which physical register or stack slot holds
// which value at which point of the program:
//
//	MIR control-flow graph ->
//		arrange ->
//	linear block order and positions ->
//		scanIntervals ->
//	live intervals and phi aliases ->
//		second-chance bin packing ->
//	per-variable assignment and spill tables
//
// The tables are consumed by the instruction emitter walking the linear
// stream in lock step, materializing moves, loads and stores at spill and
// revive boundaries.
package regalloc

import (
	"context"
	"sort"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/c0lang/c0/compiler/interval"
	"github.com/c0lang/c0/compiler/mir"
)

type (
	Compiler struct {
		pools Pools
	}

	// FuncAlloc is the allocation state and result of a single function.
	FuncAlloc struct {
		Func *mir.Func

		Arrangement []mir.BlockID
		StartPos    map[mir.BlockID]int

		*Alloc
	}
)

func New(pools Pools) *Compiler {
	return &Compiler{pools: pools}
}

// AllocatePackage runs allocation for every function of the package.
func (c *Compiler) AllocatePackage(ctx context.Context, pkg *mir.Package) (_ map[mir.FuncID]*FuncAlloc, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "regalloc: package", "name", pkg.Path)
	defer tr.Finish("err", &err)

	ids := make([]mir.FuncID, 0, len(pkg.Funcs))

	for id := range pkg.Funcs {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	res := make(map[mir.FuncID]*FuncAlloc, len(ids))

	for _, id := range ids {
		f := pkg.Funcs[id]

		res[id], err = c.AllocateFunc(ctx, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return res, nil
}

// AllocateFunc arranges the function's blocks, scans live intervals and
// binds parameter and return variables to their registers. The returned
// FuncAlloc is then driven incrementally by the emitter's instruction walk.
func (c *Compiler) AllocateFunc(ctx context.Context, f *mir.Func) (_ *FuncAlloc, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "regalloc: func", "name", f.Name, "blocks", len(f.Blocks), "vars", len(f.Vars))
	defer tr.Finish("err", &err)

	fa := &FuncAlloc{
		Func:  f,
		Alloc: newAlloc(f, c.pools),
	}

	fa.Arrangement, fa.StartPos = c.arrange(ctx, f)

	err = c.scanIntervals(ctx, f, fa.Alloc, fa.Arrangement, fa.StartPos)
	if err != nil {
		return nil, errors.Wrap(err, "scan intervals")
	}

	err = fa.bindParamsAndRets()
	if err != nil {
		return nil, errors.Wrap(err, "bind params")
	}

	return fa, nil
}

// bindParamsAndRets binds Param variables, in declaration order, to the
// parameter-register pool at position 0; once the pool is exhausted the rest
// are spilled immediately, they arrive on the stack anyway. Ret variables
// are bound to the first return register.
func (fa *FuncAlloc) bindParamsAndRets() error {
	used := 0

	for idx, vd := range fa.Func.Vars {
		v := mir.VarID(idx)

		switch vd.Kind {
		case mir.Param:
			if vd.Type.Wide() {
				return errors.Wrap(ErrUnsupported, "double-register param %v", v)
			}

			o := VarOwner(fa.Collapsed(v))

			if used < len(fa.pools.Param) {
				err := fa.AllocateRegister(o, fa.pools.Param[used], 0, fa.varInterval(v))
				if err != nil {
					return errors.Wrap(err, "param %v", v)
				}

				used++

				continue
			}

			fa.Spilled[o] = append(fa.Spilled[o], fa.varInterval(v))
		case mir.Ret:
			if vd.Type.Wide() {
				return errors.Wrap(ErrUnsupported, "double-register return %v", v)
			}

			if len(fa.pools.Result) == 0 {
				return errors.Wrap(ErrInternal, "empty result register pool")
			}

			err := fa.AllocateRegister(VarOwner(fa.Collapsed(v)), fa.pools.Result[0], 0, fa.varInterval(v))
			if err != nil {
				return errors.Wrap(err, "ret %v", v)
			}
		}
	}

	return nil
}

// varInterval is the declared live interval of a variable. A variable the
// scanner never saw gets a point at position 0: it is born and dead at entry.
func (fa *FuncAlloc) varInterval(v mir.VarID) interval.Interval {
	if iv, ok := fa.Intervals[fa.Collapsed(v)]; ok {
		return iv
	}

	return interval.Point(0)
}

// AppendTables renders the emitter-facing allocation tables.
func (fa *FuncAlloc) AppendTables(b []byte) []byte {
	b = hfmt.Appendf(b, "func %v\n", fa.Func.Name)

	for _, blk := range fa.Arrangement {
		b = hfmt.Appendf(b, "  block %v at %v\n", blk, fa.StartPos[blk])
	}

	for _, v := range fa.Order {
		iv := fa.Intervals[v]

		b = hfmt.Appendf(b, "  var %v live [%v, %v]\n", v, iv.Start, iv.End)
	}

	for _, o := range sortedOwners(fa.Assignment) {
		for _, as := range fa.Assignment[o] {
			b = hfmt.Appendf(b, "  %v in r%v over [%v, %v]\n", o, as.Reg, as.Int.Start, as.Int.End)
		}
	}

	for _, o := range sortedOwners(fa.Spilled) {
		for _, sp := range fa.Spilled[o] {
			b = hfmt.Appendf(b, "  %v in memory over [%v, %v]\n", o, sp.Start, sp.End)
		}
	}

	return b
}

func sortedOwners[V any](m map[Owner]V) []Owner {
	os := make([]Owner, 0, len(m))

	for o := range m {
		os = append(os, o)
	}

	sort.Slice(os, func(i, j int) bool {
		if os[i].Scratch != os[j].Scratch {
			return os[i].Scratch < os[j].Scratch
		}

		return os[i].Var < os[j].Var
	})

	return os
}
