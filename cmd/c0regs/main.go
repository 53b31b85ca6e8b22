package main

import (
	"context"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/c0lang/c0/compiler/asm/arm64"
	"github.com/c0lang/c0/compiler/mir"
	"github.com/c0lang/c0/compiler/regalloc"
)

func main() {
	demoCmd := &cli.Command{
		Name:        "demo",
		Description: "run register allocation over built-in demo functions and dump the tables",
		Action:      demoAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "c0regs",
		Description: "c0regs inspects the c0 backend register allocator",
		Commands: []*cli.Command{
			demoCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func demoAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	arch := env.Str("C0_ARCH", "arm64")
	if arch != "arm64" {
		return errors.Wrap(regalloc.ErrUnsupported, "arch %v", arch)
	}

	comp := regalloc.New(arm64.Pools())

	pkg := &mir.Package{
		Path: "demo",
		Funcs: map[mir.FuncID]*mir.Func{
			0: maxFunc(),
			1: sumFunc(),
		},
	}

	res, err := comp.AllocatePackage(ctx, pkg)
	if err != nil {
		return errors.Wrap(err, "allocate package")
	}

	var b []byte

	for id := mir.FuncID(0); int(id) < len(res); id++ {
		fa := res[id]

		err = drive(fa)
		if err != nil {
			return errors.Wrap(err, "drive %v", fa.Func.Name)
		}

		b = fa.AppendTables(b)
	}

	fmt.Printf("%s", b)

	return nil
}

// drive walks the linear instruction stream the way the emitter does,
// requesting registers for every read and write.
func drive(fa *regalloc.FuncAlloc) (err error) {
	read := func(val mir.Value, pos int) error {
		ref, ok := val.(mir.VarRef)
		if !ok {
			return nil
		}

		v, ok := ref.LocalID()
		if !ok {
			return errors.Wrap(regalloc.ErrUnsupported, "global read")
		}

		_, err := fa.RequestReadAllocation(v, pos)

		return err
	}

	write := func(ref mir.VarRef, pos int) error {
		v, ok := ref.LocalID()
		if !ok {
			return nil
		}

		iv, ok := fa.Intervals[fa.Collapsed(v)]
		if !ok {
			return nil
		}

		_, err := fa.RequestWriteAllocation(v, pos, iv)

		return err
	}

	for _, blk := range fa.Arrangement {
		bb := fa.Func.Blocks[blk]

		for idx, inst := range bb.Inst {
			pos := fa.StartPos[blk] + idx

			fa.Deactivate(pos)

			switch x := inst.Ins.(type) {
			case mir.TyCast:
				err = read(x.Val, pos)
			case mir.Assign:
				err = read(x.Val, pos)
			case mir.Bin:
				err = read(x.L, pos)
				if err == nil {
					err = read(x.R, pos)
				}
			case mir.Una:
				err = read(x.Val, pos)
			case mir.Call:
				for _, a := range x.Args {
					err = read(a, pos)
					if err != nil {
						break
					}
				}
			case mir.Phi:
				// value identity, nothing to emit
				continue
			default:
				err = errors.Wrap(regalloc.ErrUnsupported, "%T", x)
			}

			if err == nil {
				err = write(inst.Tgt, pos)
			}

			if err != nil {
				return errors.Wrap(err, "block %v inst %v", blk, idx)
			}
		}

		end := fa.StartPos[blk] + len(bb.Inst)

		switch t := bb.Term.(type) {
		case mir.Cond:
			err = read(t.Val, end)
		case mir.Return:
			if t.Val != nil {
				err = read(t.Val, end)
			}
		}

		if err != nil {
			return errors.Wrap(err, "block %v terminator", blk)
		}
	}

	return nil
}

// maxFunc is
//
//	int max(int a, int b) { if (a < b) return b; return a; }
//
// lowered to a diamond with a phi at the join.
func maxFunc() *mir.Func {
	const (
		ret = mir.VarID(iota)
		a
		b
		cond
		tThen
		tElse
		join
	)

	return &mir.Func{
		Name: "max",
		Vars: []mir.VarDecl{
			{Name: "$ret", Kind: mir.Ret, Type: mir.Int},
			{Name: "a", Kind: mir.Param, Type: mir.Int},
			{Name: "b", Kind: mir.Param, Type: mir.Int},
			{Name: "t0", Kind: mir.Local, Type: mir.Bool},
			{Name: "t1", Kind: mir.Local, Type: mir.Int},
			{Name: "t2", Kind: mir.Local, Type: mir.Int},
			{Name: "t3", Kind: mir.Local, Type: mir.Int},
		},
		Blocks: map[mir.BlockID]*mir.BasicBlk{
			0: {
				Inst: []mir.Inst{
					{Tgt: mir.LocalVar(cond), Ins: mir.Bin{Op: "<", L: mir.LocalVar(a), R: mir.LocalVar(b)}},
				},
				Term: mir.Cond{Val: mir.LocalVar(cond), Then: 1, Else: 2},
			},
			1: {
				Inst: []mir.Inst{
					{Tgt: mir.LocalVar(tThen), Ins: mir.Assign{Val: mir.LocalVar(b)}},
				},
				Term:    mir.Jump{To: 3},
				JumpIn:  []mir.BlockID{0},
				UsesVar: []mir.VarID{b},
			},
			2: {
				Inst: []mir.Inst{
					{Tgt: mir.LocalVar(tElse), Ins: mir.Assign{Val: mir.LocalVar(a)}},
				},
				Term:    mir.Jump{To: 3},
				JumpIn:  []mir.BlockID{0},
				UsesVar: []mir.VarID{a},
			},
			3: {
				Inst: []mir.Inst{
					{Tgt: mir.LocalVar(join), Ins: mir.Phi{
						{B: 1, Val: mir.LocalVar(tThen)},
						{B: 2, Val: mir.LocalVar(tElse)},
					}},
					{Tgt: mir.LocalVar(ret), Ins: mir.Assign{Val: mir.LocalVar(join)}},
				},
				Term:    mir.Return{Val: mir.LocalVar(ret)},
				JumpIn:  []mir.BlockID{1, 2},
				UsesVar: []mir.VarID{tThen, tElse},
			},
		},
	}
}

// sumFunc is
//
//	int sum(int n) { int s = 0; for (int i = 0; i < n; i++) s += i; return s; }
func sumFunc() *mir.Func {
	const (
		ret = mir.VarID(iota)
		n
		s0
		i0
		sPhi
		iPhi
		cond
		s1
		i1
	)

	return &mir.Func{
		Name: "sum",
		Vars: []mir.VarDecl{
			{Name: "$ret", Kind: mir.Ret, Type: mir.Int},
			{Name: "n", Kind: mir.Param, Type: mir.Int},
			{Name: "s", Kind: mir.Local, Type: mir.Int},
			{Name: "i", Kind: mir.Local, Type: mir.Int},
			{Name: "s'", Kind: mir.Local, Type: mir.Int},
			{Name: "i'", Kind: mir.Local, Type: mir.Int},
			{Name: "t0", Kind: mir.Local, Type: mir.Bool},
			{Name: "s''", Kind: mir.Local, Type: mir.Int},
			{Name: "i''", Kind: mir.Local, Type: mir.Int},
		},
		Blocks: map[mir.BlockID]*mir.BasicBlk{
			0: {
				Inst: []mir.Inst{
					{Tgt: mir.LocalVar(s0), Ins: mir.Assign{Val: mir.Imm(0)}},
					{Tgt: mir.LocalVar(i0), Ins: mir.Assign{Val: mir.Imm(0)}},
				},
				Term: mir.Jump{To: 1},
			},
			1: {
				Inst: []mir.Inst{
					{Tgt: mir.LocalVar(sPhi), Ins: mir.Phi{
						{B: 0, Val: mir.LocalVar(s0)},
						{B: 2, Val: mir.LocalVar(s1)},
					}},
					{Tgt: mir.LocalVar(iPhi), Ins: mir.Phi{
						{B: 0, Val: mir.LocalVar(i0)},
						{B: 2, Val: mir.LocalVar(i1)},
					}},
					{Tgt: mir.LocalVar(cond), Ins: mir.Bin{Op: "<", L: mir.LocalVar(iPhi), R: mir.LocalVar(n)}},
				},
				Term:    mir.Cond{Val: mir.LocalVar(cond), Then: 2, Else: 3},
				JumpIn:  []mir.BlockID{0, 2},
				UsesVar: []mir.VarID{s0, i0, n},
			},
			2: {
				Inst: []mir.Inst{
					{Tgt: mir.LocalVar(s1), Ins: mir.Bin{Op: "+", L: mir.LocalVar(sPhi), R: mir.LocalVar(iPhi)}},
					{Tgt: mir.LocalVar(i1), Ins: mir.Bin{Op: "+", L: mir.LocalVar(iPhi), R: mir.Imm(1)}},
				},
				Term:    mir.Jump{To: 1},
				JumpIn:  []mir.BlockID{1},
				UsesVar: []mir.VarID{sPhi, iPhi, n},
			},
			3: {
				Inst: []mir.Inst{
					{Tgt: mir.LocalVar(ret), Ins: mir.Assign{Val: mir.LocalVar(sPhi)}},
				},
				Term:    mir.Return{Val: mir.LocalVar(ret)},
				JumpIn:  []mir.BlockID{1},
				UsesVar: []mir.VarID{sPhi},
			},
		},
	}
}
