// Package arm64 holds the fixed register configuration of the arm64 target.
package arm64

import (
	"github.com/c0lang/c0/compiler/regalloc"
)

// AAPCS64: X0-X7 carry arguments, X0 the result. X8-X15 are caller-saved
// temporaries the allocator hands out to variables, X9-X15 also serve as
// single-instruction scratch. X19-X27 extend the variable pool with
// callee-saved registers.
const (
	X0 regalloc.Reg = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
)

// Pools builds the register pool configuration for the allocator.
func Pools() regalloc.Pools {
	return regalloc.Pools{
		Param:    regs(X0, X7),
		Result:   []regalloc.Reg{X0},
		Variable: append(regs(X8, X15), regs(X19, X27)...),
		Scratch:  regs(X9, X15),
	}
}

func regs(from, to regalloc.Reg) []regalloc.Reg {
	rs := make([]regalloc.Reg, 0, to-from+1)

	for r := from; r <= to; r++ {
		rs = append(rs, r)
	}

	return rs
}
