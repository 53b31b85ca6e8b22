package regalloc

import (
	"fmt"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/c0lang/c0/compiler/interval"
	"github.com/c0lang/c0/compiler/mir"
)

type (
	// Reg is a physical register identifier of the target architecture.
	Reg int

	// Pools is the fixed register-pool configuration: ordered,
	// deduplicated sets of physical registers. It is built once at
	// startup and passed into every function's allocation pass.
	Pools struct {
		Param    []Reg // parameter passing
		Result   []Reg // return values
		Variable []Reg // general variable allocation
		Scratch  []Reg // ephemeral scratch allocation
	}

	// Owner is what a register may be held by: a real MIR variable or a
	// scratch token minted for a single instruction. Scratch tokens can
	// never alias variables, the distinction is part of the type.
	Owner struct {
		Var     mir.VarID
		Scratch int // non-zero for scratch tokens
	}

	// Assigned is one fragment of a variable's life spent in a register.
	Assigned struct {
		Int interval.Interval
		Reg Reg
	}

	// Alloc assigns physical registers to live intervals with
	// second-chance bin packing: free registers are claimed greedily, on
	// exhaustion the active variable with the longest total live interval
	// is spilled, and spilled variables are revived into fresh registers
	// when touched again.
	//
	// The algorithm is described in
	// https://www.researchgate.net/publication/221302629
	Alloc struct {
		f     *mir.Func
		pools Pools

		// Assignment and Spilled are the output tables: per owner, the
		// ordered non-overlapping fragments of its life spent in
		// registers and in memory.
		Assignment map[Owner][]Assigned
		Spilled    map[Owner][]interval.Interval

		// Intervals holds the declared live interval per canonical
		// variable, Order lists variables by interval start.
		Intervals map[mir.VarID]interval.Interval
		Order     []mir.VarID

		collapse map[mir.VarID]mir.VarID
		active   active

		scratchSeq int
	}

	// active is the bidirectional owner <-> register map of values
	// currently resident in registers.
	active struct {
		byOwner map[Owner]Reg
		byReg   map[Reg]Owner
	}

	victim struct {
		o   Owner
		r   Reg
		len int
	}
)

func VarOwner(v mir.VarID) Owner {
	return Owner{Var: v}
}

func (o Owner) IsScratch() bool {
	return o.Scratch != 0
}

func (o Owner) String() string {
	if o.IsScratch() {
		return fmt.Sprintf("scratch %d", o.Scratch)
	}

	return fmt.Sprintf("var %d", o.Var)
}

func newAlloc(f *mir.Func, pools Pools) *Alloc {
	return &Alloc{
		f:     f,
		pools: pools,

		Assignment: map[Owner][]Assigned{},
		Spilled:    map[Owner][]interval.Interval{},
		Intervals:  map[mir.VarID]interval.Interval{},

		collapse: map[mir.VarID]mir.VarID{},
		active:   makeActive(),
	}
}

// Collapsed resolves a variable id through the phi alias table.
func (a *Alloc) Collapsed(v mir.VarID) mir.VarID {
	return collapsed(a.collapse, v)
}

// AllocateRegister binds owner to reg starting at pos. If the owner was in
// memory, its spill record is truncated at pos and the freed tail becomes the
// binding's interval; otherwise val is used. The new binding must not overlap
// any earlier one.
func (a *Alloc) AllocateRegister(o Owner, r Reg, pos int, val interval.Interval) error {
	list, ok := a.Assignment[o]
	if ok {
		for _, as := range list {
			if as.Int.IsInsideWrite(pos) {
				return errors.Wrap(ErrInternal, "duplicate allocation: %v at pos %v overlaps %v in r%v", o, pos, as.Int, as.Reg)
			}
		}

		if len(a.Spilled[o]) == 0 {
			return errors.Wrap(ErrInternal, "reallocating %v at pos %v with no spill record", o, pos)
		}
	}

	a.Assignment[o] = append(list, Assigned{Int: a.bindInterval(o, pos, val), Reg: r})
	a.active.insert(o, r)

	return nil
}

// bindInterval is the interval the new binding covers: the tail of the
// current spill interval if the owner still sits in memory past pos, the
// caller-provided one otherwise.
func (a *Alloc) bindInterval(o Owner, pos int, val interval.Interval) interval.Interval {
	sp := a.Spilled[o]
	if len(sp) == 0 {
		return val
	}

	last := &sp[len(sp)-1]
	if last.End <= pos {
		// already truncated here by revive
		return val
	}

	return last.Split(pos)
}

// SpillVar moves an active owner to memory starting at pos.
func (a *Alloc) SpillVar(o Owner, pos int) error {
	if _, ok := a.active.reg(o); !ok {
		return errors.Wrap(ErrInternal, "spill %v at pos %v: not active", o, pos)
	}

	list := a.Assignment[o]

	tail := list[len(list)-1].Int.Split(pos)
	a.Assignment[o] = list

	a.Spilled[o] = append(a.Spilled[o], tail)
	a.active.removeOwner(o)

	tlog.V("spill").Printw("spill var", "owner", o, "pos", pos, "tail", tail, "from", loc.Caller(1))

	return nil
}

// SpillReg spills whatever owner currently holds reg.
func (a *Alloc) SpillReg(r Reg, pos int) error {
	o, ok := a.active.owner(r)
	if !ok {
		return errors.Wrap(ErrInternal, "spill r%v at pos %v: register is not active", r, pos)
	}

	return a.SpillVar(o, pos)
}

// RequestAllocateMemory is the caller-driven eviction hook for a variable.
func (a *Alloc) RequestAllocateMemory(v mir.VarID, pos int) error {
	return a.SpillVar(VarOwner(a.Collapsed(v)), pos)
}

// ForceFreeRegister is the caller-driven eviction hook for a register.
func (a *Alloc) ForceFreeRegister(r Reg, pos int) error {
	return a.SpillReg(r, pos)
}

// Deactivate drops active entries whose declared live interval has ended
// before pos. Scratch tokens expire with the instruction that minted them.
func (a *Alloc) Deactivate(pos int) {
	for _, o := range a.active.owners() {
		if !o.IsScratch() {
			if li, ok := a.Intervals[a.Collapsed(o.Var)]; ok && li.AliveForReading(pos) {
				continue
			}
		}

		a.active.removeOwner(o)
	}
}

// ActiveIntersect returns the registers of the pool currently occupied,
// in pool order.
func (a *Alloc) ActiveIntersect(pool []Reg) []Reg {
	var rs []Reg

	for _, r := range pool {
		if _, busy := a.active.owner(r); busy {
			rs = append(rs, r)
		}
	}

	return rs
}

// IsSpilled reports whether the variable sits in memory at pos.
func (a *Alloc) IsSpilled(v mir.VarID, pos int) bool {
	for _, sp := range a.Spilled[VarOwner(a.Collapsed(v))] {
		if sp.IsInsideWrite(pos) {
			return true
		}
	}

	return false
}

// RequestReadAllocation returns the register holding the variable's value at
// pos, reviving it from memory into a fresh register if needed.
func (a *Alloc) RequestReadAllocation(v mir.VarID, pos int) (Reg, error) {
	o := VarOwner(a.Collapsed(v))

	list, ok := a.Assignment[o]
	if !ok {
		return 0, errors.Wrap(ErrInternal, "read %v at pos %v before any write", o, pos)
	}

	last := list[len(list)-1]
	if last.Int.AliveForReading(pos) {
		return last.Reg, nil
	}

	iv, err := a.revive(o, pos)
	if err != nil {
		return 0, err
	}

	return a.findOrSpill(o, a.pools.Variable, iv, pos)
}

// RequestWriteAllocation returns a register for a definition of the variable
// at pos; iv is the interval the value must stay available for.
func (a *Alloc) RequestWriteAllocation(v mir.VarID, pos int, iv interval.Interval) (Reg, error) {
	o := VarOwner(a.Collapsed(v))

	list, ok := a.Assignment[o]
	if !ok {
		return a.findOrSpill(o, a.pools.Variable, iv, pos)
	}

	last := list[len(list)-1]
	if last.Int.AliveForReading(pos) {
		return last.Reg, nil
	}

	iv, err := a.revive(o, pos)
	if err != nil {
		return 0, err
	}

	return a.findOrSpill(o, a.pools.Variable, iv, pos)
}

// RequestScratchRegister allocates a register for a value live only inside
// the current instruction, from the scratch-eligible subset. Every call
// mints a fresh token, scratch values never alias variables.
func (a *Alloc) RequestScratchRegister(pos int) (Reg, error) {
	a.scratchSeq++
	o := Owner{Scratch: a.scratchSeq}

	return a.findOrSpill(o, a.pools.Scratch, interval.Point(pos), pos)
}

// findOrSpill returns the register already occupied by the owner, claims a
// free one from allowed, or spills a victim to make room.
func (a *Alloc) findOrSpill(o Owner, allowed []Reg, iv interval.Interval, pos int) (Reg, error) {
	if r, ok := a.active.reg(o); ok {
		return r, nil
	}

	for _, r := range allowed {
		if _, busy := a.active.owner(r); busy {
			continue
		}

		return r, a.AllocateRegister(o, r, pos, iv)
	}

	r, ok := a.chooseSpillReg(allowed)
	if !ok {
		return 0, errors.Wrap(ErrInternal, "%v at pos %v: no register to spill", o, pos)
	}

	err := a.SpillReg(r, pos)
	if err != nil {
		return 0, err
	}

	return r, a.AllocateRegister(o, r, pos, iv)
}

// chooseSpillReg picks the victim among active owners: longest total live
// interval first. FixedTemp and Ret variables are pinned and never evicted.
func (a *Alloc) chooseSpillReg(allowed []Reg) (Reg, bool) {
	h := heap.Heap[victim]{Less: victimLess}

	for _, o := range a.active.owners() {
		r, _ := a.active.reg(o)

		if !regIn(allowed, r) {
			continue
		}

		l := 0

		if !o.IsScratch() {
			switch a.f.Vars[o.Var].Kind {
			case mir.FixedTemp, mir.Ret:
				continue
			}

			if li, ok := a.Intervals[o.Var]; ok {
				l = li.Len()
			}
		}

		h.Push(victim{o: o, r: r, len: l})
	}

	if h.Len() == 0 {
		return 0, false
	}

	return h.Pop().r, true
}

func victimLess(d []victim, i, j int) bool {
	if d[i].len != d[j].len {
		return d[i].len > d[j].len
	}

	return d[i].r < d[j].r
}

// revive truncates the owner's current spill interval at pos and returns the
// freed tail, the interval the revived value needs a register for.
func (a *Alloc) revive(o Owner, pos int) (interval.Interval, error) {
	sp := a.Spilled[o]
	if len(sp) == 0 {
		return interval.Interval{}, errors.Wrap(ErrInternal, "revive %v at pos %v: not spilled", o, pos)
	}

	last := &sp[len(sp)-1]
	if !last.AliveForReading(pos) {
		return interval.Interval{}, errors.Wrap(ErrInternal, "revive %v at pos %v: outside spill interval %v", o, pos, *last)
	}

	return last.Split(pos), nil
}

func regIn(pool []Reg, r Reg) bool {
	for _, x := range pool {
		if x == r {
			return true
		}
	}

	return false
}

func makeActive() active {
	return active{
		byOwner: map[Owner]Reg{},
		byReg:   map[Reg]Owner{},
	}
}

func (a *active) insert(o Owner, r Reg) {
	a.removeOwner(o)
	a.removeReg(r)

	a.byOwner[o] = r
	a.byReg[r] = o
}

func (a *active) reg(o Owner) (Reg, bool) {
	r, ok := a.byOwner[o]
	return r, ok
}

func (a *active) owner(r Reg) (Owner, bool) {
	o, ok := a.byReg[r]
	return o, ok
}

func (a *active) removeOwner(o Owner) {
	if r, ok := a.byOwner[o]; ok {
		delete(a.byReg, r)
		delete(a.byOwner, o)
	}
}

func (a *active) removeReg(r Reg) {
	if o, ok := a.byReg[r]; ok {
		delete(a.byOwner, o)
		delete(a.byReg, r)
	}
}

func (a *active) owners() []Owner {
	os := make([]Owner, 0, len(a.byOwner))

	for o := range a.byOwner {
		os = append(os, o)
	}

	return os
}
