package mir

type (
	FuncID  int
	BlockID int
	VarID   int

	BinOp string
	UnaOp string

	// Package is the whole-program input of the backend.
	// It is produced by the front end and is read-only here.
	Package struct {
		Path  string
		Funcs map[FuncID]*Func
	}

	// Func is a single function in control-flow-graph form.
	// Entry block id is always 0. Vars is indexed by VarID and
	// keeps declaration order.
	Func struct {
		Name string

		Blocks map[BlockID]*BasicBlk
		Vars   []VarDecl
	}

	// BasicBlk is a straight-line instruction sequence with one terminator.
	BasicBlk struct {
		Inst []Inst
		Term Term

		JumpIn  []BlockID
		UsesVar []VarID // variables the block assumes live on entry
	}

	// Inst is a single MIR instruction: a target and a tagged operation.
	// Ins is one of TyCast, Assign, Bin, Una, Call, Phi, RestRead.
	Inst struct {
		Tgt VarRef
		Ins any
	}

	TyCast struct{ Val Value }
	Assign struct{ Val Value }

	Bin struct {
		Op   BinOp
		L, R Value
	}

	Una struct {
		Op  UnaOp
		Val Value
	}

	Call struct {
		Func FuncID
		Args []Value
	}

	Phi []PhiSrc

	PhiSrc struct {
		B   BlockID
		Val VarRef
	}

	RestRead struct{}

	// Value is an instruction operand: Imm or VarRef.
	Value any

	Imm int64

	VarTy int

	// VarRef names a variable. Only Local refs participate in
	// register allocation, Global refs bypass it.
	VarRef struct {
		Ty VarTy
		ID VarID
	}

	VarKind int

	VarDecl struct {
		Name string
		Kind VarKind
		Type Type
	}

	Type int

	// Term is a block terminator.
	Term interface {
		Next() []BlockID
	}

	Jump struct{ To BlockID }

	Cond struct {
		Val        Value
		Then, Else BlockID
	}

	Return struct{ Val Value } // Val is nil for a bare return

	Unreachable struct{}
	Unknown     struct{}
)

const (
	Global VarTy = iota
	LocalRef
)

const (
	Local VarKind = iota
	Param
	Ret
	FixedTemp
)

const (
	Void Type = iota
	Int
	Bool
	Double
)

func LocalVar(id VarID) VarRef {
	return VarRef{Ty: LocalRef, ID: id}
}

func GlobalVar(id VarID) VarRef {
	return VarRef{Ty: Global, ID: id}
}

// LocalID returns the variable id if the reference is local.
func (v VarRef) LocalID() (VarID, bool) {
	if v.Ty != LocalRef {
		return 0, false
	}

	return v.ID, true
}

// RegisterCount is the number of machine registers a value of the type occupies.
func (t Type) RegisterCount() int {
	switch t {
	case Void:
		return 0
	case Double:
		return 2
	default:
		return 1
	}
}

func (t Type) Wide() bool {
	return t.RegisterCount() > 1
}

func (j Jump) Next() []BlockID { return []BlockID{j.To} }
func (c Cond) Next() []BlockID { return []BlockID{c.Then, c.Else} }

func (Return) Next() []BlockID      { return nil }
func (Unreachable) Next() []BlockID { return nil }
func (Unknown) Next() []BlockID     { return nil }

func (k VarKind) String() string {
	switch k {
	case Local:
		return "local"
	case Param:
		return "param"
	case Ret:
		return "ret"
	case FixedTemp:
		return "fixed"
	default:
		return "unknown"
	}
}
