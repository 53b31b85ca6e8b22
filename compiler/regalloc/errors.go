package regalloc

import (
	"tlog.app/go/errors"
)

// Two error classes cross this package's boundary.
//
// ErrInternal marks violated invariants: the MIR is assumed well-typed and
// fully defined before this stage, so these are bugs of an earlier pass, not
// user errors. The whole function's allocation is aborted, no partial output
// is produced.
//
// ErrUnsupported marks known gaps (doubles, global variable tracking,
// RestRead) so a driver can report an unsupported construct instead of a
// compiler bug.
var (
	ErrInternal    = errors.New("internal compiler error")
	ErrUnsupported = errors.New("unsupported feature")
)
