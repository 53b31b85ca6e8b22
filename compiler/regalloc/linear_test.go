package regalloc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0lang/c0/compiler/mir"
)

func testBlock(insts int, term mir.Term, in ...mir.BlockID) *mir.BasicBlk {
	bb := &mir.BasicBlk{
		Term:   term,
		JumpIn: in,
	}

	for i := 0; i < insts; i++ {
		bb.Inst = append(bb.Inst, mir.Inst{
			Tgt: mir.GlobalVar(0),
			Ins: mir.Assign{Val: mir.Imm(0)},
		})
	}

	return bb
}

func TestArrangeDiamond(t *testing.T) {
	f := &mir.Func{
		Name: "diamond",
		Blocks: map[mir.BlockID]*mir.BasicBlk{
			0: testBlock(1, mir.Cond{Val: mir.Imm(1), Then: 1, Else: 2}),
			1: testBlock(2, mir.Jump{To: 3}, 0),
			2: testBlock(3, mir.Jump{To: 3}, 0),
			3: testBlock(1, mir.Return{}, 1, 2),
		},
	}

	c := New(Pools{})

	order, start := c.arrange(context.Background(), f)

	require.Len(t, order, 4)
	assert.Equal(t, mir.BlockID(0), order[0])
	assert.Equal(t, mir.BlockID(3), order[3])
	assert.ElementsMatch(t, []mir.BlockID{1, 2}, order[1:3])

	// positions are contiguous: one per instruction plus one per boundary
	acc := 0

	for _, b := range order {
		assert.Equal(t, acc, start[b])
		acc += len(f.Blocks[b].Inst) + 1
	}
}

func TestArrangeLoop(t *testing.T) {
	f := &mir.Func{
		Name: "loop",
		Blocks: map[mir.BlockID]*mir.BasicBlk{
			0: testBlock(2, mir.Jump{To: 1}),
			1: testBlock(1, mir.Cond{Val: mir.Imm(1), Then: 2, Else: 3}, 0, 2),
			2: testBlock(2, mir.Jump{To: 1}, 1),
			3: testBlock(1, mir.Return{}, 1),
		},
	}

	c := New(Pools{})

	order, start := c.arrange(context.Background(), f)

	// the loop body is placed exactly once, in forward order
	assert.Equal(t, []mir.BlockID{0, 1, 2, 3}, order)
	assert.Equal(t, map[mir.BlockID]int{0: 0, 1: 3, 2: 5, 3: 8}, start)
}

func TestArrangeUnreachable(t *testing.T) {
	f := &mir.Func{
		Name: "unreachable",
		Blocks: map[mir.BlockID]*mir.BasicBlk{
			0: testBlock(1, mir.Return{}),
			7: testBlock(1, mir.Unknown{}),
		},
	}

	c := New(Pools{})

	order, start := c.arrange(context.Background(), f)

	assert.Equal(t, []mir.BlockID{0}, order)
	assert.NotContains(t, start, mir.BlockID(7))
}

func TestArrangeSelfLoop(t *testing.T) {
	f := selfLoopFunc()

	c := New(Pools{})

	order, _ := c.arrange(context.Background(), f)

	// the join waits for both of its forward predecessors
	assert.Equal(t, []mir.BlockID{0, 1, 2, 6, 4, 3, 5}, order)
}

func TestCycleCountSelfLoop(t *testing.T) {
	count := cycleCount(selfLoopFunc())

	// the self-loop cycle is its head alone
	assert.Equal(t, 1, count[3])

	for _, b := range []mir.BlockID{0, 1, 2, 4, 5, 6} {
		assert.Equal(t, 0, count[b], "block %v", b)
	}
}

// selfLoopFunc has a diamond feeding a block that loops on itself.
func selfLoopFunc() *mir.Func {
	return &mir.Func{
		Name: "selfloop",
		Blocks: map[mir.BlockID]*mir.BasicBlk{
			0: testBlock(1, mir.Cond{Val: mir.Imm(1), Then: 1, Else: 2}),
			1: testBlock(1, mir.Jump{To: 4}, 0),
			2: testBlock(1, mir.Jump{To: 6}, 0),
			6: testBlock(1, mir.Jump{To: 4}, 2),
			4: testBlock(1, mir.Jump{To: 3}, 1, 6),
			3: testBlock(1, mir.Cond{Val: mir.Imm(1), Then: 3, Else: 5}, 4, 3),
			5: testBlock(1, mir.Return{}, 3),
		},
	}
}

func TestCycleCount(t *testing.T) {
	f := &mir.Func{
		Blocks: map[mir.BlockID]*mir.BasicBlk{
			0: testBlock(0, mir.Jump{To: 1}),
			1: testBlock(0, mir.Cond{Val: mir.Imm(1), Then: 2, Else: 3}, 0, 2),
			2: testBlock(0, mir.Jump{To: 1}, 1),
			3: testBlock(0, mir.Return{}, 1),
		},
	}

	count := cycleCount(f)

	assert.Equal(t, 1, count[1])
	assert.Equal(t, 1, count[2])
	assert.Equal(t, 0, count[0])
	assert.Equal(t, 0, count[3])
}
