package regalloc

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/c0lang/c0/compiler/mir"
	"github.com/c0lang/c0/compiler/set"
)

// arrange orders the blocks of a function into a single linear sequence and
// computes each block's starting position in the combined instruction stream.
//
// Blocks are emitted by a token-counting breadth-first walk from the entry:
// a block is placed once the number of inputs still pending is covered by the
// number of cycles passing through it, so loop bodies are placed exactly once
// and the order stays forward-biased. Unreachable blocks are dropped.
func (c *Compiler) arrange(ctx context.Context, f *mir.Func) (order []mir.BlockID, start map[mir.BlockID]int) {
	tr := tlog.SpanFromContext(ctx)

	cycles := cycleCount(f)

	input := make(map[mir.BlockID]int, len(f.Blocks))
	input[0] = 1 // entry token

	for id, bb := range f.Blocks {
		input[id] += len(bb.JumpIn)
	}

	var q []mir.BlockID
	q = append(q, 0)

	emitted := set.MakeBits[mir.BlockID]()

	for qi := 0; qi < len(q); qi++ {
		b := q[qi]

		input[b]--
		if input[b] > cycles[b] {
			continue
		}

		if emitted.IsSet(b) {
			continue
		}

		emitted.Set(b)
		order = append(order, b)

		q = append(q, f.Blocks[b].Term.Next()...)
	}

	start = make(map[mir.BlockID]int, len(order))
	acc := 0

	for _, b := range order {
		start[b] = acc
		acc += len(f.Blocks[b].Inst) + 1
	}

	if tr.If("dump_arrangement") {
		for _, b := range order {
			tr.Printw("block", "b", b, "start", start[b], "insts", len(f.Blocks[b].Inst), "cycles", cycles[b])
		}
	}

	return order, start
}

// cycleCount computes, for every block, how many distinct back edges have the
// block on their cycle.
func cycleCount(f *mir.Func) map[mir.BlockID]int {
	onPath := set.MakeBits[mir.BlockID]()
	done := set.MakeBits[mir.BlockID]()

	path := make([]mir.BlockID, 0, len(f.Blocks))

	type job struct {
		b mir.BlockID
		l int
	}

	stack := []job{{}}

	var backbone [][2]mir.BlockID // {head, tail}, edge direction: <-

	for len(stack) != 0 {
		l := len(stack) - 1
		st := stack[l]
		stack = stack[:l]

		for j := st.l; j < len(path); j++ {
			onPath.Clear(path[j])
			done.Set(path[j])
		}

		b := st.b
		path = path[:st.l]

		for {
			if onPath.IsSet(b) {
				backbone = append(backbone, [2]mir.BlockID{b, path[len(path)-1]})
				break
			}

			if done.IsSet(b) {
				break
			}

			path = append(path, b)
			onPath.Set(b)

			next := f.Blocks[b].Term.Next()
			if len(next) == 0 {
				break
			}

			for _, n := range next[1:] {
				stack = append(stack, job{b: n, l: len(path)})
			}

			b = next[0]
		}
	}

	count := make(map[mir.BlockID]int, len(f.Blocks))

	// every node that reaches the back edge tail without passing the head
	// is on the cycle
	for _, back := range backbone {
		nodes := set.MakeBits[mir.BlockID]()
		nodes.SetAll(back[0], back[1])

		// a self-loop's cycle is the head alone
		if back[0] != back[1] {
			q := []mir.BlockID{back[1]}

			for qi := 0; qi < len(q); qi++ {
				for _, p := range f.Blocks[q[qi]].JumpIn {
					if nodes.IsSet(p) {
						continue
					}

					nodes.Set(p)
					q = append(q, p)
				}
			}
		}

		nodes.Range(func(b mir.BlockID) bool {
			count[b]++
			return true
		})
	}

	return count
}
