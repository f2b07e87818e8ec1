// Package rearrange chooses an intra-function basic-block emission order
// that places loop bodies contiguously and respects join-point predecessor
// counts, in the style of pkg/linearize's CFG-to-sequential-order pass but
// using the worklist/back-edge-count algorithm the backend specifies
// instead of a plain reverse-postorder walk.
package rearrange

import "github.com/raymyers/armbe/pkg/mir"

// Result is the block rearranger's output for one function.
type Result struct {
	Order       []mir.BlockId
	LoopHeaders map[mir.BlockId]bool
}

// Rearrange computes the emission order and loop-header set for fn.
func Rearrange(fn *mir.MirFunction) Result {
	r := &rearranger{fn: fn, backEdgeCount: make(map[mir.BlockId]int)}
	r.detectCycles()
	r.order()
	return Result{Order: r.emitted, LoopHeaders: r.loopHeaders()}
}

type rearranger struct {
	fn            *mir.MirFunction
	backEdgeCount map[mir.BlockId]int
	emitted       []mir.BlockId
}

// detectCycles performs a DFS from the entry block, tracking the current
// path; revisiting a node already on the path increments its back-edge
// count, marking it a loop header.
func (r *rearranger) detectCycles() {
	onPath := make(map[mir.BlockId]bool)
	visited := make(map[mir.BlockId]bool)

	var dfs func(id mir.BlockId)
	dfs = func(id mir.BlockId) {
		if onPath[id] {
			r.backEdgeCount[id]++
			return
		}
		if visited[id] {
			return
		}
		visited[id] = true
		onPath[id] = true
		if b, ok := r.fn.Blocks[id]; ok {
			for _, succ := range b.Term.Targets() {
				if _, ok := r.fn.Blocks[succ]; ok {
					dfs(succ)
				}
			}
		}
		onPath[id] = false
	}
	dfs(r.fn.Entry)
}

// order runs the FIFO worklist algorithm: a block is emitted once its
// remaining input count drops to (or below) its back-edge count, i.e. once
// every non-back-edge predecessor has already been emitted.
func (r *rearranger) order() {
	inputCount := make(map[mir.BlockId]int)
	for id, b := range r.fn.Blocks {
		inputCount[id] = len(b.Preds)
	}
	inputCount[r.fn.Entry] = 1

	emittedSet := make(map[mir.BlockId]bool)
	worklist := []mir.BlockId{r.fn.Entry}

	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]

		blk, ok := r.fn.Blocks[b]
		if !ok {
			continue
		}
		inputCount[b]--
		if inputCount[b] > r.backEdgeCount[b] {
			continue
		}
		if emittedSet[b] {
			continue
		}
		emittedSet[b] = true
		r.emitted = append(r.emitted, b)

		for _, succ := range r.successorsForWorklist(blk) {
			if _, ok := r.fn.Blocks[succ]; ok {
				worklist = append(worklist, succ)
			}
		}
	}
}

// successorsForWorklist mirrors the spec's per-terminator successor rule:
// Br -> {true}, BrCond -> {true, false}, Return -> {common exit} iff it
// exists, everything else contributes no successors to the worklist.
func (r *rearranger) successorsForWorklist(b *mir.BasicBlk) []mir.BlockId {
	switch t := b.Term.(type) {
	case mir.Br:
		return []mir.BlockId{t.Target}
	case mir.BrCond:
		return []mir.BlockId{t.TrueTarget, t.FalseTarget}
	case mir.Return:
		if r.fn.HasCommonExit() {
			return []mir.BlockId{mir.CommonExit}
		}
		return nil
	default:
		return nil
	}
}

func (r *rearranger) loopHeaders() map[mir.BlockId]bool {
	out := make(map[mir.BlockId]bool)
	for id, n := range r.backEdgeCount {
		if n > 0 {
			out[id] = true
		}
	}
	return out
}
