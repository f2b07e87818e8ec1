package regalloc

import "github.com/raymyers/armbe/pkg/mir"

// blockLiveness holds the live-in/live-out variable sets for one block.
type blockLiveness struct {
	in, out VarSet
}

// computeLiveness runs the standard backward dataflow fixed point over a
// function's CFG: live-in(b) = use(b) U (live-out(b) - def(b)), live-out(b)
// = union of live-in(s) over b's successors. order need only cover reachable
// blocks; it does not need to be a particular topological order since the
// fixed point iterates until nothing changes.
func computeLiveness(fn *mir.MirFunction, order []mir.BlockId) map[mir.BlockId]*blockLiveness {
	result := make(map[mir.BlockId]*blockLiveness, len(order))
	use := make(map[mir.BlockId]VarSet, len(order))
	def := make(map[mir.BlockId]VarSet, len(order))

	for _, id := range order {
		blk := fn.Blocks[id]
		if blk == nil {
			continue
		}
		u, d := blockUseDef(blk)
		use[id], def[id] = u, d
		result[id] = &blockLiveness{in: NewVarSet(), out: NewVarSet()}
	}

	for changed := true; changed; {
		changed = false
		for _, id := range order {
			blk := fn.Blocks[id]
			if blk == nil {
				continue
			}
			out := NewVarSet()
			for _, succ := range blk.Term.Targets() {
				if sl, ok := result[succ]; ok {
					for v := range sl.in {
						out.Add(v)
					}
				}
			}
			in := NewVarSet()
			for v := range use[id] {
				in.Add(v)
			}
			for v := range out {
				if !def[id].Contains(v) {
					in.Add(v)
				}
			}
			bl := result[id]
			if !varSetEqual(bl.in, in) || !varSetEqual(bl.out, out) {
				bl.in, bl.out = in, out
				changed = true
			}
		}
	}
	return result
}

func varSetEqual(a, b VarSet) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b.Contains(id) {
			return false
		}
	}
	return true
}

// blockUseDef computes a block's use and def sets, honoring intra-block
// ordering: a variable is a "use" only if read before any def in this
// block reaches it (standard local liveness refinement), and Phi
// destinations/sources are treated like any other instruction.
func blockUseDef(blk *mir.BasicBlk) (use, def VarSet) {
	use, def = NewVarSet(), NewVarSet()
	for _, inst := range blk.Insts {
		for _, u := range mir.Uses(inst) {
			if !def.Contains(u) {
				use.Add(u)
			}
		}
		if d, ok := inst.Dest(); ok {
			def.Add(d)
		}
	}
	for _, t := range termUses(blk.Term) {
		if !def.Contains(t) {
			use.Add(t)
		}
	}
	return use, def
}

func termUses(j mir.Jump) []mir.VarId {
	switch t := j.(type) {
	case mir.BrCond:
		return []mir.VarId{t.Cond}
	case mir.Return:
		if t.HasValue {
			if id, ok := mir.AsVar(t.Value); ok {
				return []mir.VarId{id}
			}
		}
	}
	return nil
}

// buildInterferenceGraph walks each block backward from its live-out set,
// recording an edge between every pair of variables simultaneously live
// (a defined variable interferes with everything live immediately after
// it, except a plain copy's own source), mirroring
// pkg/regalloc.BuildInterferenceGraph's def/live-out rule.
func buildInterferenceGraph(fn *mir.MirFunction, liveness map[mir.BlockId]*blockLiveness) *InterferenceGraph {
	g := NewInterferenceGraph()

	for id, blk := range fn.Blocks {
		bl, ok := liveness[id]
		if !ok {
			continue
		}
		live := bl.out.Copy()

		for _, t := range termUses(blk.Term) {
			live.Add(t)
		}

		for i := len(blk.Insts) - 1; i >= 0; i-- {
			inst := blk.Insts[i]
			d, hasDest := inst.Dest()
			if hasDest {
				copySrc, isCopy := copySource(inst)
				for v := range live {
					if isCopy && v == copySrc {
						continue
					}
					g.AddEdge(d, v)
				}
				live.Remove(d)
			}
			for _, u := range mir.Uses(inst) {
				live.Add(u)
			}
		}

		// What is still live at the top of the entry block (the parameters)
		// is defined all at once on entry, so it all interferes pairwise.
		if id == fn.Entry {
			vars := live.Slice()
			for i, a := range vars {
				for _, b := range vars[i+1:] {
					g.AddEdge(a, b)
				}
			}
		}
	}
	return g
}

// copySource reports the source variable of a plain copy instruction
// (Assign of a Var), so the interference rule can exempt it the same way
// the teacher's isMove/isMoveSource pair does.
func copySource(inst mir.Instruction) (mir.VarId, bool) {
	a, ok := inst.(mir.Assign)
	if !ok {
		return 0, false
	}
	return mir.AsVar(a.Value)
}
