package schedule

import (
	"sort"

	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/pass"
)

// InstructionSchedule is the ARM pass that reorders each function's
// instruction stream with the ready-list critical-path scheduler,
// respecting every edge the dependency DAG records. Run last in the ARM
// pass list, after ExcessRegDelete.
type InstructionSchedule struct{}

func (InstructionSchedule) Name() string { return "InstructionSchedule" }

func (InstructionSchedule) OptimizeArm(code *arm.Code, extras *pass.Extras) (*arm.Code, error) {
	for _, fn := range code.Functions {
		fn.Code = scheduleFunction(fn.Code)
	}
	return code, nil
}

// scheduleFunction schedules each label-delimited straight-line segment
// of a function independently: Label instructions are block boundaries
// and never participate in reordering, so the function's code is split
// there, each segment scheduled, and the labels spliced back between them.
func scheduleFunction(code []arm.Instruction) []arm.Instruction {
	var out []arm.Instruction
	var segment []arm.Instruction

	flush := func() {
		if len(segment) > 0 {
			out = append(out, schedule(segment)...)
			segment = nil
		}
	}

	for _, inst := range code {
		if _, ok := inst.(arm.Label); ok {
			flush()
			out = append(out, inst)
			continue
		}
		segment = append(segment, inst)
	}
	flush()
	return out
}

// schedule runs the ready-list critical-path scheduler over one
// straight-line segment (no Label in it) and returns the reordered
// instruction stream.
func schedule(code []arm.Instruction) []arm.Instruction {
	g := Build(code)
	buildCriticalPaths(g)

	scheduled := make([]bool, len(g.Nodes))
	remainingPreds := make([]int, len(g.Nodes))
	for i, n := range g.Nodes {
		remainingPreds[i] = len(n.Preds)
	}

	var ready []int
	for i, n := range remainingPreds {
		if n == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]arm.Instruction, 0, len(code))
	for len(out) < len(code) {
		sort.Slice(ready, func(a, b int) bool {
			na, nb := g.Nodes[ready[a]], g.Nodes[ready[b]]
			if na.critPath != nb.critPath {
				return na.critPath > nb.critPath
			}
			return na.Index < nb.Index // tie-break: original program order
		})

		pick := ready[0]
		ready = ready[1:]
		scheduled[pick] = true
		out = append(out, g.Nodes[pick].Inst)

		for _, succ := range g.Nodes[pick].Succs {
			remainingPreds[succ]--
			if remainingPreds[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}
	return out
}

// buildCriticalPaths computes, for every node, the longest latency-
// weighted path from that node to a DAG sink (a node with no successors),
// processing nodes in reverse index order so every successor's critPath
// is already known (valid since all edges point from lower program-order
// positions toward later ones, as the DAG builder only ever adds an edge
// from an earlier instruction to a later one).
func buildCriticalPaths(g *Graph) {
	for i := len(g.Nodes) - 1; i >= 0; i-- {
		n := g.Nodes[i]
		best := 0
		for _, succ := range n.Succs {
			if w := g.Nodes[succ].critPath; w > best {
				best = w
			}
		}
		n.critPath = best + n.Kind.Latency(opOf(n.Inst))
	}
}

func opOf(inst arm.Instruction) arm.OpCode {
	switch i := inst.(type) {
	case arm.Arith2:
		return i.Op
	case arm.Arith3:
		return i.Op
	case arm.LoadStore:
		return i.Op
	case arm.Br:
		return i.Op
	default:
		return arm.OpMov
	}
}
