// Package schedule builds an intra-block dependency DAG over an ARM
// instruction stream and runs a ready-list critical-path list scheduler
// over it (SPEC_FULL.md §4.5). Unlike pkg/codegen and pkg/regalloc, which
// adapt a direct teacher analog, nothing in the retrieved corpus builds a
// dependency-DAG scheduler: this package is written from the
// specification directly, in the surrounding packages' idiom (closed
// instruction-kind enum, plain stdlib sort, no third-party graph
// library), rather than forcing an ungrounded dependency onto it.
package schedule

import (
	"sort"

	"github.com/raymyers/armbe/pkg/arm"
)

// Kind classifies an instruction for latency and dependency purposes.
type Kind int

const (
	Branch Kind = iota
	Call
	Integer
	IntegerM
	Load
	Store
	Other // Label, Pure, PushPop: scheduled in place, latency 1, depends on everything prior
)

// Latency returns an instruction kind's execution latency in cycles.
func (k Kind) Latency(op arm.OpCode) int {
	switch k {
	case Branch, Store, Other:
		return 1
	case Call:
		return 1
	case Integer:
		return 1
	case IntegerM:
		if op == arm.OpMul {
			return 3
		}
		return 2
	case Load:
		return 4
	default:
		return 1
	}
}

// classify maps an instruction to its scheduling Kind, per the
// Mov/MovT/Mvn/Lsl/Lsr/Asr -> Integer, Add/Sub/And/Orr/Eor/Bic -> Integer
// (IntegerM if shifted register), Mul -> IntegerM, Cmp/Cmn -> same rule as
// Add, Ldr -> Load, Str -> Store, B -> Branch, Bl -> Call table.
func classify(inst arm.Instruction) Kind {
	switch i := inst.(type) {
	case arm.Br:
		if i.Op == arm.OpBl {
			return Call
		}
		return Branch
	case arm.LoadStore:
		if i.Op == arm.OpLdr {
			return Load
		}
		return Store
	case arm.Arith2:
		return arithKind(i.Op, i.R2)
	case arm.Arith3:
		return arithKind(i.Op, i.R2)
	default:
		return Other
	}
}

func arithKind(op arm.OpCode, r2 arm.Operand2) Kind {
	if op == arm.OpMul {
		return IntegerM
	}
	if ro, ok := r2.(arm.RegisterOperand); ok && ro.ShiftAmt != 0 {
		return IntegerM
	}
	return Integer
}

// isCompare reports whether inst is a condition-code-setting comparison.
func isCompare(inst arm.Instruction) bool {
	a2, ok := inst.(arm.Arith2)
	return ok && (a2.Op == arm.OpCmp || a2.Op == arm.OpCmn)
}

// isCondMove reports whether inst is a conditionally-executed instruction
// that reads the condition flags set by a prior compare.
func isCondMove(inst arm.Instruction) bool {
	switch i := inst.(type) {
	case arm.Arith2:
		return i.Cond != arm.CondAlways
	case arm.Arith3:
		return i.Cond != arm.CondAlways
	case arm.LoadStore:
		return i.Cond != arm.CondAlways
	case arm.Br:
		return i.Cond != arm.CondAlways
	default:
		return false
	}
}

// isSpAdjust reports an add/sub whose destination is sp, which is
// conservatively treated as a call boundary (SPEC_FULL.md's
// stack-pointer-adjustment rule).
func isSpAdjust(inst arm.Instruction) bool {
	a3, ok := inst.(arm.Arith3)
	if !ok {
		return false
	}
	return (a3.Op == arm.OpAdd || a3.Op == arm.OpSub) && a3.Rd == arm.GP(arm.SP)
}

// Node is one instruction in the block's dependency DAG.
type Node struct {
	Index int
	Inst  arm.Instruction
	Kind  Kind
	Preds []int // indices of nodes this node depends on
	Succs []int

	critPath int // longest latency-weighted path to a sink, computed by buildCriticalPaths
}

// Graph is one block's dependency DAG.
type Graph struct {
	Nodes []*Node
}

// Build constructs the dependency DAG for a straight-line instruction
// sequence (one basic block's worth of code, Label/terminator included),
// per SPEC_FULL.md §4.5's edge rules.
func Build(code []arm.Instruction) *Graph {
	g := &Graph{Nodes: make([]*Node, len(code))}
	for i, inst := range code {
		g.Nodes[i] = &Node{Index: i, Inst: inst, Kind: classify(inst)}
	}

	regDef := make(map[arm.Register]int)
	regPendingReaders := make(map[arm.Register][]int)
	lastMem := -1
	lastCall := -1
	lastCmp := -1
	var branchDeps []int // every instruction index seen so far, for the terminating branch rule

	addEdge := func(from, to int) {
		if from < 0 || from == to {
			return
		}
		for _, p := range g.Nodes[to].Preds {
			if p == from {
				return // already recorded by an earlier rule
			}
		}
		g.Nodes[from].Succs = append(g.Nodes[from].Succs, to)
		g.Nodes[to].Preds = append(g.Nodes[to].Preds, from)
	}

	for i, inst := range code {
		reads, writes := registerRoles(inst)

		for _, r := range reads {
			if d, ok := regDef[r]; ok {
				addEdge(d, i)
			}
			regPendingReaders[r] = append(regPendingReaders[r], i)
		}
		for _, r := range writes {
			for _, reader := range regPendingReaders[r] {
				addEdge(reader, i) // anti-dependence
			}
			regPendingReaders[r] = nil
			if d, ok := regDef[r]; ok {
				addEdge(d, i) // output-dependence
			}
			regDef[r] = i
		}

		isLoadStore := classify(inst) == Load || classify(inst) == Store
		if isLoadStore {
			addEdge(lastMem, i)
			lastMem = i
		}

		if classify(inst) == Call || isSpAdjust(inst) {
			addEdge(lastCall, i)
			addEdge(lastMem, i)
			for _, argReg := range arm.CallerSaved[:4] { // r0..r3: the argument-setup registers
				if d, ok := regDef[arm.GP(argReg)]; ok {
					addEdge(d, i)
				}
			}
			lastCall = i
			lastMem = i
		}

		if isCompare(inst) {
			addEdge(lastCmp, i)
			lastCmp = i
		}
		if isCondMove(inst) {
			addEdge(lastCmp, i)
		}

		if k := classify(inst); k == Branch || k == Other {
			for _, dep := range branchDeps {
				addEdge(dep, i)
			}
		}
		branchDeps = append(branchDeps, i)
	}

	return g
}

// registerRoles returns the registers an instruction reads and writes,
// mirroring pkg/regalloc.instRegs's field-by-field extraction but split
// by role rather than flattened, since the scheduler's anti/output edges
// need the distinction regalloc's uniform rewrite does not.
func registerRoles(inst arm.Instruction) (reads, writes []arm.Register) {
	readOp2 := func(o arm.Operand2, into *[]arm.Register) {
		if ro, ok := o.(arm.RegisterOperand); ok {
			*into = append(*into, ro.Reg)
		}
	}
	switch i := inst.(type) {
	case arm.Arith2:
		readOp2(i.R2, &reads)
		if i.Op == arm.OpCmp || i.Op == arm.OpCmn {
			reads = append(reads, i.R1)
		} else {
			writes = append(writes, i.R1)
			if i.Op == arm.OpMovT {
				reads = append(reads, i.R1)
			}
		}
	case arm.Arith3:
		reads = append(reads, i.R1)
		readOp2(i.R2, &reads)
		writes = append(writes, i.Rd)
	case arm.LoadStore:
		reads = append(reads, i.Mem.Base)
		if i.Mem.RegOff != nil {
			reads = append(reads, i.Mem.RegOff.Reg)
		}
		if i.Op == arm.OpLdr {
			writes = append(writes, i.Rd)
		} else {
			reads = append(reads, i.Rd)
		}
	case arm.PushPop:
		if i.Op == arm.OpPush {
			reads = append(reads, i.Regs...)
		} else {
			writes = append(writes, i.Regs...)
		}
	}
	return reads, writes
}

// sortedIndices is a small helper used by tests to get deterministic
// output from a set of node indices.
func sortedIndices(ids []int) []int {
	out := append([]int(nil), ids...)
	sort.Ints(out)
	return out
}
