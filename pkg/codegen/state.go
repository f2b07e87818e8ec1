// Package codegen lowers a MIR package into the ARM instruction-stream IR
// (pkg/arm), one function at a time. It mirrors pkg/asmgen's per-function
// translation context, but targets ARMv7 and threads its vreg/phi-collapse
// state through a per-function state struct instead of package-level
// counters (SPEC_FULL.md §9, "per-function counters").
package codegen

import (
	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/berr"
	"github.com/raymyers/armbe/pkg/mir"
	"github.com/raymyers/armbe/pkg/pass"
)

// funcState holds all per-function codegen state: the virtual-register
// counter, the phi-collapse union-find, the stack-slot assignment for
// memory variables, and the in-progress instruction stream.
type funcState struct {
	fn *mir.MirFunction

	nextVReg int
	varReg   map[mir.VarId]arm.Register // collapsed VarId -> virtual or physical register

	collapse map[mir.VarId]mir.VarId // phi union-find: var -> its representative

	stackSize    int
	memVarOffset map[mir.VarId]int // collapsed VarId -> [fp, #-offset] for is_memory_var locals

	constPool []int32

	code []arm.Instruction

	labelFor map[mir.BlockId]string

	order       []mir.BlockId
	loopHeaders map[mir.BlockId]bool

	// pendingCompare holds a comparison Op's operands when that Op is the
	// last instruction in its block and its destination is exactly the
	// following BrCond's condition: genTerminator fuses the two into a
	// single cmp instead of materializing a 0/1 boolean first.
	pendingCompare map[mir.VarId]compareInfo
}

// compareInfo captures a deferred comparison's operands for fusion with a
// following BrCond (see pendingCompare).
type compareInfo struct {
	Kind mir.BinOp
	Lhs  arm.Register
	Rhs  arm.Operand2
}

func newFuncState(fn *mir.MirFunction, extras *pass.Extras) *funcState {
	s := &funcState{
		fn:             fn,
		varReg:         make(map[mir.VarId]arm.Register),
		collapse:       make(map[mir.VarId]mir.VarId),
		memVarOffset:   make(map[mir.VarId]int),
		labelFor:       make(map[mir.BlockId]string),
		pendingCompare: make(map[mir.VarId]compareInfo),
	}
	s.order = extras.BlockOrdering[fn.Name]
	s.loopHeaders = extras.CycleStarts[fn.Name]
	if len(s.order) == 0 {
		// No block rearranger ran (e.g. BasicBlkRearrange was skipped):
		// fall back to the function's own block ids in ascending order so
		// codegen is still deterministic.
		for id := range fn.Blocks {
			s.order = append(s.order, id)
		}
		sortBlockIds(s.order)
	}
	for _, id := range s.order {
		s.labelFor[id] = blockLabel(fn.Name, id)
	}
	return s
}

func sortBlockIds(ids []mir.BlockId) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

func blockLabel(fn string, id mir.BlockId) string {
	return fn + "_L" + itoa(int(id))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (s *funcState) emit(inst arm.Instruction) {
	s.code = append(s.code, inst)
}

// collapsedVar chases the phi-collapse union-find to a fixed point,
// guarding against a collapse map whose chain cycles back on itself (which
// only happens once a chain has already converged).
func (s *funcState) collapsedVar(id mir.VarId) mir.VarId {
	seen := make(map[mir.VarId]bool)
	for {
		next, ok := s.collapse[id]
		if !ok || next == id || seen[id] {
			return id
		}
		seen[id] = true
		id = next
	}
}

// newVReg allocates a fresh virtual general-purpose register.
func (s *funcState) newVReg() arm.Register {
	s.nextVReg++
	return arm.Register{Kind: arm.VirtualGP, Id: s.nextVReg}
}

// regFor returns the register bound to a (collapsed) MIR variable,
// allocating a fresh virtual register on first reference. genFunction
// publishes the accumulated bindings into VarToVreg once translation of the
// function completes.
func (s *funcState) regFor(id mir.VarId) arm.Register {
	id = s.collapsedVar(id)
	if r, ok := s.varReg[id]; ok {
		return r
	}
	r := s.newVReg()
	s.varReg[id] = r
	return r
}

// bugf constructs an Unreachable backend error, for switch defaults that
// should be unreachable given the closed MIR instruction/jump variant set.
func bugf(format string, args ...any) error {
	return berr.New(berr.Unreachable, format, args...)
}
