package codegen

import (
	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/mir"
)

// readVar materializes a MIR variable's current value into a register. A
// memory variable (address-taken, per mir.VarDesc.IsMemoryVar) has no
// register home: every read reloads it from its stack slot, since a live
// pointer obtained via Ref could have mutated it since the last read.
func (s *funcState) readVar(id mir.VarId) arm.Register {
	id = s.collapsedVar(id)
	if off, ok := s.memVarOffset[id]; ok {
		t := s.newVReg()
		s.emit(arm.LoadStore{Op: arm.OpLdr, Rd: t, Mem: stackSlot(off)})
		return t
	}
	return s.regFor(id)
}

// destReg returns the register an instruction should compute its result
// into. For a memory variable this is a fresh transient; the caller must
// follow up with finalizeDest to spill it to the variable's stack slot.
func (s *funcState) destReg(id mir.VarId) arm.Register {
	cid := s.collapsedVar(id)
	if _, ok := s.memVarOffset[cid]; ok {
		return s.newVReg()
	}
	return s.regFor(cid)
}

// finalizeDest stores reg into id's stack slot if id is a memory variable;
// otherwise it is a no-op, since destReg already returned id's home register.
func (s *funcState) finalizeDest(id mir.VarId, reg arm.Register) {
	id = s.collapsedVar(id)
	if off, ok := s.memVarOffset[id]; ok {
		s.emit(arm.LoadStore{Op: arm.OpStr, Rd: reg, Mem: stackSlot(off)})
	}
}

func stackSlot(off int) arm.MemoryOperand {
	return arm.MemoryOperand{Base: arm.GP(arm.FP), ImmOff: int32(-off)}
}

// materialize loads a MIR value (immediate or variable) into a register.
func (s *funcState) materialize(v mir.Value) arm.Register {
	if n, ok := mir.AsImm(v); ok {
		t := s.newVReg()
		s.loadImmediate(t, n)
		return t
	}
	id, _ := mir.AsVar(v)
	return s.readVar(id)
}

// operand2For lowers a MIR value into an ARM flexible second operand,
// preferring an inline rotated-immediate encoding and falling back to
// materializing the value into a register when that's not possible.
func (s *funcState) operand2For(v mir.Value) arm.Operand2 {
	if n, ok := mir.AsImm(v); ok {
		u := uint32(n)
		if arm.EncodableRotatedImm8(u) {
			return arm.Immediate{Value: u}
		}
		t := s.newVReg()
		s.loadImmediate(t, n)
		return arm.Reg(t)
	}
	id, _ := mir.AsVar(v)
	return arm.Reg(s.readVar(id))
}

// loadImmediate materializes a 32-bit constant into dest, using a single
// mov when the value fits ARM's rotated 8-bit immediate, a single mvn when
// its bitwise complement does, and a mov/movt pair of 16-bit halves
// otherwise (the movt is omitted when the high half is zero; e.g. 65537 ->
// mov dest, #1 ; movt dest, #1).
func (s *funcState) loadImmediate(dest arm.Register, n int32) {
	u := uint32(n)
	if arm.EncodableRotatedImm8(u) {
		s.emit(arm.Arith2{Op: arm.OpMov, R1: dest, R2: arm.Immediate{Value: u}})
		return
	}
	if arm.EncodableRotatedImm8(^u) {
		s.emit(arm.Arith2{Op: arm.OpMvn, R1: dest, R2: arm.Immediate{Value: ^u}})
		return
	}
	low := u & 0xFFFF
	high := (u >> 16) & 0xFFFF
	s.emit(arm.Arith2{Op: arm.OpMov, R1: dest, R2: arm.Immediate{Value: low}})
	if high != 0 {
		s.emit(arm.Arith2{Op: arm.OpMovT, R1: dest, R2: arm.Immediate{Value: high}})
	}
}

// compareBranchOp maps a comparison BinOp to the ARM conditional-branch
// opcode that takes the branch when the comparison holds.
func compareBranchOp(op mir.BinOp) arm.OpCode {
	switch op {
	case mir.Gt:
		return arm.CondForGt
	case mir.Lt:
		return arm.CondForLt
	case mir.Gte:
		return arm.CondForGte
	case mir.Lte:
		return arm.CondForLte
	case mir.Eq:
		return arm.CondForEq
	case mir.Neq:
		return arm.CondForNeq
	default:
		return arm.OpBNe
	}
}

// compareMoveCond maps a comparison BinOp to the condition suffix used on
// the "set to 1 if true" conditional mov when materializing a boolean.
func compareMoveCond(op mir.BinOp) arm.Cond {
	switch op {
	case mir.Gt:
		return "gt"
	case mir.Lt:
		return "lt"
	case mir.Gte:
		return "ge"
	case mir.Lte:
		return "le"
	case mir.Eq:
		return "eq"
	case mir.Neq:
		return "ne"
	default:
		return "ne"
	}
}
