package codegen

import (
	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/berr"
	"github.com/raymyers/armbe/pkg/mir"
)

// genInstruction lowers one non-terminator MIR instruction, grounded on
// pkg/asmgen/transform.go's translateOperation switch: one case per
// concrete instruction variant, emitted as a short fixed sequence of ARM
// instructions rather than a general pattern-matcher.
//
// isLastCompare is true when inst is a comparison Op immediately followed
// by a BrCond that consumes its result and nothing else: genInstruction
// then defers the comparison to the terminator instead of materializing a
// boolean, and genTerminator fuses it into a single cmp.
func (s *funcState) genInstruction(inst mir.Instruction, isLastCompare bool) error {
	switch i := inst.(type) {
	case mir.Assign:
		dest := s.destReg(i.DestId)
		if n, ok := mir.AsImm(i.Value); ok {
			s.loadImmediate(dest, n)
		} else {
			id, _ := mir.AsVar(i.Value)
			s.emit(arm.Arith2{Op: arm.OpMov, R1: dest, R2: arm.Reg(s.readVar(id))})
		}
		s.finalizeDest(i.DestId, dest)
		return nil

	case mir.Op:
		return s.genOp(i, isLastCompare)

	case mir.Call:
		return s.genCall(i)

	case mir.Load:
		dest := s.destReg(i.DestId)
		s.emit(arm.LoadStore{Op: arm.OpLdr, Rd: dest, Mem: arm.MemoryOperand{Base: s.readVar(i.Src)}})
		s.finalizeDest(i.DestId, dest)
		return nil

	case mir.Store:
		addr := s.readVar(i.DestId)
		val := s.materialize(i.Val)
		s.emit(arm.LoadStore{Op: arm.OpStr, Rd: val, Mem: arm.MemoryOperand{Base: addr}})
		return nil

	case mir.Ref:
		return s.genRef(i)

	case mir.PtrOffset:
		dest := s.destReg(i.DestId)
		ptr := s.readVar(i.Ptr)
		s.emit(arm.Arith3{Op: arm.OpAdd, Rd: dest, R1: ptr, R2: s.operand2For(i.Offset)})
		s.finalizeDest(i.DestId, dest)
		return nil

	case mir.Phi:
		// Collapsed into a single representative variable in buildPhiCollapse;
		// nothing survives to codegen.
		return nil

	default:
		return bugf("unhandled mir instruction %T", inst)
	}
}

func (s *funcState) genOp(i mir.Op, isLastCompare bool) error {
	if i.Kind.IsComparison() {
		lhs := s.materialize(i.Lhs)
		rhs := s.operand2For(i.Rhs)
		if isLastCompare {
			s.pendingCompare[s.collapsedVar(i.DestId)] = compareInfo{Kind: i.Kind, Lhs: lhs, Rhs: rhs}
			return nil
		}
		dest := s.destReg(i.DestId)
		s.emit(arm.Arith2{Op: arm.OpMov, R1: dest, R2: arm.Immediate{Value: 0}})
		s.emit(arm.Arith2{Op: arm.OpCmp, R1: lhs, R2: rhs})
		s.emit(arm.Arith2{Op: arm.OpMov, R1: dest, R2: arm.Immediate{Value: 1}, Cond: compareMoveCond(i.Kind)})
		s.finalizeDest(i.DestId, dest)
		return nil
	}

	if i.Kind == mir.Sub {
		// imm - x: rsb dest, x, #imm computes #imm - x without first
		// materializing the immediate on the left.
		if n, ok := mir.AsImm(i.Lhs); ok {
			if _, rhsImm := mir.AsImm(i.Rhs); !rhsImm {
				rhs := s.materialize(i.Rhs)
				dest := s.destReg(i.DestId)
				s.emit(arm.Arith3{Op: arm.OpRsb, Rd: dest, R1: rhs, R2: s.operand2For(mir.Imm{N: n})})
				s.finalizeDest(i.DestId, dest)
				return nil
			}
		}
	}

	lhs := s.materialize(i.Lhs)
	dest := s.destReg(i.DestId)

	switch i.Kind {
	case mir.Add:
		s.emit(arm.Arith3{Op: arm.OpAdd, Rd: dest, R1: lhs, R2: s.operand2For(i.Rhs)})
	case mir.Sub:
		s.emit(arm.Arith3{Op: arm.OpSub, Rd: dest, R1: lhs, R2: s.operand2For(i.Rhs)})
	case mir.And:
		s.emit(arm.Arith3{Op: arm.OpAnd, Rd: dest, R1: lhs, R2: s.operand2For(i.Rhs)})
	case mir.Or:
		s.emit(arm.Arith3{Op: arm.OpOrr, Rd: dest, R1: lhs, R2: s.operand2For(i.Rhs)})
	case mir.Mul:
		rhs := s.materialize(i.Rhs) // ARM mul has no immediate operand2 form
		s.emit(arm.Arith3{Op: arm.OpMul, Rd: dest, R1: lhs, R2: arm.Reg(rhs)})
	case mir.Div:
		rhs := s.materialize(i.Rhs)
		s.emit(arm.Arith3{Op: arm.OpSDiv, Rd: dest, R1: lhs, R2: arm.Reg(rhs)})
	case mir.Rem:
		// OpMod is a pseudo-opcode (see pkg/arm.OpMod doc comment) that must
		// never reach final emission; expand a%b as a - (a/b)*b directly.
		rhs := s.materialize(i.Rhs)
		q := s.newVReg()
		s.emit(arm.Arith3{Op: arm.OpSDiv, Rd: q, R1: lhs, R2: arm.Reg(rhs)})
		prod := s.newVReg()
		s.emit(arm.Arith3{Op: arm.OpMul, Rd: prod, R1: q, R2: arm.Reg(rhs)})
		s.emit(arm.Arith3{Op: arm.OpSub, Rd: dest, R1: lhs, R2: arm.Reg(prod)})
	default:
		return bugf("unhandled binop %s", i.Kind)
	}
	s.finalizeDest(i.DestId, dest)
	return nil
}

func (s *funcState) genRef(i mir.Ref) error {
	if i.IsGlob {
		return berr.New(berr.NotImplemented, "global reference to %q", i.Global)
	}
	off, ok := s.memVarOffset[s.collapsedVar(i.Local)]
	if !ok {
		return bugf("ref of var %d which is not a memory variable", i.Local)
	}
	dest := s.destReg(i.DestId)
	u := uint32(off)
	if arm.EncodableRotatedImm8(u) {
		s.emit(arm.Arith3{Op: arm.OpSub, Rd: dest, R1: arm.GP(arm.FP), R2: arm.Immediate{Value: u}})
	} else {
		t := s.newVReg()
		s.loadImmediate(t, int32(off))
		s.emit(arm.Arith3{Op: arm.OpSub, Rd: dest, R1: arm.GP(arm.FP), R2: arm.Reg(t)})
	}
	s.finalizeDest(i.DestId, dest)
	return nil
}
