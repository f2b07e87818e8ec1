package codegen

import (
	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/berr"
	"github.com/raymyers/armbe/pkg/mir"
)

// genTerminator lowers a block's jump. next is the label of whichever
// block codegen will emit immediately afterward (empty at the end of a
// function), used to elide a branch to the fallthrough target.
func (s *funcState) genTerminator(term mir.Jump, next mir.BlockId, hasNext bool) error {
	switch t := term.(type) {
	case mir.Br:
		if hasNext && t.Target == next {
			return nil
		}
		s.emit(arm.Br{Op: arm.OpB, Label: s.labelFor[t.Target]})
		return nil

	case mir.BrCond:
		trueLabel := s.labelFor[t.TrueTarget]
		falseLabel := s.labelFor[t.FalseTarget]

		if info, ok := s.pendingCompare[s.collapsedVar(t.Cond)]; ok {
			delete(s.pendingCompare, s.collapsedVar(t.Cond))
			s.emit(arm.Arith2{Op: arm.OpCmp, R1: info.Lhs, R2: info.Rhs})
			s.emit(arm.Br{Op: compareBranchOp(info.Kind), Label: trueLabel})
		} else {
			cond := s.readVar(t.Cond)
			s.emit(arm.Arith2{Op: arm.OpCmp, R1: cond, R2: arm.Immediate{Value: 0}})
			s.emit(arm.Br{Op: arm.OpBNe, Label: trueLabel})
		}
		if !(hasNext && t.FalseTarget == next) {
			s.emit(arm.Br{Op: arm.OpB, Label: falseLabel})
		}
		return nil

	case mir.Return:
		if t.HasValue {
			if n, ok := mir.AsImm(t.Value); ok {
				s.loadImmediate(arm.GP(arm.R0), n)
			} else {
				id, _ := mir.AsVar(t.Value)
				src := s.readVar(id)
				if src != arm.GP(arm.R0) {
					s.emit(arm.Arith2{Op: arm.OpMov, R1: arm.GP(arm.R0), R2: arm.Reg(src)})
				}
			}
		}
		s.emitEpilogue()
		return nil

	case mir.Unreachable:
		return nil

	case mir.Undefined:
		return berr.New(berr.UndefinedTerminator, "function %s has an undefined terminator", s.fn.Name)

	default:
		return bugf("unhandled mir jump %T", term)
	}
}
