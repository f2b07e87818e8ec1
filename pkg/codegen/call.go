package codegen

import (
	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/mir"
)

// genCall lowers a call: the first four arguments move into r0-r3, any
// remaining arguments are stored to a caller-reserved stack window
// immediately below the current sp, restored once the call returns.
func (s *funcState) genCall(i mir.Call) error {
	extra := len(i.Params) - 4
	if extra < 0 {
		extra = 0
	}
	if extra > 0 {
		s.emit(arm.Arith3{Op: arm.OpSub, Rd: arm.GP(arm.SP), R1: arm.GP(arm.SP), R2: arm.Immediate{Value: uint32(extra * 4)}})
	}

	for idx, p := range i.Params {
		if idx < 4 {
			target := arm.GP(arm.R0 + idx)
			if n, ok := mir.AsImm(p); ok {
				s.loadImmediate(target, n)
			} else {
				id, _ := mir.AsVar(p)
				s.emit(arm.Arith2{Op: arm.OpMov, R1: target, R2: arm.Reg(s.readVar(id))})
			}
			continue
		}
		val := s.materialize(p)
		s.emit(arm.LoadStore{Op: arm.OpStr, Rd: val, Mem: arm.MemoryOperand{Base: arm.GP(arm.SP), ImmOff: int32((idx - 4) * 4)}})
	}

	s.emit(arm.Br{Op: arm.OpBl, Label: i.FnId})

	if extra > 0 {
		s.emit(arm.Arith3{Op: arm.OpAdd, Rd: arm.GP(arm.SP), R1: arm.GP(arm.SP), R2: arm.Immediate{Value: uint32(extra * 4)}})
	}

	if !i.Void {
		dest := s.destReg(i.DestId)
		s.emit(arm.Arith2{Op: arm.OpMov, R1: dest, R2: arm.Reg(arm.GP(arm.R0))})
		s.finalizeDest(i.DestId, dest)
	}
	return nil
}
