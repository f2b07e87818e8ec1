package codegen

import (
	"sort"

	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/berr"
	"github.com/raymyers/armbe/pkg/mir"
	"github.com/raymyers/armbe/pkg/pass"
)

// Translate lowers a complete MIR package to ARM code. It is installed as
// the pkg/pass.Driver's Translator: the fixed boundary between the MIR
// optimization pipeline and the ARM post-codegen pipeline.
func Translate(pkg *mir.MirPackage, extras *pass.Extras) (*arm.Code, error) {
	code := arm.NewCode()

	var names []string
	for name, fn := range pkg.Functions {
		if fn.Type.IsExtern {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		armFn, err := genFunction(pkg.Functions[name], extras)
		if err != nil {
			return nil, berr.Wrap(err, "function %q", name)
		}
		code.Functions = append(code.Functions, armFn)
	}

	for name, g := range pkg.Globals {
		code.Globals[name] = arm.GlobVar{Name: name, Size: g.Size, Init: append([]int32(nil), g.Init...)}
	}
	return code, nil
}

// genFunction lowers a single function end to end: phi collapse, stack
// layout, prologue, one label-and-instructions group per block in the
// block rearranger's chosen order, and epilogue at every return site.
func genFunction(fn *mir.MirFunction, extras *pass.Extras) (*arm.Function, error) {
	s := newFuncState(fn, extras)

	s.buildPhiCollapse(fn)
	s.scanMemoryVars(fn)
	s.emitPrologue()
	s.assignParams(fn)

	for idx, id := range s.order {
		blk := fn.Blocks[id]
		if blk == nil {
			continue
		}
		s.emit(arm.Label{Name: s.labelFor[id]})

		for ii, inst := range blk.Insts {
			if err := s.genInstruction(inst, s.isLastCompare(blk, ii)); err != nil {
				return nil, berr.Wrap(err, "block %d instruction %d", id, ii)
			}
		}

		var next mir.BlockId
		hasNext := idx+1 < len(s.order)
		if hasNext {
			next = s.order[idx+1]
		}
		if err := s.genTerminator(blk.Term, next, hasNext); err != nil {
			return nil, berr.Wrap(err, "block %d terminator", id)
		}
	}

	extras.VarToVreg[fn.Name] = s.varReg

	return &arm.Function{Name: fn.Name, Code: s.code, ConstPool: s.constPool, StackSize: s.stackSize}, nil
}

// isLastCompare reports whether instruction index ii in blk is a
// comparison Op that is both the block's last instruction and the sole
// producer of the value blk's terminating BrCond tests.
func (s *funcState) isLastCompare(blk *mir.BasicBlk, ii int) bool {
	if ii != len(blk.Insts)-1 {
		return false
	}
	op, ok := blk.Insts[ii].(mir.Op)
	if !ok || !op.Kind.IsComparison() {
		return false
	}
	bc, ok := blk.Term.(mir.BrCond)
	if !ok {
		return false
	}
	return s.collapsedVar(bc.Cond) == s.collapsedVar(op.DestId)
}

// scanMemoryVars assigns a stack slot to every address-taken local, in
// ascending variable-id order for determinism, and sets the function's
// frame size accordingly.
func (s *funcState) scanMemoryVars(fn *mir.MirFunction) {
	var ids []mir.VarId
	for id, desc := range fn.Vars {
		if desc.IsMemoryVar {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	off := 0
	for _, id := range ids {
		size := fn.Vars[id].Size
		if size <= 0 {
			size = 4
		}
		off += ((size + 3) / 4) * 4
		s.memVarOffset[s.collapsedVar(id)] = off
	}
	s.stackSize = off
}

// emitPrologue emits "push {fp,lr}; mov fp,sp" plus a frame-size
// allocation for this function's memory-variable stack slots. Register
// allocation later extends this push/pop pair with whichever callee-saved
// registers it assigns (see pkg/regalloc).
func (s *funcState) emitPrologue() {
	s.emit(arm.PushPop{Op: arm.OpPush, Regs: []arm.Register{arm.GP(arm.FP), arm.GP(arm.LR)}})
	s.emit(arm.Arith2{Op: arm.OpMov, R1: arm.GP(arm.FP), R2: arm.Reg(arm.GP(arm.SP))})
	if s.stackSize <= 0 {
		return
	}
	u := uint32(s.stackSize)
	if arm.EncodableRotatedImm8(u) {
		s.emit(arm.Arith3{Op: arm.OpSub, Rd: arm.GP(arm.SP), R1: arm.GP(arm.SP), R2: arm.Immediate{Value: u}})
		return
	}
	t := s.newVReg()
	s.loadImmediate(t, int32(s.stackSize))
	s.emit(arm.Arith3{Op: arm.OpSub, Rd: arm.GP(arm.SP), R1: arm.GP(arm.SP), R2: arm.Reg(t)})
}

// emitEpilogue emits "mov sp,fp; pop {fp,lr}; bx lr". "bx lr" has no
// counterpart among the modeled Instruction shapes, so it is spliced in
// via arm.Pure, exactly the escape hatch that type exists for.
func (s *funcState) emitEpilogue() {
	s.emit(arm.Arith2{Op: arm.OpMov, R1: arm.GP(arm.SP), R2: arm.Reg(arm.GP(arm.FP))})
	s.emit(arm.PushPop{Op: arm.OpPop, Regs: []arm.Register{arm.GP(arm.FP), arm.GP(arm.LR)}})
	s.emit(arm.Pure{Text: "bx lr"})
}

// assignParams binds each formal parameter to its entry-time location: the
// first four params arrive in r0-r3, the rest were pushed by the caller
// onto the stack above this function's frame (see genCall) and are loaded
// once here, at offset fp+8 (past the saved fp/lr pair) plus 4 bytes per
// extra parameter; RegAllocatePass moves these offsets up when it adds
// callee-saved registers to the prologue push. A parameter that is itself a memory variable (its
// address is taken somewhere in the body) is immediately spilled to its
// stack slot instead of kept live in a register.
func (s *funcState) assignParams(fn *mir.MirFunction) {
	for idx, varId := range fn.Params {
		cid := s.collapsedVar(varId)

		if off, isMem := s.memVarOffset[cid]; isMem {
			if idx < 4 {
				s.emit(arm.LoadStore{Op: arm.OpStr, Rd: arm.GP(arm.R0 + idx), Mem: stackSlot(off)})
			} else {
				t := s.newVReg()
				s.emit(arm.LoadStore{Op: arm.OpLdr, Rd: t, Mem: incomingStackArg(idx - 4)})
				s.emit(arm.LoadStore{Op: arm.OpStr, Rd: t, Mem: stackSlot(off)})
			}
			continue
		}

		if idx < 4 {
			s.varReg[cid] = arm.GP(arm.R0 + idx)
			continue
		}
		t := s.newVReg()
		s.emit(arm.LoadStore{Op: arm.OpLdr, Rd: t, Mem: incomingStackArg(idx - 4)})
		s.varReg[cid] = t
	}
}

// incomingStackArg locates the extra-th (0-based) stack-passed argument
// relative to this function's own frame pointer: the caller's sp at the
// call instruction sits at fp+8, past this function's saved fp and lr.
func incomingStackArg(extra int) arm.MemoryOperand {
	return arm.MemoryOperand{Base: arm.GP(arm.FP), ImmOff: int32(8 + extra*4)}
}
