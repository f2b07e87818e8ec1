package regalloc

import (
	"sort"

	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/mir"
	"github.com/raymyers/armbe/pkg/pass"
)

// ArmK is the number of colorable general-purpose registers at the ARM
// level: a reduced callee-saved bank (r4-r8), two fewer than regalloc.K's
// MIR-level hint pass uses, since this pass reserves three scratch
// registers (r9, r10, r12) for bracketing spilled operands around each
// rewritten instruction (see spillScratch).
const ArmK = 5

var armColorable = arm.CalleeSaved[:ArmK] // r4..r8
var spillScratch = []int{arm.R9, arm.R10, arm.R12}

// RegAllocatePass assigns a physical register or a stack spill slot to
// every virtual register codegen emitted. Per SPEC_FULL.md §4.4B it first
// seats the MIR-level GraphColor pass's decisions (published to
// extras.GraphColor, keyed back to codegen's virtual registers through
// extras.VarToVreg): a colored MIR var is seated directly at r(c+4), a
// var GraphColor spilled gets a slot immediately. Only the vregs codegen
// invented that have no MIR-var counterpart (immediate materializations,
// call-argument shuffles, and anything from a function GraphColor never
// ran over) fall through to a linear scan computed directly over the ARM
// instruction stream — conservative, since it can only over-extend a live
// range, never under-extend one.
type RegAllocatePass struct{}

func (RegAllocatePass) Name() string { return "RegAllocatePass" }

func (RegAllocatePass) OptimizeArm(code *arm.Code, extras *pass.Extras) (*arm.Code, error) {
	for _, fn := range code.Functions {
		allocateFunction(fn, extras.GraphColor[fn.Name], extras.VarToVreg[fn.Name])
	}
	return code, nil
}

type interval struct {
	reg        arm.Register
	start, end int
}

func allocateFunction(fn *arm.Function, colorHints map[mir.VarId]int, varToVreg map[mir.VarId]arm.Register) {
	seated, seatedPhys, spillOffset := seatColoredVars(colorHints, varToVreg)
	// Place GraphColor's spill slots below the memory-variable frame and
	// count them into the frame size.
	for r := range spillOffset {
		spillOffset[r] += fn.StackSize
	}
	colorSpill := 4 * len(spillOffset)

	colorable := excludePhys(armColorable, seatedPhys)
	scratch := excludePhys(spillScratch, seatedPhys)
	if len(scratch) == 0 {
		// arm.R12 is never a GraphColor color (GraphColor only ever
		// produces r4-r10), so it is always free as a last-resort scratch.
		scratch = []int{arm.R12}
	}

	// Neither a GraphColor-colored var nor one it spilled should pass
	// through the linear scan: both already have a final seat.
	handled := make(map[arm.Register]bool, len(seated)+len(spillOffset))
	for r := range seated {
		handled[r] = true
	}
	for r := range spillOffset {
		handled[r] = true
	}

	intervals := computeIntervals(fn.Code, handled)
	colors, scanSpillOffset, frameAdd := assignIntervals(intervals, fn.StackSize+colorSpill, colorable)
	for r, off := range scanSpillOffset {
		spillOffset[r] = off
	}
	for r, phys := range seated {
		colors[r] = phys
	}

	newSize := fn.StackSize + colorSpill + frameAdd
	patchStackFrame(fn, newSize)
	fn.Code = rewriteCode(fn.Code, colors, spillOffset, scratch)
	fn.StackSize = newSize

	patchCalleeSaves(fn, colors)
}

// seatColoredVars maps every MIR variable the GraphColor pass decided on to
// its codegen-assigned virtual register's final seat: a color c >= 0 seats
// the vreg at physical register CalleeSaved[c] (r(c+4)); SpillColor (-1)
// seats it in a dedicated 4-byte stack slot, numbered 4, 8, ... here;
// allocateFunction moves those slots below the function's existing frame.
// varToVreg entries with no corresponding color (or vice versa) are left
// for the linear-scan fallback.
func seatColoredVars(colors map[mir.VarId]int, varToVreg map[mir.VarId]arm.Register) (seated map[arm.Register]arm.Register, seatedPhys map[int]bool, spillOffset map[arm.Register]int) {
	seated = make(map[arm.Register]arm.Register)
	seatedPhys = make(map[int]bool)
	spillOffset = make(map[arm.Register]int)

	var ids []mir.VarId
	for id := range colors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	nextSlot := 0
	for _, id := range ids {
		vreg, ok := varToVreg[id]
		if !ok {
			continue
		}
		if c := colors[id]; c == SpillColor {
			nextSlot += 4
			spillOffset[vreg] = nextSlot
		} else {
			phys := arm.GP(arm.CalleeSaved[c])
			seated[vreg] = phys
			seatedPhys[phys.Id] = true
		}
	}
	return seated, seatedPhys, spillOffset
}

// excludePhys returns the ids in pool that are not marked in seatedPhys,
// preserving order.
func excludePhys(pool []int, seatedPhys map[int]bool) []int {
	out := make([]int, 0, len(pool))
	for _, id := range pool {
		if !seatedPhys[id] {
			out = append(out, id)
		}
	}
	return out
}

// computeIntervals finds, for every distinct virtual register not already
// seated or spilled by seatColoredVars (handled), the index of its first
// and last appearance in the flat instruction stream.
func computeIntervals(code []arm.Instruction, handled map[arm.Register]bool) []interval {
	first := make(map[arm.Register]int)
	last := make(map[arm.Register]int)
	var order []arm.Register

	for idx, inst := range code {
		for _, r := range instRegs(inst) {
			if !r.IsVirtual() {
				continue
			}
			if handled[r] {
				continue
			}
			if _, ok := first[r]; !ok {
				first[r] = idx
				order = append(order, r)
			}
			last[r] = idx
		}
	}

	out := make([]interval, 0, len(order))
	for _, r := range order {
		out = append(out, interval{reg: r, start: first[r], end: last[r]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// assignIntervals runs linear-scan allocation over the given colorable
// pool: walk intervals in start order, expiring active intervals whose
// range has ended, and assign the lowest color not held by any still-active
// interval. An interval that finds no free color spills to a fresh stack
// slot below the function's existing frame.
func assignIntervals(intervals []interval, existingFrame int, colorable []int) (colors map[arm.Register]arm.Register, spillOffset map[arm.Register]int, frameAdd int) {
	colors = make(map[arm.Register]arm.Register)
	spillOffset = make(map[arm.Register]int)

	type active struct {
		end   int
		color int
	}
	var actives []active
	usedColor := make([]bool, len(colorable))

	nextSlot := existingFrame

	for _, iv := range intervals {
		kept := actives[:0]
		for _, a := range actives {
			if a.end < iv.start {
				usedColor[a.color] = false
				continue
			}
			kept = append(kept, a)
		}
		actives = kept

		chosen := -1
		for c := 0; c < len(colorable); c++ {
			if !usedColor[c] {
				chosen = c
				break
			}
		}
		if chosen < 0 {
			nextSlot += 4
			spillOffset[iv.reg] = nextSlot
			continue
		}
		usedColor[chosen] = true
		actives = append(actives, active{end: iv.end, color: chosen})
		colors[iv.reg] = arm.GP(colorable[chosen])
	}

	return colors, spillOffset, nextSlot - existingFrame
}

// rewriteCode replaces every virtual register with its assigned physical
// register, bracketing spilled operands with a load before and a store
// after the instruction that touches them (always storing back, even for
// a read-only use, since that is simpler and always safe; ExcessRegDelete
// removes only a store that directly follows its matching load).
func rewriteCode(code []arm.Instruction, colors map[arm.Register]arm.Register, spillOffset map[arm.Register]int, scratch []int) []arm.Instruction {
	out := make([]arm.Instruction, 0, len(code))
	for _, inst := range code {
		regs := instRegs(inst)
		sub := make(map[arm.Register]arm.Register, len(regs))
		var pre, post []arm.Instruction
		scratchIdx := 0

		for _, r := range regs {
			if !r.IsVirtual() {
				continue
			}
			if _, done := sub[r]; done {
				continue
			}
			if c, ok := colors[r]; ok {
				sub[r] = c
				continue
			}
			off, ok := spillOffset[r]
			if !ok {
				continue // unallocated virtual register that never got an interval; leave as-is
			}
			s := arm.GP(scratch[scratchIdx%len(scratch)])
			scratchIdx++
			sub[r] = s
			pre = append(pre, arm.LoadStore{Op: arm.OpLdr, Rd: s, Mem: spillSlot(off)})
			post = append(post, arm.LoadStore{Op: arm.OpStr, Rd: s, Mem: spillSlot(off)})
		}

		out = append(out, pre...)
		out = append(out, substitute(inst, sub))
		out = append(out, post...)
	}
	return out
}

func spillSlot(off int) arm.MemoryOperand {
	return arm.MemoryOperand{Base: arm.GP(arm.FP), ImmOff: int32(-off)}
}

// instRegs lists the virtual-or-physical registers an instruction
// references, in a stable order (duplicates allowed).
func instRegs(inst arm.Instruction) []arm.Register {
	switch i := inst.(type) {
	case arm.Arith2:
		regs := []arm.Register{i.R1}
		if ro, ok := i.R2.(arm.RegisterOperand); ok {
			regs = append(regs, ro.Reg)
		}
		return regs
	case arm.Arith3:
		regs := []arm.Register{i.Rd, i.R1}
		if ro, ok := i.R2.(arm.RegisterOperand); ok {
			regs = append(regs, ro.Reg)
		}
		return regs
	case arm.LoadStore:
		regs := []arm.Register{i.Rd, i.Mem.Base}
		if i.Mem.RegOff != nil {
			regs = append(regs, i.Mem.RegOff.Reg)
		}
		return regs
	default:
		return nil
	}
}

// substitute rebuilds an instruction with every register in sub replaced.
func substitute(inst arm.Instruction, sub map[arm.Register]arm.Register) arm.Instruction {
	repl := func(r arm.Register) arm.Register {
		if s, ok := sub[r]; ok {
			return s
		}
		return r
	}
	replOp2 := func(o arm.Operand2) arm.Operand2 {
		if ro, ok := o.(arm.RegisterOperand); ok {
			ro.Reg = repl(ro.Reg)
			return ro
		}
		return o
	}
	replMem := func(m arm.MemoryOperand) arm.MemoryOperand {
		m.Base = repl(m.Base)
		if m.RegOff != nil {
			ro := *m.RegOff
			ro.Reg = repl(ro.Reg)
			m.RegOff = &ro
		}
		return m
	}

	switch i := inst.(type) {
	case arm.Arith2:
		i.R1 = repl(i.R1)
		i.R2 = replOp2(i.R2)
		return i
	case arm.Arith3:
		i.Rd = repl(i.Rd)
		i.R1 = repl(i.R1)
		i.R2 = replOp2(i.R2)
		return i
	case arm.LoadStore:
		i.Rd = repl(i.Rd)
		i.Mem = replMem(i.Mem)
		return i
	default:
		return inst
	}
}

// patchStackFrame rewrites the prologue's frame-size adjustment (the
// "sub sp, sp, #n" sequence codegen emitted from the memory-variable frame
// alone) to use newSize, the final frame size once this pass's spill slots
// are folded in, per SPEC_FULL.md §4.4D's "sub sp, sp, #final_stack_size"
// rule. Spill slots live below the memory-variable frame; left unpatched,
// that region sits outside sp and can be clobbered by anything a later
// call pushes.
func patchStackFrame(fn *arm.Function, newSize int) {
	fpIdx := -1
	for idx, inst := range fn.Code {
		a2, ok := inst.(arm.Arith2)
		if !ok || a2.Op != arm.OpMov || a2.R1 != arm.GP(arm.FP) {
			continue
		}
		if ro, ok := a2.R2.(arm.RegisterOperand); ok && ro.Reg == arm.GP(arm.SP) {
			fpIdx = idx
			break
		}
	}
	if fpIdx < 0 {
		return
	}

	// The only instructions emitPrologue ever places between "mov fp, sp"
	// and the first real body instruction are an optional immediate
	// materialization (one mov, or a mov/movt pair) feeding an optional
	// "sub sp, sp, ..." — at most 3 instructions, found only if the last
	// of them actually is that sub.
	removeEnd := fpIdx
	j := fpIdx + 1
	for consumed := 0; j < len(fn.Code) && consumed < 2; consumed++ {
		a2, ok := fn.Code[j].(arm.Arith2)
		if !ok || (a2.Op != arm.OpMov && a2.Op != arm.OpMovT) {
			break
		}
		j++
	}
	if j < len(fn.Code) {
		if a3, ok := fn.Code[j].(arm.Arith3); ok && a3.Op == arm.OpSub && a3.Rd == arm.GP(arm.SP) && a3.R1 == arm.GP(arm.SP) {
			removeEnd = j
		}
	}

	var adjust []arm.Instruction
	if newSize > 0 {
		adjust = frameAdjustSequence(newSize)
	}

	rest := append([]arm.Instruction{}, fn.Code[removeEnd+1:]...)
	code := append([]arm.Instruction{}, fn.Code[:fpIdx+1]...)
	code = append(code, adjust...)
	code = append(code, rest...)
	fn.Code = code
}

// frameAdjustSequence builds "sub sp, sp, #n", materializing n into a
// scratch register first when it doesn't fit ARM's rotated 8-bit immediate
// form, mirroring pkg/codegen's emitPrologue/loadImmediate. arm.R12 is used
// as scratch: nothing is live yet at the point this sequence runs, and
// GraphColor never colors a var into r12 (its colors only span r4-r10), so
// it can never collide with a seated variable.
func frameAdjustSequence(n int) []arm.Instruction {
	u := uint32(n)
	scratch := arm.GP(arm.R12)

	if arm.EncodableRotatedImm8(u) {
		return []arm.Instruction{
			arm.Arith3{Op: arm.OpSub, Rd: arm.GP(arm.SP), R1: arm.GP(arm.SP), R2: arm.Immediate{Value: u}},
		}
	}

	var out []arm.Instruction
	if arm.EncodableRotatedImm8(^u) {
		out = append(out, arm.Arith2{Op: arm.OpMvn, R1: scratch, R2: arm.Immediate{Value: ^u}})
	} else {
		low := u & 0xFFFF
		high := (u >> 16) & 0xFFFF
		out = append(out, arm.Arith2{Op: arm.OpMov, R1: scratch, R2: arm.Immediate{Value: low}})
		if high != 0 {
			out = append(out, arm.Arith2{Op: arm.OpMovT, R1: scratch, R2: arm.Immediate{Value: high}})
		}
	}
	out = append(out, arm.Arith3{Op: arm.OpSub, Rd: arm.GP(arm.SP), R1: arm.GP(arm.SP), R2: arm.Reg(scratch)})
	return out
}

// patchCalleeSaves extends the function's prologue push and epilogue pop
// with whichever colorable registers this pass actually put to use,
// grounded on pkg/stacking's FindUsedCalleeSaveRegs/IsCalleeSaved pairing
// of "which callee-saves did this function touch" with "save/restore
// exactly those, nothing more".
func patchCalleeSaves(fn *arm.Function, colors map[arm.Register]arm.Register) {
	used := map[int]bool{}
	for _, c := range colors {
		used[c.Id] = true
	}
	if len(used) == 0 {
		return
	}
	var extra []arm.Register
	for _, id := range arm.CalleeSaved {
		if used[id] {
			extra = append(extra, arm.GP(id))
		}
	}

	for idx, inst := range fn.Code {
		pp, ok := inst.(arm.PushPop)
		if !ok {
			continue
		}
		switch pp.Op {
		case arm.OpPush:
			pp.Regs = append(append([]arm.Register{}, pp.Regs...), extra...)
		case arm.OpPop:
			pp.Regs = append(append([]arm.Register{}, extra...), pp.Regs...)
		default:
			continue
		}
		fn.Code[idx] = pp
	}

	// Every extra register pushed before "mov fp, sp" moves the caller's
	// stack-passed arguments (the only fp-relative positive offsets) 4 bytes
	// further above fp.
	for idx, inst := range fn.Code {
		ls, ok := inst.(arm.LoadStore)
		if ok && ls.Mem.Base == arm.GP(arm.FP) && ls.Mem.RegOff == nil && ls.Mem.ImmOff >= 8 {
			ls.Mem.ImmOff += int32(4 * len(extra))
			fn.Code[idx] = ls
		}
	}
}
