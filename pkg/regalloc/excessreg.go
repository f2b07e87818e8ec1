package regalloc

import (
	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/pass"
)

// ExcessRegDelete is the ARM cleanup pass that runs immediately after
// RegAllocatePass. RegAllocatePass always brackets a spilled operand with
// a load before and a store after its instruction, even when the
// instruction only read the value. This pass deletes any identity move
// (mov r, r) the allocator's coloring happened to produce, and a store
// that directly follows a load of the same register and slot. A store
// separated from its load by the instruction that used the value is not
// removed.
type ExcessRegDelete struct{}

func (ExcessRegDelete) Name() string { return "ExcessRegDelete" }

func (ExcessRegDelete) OptimizeArm(code *arm.Code, extras *pass.Extras) (*arm.Code, error) {
	for _, fn := range code.Functions {
		fn.Code = deleteIdentityMoves(fn.Code)
		fn.Code = deleteRedundantStores(fn.Code)
	}
	return code, nil
}

// deleteIdentityMoves removes any unconditional "mov r, r" instruction.
func deleteIdentityMoves(code []arm.Instruction) []arm.Instruction {
	out := make([]arm.Instruction, 0, len(code))
	for _, inst := range code {
		if a2, ok := inst.(arm.Arith2); ok && a2.Op == arm.OpMov && a2.Cond == arm.CondAlways {
			if ro, ok := a2.R2.(arm.RegisterOperand); ok && ro.Reg == a2.R1 && ro.ShiftAmt == 0 {
				continue
			}
		}
		out = append(out, inst)
	}
	return out
}

// deleteRedundantStores removes a "str rX, [slot]" that immediately
// follows a "ldr rX, [slot]" for the same slot and register with no
// instruction in between touching rX: the bracketed value never changed,
// so writing it back is a no-op. RegAllocatePass's "ldr; use; str"
// bracket reaches this shape only when the use in between was an identity
// move that deleteIdentityMoves already removed.
func deleteRedundantStores(code []arm.Instruction) []arm.Instruction {
	out := make([]arm.Instruction, 0, len(code))
	for i := 0; i < len(code); i++ {
		inst := code[i]
		if i+1 < len(code) && isRedundantStorePair(inst, code[i+1]) {
			out = append(out, inst) // keep the load, drop the matching store
			i++
			continue
		}
		out = append(out, inst)
	}
	return out
}

func isRedundantStorePair(load, store arm.Instruction) bool {
	ld, ok := load.(arm.LoadStore)
	if !ok || ld.Op != arm.OpLdr {
		return false
	}
	st, ok := store.(arm.LoadStore)
	if !ok || st.Op != arm.OpStr {
		return false
	}
	return ld.Rd == st.Rd && ld.Mem == st.Mem
}
