package passes

import (
	"github.com/raymyers/armbe/pkg/mir"
	"github.com/raymyers/armbe/pkg/pass"
)

// MemoryVarPropagation forwards a stored value directly to a later Load
// of the same pointer, within a single block and with no intervening Store to a different pointer var or Call that
// could have aliased the pointer's target in between. Two distinct VarIds
// can still address the same memory (e.g. two PtrOffsets into one array),
// so any store conservatively invalidates every other pointer's forwarded
// value, not just the ones provably equal. It only rewrites the Load to an
// Assign;
// it deliberately leaves the original Store in place and IsMemoryVar
// untouched; RemoveDeadCode is the pass responsible for deleting a Store
// that CommonExprDel/DCE later prove has no remaining reader.
type MemoryVarPropagation struct{}

func (MemoryVarPropagation) Name() string { return "MemoryVarPropagation" }

func (MemoryVarPropagation) OptimizeMir(pkg *mir.MirPackage, extras *pass.Extras) (*mir.MirPackage, error) {
	for _, fn := range pkg.Functions {
		if fn.Type.IsExtern {
			continue
		}
		for _, blk := range fn.Blocks {
			blk.Insts = forwardStores(blk.Insts)
		}
	}
	return pkg, nil
}

func forwardStores(insts []mir.Instruction) []mir.Instruction {
	stored := make(map[mir.VarId]mir.Value) // pointer var -> last stored value
	out := make([]mir.Instruction, 0, len(insts))

	for _, inst := range insts {
		switch i := inst.(type) {
		case mir.Store:
			// This store may alias any other pointer var's target, so only
			// its own forwarded value survives; every other entry is
			// invalidated rather than assumed distinct.
			for k := range stored {
				if k != i.DestId {
					delete(stored, k)
				}
			}
			stored[i.DestId] = i.Val
			out = append(out, inst)
		case mir.Load:
			if v, ok := stored[i.Src]; ok {
				out = append(out, mir.Assign{DestId: i.DestId, Value: v})
				continue
			}
			out = append(out, inst)
		case mir.Call:
			stored = make(map[mir.VarId]mir.Value) // a call may alias any pointer
			out = append(out, inst)
		default:
			out = append(out, inst)
		}
	}
	return out
}
