package passes

import (
	"github.com/raymyers/armbe/pkg/mir"
	"github.com/raymyers/armbe/pkg/pass"
)

// InlineFunc inlines calls to small (at most inlineMaxInsts instructions),
// single-block, non-variadic functions that do not call themselves
// directly: with a single block there is no second block to retarget.
// Calls inside the callee's body are allowed and are copied as calls;
// only direct self-recursion is rejected, and no call graph is built, so
// mutual recursion is not detected.
type InlineFunc struct{}

func (InlineFunc) Name() string { return "InlineFunc" }

const inlineMaxInsts = 8

func (InlineFunc) OptimizeMir(pkg *mir.MirPackage, extras *pass.Extras) (*mir.MirPackage, error) {
	for _, fn := range pkg.Functions {
		if fn.Type.IsExtern {
			continue
		}
		for _, blk := range fn.Blocks {
			blk.Insts = inlineBlock(pkg, fn, blk.Insts)
		}
	}
	return pkg, nil
}

func inlineBlock(pkg *mir.MirPackage, caller *mir.MirFunction, insts []mir.Instruction) []mir.Instruction {
	var out []mir.Instruction
	for _, inst := range insts {
		call, ok := inst.(mir.Call)
		if !ok {
			out = append(out, inst)
			continue
		}
		callee, ok := pkg.Functions[call.FnId]
		if !ok || !inlinable(callee, call.FnId) {
			out = append(out, inst)
			continue
		}
		out = append(out, inlineCall(caller, callee, call)...)
	}
	return out
}

func inlinable(fn *mir.MirFunction, selfName string) bool {
	if fn.Type.IsExtern || fn.Type.Variadic || len(fn.Blocks) != 1 {
		return false
	}
	blk := fn.Blocks[fn.Entry]
	if blk == nil || len(blk.Insts) > inlineMaxInsts {
		return false
	}
	if _, ok := blk.Term.(mir.Return); !ok {
		return false
	}
	for _, inst := range blk.Insts {
		if c, ok := inst.(mir.Call); ok {
			if c.FnId == selfName {
				return false // directly recursive
			}
		}
	}
	return true
}

// inlineCall splices callee's single block into the caller at a call
// site, renaming every callee variable to a fresh id in the caller's
// namespace and binding parameters via Assign.
func inlineCall(caller *mir.MirFunction, callee *mir.MirFunction, call mir.Call) []mir.Instruction {
	rename := make(map[mir.VarId]mir.VarId)
	fresh := func(id mir.VarId) mir.VarId {
		if r, ok := rename[id]; ok {
			return r
		}
		nextId := nextFreeVar(caller)
		rename[id] = nextId
		caller.Vars[nextId] = callee.Vars[id] // always claim the id, even for an undeclared var
		return nextId
	}
	renameValue := func(v mir.Value) mir.Value {
		if id, ok := mir.AsVar(v); ok {
			return mir.Var{Id: fresh(id)}
		}
		return v
	}

	var out []mir.Instruction
	for i, p := range callee.Params {
		if i < len(call.Params) {
			out = append(out, mir.Assign{DestId: fresh(p), Value: call.Params[i]})
		}
	}

	blk := callee.Blocks[callee.Entry]
	for _, inst := range blk.Insts {
		out = append(out, renameInstruction(inst, fresh, renameValue))
	}

	if ret, ok := blk.Term.(mir.Return); ok && ret.HasValue && !call.Void {
		out = append(out, mir.Assign{DestId: call.DestId, Value: renameValue(ret.Value)})
	}
	return out
}

func renameInstruction(inst mir.Instruction, fresh func(mir.VarId) mir.VarId, renameValue func(mir.Value) mir.Value) mir.Instruction {
	switch i := inst.(type) {
	case mir.Assign:
		return mir.Assign{DestId: fresh(i.DestId), Value: renameValue(i.Value)}
	case mir.Op:
		return mir.Op{DestId: fresh(i.DestId), Kind: i.Kind, Lhs: renameValue(i.Lhs), Rhs: renameValue(i.Rhs)}
	case mir.Call:
		params := make([]mir.Value, len(i.Params))
		for j, p := range i.Params {
			params[j] = renameValue(p)
		}
		return mir.Call{DestId: fresh(i.DestId), Void: i.Void, FnId: i.FnId, Params: params}
	case mir.Load:
		return mir.Load{DestId: fresh(i.DestId), Src: fresh(i.Src)}
	case mir.Store:
		return mir.Store{DestId: fresh(i.DestId), Val: renameValue(i.Val)}
	case mir.Ref:
		if i.IsGlob {
			return mir.Ref{DestId: fresh(i.DestId), Global: i.Global, IsGlob: true}
		}
		return mir.Ref{DestId: fresh(i.DestId), Local: fresh(i.Local)}
	case mir.PtrOffset:
		return mir.PtrOffset{DestId: fresh(i.DestId), Ptr: fresh(i.Ptr), Offset: renameValue(i.Offset)}
	case mir.Phi:
		vars := make([]mir.VarId, len(i.Vars))
		for j, v := range i.Vars {
			vars[j] = fresh(v)
		}
		return mir.Phi{DestId: fresh(i.DestId), Vars: vars}
	default:
		return inst
	}
}

func nextFreeVar(fn *mir.MirFunction) mir.VarId {
	max := mir.VarId(0)
	for id := range fn.Vars {
		if id > max {
			max = id
		}
	}
	return max + 1
}
