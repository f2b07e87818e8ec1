package passes

import (
	"github.com/raymyers/armbe/pkg/mir"
	"github.com/raymyers/armbe/pkg/pass"
)

// CommonExprDel is a local common-subexpression elimination pass: within
// a single block, a second Op computing the same operator over the same
// operands (commutative operators checked in either order) as an earlier
// Op whose operands have not been redefined since is rewritten to an
// Assign of the earlier Op's destination.
type CommonExprDel struct{}

func (CommonExprDel) Name() string { return "CommonExprDel" }

func (CommonExprDel) OptimizeMir(pkg *mir.MirPackage, extras *pass.Extras) (*mir.MirPackage, error) {
	for _, fn := range pkg.Functions {
		if fn.Type.IsExtern {
			continue
		}
		for _, blk := range fn.Blocks {
			blk.Insts = dedupBlock(blk.Insts)
		}
	}
	return pkg, nil
}

type exprKey struct {
	kind mir.BinOp
	lhs  mir.Value
	rhs  mir.Value
}

func dedupBlock(insts []mir.Instruction) []mir.Instruction {
	available := make(map[exprKey]mir.VarId)
	out := make([]mir.Instruction, 0, len(insts))

	invalidate := func(id mir.VarId) {
		for k, v := range available {
			if v == id || valueRefsVar(k.lhs, id) || valueRefsVar(k.rhs, id) {
				delete(available, k)
			}
		}
	}

	for _, inst := range insts {
		if op, ok := inst.(mir.Op); ok {
			if existing, found := lookupExpr(available, op); found {
				out = append(out, mir.Assign{DestId: op.DestId, Value: mir.Var{Id: existing}})
				invalidate(op.DestId)
				continue
			}
			invalidate(op.DestId)
			if !valueRefsVar(op.Lhs, op.DestId) && !valueRefsVar(op.Rhs, op.DestId) {
				available[exprKey{kind: op.Kind, lhs: op.Lhs, rhs: op.Rhs}] = op.DestId
			}
			out = append(out, inst)
			continue
		}
		if d, ok := inst.Dest(); ok {
			invalidate(d)
		}
		out = append(out, inst)
	}
	return out
}

func lookupExpr(available map[exprKey]mir.VarId, op mir.Op) (mir.VarId, bool) {
	if v, ok := available[exprKey{kind: op.Kind, lhs: op.Lhs, rhs: op.Rhs}]; ok {
		return v, true
	}
	if op.Kind.Commutative() {
		if v, ok := available[exprKey{kind: op.Kind, lhs: op.Rhs, rhs: op.Lhs}]; ok {
			return v, true
		}
	}
	return 0, false
}

func valueRefsVar(v mir.Value, id mir.VarId) bool {
	vid, ok := mir.AsVar(v)
	return ok && vid == id
}
