package passes

import (
	"github.com/raymyers/armbe/pkg/mir"
	"github.com/raymyers/armbe/pkg/pass"
)

// MathOptimization folds constant arithmetic at compile time and
// rewrites a handful of algebraic identities (x+0, x*1, x*0, x-0)
// into a plain Assign, so later passes (and codegen) never see the
// no-op arithmetic.
type MathOptimization struct{}

func (MathOptimization) Name() string { return "MathOptimization" }

func (MathOptimization) OptimizeMir(pkg *mir.MirPackage, extras *pass.Extras) (*mir.MirPackage, error) {
	for _, fn := range pkg.Functions {
		if fn.Type.IsExtern {
			continue
		}
		for _, blk := range fn.Blocks {
			for i, inst := range blk.Insts {
				if op, ok := inst.(mir.Op); ok {
					blk.Insts[i] = simplifyOp(op)
				}
			}
		}
	}
	return pkg, nil
}

func simplifyOp(op mir.Op) mir.Instruction {
	lhsImm, lhsIsImm := mir.AsImm(op.Lhs)
	rhsImm, rhsIsImm := mir.AsImm(op.Rhs)

	if lhsIsImm && rhsIsImm {
		if n, ok := foldConst(op.Kind, lhsImm, rhsImm); ok {
			return mir.Assign{DestId: op.DestId, Value: mir.Imm{N: n}}
		}
	}

	switch op.Kind {
	case mir.Add:
		if rhsIsImm && rhsImm == 0 {
			return mir.Assign{DestId: op.DestId, Value: op.Lhs}
		}
		if lhsIsImm && lhsImm == 0 {
			return mir.Assign{DestId: op.DestId, Value: op.Rhs}
		}
	case mir.Sub:
		if rhsIsImm && rhsImm == 0 {
			return mir.Assign{DestId: op.DestId, Value: op.Lhs}
		}
	case mir.Mul:
		if rhsIsImm && rhsImm == 1 {
			return mir.Assign{DestId: op.DestId, Value: op.Lhs}
		}
		if lhsIsImm && lhsImm == 1 {
			return mir.Assign{DestId: op.DestId, Value: op.Rhs}
		}
		if (rhsIsImm && rhsImm == 0) || (lhsIsImm && lhsImm == 0) {
			return mir.Assign{DestId: op.DestId, Value: mir.Imm{N: 0}}
		}
	}
	return op
}

func foldConst(kind mir.BinOp, a, b int32) (int32, bool) {
	switch kind {
	case mir.Add:
		return a + b, true
	case mir.Sub:
		return a - b, true
	case mir.Mul:
		return a * b, true
	case mir.Div:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case mir.Rem:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case mir.And:
		return boolToImm(a != 0 && b != 0), true
	case mir.Or:
		return boolToImm(a != 0 || b != 0), true
	case mir.Gt:
		return boolToImm(a > b), true
	case mir.Lt:
		return boolToImm(a < b), true
	case mir.Gte:
		return boolToImm(a >= b), true
	case mir.Lte:
		return boolToImm(a <= b), true
	case mir.Eq:
		return boolToImm(a == b), true
	case mir.Neq:
		return boolToImm(a != b), true
	default:
		return 0, false
	}
}

func boolToImm(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
