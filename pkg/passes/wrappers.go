package passes

import (
	"github.com/raymyers/armbe/pkg/mir"
	"github.com/raymyers/armbe/pkg/pass"
	"github.com/raymyers/armbe/pkg/rearrange"
	"github.com/raymyers/armbe/pkg/regalloc"
	"github.com/raymyers/armbe/pkg/schedule"
)

// BasicBlkRearrange is the pass.MirPass wrapper around pkg/rearrange's
// block-ordering algorithm, publishing its result into
// extras.BlockOrdering/extras.CycleStarts for codegen and the scheduler
// to consume.
type BasicBlkRearrange struct{}

func (BasicBlkRearrange) Name() string { return "BasicBlkRearrange" }

func (BasicBlkRearrange) OptimizeMir(pkg *mir.MirPackage, extras *pass.Extras) (*mir.MirPackage, error) {
	for name, fn := range pkg.Functions {
		if fn.Type.IsExtern {
			continue
		}
		result := rearrange.Rearrange(fn)
		extras.BlockOrdering[name] = result.Order
		extras.CycleStarts[name] = result.LoopHeaders
	}
	return pkg, nil
}

// RegAllocatePass re-exports pkg/regalloc's ARM-level allocator under
// this package so callers assembling the ARM pass list (cmd/armbe) can
// import one package for the whole roster. It is a plain alias, not a
// wrapper, since pkg/regalloc.RegAllocatePass already satisfies
// pass.ArmPass directly.
type RegAllocatePass = regalloc.RegAllocatePass

// ExcessRegDelete aliases pkg/regalloc's post-allocation cleanup pass.
type ExcessRegDelete = regalloc.ExcessRegDelete

// GraphColor aliases pkg/regalloc's MIR-level coloring hint pass.
type GraphColor = regalloc.GraphColor

// InstructionSchedule aliases pkg/schedule's list scheduler.
type InstructionSchedule = schedule.InstructionSchedule

// MirPipeline returns the full ordered MIR pass list, in the order
// SPEC_FULL.md's driver diagram runs them: peephole/DCE passes first (so
// the block rearranger and GraphColor see already-simplified code), then
// BasicBlkRearrange, then GraphColor last (since it wants final
// liveness).
func MirPipeline() []pass.MirPass {
	return []pass.MirPass{
		MathOptimization{},
		CommonExprDel{},
		MemoryVarPropagation{},
		InlineFunc{},
		MergeBlock{},
		RemoveDeadCode{},
		BasicBlkRearrange{},
		GraphColor{},
	}
}

// ArmPipeline returns the full ordered ARM pass list: allocate, clean up
// the allocator's spill bracketing, then schedule last.
func ArmPipeline() []pass.ArmPass {
	return []pass.ArmPass{
		RegAllocatePass{},
		ExcessRegDelete{},
		InstructionSchedule{},
	}
}
