// Package pass defines the pass-management protocol shared by the MIR
// optimization pipeline and the ARM post-codegen pipeline: a pass is a
// named value that transforms an IR and a shared extras context, and a
// Driver runs an ordered list of passes under a run/skip gate.
package pass

import (
	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/mir"
)

// Extras is the strongly-typed context object threaded through every pass.
// It replaces a string-keyed map of opaque payloads: every well-known
// cross-pass datum gets a named, typed field instead of a string key.
// String pass names (each pass's Name()) are used only at the CLI boundary
// for -r/-s selection (see pkg/pass.Driver).
type Extras struct {
	// BlockOrdering maps function name to the block emission order chosen
	// by the block rearranger.
	BlockOrdering map[string][]mir.BlockId
	// CycleStarts maps function name to the set of loop-header block ids.
	CycleStarts map[string]map[mir.BlockId]bool
	// VarToVreg maps function name to the MIR VarId -> ARM Register
	// mapping codegen produced.
	VarToVreg map[string]map[mir.VarId]arm.Register
	// GraphColor maps function name to the MIR VarId -> color id (or -1
	// for spill) decided by the GraphColor pass.
	GraphColor map[string]map[mir.VarId]int
}

// NewExtras creates an Extras value with every map initialized.
func NewExtras() *Extras {
	return &Extras{
		BlockOrdering: make(map[string][]mir.BlockId),
		CycleStarts:   make(map[string]map[mir.BlockId]bool),
		VarToVreg:     make(map[string]map[mir.VarId]arm.Register),
		GraphColor:    make(map[string]map[mir.VarId]int),
	}
}

// MirPass transforms a MIR package under the shared extras context. A pass
// may mutate pkg in place and return it, or build a new package; the
// driver only requires that it return a package to carry forward.
type MirPass interface {
	Name() string
	OptimizeMir(pkg *mir.MirPackage, extras *Extras) (*mir.MirPackage, error)
}

// ArmPass transforms lowered ARM code under the shared extras context.
type ArmPass interface {
	Name() string
	OptimizeArm(code *arm.Code, extras *Extras) (*arm.Code, error)
}
