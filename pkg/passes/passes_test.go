package passes

import (
	"testing"

	"github.com/raymyers/armbe/pkg/mir"
	"github.com/raymyers/armbe/pkg/pass"
)

func newTestFn(name string) *mir.MirFunction {
	return mir.NewMirFunction(name, mir.FuncType{ReturnType: 4})
}

func TestRemoveDeadCodeDropsUnusedAssignButKeepsCalls(t *testing.T) {
	fn := newTestFn("f")
	fn.Vars[1] = mir.VarDesc{Size: 4}
	fn.Vars[2] = mir.VarDesc{Size: 4}
	fn.Vars[3] = mir.VarDesc{Size: 4}
	blk := mir.NewBasicBlk(0)
	blk.Insts = []mir.Instruction{
		mir.Assign{DestId: 1, Value: mir.Imm{N: 1}}, // dead: never read
		mir.Call{DestId: 2, Void: false, FnId: "g"}, // result unused but kept (side effects)
	}
	blk.Term = mir.Return{Value: mir.Imm{N: 0}, HasValue: true}
	fn.Blocks[0] = blk
	fn.Entry = 0

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := RemoveDeadCode{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	insts := out.Functions["f"].Blocks[0].Insts
	if len(insts) != 1 {
		t.Fatalf("expected the dead assign to be removed, got %#v", insts)
	}
	if _, ok := insts[0].(mir.Call); !ok {
		t.Fatalf("expected the call to survive, got %#v", insts[0])
	}
}

func TestRemoveDeadCodeDropsUnreachableBlock(t *testing.T) {
	fn := newTestFn("f")
	fn.Entry = 0
	b0 := mir.NewBasicBlk(0)
	b0.Term = mir.Return{}
	fn.Blocks[0] = b0
	b1 := mir.NewBasicBlk(1) // never targeted by anything
	b1.Term = mir.Return{}
	fn.Blocks[1] = b1

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := RemoveDeadCode{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	if _, ok := out.Functions["f"].Blocks[1]; ok {
		t.Fatalf("expected unreachable block 1 to be deleted")
	}
}

func TestMergeBlockFoldsUniqueSuccessor(t *testing.T) {
	fn := newTestFn("f")
	fn.Vars[1] = mir.VarDesc{Size: 4}
	fn.Entry = 0
	b0 := mir.NewBasicBlk(0)
	b0.Term = mir.Br{Target: 1}
	fn.Blocks[0] = b0
	b1 := mir.NewBasicBlk(1)
	b1.AddPred(0)
	b1.Insts = []mir.Instruction{mir.Assign{DestId: 1, Value: mir.Imm{N: 5}}}
	b1.Term = mir.Return{Value: mir.Var{Id: 1}, HasValue: true}
	fn.Blocks[1] = b1

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := MergeBlock{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	gotFn := out.Functions["f"]
	if len(gotFn.Blocks) != 1 {
		t.Fatalf("expected blocks to merge into one, got %d", len(gotFn.Blocks))
	}
	merged := gotFn.Blocks[0]
	if len(merged.Insts) != 1 {
		t.Fatalf("expected merged block to carry block 1's instruction, got %#v", merged.Insts)
	}
	if _, ok := merged.Term.(mir.Return); !ok {
		t.Fatalf("expected merged block to carry block 1's terminator, got %#v", merged.Term)
	}
}

func TestMergeBlockNeverMergesAwayEntry(t *testing.T) {
	// Block 1 unconditionally branches to entry block 0, and 0's only
	// predecessor is 1: without the entry guard, mergeOnce would fold
	// entry into its predecessor and delete fn.Blocks[fn.Entry].
	fn := newTestFn("f")
	fn.Entry = 0
	b0 := mir.NewBasicBlk(0)
	b0.AddPred(1)
	b0.Term = mir.Return{}
	fn.Blocks[0] = b0
	b1 := mir.NewBasicBlk(1)
	b1.Term = mir.Br{Target: 0}
	fn.Blocks[1] = b1

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := MergeBlock{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	if _, ok := out.Functions["f"].Blocks[0]; !ok {
		t.Fatalf("expected entry block 0 to survive merging")
	}
}

func TestCommonExprDelReplacesRepeatedExpr(t *testing.T) {
	fn := newTestFn("f")
	fn.Vars[1] = mir.VarDesc{Size: 4}
	fn.Vars[2] = mir.VarDesc{Size: 4}
	fn.Vars[3] = mir.VarDesc{Size: 4}
	fn.Vars[4] = mir.VarDesc{Size: 4}
	fn.Entry = 0
	blk := mir.NewBasicBlk(0)
	blk.Insts = []mir.Instruction{
		mir.Op{DestId: 3, Kind: mir.Add, Lhs: mir.Var{Id: 1}, Rhs: mir.Var{Id: 2}},
		mir.Op{DestId: 4, Kind: mir.Add, Lhs: mir.Var{Id: 2}, Rhs: mir.Var{Id: 1}}, // commuted dup
	}
	blk.Term = mir.Return{Value: mir.Var{Id: 4}, HasValue: true}
	fn.Blocks[0] = blk

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := CommonExprDel{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	insts := out.Functions["f"].Blocks[0].Insts
	assign, ok := insts[1].(mir.Assign)
	if !ok {
		t.Fatalf("expected second op to become an assign, got %#v", insts[1])
	}
	if id, ok := mir.AsVar(assign.Value); !ok || id != 3 {
		t.Fatalf("expected assign to reuse x3, got %#v", assign.Value)
	}
}

func TestCommonExprDelInvalidatesOnRedefinition(t *testing.T) {
	fn := newTestFn("f")
	fn.Vars[1] = mir.VarDesc{Size: 4}
	fn.Vars[2] = mir.VarDesc{Size: 4}
	fn.Vars[3] = mir.VarDesc{Size: 4}
	fn.Vars[4] = mir.VarDesc{Size: 4}
	fn.Entry = 0
	blk := mir.NewBasicBlk(0)
	blk.Insts = []mir.Instruction{
		mir.Op{DestId: 3, Kind: mir.Add, Lhs: mir.Var{Id: 1}, Rhs: mir.Var{Id: 2}},
		mir.Assign{DestId: 1, Value: mir.Imm{N: 9}}, // redefines x1: invalidates the cached expr
		mir.Op{DestId: 4, Kind: mir.Add, Lhs: mir.Var{Id: 1}, Rhs: mir.Var{Id: 2}},
	}
	blk.Term = mir.Return{Value: mir.Var{Id: 4}, HasValue: true}
	fn.Blocks[0] = blk

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := CommonExprDel{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	insts := out.Functions["f"].Blocks[0].Insts
	if _, ok := insts[2].(mir.Op); !ok {
		t.Fatalf("expected the third instruction to stay an Op after x1's redefinition, got %#v", insts[2])
	}
}

func TestMathOptimizationFoldsConstants(t *testing.T) {
	fn := newTestFn("f")
	fn.Vars[1] = mir.VarDesc{Size: 4}
	fn.Entry = 0
	blk := mir.NewBasicBlk(0)
	blk.Insts = []mir.Instruction{
		mir.Op{DestId: 1, Kind: mir.Mul, Lhs: mir.Imm{N: 6}, Rhs: mir.Imm{N: 7}},
	}
	blk.Term = mir.Return{Value: mir.Var{Id: 1}, HasValue: true}
	fn.Blocks[0] = blk

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := MathOptimization{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	assign, ok := out.Functions["f"].Blocks[0].Insts[0].(mir.Assign)
	if !ok {
		t.Fatalf("expected folded op to become an assign, got %#v", out.Functions["f"].Blocks[0].Insts[0])
	}
	if n, ok := mir.AsImm(assign.Value); !ok || n != 42 {
		t.Fatalf("expected 6*7 to fold to 42, got %#v", assign.Value)
	}
}

func TestMathOptimizationSimplifiesIdentities(t *testing.T) {
	cases := []struct {
		name string
		op   mir.Op
	}{
		{"add zero", mir.Op{DestId: 1, Kind: mir.Add, Lhs: mir.Var{Id: 2}, Rhs: mir.Imm{N: 0}}},
		{"mul one", mir.Op{DestId: 1, Kind: mir.Mul, Lhs: mir.Var{Id: 2}, Rhs: mir.Imm{N: 1}}},
		{"mul zero", mir.Op{DestId: 1, Kind: mir.Mul, Lhs: mir.Var{Id: 2}, Rhs: mir.Imm{N: 0}}},
		{"sub zero", mir.Op{DestId: 1, Kind: mir.Sub, Lhs: mir.Var{Id: 2}, Rhs: mir.Imm{N: 0}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := simplifyOp(c.op)
			if _, ok := got.(mir.Assign); !ok {
				t.Fatalf("expected %s to simplify to an assign, got %#v", c.name, got)
			}
		})
	}
}

func TestMemoryVarPropagationForwardsStoreToLoad(t *testing.T) {
	fn := newTestFn("f")
	fn.Vars[1] = mir.VarDesc{Size: 4, IsMemoryVar: true}
	fn.Vars[2] = mir.VarDesc{Size: 4}
	fn.Vars[3] = mir.VarDesc{Size: 4}
	fn.Entry = 0
	blk := mir.NewBasicBlk(0)
	blk.Insts = []mir.Instruction{
		mir.Store{DestId: 1, Val: mir.Var{Id: 2}},
		mir.Load{DestId: 3, Src: 1},
	}
	blk.Term = mir.Return{Value: mir.Var{Id: 3}, HasValue: true}
	fn.Blocks[0] = blk

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := MemoryVarPropagation{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	insts := out.Functions["f"].Blocks[0].Insts
	assign, ok := insts[1].(mir.Assign)
	if !ok {
		t.Fatalf("expected the load to be forwarded into an assign, got %#v", insts[1])
	}
	if id, ok := mir.AsVar(assign.Value); !ok || id != 2 {
		t.Fatalf("expected forwarded value x2, got %#v", assign.Value)
	}
}

func TestMemoryVarPropagationStopsAtCall(t *testing.T) {
	fn := newTestFn("f")
	fn.Vars[1] = mir.VarDesc{Size: 4, IsMemoryVar: true}
	fn.Vars[2] = mir.VarDesc{Size: 4}
	fn.Vars[3] = mir.VarDesc{Size: 4}
	fn.Entry = 0
	blk := mir.NewBasicBlk(0)
	blk.Insts = []mir.Instruction{
		mir.Store{DestId: 1, Val: mir.Var{Id: 2}},
		mir.Call{Void: true, FnId: "mutate"},
		mir.Load{DestId: 3, Src: 1},
	}
	blk.Term = mir.Return{Value: mir.Var{Id: 3}, HasValue: true}
	fn.Blocks[0] = blk

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := MemoryVarPropagation{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	insts := out.Functions["f"].Blocks[0].Insts
	if _, ok := insts[2].(mir.Load); !ok {
		t.Fatalf("expected the load after a call to remain a load, got %#v", insts[2])
	}
}

// Two distinct pointer VarIds (e.g. two PtrOffsets into the same array)
// can still alias the same memory, so a store through one must not leave
// the other's previously forwarded value live for a later load to reuse.
func TestMemoryVarPropagationInvalidatesOnAliasingStore(t *testing.T) {
	fn := newTestFn("f")
	fn.Vars[1] = mir.VarDesc{Size: 4, IsMemoryVar: true}
	fn.Vars[2] = mir.VarDesc{Size: 4, IsMemoryVar: true}
	fn.Vars[3] = mir.VarDesc{Size: 4}
	fn.Vars[4] = mir.VarDesc{Size: 4}
	fn.Vars[5] = mir.VarDesc{Size: 4}
	fn.Entry = 0
	blk := mir.NewBasicBlk(0)
	blk.Insts = []mir.Instruction{
		mir.Store{DestId: 1, Val: mir.Var{Id: 3}},
		mir.Store{DestId: 2, Val: mir.Var{Id: 4}},
		mir.Load{DestId: 5, Src: 1},
	}
	blk.Term = mir.Return{Value: mir.Var{Id: 5}, HasValue: true}
	fn.Blocks[0] = blk

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := MemoryVarPropagation{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	insts := out.Functions["f"].Blocks[0].Insts
	if _, ok := insts[2].(mir.Load); !ok {
		t.Fatalf("expected the load after an aliasing store to remain a load, got %#v", insts[2])
	}
}

func TestInlineFuncSplicesSmallCallee(t *testing.T) {
	callee := newTestFn("square")
	callee.Vars[1] = mir.VarDesc{Size: 4}
	callee.Vars[2] = mir.VarDesc{Size: 4}
	callee.Params = []mir.VarId{1}
	callee.Entry = 0
	cb := mir.NewBasicBlk(0)
	cb.Insts = []mir.Instruction{mir.Op{DestId: 2, Kind: mir.Mul, Lhs: mir.Var{Id: 1}, Rhs: mir.Var{Id: 1}}}
	cb.Term = mir.Return{Value: mir.Var{Id: 2}, HasValue: true}
	callee.Blocks[0] = cb

	caller := newTestFn("f")
	caller.Vars[1] = mir.VarDesc{Size: 4}
	caller.Vars[2] = mir.VarDesc{Size: 4}
	caller.Entry = 0
	blk := mir.NewBasicBlk(0)
	blk.Insts = []mir.Instruction{
		mir.Call{DestId: 2, FnId: "square", Params: []mir.Value{mir.Imm{N: 9}}},
	}
	blk.Term = mir.Return{Value: mir.Var{Id: 2}, HasValue: true}
	caller.Blocks[0] = blk

	pkg := mir.NewMirPackage()
	pkg.Functions["square"] = callee
	pkg.Functions["f"] = caller

	out, err := InlineFunc{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	insts := out.Functions["f"].Blocks[0].Insts
	for _, inst := range insts {
		if _, ok := inst.(mir.Call); ok {
			t.Fatalf("expected the call to square to be inlined away, got %#v", insts)
		}
	}
	if len(insts) != 3 {
		t.Fatalf("expected a param-bind assign, the inlined mul, and a result assign, got %#v", insts)
	}
}

func TestInlineFuncSkipsDirectRecursion(t *testing.T) {
	fn := newTestFn("f")
	fn.Vars[1] = mir.VarDesc{Size: 4}
	fn.Entry = 0
	blk := mir.NewBasicBlk(0)
	blk.Insts = []mir.Instruction{mir.Call{DestId: 1, FnId: "f"}}
	blk.Term = mir.Return{Value: mir.Var{Id: 1}, HasValue: true}
	fn.Blocks[0] = blk

	pkg := mir.NewMirPackage()
	pkg.Functions["f"] = fn

	out, err := InlineFunc{}.OptimizeMir(pkg, pass.NewExtras())
	if err != nil {
		t.Fatalf("OptimizeMir: %v", err)
	}
	insts := out.Functions["f"].Blocks[0].Insts
	if _, ok := insts[0].(mir.Call); !ok {
		t.Fatalf("expected a directly-recursive call to survive uninlined, got %#v", insts)
	}
}

func TestMirPipelineOrdersPeepholesBeforeRearrangeAndColoring(t *testing.T) {
	names := make([]string, 0)
	for _, p := range MirPipeline() {
		names = append(names, p.Name())
	}
	want := []string{"BasicBlkRearrange", "GraphColor"}
	for _, w := range want {
		found := false
		for _, n := range names {
			if n == w {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected MirPipeline to include %s, got %v", w, names)
		}
	}
	if names[len(names)-1] != "GraphColor" {
		t.Fatalf("expected GraphColor to run last, got order %v", names)
	}
}

func TestArmPipelineSchedulesLast(t *testing.T) {
	p := ArmPipeline()
	if p[len(p)-1].Name() != "InstructionSchedule" {
		t.Fatalf("expected InstructionSchedule to run last, got %s", p[len(p)-1].Name())
	}
}
