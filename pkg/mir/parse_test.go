package mir

import (
	"bytes"
	"strings"
	"testing"
)

// identity(x) { return x; }
func buildIdentityFn() *MirFunction {
	fn := NewMirFunction("identity", FuncType{ParamTypes: []int{4}, ReturnType: 4})
	fn.Vars[1] = VarDesc{Size: 4}
	fn.Params = []VarId{1}
	fn.Entry = 0
	blk := NewBasicBlk(0)
	blk.Term = Return{Value: Var{Id: 1}, HasValue: true}
	fn.Blocks[0] = blk
	return fn
}

// sum(a, b) { c = a + b; return c; }, with one memory-var local thrown in
// to exercise the "mem" variable-declaration tag.
func buildSumFn() *MirFunction {
	fn := NewMirFunction("sum", FuncType{ParamTypes: []int{4, 4}, ReturnType: 4})
	fn.Vars[1] = VarDesc{Size: 4}
	fn.Vars[2] = VarDesc{Size: 4}
	fn.Vars[3] = VarDesc{Size: 4}
	fn.Vars[4] = VarDesc{Size: 4, IsMemoryVar: true}
	fn.Params = []VarId{1, 2}
	fn.Entry = 0
	blk := NewBasicBlk(0)
	blk.Insts = []Instruction{
		Op{DestId: 3, Kind: Add, Lhs: Var{Id: 1}, Rhs: Var{Id: 2}},
		Store{DestId: 4, Val: Var{Id: 3}},
		Load{DestId: 3, Src: 4},
	}
	blk.Term = Return{Value: Var{Id: 3}, HasValue: true}
	fn.Blocks[0] = blk
	return fn
}

func buildExternFn() *MirFunction {
	fn := NewMirFunction("putint", FuncType{ParamTypes: []int{4}, IsExtern: true})
	fn.Vars[1] = VarDesc{Size: 4}
	fn.Params = []VarId{1}
	return fn
}

func roundTrip(t *testing.T, pkg *MirPackage) *MirPackage {
	t.Helper()
	var buf bytes.Buffer
	NewPrinter(&buf).PrintPackage(pkg)

	got, err := Parse(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("Parse: %v\ninput:\n%s", err, buf.String())
	}
	return got
}

func TestParseRoundTripsFunctionBody(t *testing.T) {
	pkg := NewMirPackage()
	pkg.Functions["sum"] = buildSumFn()
	got := roundTrip(t, pkg)

	fn, ok := got.Functions["sum"]
	if !ok {
		t.Fatalf("missing function sum")
	}
	if fn.Type.ReturnType != 4 || len(fn.Type.ParamTypes) != 2 {
		t.Fatalf("bad signature: %+v", fn.Type)
	}
	if len(fn.Params) != 2 || fn.Params[0] != 1 || fn.Params[1] != 2 {
		t.Fatalf("bad params: %v", fn.Params)
	}
	if !fn.Vars[4].IsMemoryVar {
		t.Fatalf("expected x4 to round-trip as a memory var")
	}

	blk, ok := fn.Blocks[0]
	if !ok || len(blk.Insts) != 3 {
		t.Fatalf("expected one block with 3 instructions, got %+v", fn.Blocks)
	}
	op, ok := blk.Insts[0].(Op)
	if !ok || op.Kind != Add || op.DestId != 3 {
		t.Fatalf("expected x3 = add x1, x2, got %#v", blk.Insts[0])
	}
	ret, ok := blk.Term.(Return)
	if !ok || !ret.HasValue {
		t.Fatalf("expected return with value, got %#v", blk.Term)
	}
	if id, ok := AsVar(ret.Value); !ok || id != 3 {
		t.Fatalf("expected return x3, got %#v", ret.Value)
	}
}

func TestParseRoundTripsExternFunction(t *testing.T) {
	pkg := NewMirPackage()
	pkg.Functions["putint"] = buildExternFn()
	got := roundTrip(t, pkg)

	fn, ok := got.Functions["putint"]
	if !ok {
		t.Fatalf("missing function putint")
	}
	if !fn.Type.IsExtern {
		t.Fatalf("expected putint to round-trip as extern")
	}
	if len(fn.Blocks) != 0 {
		t.Fatalf("expected an extern function to have no blocks, got %d", len(fn.Blocks))
	}
}

func TestParseRoundTripsGlobalsAndBranches(t *testing.T) {
	pkg := NewMirPackage()
	pkg.Globals["g"] = GlobalDef{Size: 4}

	fn := NewMirFunction("branchy", FuncType{ParamTypes: []int{4}, ReturnType: 4})
	fn.Vars[1] = VarDesc{Size: 4}
	fn.Vars[2] = VarDesc{Size: 4}
	fn.Params = []VarId{1}
	fn.Entry = 0

	b0 := NewBasicBlk(0)
	b0.Insts = []Instruction{Op{DestId: 2, Kind: Gt, Lhs: Var{Id: 1}, Rhs: Imm{N: 0}}}
	b0.Term = BrCond{Cond: 2, TrueTarget: 1, FalseTarget: 2}
	fn.Blocks[0] = b0

	b1 := NewBasicBlk(1)
	b1.AddPred(0)
	b1.Term = Return{Value: Imm{N: 1}, HasValue: true}
	fn.Blocks[1] = b1

	b2 := NewBasicBlk(2)
	b2.AddPred(0)
	b2.Term = Return{Value: Imm{N: 0}, HasValue: true}
	fn.Blocks[2] = b2

	pkg.Functions["branchy"] = fn
	got := roundTrip(t, pkg)

	if _, ok := got.Globals["g"]; !ok {
		t.Fatalf("expected global g to round-trip")
	}
	gotFn := got.Functions["branchy"]
	if len(gotFn.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(gotFn.Blocks))
	}
	cond, ok := gotFn.Blocks[0].Term.(BrCond)
	if !ok || cond.TrueTarget != 1 || cond.FalseTarget != 2 {
		t.Fatalf("bad brcond: %#v", gotFn.Blocks[0].Term)
	}
}

func TestParseRoundTripsCallRefAndPtrOffset(t *testing.T) {
	pkg := NewMirPackage()
	fn := NewMirFunction("uses_ptr", FuncType{ReturnType: 4})
	fn.Vars[1] = VarDesc{Size: 4, IsMemoryVar: true}
	fn.Vars[2] = VarDesc{Size: 4}
	fn.Vars[3] = VarDesc{Size: 4}
	fn.Vars[4] = VarDesc{Size: 4}
	fn.Entry = 0

	blk := NewBasicBlk(0)
	blk.Insts = []Instruction{
		Ref{DestId: 2, Local: 1},
		PtrOffset{DestId: 3, Ptr: 2, Offset: Imm{N: 4}},
		Call{DestId: 4, FnId: "helper", Params: []Value{Var{Id: 3}, Imm{N: 7}}},
		Call{Void: true, FnId: "sideeffect"},
	}
	blk.Term = Return{Value: Var{Id: 4}, HasValue: true}
	fn.Blocks[0] = blk
	pkg.Functions["uses_ptr"] = fn

	got := roundTrip(t, pkg)
	gotFn := got.Functions["uses_ptr"]
	insts := gotFn.Blocks[0].Insts
	if len(insts) != 4 {
		t.Fatalf("expected 4 instructions, got %d: %#v", len(insts), insts)
	}
	ref, ok := insts[0].(Ref)
	if !ok || ref.IsGlob || ref.Local != 1 {
		t.Fatalf("bad ref: %#v", insts[0])
	}
	po, ok := insts[1].(PtrOffset)
	if !ok || po.Ptr != 2 {
		t.Fatalf("bad ptroffset: %#v", insts[1])
	}
	call, ok := insts[2].(Call)
	if !ok || call.Void || call.FnId != "helper" || len(call.Params) != 2 {
		t.Fatalf("bad call: %#v", insts[2])
	}
	voidCall, ok := insts[3].(Call)
	if !ok || !voidCall.Void || voidCall.FnId != "sideeffect" {
		t.Fatalf("bad void call: %#v", insts[3])
	}
}

func TestParseRoundTripsPhiAndUnreachable(t *testing.T) {
	pkg := NewMirPackage()
	fn := NewMirFunction("withphi", FuncType{ReturnType: 4})
	fn.Vars[1] = VarDesc{Size: 4}
	fn.Vars[2] = VarDesc{Size: 4}
	fn.Vars[3] = VarDesc{Size: 4}
	fn.Entry = 0

	b0 := NewBasicBlk(0)
	b0.Term = Unreachable{}
	fn.Blocks[0] = b0

	b1 := NewBasicBlk(1)
	b1.Insts = []Instruction{Phi{DestId: 3, Vars: []VarId{1, 2}}}
	b1.Term = Return{}
	fn.Blocks[1] = b1

	pkg.Functions["withphi"] = fn
	got := roundTrip(t, pkg)
	gotFn := got.Functions["withphi"]

	if _, ok := gotFn.Blocks[0].Term.(Unreachable); !ok {
		t.Fatalf("expected unreachable terminator, got %#v", gotFn.Blocks[0].Term)
	}
	phi, ok := gotFn.Blocks[1].Insts[0].(Phi)
	if !ok || len(phi.Vars) != 2 || phi.Vars[0] != 1 || phi.Vars[1] != 2 {
		t.Fatalf("bad phi: %#v", gotFn.Blocks[1].Insts)
	}
	ret, ok := gotFn.Blocks[1].Term.(Return)
	if !ok || ret.HasValue {
		t.Fatalf("expected void return, got %#v", gotFn.Blocks[1].Term)
	}
}
