// Package mir defines the mid-level intermediate representation consumed by
// the backend: per-function control-flow graphs of basic blocks holding
// typed, three-address instructions over an unbounded set of variable ids.
//
// This mirrors the shape of a CompCert-style RTL: infinite pseudo-registers,
// explicit successors, one instruction variant per concrete operation.
package mir

// VarId identifies a variable within a single function. Ids are unique
// within a function but not across functions.
type VarId int

// BlockId identifies a basic block within a single function.
type BlockId int

// CommonExit is the conventional label of the post-dominating exit block,
// when a function has one.
const CommonExit BlockId = 1048576

// BinOp enumerates the binary operators of Op instructions.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Rem
	And
	Or
	Gt
	Lt
	Gte
	Lte
	Eq
	Neq
)

func (op BinOp) String() string {
	names := [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "gt", "lt", "gte", "lte", "eq", "neq"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?op"
}

// Commutative reports whether swapping operands preserves the value.
func (op BinOp) Commutative() bool {
	switch op {
	case Add, Mul, And, Or, Eq, Neq:
		return true
	default:
		return false
	}
}

// IsComparison reports whether op produces a 0/1 boolean.
func (op BinOp) IsComparison() bool {
	switch op {
	case Gt, Lt, Gte, Lte, Eq, Neq:
		return true
	default:
		return false
	}
}

// Value is a tagged union of an immediate i32 and a variable reference.
type Value interface {
	implValue()
}

// Imm is an immediate 32-bit integer value.
type Imm struct{ N int32 }

// Var is a reference to a variable id.
type Var struct{ Id VarId }

func (Imm) implValue() {}
func (Var) implValue() {}

// AsVar returns the VarId and true if v is a Var.
func AsVar(v Value) (VarId, bool) {
	if vv, ok := v.(Var); ok {
		return vv.Id, true
	}
	return 0, false
}

// AsImm returns the immediate and true if v is an Imm.
func AsImm(v Value) (int32, bool) {
	if ii, ok := v.(Imm); ok {
		return ii.N, true
	}
	return 0, false
}

// Instruction is the closed set of MIR instruction variants. Each concrete
// type below implements this marker interface; dispatch is an exhaustive
// type switch, never a runtime type cascade.
type Instruction interface {
	implInstruction()
	// Dest returns the instruction's destination variable and true, or
	// false if the instruction has no destination (e.g. Store).
	Dest() (VarId, bool)
}

// Assign is dest <- value.
type Assign struct {
	DestId VarId
	Value  Value
}

// Op is dest <- lhs op rhs.
type Op struct {
	DestId VarId
	Kind   BinOp
	Lhs    Value
	Rhs    Value
}

// Call is dest <- fn(params...). DestId is ignored when Void is true.
type Call struct {
	DestId VarId
	Void   bool
	FnId   string
	Params []Value
}

// Load is dest <- *src.
type Load struct {
	DestId VarId
	Src    VarId
}

// Store is *dest <- val.
type Store struct {
	DestId VarId
	Val    Value
}

// Ref is dest <- &var, where Var names a local or a global.
type Ref struct {
	DestId VarId
	Global string // non-empty if this refers to a global
	Local  VarId  // valid if Global == ""
	IsGlob bool
}

// PtrOffset is dest <- ptr + offset.
type PtrOffset struct {
	DestId VarId
	Ptr    VarId
	Offset Value
}

// Phi is dest <- vars... ; only legal at block entry.
type Phi struct {
	DestId VarId
	Vars   []VarId
}

func (Assign) implInstruction()    {}
func (Op) implInstruction()        {}
func (Call) implInstruction()      {}
func (Load) implInstruction()      {}
func (Store) implInstruction()     {}
func (Ref) implInstruction()       {}
func (PtrOffset) implInstruction() {}
func (Phi) implInstruction()       {}

func (i Assign) Dest() (VarId, bool)    { return i.DestId, true }
func (i Op) Dest() (VarId, bool)        { return i.DestId, true }
func (i Call) Dest() (VarId, bool)      { return i.DestId, !i.Void }
func (i Load) Dest() (VarId, bool)      { return i.DestId, true }
func (i Store) Dest() (VarId, bool)     { return 0, false }
func (i Ref) Dest() (VarId, bool)       { return i.DestId, true }
func (i PtrOffset) Dest() (VarId, bool) { return i.DestId, true }
func (i Phi) Dest() (VarId, bool)       { return i.DestId, true }

// Uses returns the variable ids read by the instruction (not including Dest).
func Uses(inst Instruction) []VarId {
	switch i := inst.(type) {
	case Assign:
		if id, ok := AsVar(i.Value); ok {
			return []VarId{id}
		}
	case Op:
		var out []VarId
		if id, ok := AsVar(i.Lhs); ok {
			out = append(out, id)
		}
		if id, ok := AsVar(i.Rhs); ok {
			out = append(out, id)
		}
		return out
	case Call:
		var out []VarId
		for _, p := range i.Params {
			if id, ok := AsVar(p); ok {
				out = append(out, id)
			}
		}
		return out
	case Load:
		return []VarId{i.Src}
	case Store:
		var out []VarId
		out = append(out, i.DestId)
		if id, ok := AsVar(i.Val); ok {
			out = append(out, id)
		}
		return out
	case Ref:
		if !i.IsGlob {
			return []VarId{i.Local}
		}
	case PtrOffset:
		out := []VarId{i.Ptr}
		if id, ok := AsVar(i.Offset); ok {
			out = append(out, id)
		}
		return out
	case Phi:
		return append([]VarId(nil), i.Vars...)
	}
	return nil
}

// Jump is the closed set of basic-block terminators.
type Jump interface {
	implJump()
	// Targets returns the block ids this jump may transfer control to.
	Targets() []BlockId
}

// Br is an unconditional jump.
type Br struct{ Target BlockId }

// BrCond is a conditional jump.
type BrCond struct {
	Cond          VarId
	TrueTarget    BlockId
	FalseTarget   BlockId
}

// Return optionally carries a value back to the caller.
type Return struct {
	Value    Value
	HasValue bool
}

// Unreachable marks a block that control can never reach the end of.
type Unreachable struct{}

// Undefined marks an invalid terminator (a frontend or pass bug).
type Undefined struct{}

func (Br) implJump()          {}
func (BrCond) implJump()      {}
func (Return) implJump()      {}
func (Unreachable) implJump() {}
func (Undefined) implJump()   {}

func (j Br) Targets() []BlockId     { return []BlockId{j.Target} }
func (j BrCond) Targets() []BlockId { return []BlockId{j.TrueTarget, j.FalseTarget} }
func (j Return) Targets() []BlockId { return nil }
func (j Unreachable) Targets() []BlockId { return nil }
func (j Undefined) Targets() []BlockId   { return nil }

// BasicBlk is a single basic block: an ordered instruction list plus a
// terminating jump and the set of predecessor labels.
type BasicBlk struct {
	Id    BlockId
	Insts []Instruction
	Term  Jump
	Preds map[BlockId]struct{}
}

// NewBasicBlk creates an empty block with the given id.
func NewBasicBlk(id BlockId) *BasicBlk {
	return &BasicBlk{Id: id, Preds: make(map[BlockId]struct{}), Term: Undefined{}}
}

// AddPred records a predecessor label.
func (b *BasicBlk) AddPred(p BlockId) {
	if b.Preds == nil {
		b.Preds = make(map[BlockId]struct{})
	}
	b.Preds[p] = struct{}{}
}

// VarDesc describes a MIR variable: its size in bytes and whether it is
// address-taken (and therefore must live on the stack).
type VarDesc struct {
	Size        int
	IsMemoryVar bool
}

// FuncType is a function's signature.
type FuncType struct {
	ParamTypes []int // byte sizes, one per parameter
	ReturnType int   // 0 means void
	IsExtern   bool
	Variadic   bool
}

// MirFunction is a function's control-flow graph plus variable metadata.
type MirFunction struct {
	Name   string
	Type   FuncType
	Vars   map[VarId]VarDesc
	Blocks map[BlockId]*BasicBlk
	Entry  BlockId
	// Params lists the variable id bound to each formal parameter, in
	// declaration order.
	Params []VarId
}

// NewMirFunction creates an empty function.
func NewMirFunction(name string, typ FuncType) *MirFunction {
	return &MirFunction{
		Name:   name,
		Type:   typ,
		Vars:   make(map[VarId]VarDesc),
		Blocks: make(map[BlockId]*BasicBlk),
	}
}

// GlobalDef is a global variable's initializer: a byte size and, for
// initialized data, the initial 32-bit words (nil means zero-initialized,
// i.e. .bss).
type GlobalDef struct {
	Size int
	Init []int32
}

// MirPackage is a complete compilation unit: functions plus globals.
type MirPackage struct {
	Functions map[string]*MirFunction
	Globals   map[string]GlobalDef
}

// NewMirPackage creates an empty package.
func NewMirPackage() *MirPackage {
	return &MirPackage{
		Functions: make(map[string]*MirFunction),
		Globals:   make(map[string]GlobalDef),
	}
}

// Clone produces a deep-enough copy of the package that a pass can mutate
// the clone without aliasing instruction slices/maps in the original. Passes
// borrow *MirPackage for the duration of one call (see pkg/pass); they are
// free to mutate in place, but tests rely on Clone to check idempotence
// without re-running a pass on its own output by accident.
func (p *MirPackage) Clone() *MirPackage {
	out := NewMirPackage()
	for name, g := range p.Globals {
		init := append([]int32(nil), g.Init...)
		out.Globals[name] = GlobalDef{Size: g.Size, Init: init}
	}
	for name, f := range p.Functions {
		nf := NewMirFunction(f.Name, f.Type)
		for id, d := range f.Vars {
			nf.Vars[id] = d
		}
		nf.Entry = f.Entry
		nf.Params = append([]VarId(nil), f.Params...)
		for id, b := range f.Blocks {
			nb := NewBasicBlk(b.Id)
			nb.Insts = append([]Instruction(nil), b.Insts...)
			nb.Term = b.Term
			for p := range b.Preds {
				nb.AddPred(p)
			}
			nf.Blocks[id] = nb
		}
		out.Functions[name] = nf
	}
	return out
}
