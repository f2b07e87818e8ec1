package mir

import (
	"fmt"
	"io"
	"sort"
)

// Printer writes a MirPackage in a stable textual format used for -d pass
// dumps and for the standalone MIR test fixtures.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintPackage prints every global and function in a deterministic order.
func (p *Printer) PrintPackage(pkg *MirPackage) {
	names := sortedKeys(pkg.Globals)
	for _, name := range names {
		g := pkg.Globals[name]
		fmt.Fprintf(p.w, "global %s[%d]\n", name, g.Size)
	}
	if len(names) > 0 {
		fmt.Fprintln(p.w)
	}

	fnNames := make([]string, 0, len(pkg.Functions))
	for n := range pkg.Functions {
		fnNames = append(fnNames, n)
	}
	sort.Strings(fnNames)
	for i, name := range fnNames {
		p.PrintFunction(pkg.Functions[name])
		if i < len(fnNames)-1 {
			fmt.Fprintln(p.w)
		}
	}
}

func sortedKeys(m map[string]GlobalDef) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PrintFunction prints a single function: its signature, variable table,
// and (for a function with a body) one block per line group. An extern
// function prints only its signature and variable table (its parameter
// types), since it has no blocks to lower.
func (p *Printer) PrintFunction(fn *MirFunction) {
	fmt.Fprintf(p.w, "func %s entry=%d extern=%t variadic=%t ret=%d {\n",
		fn.Name, fn.Entry, fn.Type.IsExtern, fn.Type.Variadic, fn.Type.ReturnType)

	if len(fn.Params) > 0 {
		fmt.Fprint(p.w, "  params:")
		for _, id := range fn.Params {
			fmt.Fprintf(p.w, " x%d", id)
		}
		fmt.Fprintln(p.w)
	}

	varIds := make([]VarId, 0, len(fn.Vars))
	for id := range fn.Vars {
		varIds = append(varIds, id)
	}
	sort.Slice(varIds, func(i, j int) bool { return varIds[i] < varIds[j] })
	for _, id := range varIds {
		d := fn.Vars[id]
		if d.IsMemoryVar {
			fmt.Fprintf(p.w, "  var x%d size=%d mem\n", id, d.Size)
		} else {
			fmt.Fprintf(p.w, "  var x%d size=%d\n", id, d.Size)
		}
	}

	ids := make([]BlockId, 0, len(fn.Blocks))
	for id := range fn.Blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		b := fn.Blocks[id]
		fmt.Fprintf(p.w, "  block %d:\n", b.Id)
		for _, inst := range b.Insts {
			fmt.Fprintf(p.w, "    %s\n", FormatInst(inst))
		}
		fmt.Fprintf(p.w, "    %s\n", FormatJump(b.Term))
	}
	fmt.Fprintln(p.w, "}")
}

// FormatInst renders a single MIR instruction.
func FormatInst(inst Instruction) string {
	switch i := inst.(type) {
	case Assign:
		return fmt.Sprintf("x%d = %s", i.DestId, FormatValue(i.Value))
	case Op:
		return fmt.Sprintf("x%d = %s %s, %s", i.DestId, i.Kind, FormatValue(i.Lhs), FormatValue(i.Rhs))
	case Call:
		args := ""
		for j, a := range i.Params {
			if j > 0 {
				args += ", "
			}
			args += FormatValue(a)
		}
		if i.Void {
			return fmt.Sprintf("call %s(%s)", i.FnId, args)
		}
		return fmt.Sprintf("x%d = call %s(%s)", i.DestId, i.FnId, args)
	case Load:
		return fmt.Sprintf("x%d = load [x%d]", i.DestId, i.Src)
	case Store:
		return fmt.Sprintf("store [x%d] = %s", i.DestId, FormatValue(i.Val))
	case Ref:
		if i.IsGlob {
			return fmt.Sprintf("x%d = ref @%s", i.DestId, i.Global)
		}
		return fmt.Sprintf("x%d = ref x%d", i.DestId, i.Local)
	case PtrOffset:
		return fmt.Sprintf("x%d = ptroffset x%d, %s", i.DestId, i.Ptr, FormatValue(i.Offset))
	case Phi:
		s := fmt.Sprintf("x%d = phi(", i.DestId)
		for j, v := range i.Vars {
			if j > 0 {
				s += ", "
			}
			s += fmt.Sprintf("x%d", v)
		}
		return s + ")"
	default:
		return "<unknown instruction>"
	}
}

// FormatValue renders a Value.
func FormatValue(v Value) string {
	switch vv := v.(type) {
	case Imm:
		return fmt.Sprintf("%d", vv.N)
	case Var:
		return fmt.Sprintf("x%d", vv.Id)
	default:
		return "<unknown value>"
	}
}

// FormatJump renders a block terminator.
func FormatJump(j Jump) string {
	switch jj := j.(type) {
	case Br:
		return fmt.Sprintf("br %d", jj.Target)
	case BrCond:
		return fmt.Sprintf("brcond x%d, %d, %d", jj.Cond, jj.TrueTarget, jj.FalseTarget)
	case Return:
		if jj.HasValue {
			return fmt.Sprintf("return %s", FormatValue(jj.Value))
		}
		return "return"
	case Unreachable:
		return "unreachable"
	case Undefined:
		return "undefined"
	default:
		return "<unknown jump>"
	}
}
