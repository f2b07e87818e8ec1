package arm

import (
	"fmt"
	"io"
)

// Printer emits GNU-as syntax ARMv7 assembly text: one "<mnemonic> operands"
// line per instruction, a ".global name" directive per function, and each
// function's local constant pool trailing its code.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintCode prints a complete lowered program.
func (p *Printer) PrintCode(code *Code) {
	for _, f := range code.Functions {
		p.PrintFunction(f)
		fmt.Fprintln(p.w)
	}
}

// PrintFunction prints one function: its global directive, label,
// instruction stream, and trailing literal pool.
func (p *Printer) PrintFunction(f *Function) {
	fmt.Fprintf(p.w, ".global %s\n", f.Name)
	fmt.Fprintf(p.w, "%s:\n", f.Name)
	for _, inst := range f.Code {
		p.printInstruction(inst)
	}
	for i, v := range f.ConstPool {
		fmt.Fprintf(p.w, ".L%s_const%d:\n\t.word %d\n", f.Name, i, v)
	}
}

func condSuffix(c Cond) string {
	if c == CondAlways {
		return ""
	}
	return string(c)
}

func (p *Printer) printInstruction(inst Instruction) {
	switch i := inst.(type) {
	case Arith2:
		fmt.Fprintf(p.w, "\t%s%s %s, %s\n", i.Op, condSuffix(i.Cond), i.R1, formatOperand2(i.R2))
	case Arith3:
		fmt.Fprintf(p.w, "\t%s%s %s, %s, %s\n", i.Op, condSuffix(i.Cond), i.Rd, i.R1, formatOperand2(i.R2))
	case LoadStore:
		fmt.Fprintf(p.w, "\t%s%s %s, %s\n", i.Op, condSuffix(i.Cond), i.Rd, formatMem(i.Mem))
	case MultLoadStore:
		fmt.Fprintf(p.w, "\t%s%s {%s}, %s\n", i.Op, condSuffix(i.Cond), formatRegs(i.Regs), formatMem(i.Mem))
	case PushPop:
		fmt.Fprintf(p.w, "\t%s%s {%s}\n", i.Op, condSuffix(i.Cond), formatRegs(i.Regs))
	case Br:
		fmt.Fprintf(p.w, "\t%s%s %s\n", i.Op, condSuffix(i.Cond), i.Label)
	case Label:
		fmt.Fprintf(p.w, "%s:\n", i.Name)
	case Pure:
		fmt.Fprintf(p.w, "\t%s\n", i.Text)
	default:
		fmt.Fprintf(p.w, "\t; <unknown instruction>\n")
	}
}

func formatRegs(regs []Register) string {
	s := ""
	for i, r := range regs {
		if i > 0 {
			s += ", "
		}
		s += r.String()
	}
	return s
}

func formatOperand2(op Operand2) string {
	switch o := op.(type) {
	case Immediate:
		return fmt.Sprintf("#%d", o.Value)
	case RegisterOperand:
		if o.ShiftAmt == 0 && o.ShiftKind == Lsl {
			return o.Reg.String()
		}
		return fmt.Sprintf("%s, %s #%d", o.Reg, o.ShiftKind, o.ShiftAmt)
	default:
		return "?operand2"
	}
}

func formatMem(m MemoryOperand) string {
	offset := ""
	if m.RegOff != nil {
		offset = ", " + formatOperand2(*m.RegOff)
	} else if m.ImmOff != 0 {
		offset = fmt.Sprintf(", #%d", m.ImmOff)
	}
	switch m.Mode {
	case PreIndex:
		return fmt.Sprintf("[%s%s]!", m.Base, offset)
	case PostIndex:
		return fmt.Sprintf("[%s]%s", m.Base, offset)
	default:
		return fmt.Sprintf("[%s%s]", m.Base, offset)
	}
}
