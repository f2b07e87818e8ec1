package arm

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintFunctionEmitsGlobalLabelAndConstPool(t *testing.T) {
	f := &Function{
		Name: "identity",
		Code: []Instruction{
			Arith2{Op: OpMov, Cond: CondAlways, R1: GP(FP), R2: Reg(GP(SP))},
			Arith3{Op: OpAdd, Cond: CondAlways, Rd: GP(R0), R1: GP(R0), R2: Immediate{Value: 1}},
			Br{Op: OpB, Cond: CondAlways, Label: "done"},
		},
		ConstPool: []int32{42},
	}

	var buf bytes.Buffer
	NewPrinter(&buf).PrintFunction(f)
	out := buf.String()

	for _, want := range []string{
		".global identity\n",
		"identity:\n",
		".L" + "identity_const0:\n",
		"\t.word 42\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestPrintCodeSeparatesFunctionsWithBlankLine(t *testing.T) {
	code := &Code{
		Functions: []*Function{
			{Name: "a", Code: []Instruction{Br{Op: OpB, Cond: CondAlways, Label: "done"}}},
			{Name: "b", Code: []Instruction{Br{Op: OpB, Cond: CondAlways, Label: "done"}}},
		},
	}

	var buf bytes.Buffer
	NewPrinter(&buf).PrintCode(code)
	out := buf.String()

	if !strings.Contains(out, "\tb done\n\n.global b") {
		t.Fatalf("expected a blank line between functions, got:\n%s", out)
	}
}

func TestFunctionByNameFindsAndMisses(t *testing.T) {
	code := &Code{Functions: []*Function{{Name: "foo"}}}
	if code.FunctionByName("foo") == nil {
		t.Fatalf("expected to find function foo")
	}
	if code.FunctionByName("bar") != nil {
		t.Fatalf("expected no match for bar")
	}
}
