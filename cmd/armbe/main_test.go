package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestFlagsExist(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)

	for _, name := range []string{"output", "verbose", "pass-diff", "run-pass", "skip-pass", "assembly-only", "optimize", "O2"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag --%s to exist", name)
		}
	}
}

func TestCompileIdentityFunctionProducesAssembly(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "identity.mir")
	source := `func identity entry=0 extern=false variadic=false ret=4 {
  params: x1
  var x1 size=4
  block 0:
    return x1
}
`
	if err := os.WriteFile(input, []byte(source), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	output = filepath.Join(dir, "identity.s")
	verbose = false
	passDiff = false
	runPass = ""
	skipPass = ""

	var out, errOut bytes.Buffer
	if err := compile(input, &out, &errOut); err != nil {
		t.Fatalf("compile: %v\nstderr: %s", err, errOut.String())
	}

	asm, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(asm), ".global identity") {
		t.Fatalf("expected a .global identity directive, got:\n%s", asm)
	}
	if !strings.Contains(string(asm), "identity:") {
		t.Fatalf("expected an identity: label, got:\n%s", asm)
	}
}

func TestCompileRejectsMissingFile(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := compile(filepath.Join(t.TempDir(), "missing.mir"), &out, &errOut); err == nil {
		t.Fatalf("expected an error for a missing input file")
	}
}
