package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/codegen"
	"github.com/raymyers/armbe/pkg/mir"
	"github.com/raymyers/armbe/pkg/pass"
	"github.com/raymyers/armbe/pkg/passes"
	"github.com/spf13/cobra"
	"tlog.app/go/tlog"
)

var version = "0.1.0"

var (
	output   string
	verbose  bool
	passDiff bool
	runPass  string
	skipPass string
	// -S, -O, -O2 are accepted for CompCert-style command-line compatibility
	// and have no effect: this backend has no separate assembly-only mode
	// and only one optimization level.
	sFlag  bool
	oFlag  bool
	o2Flag bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "armbe [input]",
		Short:         "armbe compiles SysY MIR to ARMv7 assembly",
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return compile(args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringVarP(&output, "output", "o", "out.s", "output assembly path")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "set log verbosity to trace and dump MIR/ARM")
	rootCmd.Flags().BoolVarP(&passDiff, "pass-diff", "d", false, "dump IR after each pass")
	rootCmd.Flags().StringVarP(&runPass, "run-pass", "r", "", "comma-separated whitelist of pass names")
	rootCmd.Flags().StringVarP(&skipPass, "skip-pass", "s", "", "comma-separated blacklist of pass names")
	rootCmd.Flags().BoolVarP(&sFlag, "assembly-only", "S", false, "accepted, no effect")
	rootCmd.Flags().BoolVarP(&oFlag, "optimize", "O", false, "accepted, no effect")
	rootCmd.Flags().BoolVar(&o2Flag, "O2", false, "accepted, no effect")

	return rootCmd
}

func compile(input string, out, errOut io.Writer) error {
	if verbose {
		tlog.SetVerbosity("trace")
	}

	f, err := os.Open(input)
	if err != nil {
		fmt.Fprintf(errOut, "armbe: %v\n", err)
		return err
	}
	defer f.Close()

	pkg, err := mir.Parse(f)
	if err != nil {
		fmt.Fprintf(errOut, "armbe: parsing %s: %v\n", input, err)
		return err
	}

	opts := pass.Options{
		RunSet:   csvToSet(runPass),
		SkipSet:  csvToSet(skipPass),
		Verbose:  verbose,
		PassDiff: passDiff,
	}
	driver := pass.NewDriver(passes.MirPipeline(), passes.ArmPipeline(), codegen.Translate, opts)

	code, err := driver.Run(pkg)
	if err != nil {
		fmt.Fprintf(errOut, "armbe: %v\n", err)
		return err
	}

	outFile, err := os.Create(output)
	if err != nil {
		fmt.Fprintf(errOut, "armbe: creating %s: %v\n", output, err)
		return err
	}
	defer outFile.Close()

	printer := arm.NewPrinter(outFile)
	printer.PrintCode(code)

	if verbose {
		arm.NewPrinter(out).PrintCode(code)
	}
	return nil
}

func csvToSet(s string) map[string]bool {
	if s == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			out[name] = true
		}
	}
	return out
}
