package pass

import (
	"bytes"

	"github.com/raymyers/armbe/pkg/arm"
	"github.com/raymyers/armbe/pkg/mir"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// Options gates which passes run and how much the driver logs.
type Options struct {
	// RunSet, if non-empty, restricts execution to passes named here.
	RunSet map[string]bool
	// SkipSet excludes passes named here even if RunSet would include them.
	SkipSet map[string]bool
	// Verbose dumps MIR/ARM once at the relevant pipeline boundaries. The
	// driver does not change the log level itself; cmd/armbe does that.
	Verbose bool
	// PassDiff dumps a textual snapshot of the IR after every pass that runs.
	PassDiff bool
}

// shouldRun implements the gating rule: (RunSet empty OR name in RunSet)
// AND name not in SkipSet.
func (o Options) shouldRun(name string) bool {
	if o.SkipSet[name] {
		return false
	}
	if len(o.RunSet) == 0 {
		return true
	}
	return o.RunSet[name]
}

// Translator lowers a MIR package into ARM code, one function at a time,
// publishing whatever extras it produces (VarToVreg) as it goes. It is the
// fixed boundary between the MIR pipeline and the ARM pipeline.
type Translator func(pkg *mir.MirPackage, extras *Extras) (*arm.Code, error)

// Driver owns the two ordered pass lists and runs the full pipeline:
// MIR passes -> translation -> ARM passes.
type Driver struct {
	MirPasses  []MirPass
	ArmPasses  []ArmPass
	Translate  Translator
	Options    Options
	Extras     *Extras
}

// NewDriver creates a driver with a fresh Extras context.
func NewDriver(mirPasses []MirPass, armPasses []ArmPass, translate Translator, opts Options) *Driver {
	return &Driver{
		MirPasses: mirPasses,
		ArmPasses: armPasses,
		Translate: translate,
		Options:   opts,
		Extras:    NewExtras(),
	}
}

// Run executes the full pipeline and returns the final ARM code. No pass
// failure is ever swallowed: the first error aborts compilation, wrapped
// with the name of the pass (or "translate") that produced it.
func (d *Driver) Run(pkg *mir.MirPackage) (*arm.Code, error) {
	if d.Options.Verbose {
		d.dumpMir("input", pkg)
	}

	for _, p := range d.MirPasses {
		if !d.Options.shouldRun(p.Name()) {
			tlog.Printw("pass skipped", "pass", p.Name(), "kind", "mir")
			continue
		}
		tlog.Printw("pass start", "pass", p.Name(), "kind", "mir")
		next, err := p.OptimizeMir(pkg, d.Extras)
		if err != nil {
			return nil, errors.Wrap(err, "mir pass %q", p.Name())
		}
		pkg = next
		tlog.Printw("pass done", "pass", p.Name(), "kind", "mir")
		if d.Options.PassDiff {
			d.dumpMir(p.Name(), pkg)
		}
	}

	code, err := d.Translate(pkg, d.Extras)
	if err != nil {
		return nil, errors.Wrap(err, "translate mir to arm")
	}
	if d.Options.Verbose {
		d.dumpArm("translate", code)
	}

	for _, p := range d.ArmPasses {
		if !d.Options.shouldRun(p.Name()) {
			tlog.Printw("pass skipped", "pass", p.Name(), "kind", "arm")
			continue
		}
		tlog.Printw("pass start", "pass", p.Name(), "kind", "arm")
		next, err := p.OptimizeArm(code, d.Extras)
		if err != nil {
			return nil, errors.Wrap(err, "arm pass %q", p.Name())
		}
		code = next
		tlog.Printw("pass done", "pass", p.Name(), "kind", "arm")
		if d.Options.PassDiff {
			d.dumpArm(p.Name(), code)
		}
	}

	return code, nil
}

func (d *Driver) dumpMir(label string, pkg *mir.MirPackage) {
	var buf bytes.Buffer
	mir.NewPrinter(&buf).PrintPackage(pkg)
	tlog.Printw("mir dump", "after", label, "ir", buf.String())
}

func (d *Driver) dumpArm(label string, code *arm.Code) {
	var buf bytes.Buffer
	arm.NewPrinter(&buf).PrintCode(code)
	tlog.Printw("arm dump", "after", label, "ir", buf.String())
}
