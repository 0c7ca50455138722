package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/chnoblouch/banjo/internal/mcode"
)

// MachinePass mutates a machine module in place.
type MachinePass interface {
	Run(mod *mcode.Module)
}

// PassRunner composes and runs the machine-pass pipeline:
//
//	pre-passes ⇒ RegAlloc ⇒ StackFrame ⇒ PrologEpilog ⇒ post-passes
type PassRunner struct {
	target Target
	// DumpDir, when set, receives a textual dump of the module after
	// every pass.
	DumpDir string
}

func NewPassRunner(t Target) *PassRunner {
	return &PassRunner{target: t}
}

// CreateAndRun builds the standard pipeline for the runner's target and
// runs it on mod.
func (r *PassRunner) CreateAndRun(mod *mcode.Module) {
	regAlloc := NewRegAllocPass(r.target.RegAnalyzer())

	if r.DumpDir != "" {
		file, err := os.Create(filepath.Join(r.DumpDir, "liveness.txt"))
		if err != nil {
			log.WithError(err).Warn("cannot dump liveness")
		} else {
			defer file.Close()
			regAlloc.LivenessDump = file
			regAlloc.DumpTarget = r.target
		}
	}

	var passes []MachinePass
	passes = append(passes, r.target.CreatePrePasses()...)
	passes = append(passes,
		regAlloc,
		NewStackFramePass(),
		NewPrologEpilogPass(),
	)
	passes = append(passes, r.target.CreatePostPasses()...)

	r.RunAll(passes, mod)
}

func (r *PassRunner) RunAll(passes []MachinePass, mod *mcode.Module) {
	r.dump(mod, "input")

	for i, pass := range passes {
		start := time.Now()
		pass.Run(mod)
		log.Debugf("machine pass %d (%T) took %s", i, pass, time.Since(start))

		r.dump(mod, fmt.Sprintf("pass%d", i))
	}
}

func (r *PassRunner) dump(mod *mcode.Module, name string) {
	if r.DumpDir == "" {
		return
	}

	path := filepath.Join(r.DumpDir, name+".banjoasm")
	text := NewDebugEmitter(mod, r.target).Generate()

	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		log.WithError(errors.Wrap(err, "writing pass dump")).Warnf("cannot dump %s", path)
	}
}
