// banjo-backend compiles SSA text into assembly for a chosen target.
package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chnoblouch/banjo/internal/compiler"
	"github.com/chnoblouch/banjo/internal/emit"
	"github.com/chnoblouch/banjo/internal/ssa"
	"github.com/chnoblouch/banjo/internal/target"
)

func main() {
	var (
		targetTriple string
		codeModel    string
		output       string
		dumpDir      string
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "banjo-backend <input.ssa>",
		Short: "Compile an SSA module to assembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}

			descr, err := parseTargetTriple(targetTriple)
			if err != nil {
				return err
			}

			model, err := parseCodeModel(codeModel)
			if err != nil {
				return err
			}

			src, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "reading %s", args[0])
			}

			mod, err := ssa.Parse(string(src))
			if err != nil {
				return errors.Wrap(err, "parsing SSA module")
			}

			t, err := compiler.NewTarget(descr, model)
			if err != nil {
				return err
			}

			c := compiler.New(t)
			c.DumpDir = dumpDir
			machineModule := c.Compile(mod)

			if output == "" || output == "-" {
				return c.EmitAssembly(machineModule, os.Stdout)
			}
			return emit.WriteFile(c.AssemblyEmitter(machineModule), output)
		},
	}

	cmd.Flags().StringVar(&targetTriple, "target", "x86_64-linux-gnu", "target triple (arch-os[-env])")
	cmd.Flags().StringVar(&codeModel, "code-model", "small", "code model (small or large)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output path, - for stdout")
	cmd.Flags().StringVar(&dumpDir, "dump-dir", "", "directory for per-pass machine code dumps")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func parseTargetTriple(triple string) (target.Description, error) {
	parts := strings.Split(triple, "-")
	if len(parts) < 2 {
		return target.Description{}, errors.Errorf("malformed target triple %q", triple)
	}

	var arch target.Architecture
	switch parts[0] {
	case "x86_64":
		arch = target.ArchX8664
	case "aarch64", "arm64":
		arch = target.ArchAArch64
	default:
		return target.Description{}, errors.Errorf("unknown architecture %q", parts[0])
	}

	var os_ target.OperatingSystem
	switch parts[1] {
	case "windows":
		os_ = target.OSWindows
	case "linux":
		os_ = target.OSLinux
	case "macos", "darwin":
		os_ = target.OSMacOS
	case "android":
		os_ = target.OSAndroid
	case "ios":
		os_ = target.OSIOS
	default:
		return target.Description{}, errors.Errorf("unknown operating system %q", parts[1])
	}

	env := target.EnvNone
	if len(parts) > 2 {
		switch parts[2] {
		case "msvc":
			env = target.EnvMSVC
		case "gnu":
			env = target.EnvGNU
		default:
			return target.Description{}, errors.Errorf("unknown environment %q", parts[2])
		}
	}

	return target.NewDescription(arch, os_, env), nil
}

func parseCodeModel(model string) (target.CodeModel, error) {
	switch model {
	case "small":
		return target.CodeModelSmall, nil
	case "large":
		return target.CodeModelLarge, nil
	}
	return 0, errors.Errorf("unknown code model %q", model)
}
