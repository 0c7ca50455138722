// Package emit renders machine modules as assembly text: NASM syntax
// for x86-64 and GAS syntax for AArch64. Object emitters (ELF/PE)
// consume the same machine module and live outside this package.
package emit

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Emitter writes one rendition of a machine module to a stream.
type Emitter interface {
	Generate(w io.Writer) error
}

// WriteFile runs emitter into a newly created file at path. The file is
// closed regardless of success.
func WriteFile(emitter Emitter, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer file.Close()

	if err := emitter.Generate(file); err != nil {
		return errors.Wrapf(err, "emitting %s", path)
	}
	return nil
}
