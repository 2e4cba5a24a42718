// Package diag prints human readable descriptions of a parsed image.
package diag

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/uexec/uexec/pkg/elf32"
)

const (
	colorExec  = "\x1b[32m"
	colorWrite = "\x1b[33m"
	colorReset = "\x1b[0m"
)

// Writer is the destination of diagnostic output.
type Writer struct {
	io.Writer
	// Color enables ANSI escapes.
	Color bool
}

// NewWriter returns a Writer on f. Colors are enabled only when color is
// true, f is a terminal and TERM is not "dumb".
func NewWriter(f *os.File, color bool) *Writer {
	if !color || !isatty.IsTerminal(f.Fd()) || strings.ToLower(os.Getenv("TERM")) == "dumb" {
		return &Writer{Writer: f}
	}
	return &Writer{Writer: colorable.NewColorable(f), Color: true}
}

func (w *Writer) styled(s elf32.Segment, line string) string {
	if !w.Color {
		return line
	}
	switch {
	case s.Flags&elf.PF_X != 0:
		return colorExec + line + colorReset
	case s.Flags&elf.PF_W != 0:
		return colorWrite + line + colorReset
	}
	return line
}

// PrintSegments writes one line per program header of d, in table order,
// followed by the base address and the entry point.
func PrintSegments(w *Writer, d *elf32.Descriptor) error {
	for i, s := range d.Segments {
		line := fmt.Sprintf("%d\t%#x\t%d\t%#x\t%d\t%s", i, s.VirtualAddress, s.FileSize, s.FileOffset, s.MemorySize, s.Perms())
		if _, err := fmt.Fprintln(w, w.styled(s, line)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Base address %#x\nEntry point %#x\n", d.BaseAddress, d.EntryPoint)
	return err
}
