package diag

import (
	"debug/elf"
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/uexec/uexec/pkg/elf32"
)

// ErrNoCode is returned by Disassemble when the entry point is not backed
// by file contents.
var ErrNoCode = errors.New("entry point is not in a loadable segment")

// Disassemble prints the first n instructions at the entry point of d,
// decoded from buf, the contents of the image file. Decoding stops early at
// the end of the segment's file contents. Bytes that do not decode are
// printed as "?" and skipped one at a time.
func Disassemble(w *Writer, d *elf32.Descriptor, buf []byte, n int) error {
	if d.Machine != elf.EM_386 {
		return fmt.Errorf("cannot disassemble %v code", d.Machine)
	}
	s, ok := d.SegmentAt(d.EntryPoint)
	if !ok {
		return ErrNoCode
	}
	rel := d.EntryPoint - s.VirtualAddress
	if rel >= s.FileSize {
		return ErrNoCode
	}
	start := uint64(s.FileOffset) + uint64(rel)
	end := uint64(s.FileOffset) + uint64(s.FileSize)
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}
	if start >= end {
		return ErrNoCode
	}
	code := buf[start:end]

	pc := uint64(d.EntryPoint)
	for i := 0; i < n && len(code) > 0; i++ {
		inst, err := x86asm.Decode(code, 32)
		text := "?"
		size := 1
		if err == nil {
			text = x86asm.GNUSyntax(inst, pc, nil)
			size = inst.Len
		}
		line := fmt.Sprintf("%#x\t% x\t%s", pc, code[:size], text)
		if w.Color && i == 0 {
			line = colorExec + line + colorReset
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		code = code[size:]
		pc += uint64(size)
	}
	return nil
}
