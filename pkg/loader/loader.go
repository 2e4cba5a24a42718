// Package loader runs the load and handoff sequence: read the image, parse
// it, optionally map its segments, rewrite the argument block of the
// running process and transfer control to the image's entry point.
//
// Everything that can fail with an error does so before the argument block
// is modified. After Patch has run the only way forward is the jump.
package loader

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"runtime"

	"github.com/uexec/uexec/pkg/auxv"
	"github.com/uexec/uexec/pkg/elf32"
	"github.com/uexec/uexec/pkg/hostenv"
	"github.com/uexec/uexec/pkg/image"
	"github.com/uexec/uexec/pkg/logflags"
	"github.com/uexec/uexec/pkg/transfer"
)

// ErrWordSize is returned when the image and the running process do not
// agree on the size of a word or on the machine.
var ErrWordSize = errors.New("image does not match the host architecture")

// ErrNotResident is returned when segment mapping is disabled and the
// image is not already in memory at its link address.
var ErrNotResident = errors.New("image is not resident at its link address")

// Config holds the options of a Loader.
type Config struct {
	// Reader selects how the image file is read.
	Reader image.Mode
	// MapSegments maps the PT_LOAD segments of the image at their virtual
	// addresses before patching. When false the image must already be in
	// place.
	MapSegments bool
}

type handoff interface {
	Transfer()
}

// Loader loads ELF32 images into the running process.
type Loader struct {
	cfg Config
	log logflags.Logger

	ptrSize int
	machine elf.Machine

	stack      func() (*auxv.Stack, error)
	mapper     func(path string, d *elf32.Descriptor) error
	memory     func(addr uint64, buf []byte) error
	newHandoff func(entry, sp uint64) (handoff, error)
}

// New returns a Loader operating on the running process.
func New(cfg Config) *Loader {
	return &Loader{
		cfg:     cfg,
		log:     logflags.LoaderLogger(),
		ptrSize: transfer.PtrSize,
		machine: hostMachine(),
		stack:   hostenv.Current,
		mapper:  MapSegments,
		memory:  hostenv.ReadMemory,
		newHandoff: func(entry, sp uint64) (handoff, error) {
			return transfer.New(entry, sp)
		},
	}
}

func hostMachine() elf.Machine {
	switch runtime.GOARCH {
	case "386":
		return elf.EM_386
	case "arm":
		return elf.EM_ARM
	case "mips", "mipsle":
		return elf.EM_MIPS
	}
	return elf.EM_NONE
}

// Program is a parsed image.
type Program struct {
	Path       string
	Descriptor *elf32.Descriptor

	img image.Image
}

// Bytes returns the contents of the image file. It returns nil after
// Close.
func (p *Program) Bytes() []byte {
	if p.img == nil {
		return nil
	}
	return p.img.Bytes()
}

// Close releases the image file.
func (p *Program) Close() error {
	if p.img == nil {
		return nil
	}
	err := p.img.Close()
	p.img = nil
	return err
}

// Open reads and parses the image at path.
func (l *Loader) Open(path string) (*Program, error) {
	img, err := image.Open(path, l.cfg.Reader)
	if err != nil {
		return nil, err
	}
	d, err := elf32.Parse(img.Bytes())
	if err != nil {
		if cerr := img.Close(); cerr != nil {
			l.log.WithError(cerr).Warnf("closing %s", path)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.log.WithFields(logflags.Fields{"path": path, "size": img.Size()}).Debugf("parsed %d program headers, base %#x, entry %#x", len(d.Segments), d.BaseAddress, d.EntryPoint)
	for _, s := range d.Segments {
		if s.VirtualAddress == d.BaseAddress && s.Type != elf.PT_LOAD {
			l.log.Warnf("base address %#x comes from a %v segment, AT_PHDR will be %#x", d.BaseAddress, s.Type, d.PhdrAddress())
			break
		}
	}
	return &Program{Path: path, Descriptor: d, img: img}, nil
}

// Check verifies that p can be started in the running process.
func (l *Loader) Check(p *Program) error {
	d := p.Descriptor
	if l.ptrSize != 4 {
		return fmt.Errorf("%w: ELF32 image in a process with %d byte words", ErrWordSize, l.ptrSize)
	}
	if d.Machine != l.machine {
		return fmt.Errorf("%w: image is %v, host is %v", ErrWordSize, d.Machine, l.machine)
	}
	if d.EntryPoint == 0 {
		return fmt.Errorf("%s: entry point is zero", p.Path)
	}
	return nil
}

// checkResident verifies that the program header table of p is present at
// the address AT_PHDR will point to.
func (l *Loader) checkResident(p *Program) error {
	d := p.Descriptor
	want := d.PhdrTable(p.Bytes())
	got := make([]byte, len(want))
	addr := uint64(d.PhdrAddress())
	if err := l.memory(addr, got); err != nil {
		return fmt.Errorf("%w: %v", ErrNotResident, err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: program header table of %s not found at %#x", ErrNotResident, p.Path, addr)
	}
	return nil
}

// Exec starts p in place of the running process. drop is the number of
// command line arguments following argv[0] that belong to the loader
// (at least the path of the image).
//
// On success Exec does not return. The returned error is always one that
// was detected before the argument block was modified.
func (l *Loader) Exec(p *Program, drop int) error {
	if err := l.Check(p); err != nil {
		return err
	}
	d := p.Descriptor

	if l.cfg.MapSegments {
		if err := l.mapper(p.Path, d); err != nil {
			return err
		}
		l.log.Debugf("mapped %d loadable segments", len(d.Loads()))
	} else if err := l.checkResident(p); err != nil {
		return err
	}

	st, err := l.stack()
	if err != nil {
		return fmt.Errorf("locating the argument block: %w", err)
	}
	layout, err := auxv.Locate(st)
	if err != nil {
		return err
	}
	alog := logflags.AuxvLogger()
	alog.Debugf("argc slot %#x, envp %#x, auxv %#x", layout.ArgcSlot, layout.Envp, layout.Auxv)

	if drop < 1 || drop >= layout.Args {
		return fmt.Errorf("cannot drop %d of %d arguments", drop, layout.Args)
	}
	sp := layout.ArgcSlot + uint64(drop)*uint64(st.PtrSize())
	h, err := l.newHandoff(uint64(d.EntryPoint), sp)
	if err != nil {
		return err
	}

	if err := p.Close(); err != nil {
		l.log.Warnf("closing %s: %v", p.Path, err)
	}

	img := auxv.Image{PhdrAddress: uint64(d.PhdrAddress()), Entry: uint64(d.EntryPoint)}
	patched, err := auxv.Patch(st, layout, img, drop)
	if err != nil {
		return err
	}
	if patched != sp {
		panic(fmt.Sprintf("argument block patched for stack %#x, expected %#x", patched, sp))
	}
	if logflags.Auxv() {
		if vec, err := auxv.ReadVector(st.Block, layout.Auxv); err == nil {
			for _, e := range vec {
				alog.Debugf("%v\t%#x", e.Tag, e.Value)
			}
		}
	}

	h.Transfer()
	panic("loader: control returned from transfer")
}
