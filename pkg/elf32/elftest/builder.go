// Package elftest builds synthetic ELF32 images for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Prog describes one program header of a synthetic image.
type Prog struct {
	Type   elf.ProgType
	Vaddr  uint32
	Off    uint32
	Filesz uint32
	Memsz  uint32
	Flags  elf.ProgFlag
	Align  uint32
}

// Image describes a synthetic ELF32 image. Program headers are placed
// right after the file header unless Phoff is set.
type Image struct {
	Order   binary.ByteOrder
	Machine elf.Machine
	Entry   uint32
	Phoff   uint32
	Progs   []Prog
	// Phnum overrides the number of program headers declared in the file
	// header when non-zero.
	Phnum uint16
	// Body is written at Progs[i].Off for every prog with Filesz > 0, and
	// may be used to place code at the entry point.
	Body map[uint32][]byte
	// Size pads the image to at least Size bytes.
	Size int
}

// Build serializes img.
func (img Image) Build() []byte {
	order := img.Order
	if order == nil {
		order = binary.LittleEndian
	}
	data := elf.ELFDATA2LSB
	if order == binary.BigEndian {
		data = elf.ELFDATA2MSB
	}
	machine := img.Machine
	if machine == 0 {
		machine = elf.EM_386
	}
	phoff := img.Phoff
	if phoff == 0 && len(img.Progs) > 0 {
		phoff = 52
	}
	phnum := img.Phnum
	if phnum == 0 {
		phnum = uint16(len(img.Progs))
	}

	var hdr elf.Header32
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(data)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Type = uint16(elf.ET_EXEC)
	hdr.Machine = uint16(machine)
	hdr.Version = uint32(elf.EV_CURRENT)
	hdr.Entry = img.Entry
	hdr.Phoff = phoff
	hdr.Ehsize = 52
	hdr.Phentsize = 32
	hdr.Phnum = phnum

	buf := new(bytes.Buffer)
	binary.Write(buf, order, &hdr)
	for int(phoff) > buf.Len() {
		buf.WriteByte(0)
	}
	for _, p := range img.Progs {
		binary.Write(buf, order, &elf.Prog32{
			Type:   uint32(p.Type),
			Off:    p.Off,
			Vaddr:  p.Vaddr,
			Paddr:  p.Vaddr,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
			Flags:  uint32(p.Flags),
			Align:  p.Align,
		})
	}

	out := buf.Bytes()
	grow := func(n int) {
		if n > len(out) {
			out = append(out, make([]byte, n-len(out))...)
		}
	}
	for _, p := range img.Progs {
		grow(int(p.Off) + int(p.Filesz))
	}
	for off, b := range img.Body {
		grow(int(off) + len(b))
		copy(out[off:], b)
	}
	grow(img.Size)
	return out
}
