// Package elf32 interprets the header and program header table of a 32-bit
// ELF image held in memory.
//
// Only the structural metadata needed to hand control to a statically
// addressed image is read: the entry point, the program header table and
// the base address derived from it. Sections, symbols, relocations and the
// dynamic table are never consulted.
package elf32

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

const (
	// HeaderSize is the size of an ELF32 file header.
	HeaderSize = 52
	// ProgHeaderSize is the size of an ELF32 program header entry.
	ProgHeaderSize = 32
)

// Segment is one entry of the program header table.
type Segment struct {
	Type           elf.ProgType
	VirtualAddress uint32
	MemorySize     uint32
	FileOffset     uint32
	FileSize       uint32
	Flags          elf.ProgFlag
	Align          uint32
}

// Perms renders the segment flags as a read/write/execute triplet, for
// example "r-x".
func (s Segment) Perms() string {
	return Perms(s.Flags)
}

// Contains returns true if addr falls inside the memory image of the
// segment.
func (s Segment) Contains(addr uint32) bool {
	return addr >= s.VirtualAddress && uint64(addr) < uint64(s.VirtualAddress)+uint64(s.MemorySize)
}

// Perms renders a program header flag bitmask as a read/write/execute
// triplet.
func Perms(flags elf.ProgFlag) string {
	buf := []byte("---")
	if flags&elf.PF_R != 0 {
		buf[0] = 'r'
	}
	if flags&elf.PF_W != 0 {
		buf[1] = 'w'
	}
	if flags&elf.PF_X != 0 {
		buf[2] = 'x'
	}
	return string(buf)
}

// Descriptor is the parsed view of one ELF32 image.
type Descriptor struct {
	Data    elf.Data
	Type    elf.Type
	Machine elf.Machine

	// EntryPoint is e_entry, copied verbatim.
	EntryPoint uint32
	// PhOff is the file offset of the program header table.
	PhOff uint32
	// PhEntSize is e_phentsize.
	PhEntSize uint16
	// Segments are in program header table order.
	Segments []Segment
	// BaseAddress is the lowest virtual address of any segment.
	BaseAddress uint32
}

// ByteOrder returns the byte order of the image.
func (d *Descriptor) ByteOrder() binary.ByteOrder {
	if d.Data == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// PhdrAddress is the address the program header table is expected to
// occupy once the image is in memory.
func (d *Descriptor) PhdrAddress() uint32 {
	return d.BaseAddress + d.PhOff
}

// PhdrTable returns the program header table within buf, the image d was
// parsed from, truncated at the end of buf.
func (d *Descriptor) PhdrTable(buf []byte) []byte {
	start := uint64(d.PhOff)
	end := start + uint64(len(d.Segments))*uint64(d.PhEntSize)
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}
	if start >= end {
		return nil
	}
	return buf[start:end]
}

// Loads returns the PT_LOAD segments, in table order.
func (d *Descriptor) Loads() []Segment {
	var r []Segment
	for _, s := range d.Segments {
		if s.Type == elf.PT_LOAD {
			r = append(r, s)
		}
	}
	return r
}

// SegmentAt returns the PT_LOAD segment containing addr.
func (d *Descriptor) SegmentAt(addr uint32) (Segment, bool) {
	for _, s := range d.Segments {
		if s.Type == elf.PT_LOAD && s.Contains(addr) {
			return s, true
		}
	}
	return Segment{}, false
}

// Parse interprets buf as a complete ELF32 image.
//
// Every read is bounds checked: a buffer that is too short for the header
// or for the program header table it declares fails with an error matching
// ErrMalformedImage, and an empty program header table fails with
// ErrMissingSegments.
func Parse(buf []byte) (*Descriptor, error) {
	if len(buf) < elf.EI_NIDENT {
		return nil, &FormatError{0, "image too short for ELF identification", len(buf)}
	}
	if !bytes.Equal(buf[:4], []byte(elf.ELFMAG)) {
		return nil, &FormatError{0, "bad magic number", buf[:4]}
	}
	if c := elf.Class(buf[elf.EI_CLASS]); c != elf.ELFCLASS32 {
		return nil, &FormatError{elf.EI_CLASS, "unsupported ELF class", c}
	}

	d := &Descriptor{Data: elf.Data(buf[elf.EI_DATA])}
	var order binary.ByteOrder
	switch d.Data {
	case elf.ELFDATA2LSB:
		order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		order = binary.BigEndian
	default:
		return nil, &FormatError{elf.EI_DATA, "unknown ELF data encoding", d.Data}
	}

	if len(buf) < HeaderSize {
		return nil, &FormatError{0, "image too short for ELF header", len(buf)}
	}
	var hdr elf.Header32
	if err := binary.Read(bytes.NewReader(buf[:HeaderSize]), order, &hdr); err != nil {
		return nil, &FormatError{0, "unreadable ELF header", err}
	}
	d.Type = elf.Type(hdr.Type)
	d.Machine = elf.Machine(hdr.Machine)
	d.EntryPoint = hdr.Entry
	d.PhOff = hdr.Phoff
	d.PhEntSize = hdr.Phentsize

	if hdr.Phnum == 0 {
		return nil, ErrMissingSegments
	}
	if hdr.Phentsize < ProgHeaderSize {
		return nil, &FormatError{0, "program header entry too small", hdr.Phentsize}
	}

	d.Segments = make([]Segment, 0, hdr.Phnum)
	for i := 0; i < int(hdr.Phnum); i++ {
		off := uint64(hdr.Phoff) + uint64(i)*uint64(hdr.Phentsize)
		if off+ProgHeaderSize > uint64(len(buf)) {
			return nil, &FormatError{int64(off), "program header past end of image", i}
		}
		var ph elf.Prog32
		if err := binary.Read(bytes.NewReader(buf[off:off+ProgHeaderSize]), order, &ph); err != nil {
			return nil, &FormatError{int64(off), "unreadable program header", err}
		}
		s := Segment{
			Type:           elf.ProgType(ph.Type),
			VirtualAddress: ph.Vaddr,
			MemorySize:     ph.Memsz,
			FileOffset:     ph.Off,
			FileSize:       ph.Filesz,
			Flags:          elf.ProgFlag(ph.Flags),
			Align:          ph.Align,
		}
		if s.Type == elf.PT_LOAD && s.FileSize > s.MemorySize {
			return nil, &FormatError{int64(off), "loadable segment file size exceeds memory size", i}
		}
		if i == 0 || s.VirtualAddress < d.BaseAddress {
			d.BaseAddress = s.VirtualAddress
		}
		d.Segments = append(d.Segments, s)
	}

	return d, nil
}
