package auxv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfBounds is matched by every *BoundsError.
var ErrOutOfBounds = errors.New("access outside of the argument block")

// BoundsError is returned for a word access that does not fit inside a
// Block.
type BoundsError struct {
	Addr       uint64
	Start, End uint64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%v: %#x not in [%#x, %#x)", ErrOutOfBounds, e.Addr, e.Start, e.End)
}

func (e *BoundsError) Is(target error) bool { return target == ErrOutOfBounds }

// Block is a view over a contiguous range of memory, addressed by the
// addresses the memory has in the process that owns it. Words are PtrSize
// bytes long and must be aligned to PtrSize.
type Block struct {
	base    uint64
	mem     []byte
	ptrSize int
	order   binary.ByteOrder
}

// NewBlock returns a view of mem as if it started at address base.
func NewBlock(base uint64, mem []byte, ptrSize int, order binary.ByteOrder) (*Block, error) {
	if ptrSize != 4 && ptrSize != 8 {
		return nil, fmt.Errorf("not supported ptr size %d", ptrSize)
	}
	if base%uint64(ptrSize) != 0 {
		return nil, fmt.Errorf("block base %#x not aligned to %d bytes", base, ptrSize)
	}
	if base+uint64(len(mem)) < base {
		return nil, fmt.Errorf("block at %#x of %d bytes wraps around", base, len(mem))
	}
	return &Block{base: base, mem: mem, ptrSize: ptrSize, order: order}, nil
}

// PtrSize returns the size of a word.
func (b *Block) PtrSize() int { return b.ptrSize }

// Start returns the address of the first byte of the view.
func (b *Block) Start() uint64 { return b.base }

// End returns the address one past the last byte of the view.
func (b *Block) End() uint64 { return b.base + uint64(len(b.mem)) }

// Contains returns true if the word at addr is inside the view.
func (b *Block) Contains(addr uint64) bool {
	_, err := b.offset(addr)
	return err == nil
}

func (b *Block) offset(addr uint64) (int, error) {
	w := uint64(b.ptrSize)
	if addr < b.base || addr%w != 0 || addr-b.base > uint64(len(b.mem)) || uint64(len(b.mem))-(addr-b.base) < w {
		return 0, &BoundsError{Addr: addr, Start: b.Start(), End: b.End()}
	}
	return int(addr - b.base), nil
}

// Word reads the word at addr.
func (b *Block) Word(addr uint64) (uint64, error) {
	off, err := b.offset(addr)
	if err != nil {
		return 0, err
	}
	if b.ptrSize == 4 {
		return uint64(b.order.Uint32(b.mem[off:])), nil
	}
	return b.order.Uint64(b.mem[off:]), nil
}

// SetWord writes v to the word at addr. Values that do not fit in a word
// are rejected.
func (b *Block) SetWord(addr, v uint64) error {
	off, err := b.offset(addr)
	if err != nil {
		return err
	}
	if b.ptrSize == 4 {
		if v > 0xffffffff {
			return fmt.Errorf("value %#x does not fit a %d byte word", v, b.ptrSize)
		}
		b.order.PutUint32(b.mem[off:], uint32(v))
		return nil
	}
	b.order.PutUint64(b.mem[off:], v)
	return nil
}

// Next returns the address of the word following the one at addr.
func (b *Block) Next(addr uint64) uint64 {
	return addr + uint64(b.ptrSize)
}
