package auxv

import (
	"errors"
	"fmt"
)

// ErrLayoutMismatch is returned when the memory around envp does not look
// like the argument block the kernel builds at process start.
var ErrLayoutMismatch = errors.New("argument block does not match the process start layout")

// Stack is a handle on the argument block of a process.
type Stack struct {
	*Block

	// Envp is the address of envp[0].
	Envp uint64
	// Args is the number of command line arguments the process was
	// started with, argv[0] included.
	Args int
}

// Layout holds the addresses recovered by Locate.
type Layout struct {
	// ArgcSlot is the address of the argc word.
	ArgcSlot uint64
	// Envp is the address of envp[0].
	Envp uint64
	// Auxv is the address of the first auxiliary vector entry.
	Auxv uint64
	// Args is the value found in the argc slot.
	Args int
}

// Argv returns the address of argv[i].
func (l *Layout) Argv(b *Block, i int) uint64 {
	return l.ArgcSlot + uint64(1+i)*uint64(b.PtrSize())
}

// Locate finds the auxiliary vector and the argc slot of st.
//
// The auxiliary vector is found by skipping every non-zero word starting at
// envp, and then the NULL that terminates envp. The argc slot is found
// Args+2 words before envp. Both walks assume the layout described in the
// package documentation; if the argc slot does not hold Args, or argv is
// not NULL terminated right before envp, Locate fails with
// ErrLayoutMismatch.
func Locate(st *Stack) (*Layout, error) {
	if st.Args < 1 {
		return nil, fmt.Errorf("%w: %d command line arguments", ErrLayoutMismatch, st.Args)
	}
	w := uint64(st.PtrSize())

	p := st.Envp
	for {
		v, err := st.Word(p)
		if err != nil {
			return nil, fmt.Errorf("looking for the end of envp: %w", err)
		}
		if v == 0 {
			break
		}
		p = st.Next(p)
	}
	l := &Layout{Envp: st.Envp, Auxv: st.Next(p), Args: st.Args}

	back := uint64(st.Args+2) * w
	if st.Envp < back {
		return nil, &BoundsError{Addr: st.Envp - back, Start: st.Start(), End: st.End()}
	}
	l.ArgcSlot = st.Envp - back

	argc, err := st.Word(l.ArgcSlot)
	if err != nil {
		return nil, fmt.Errorf("reading argc: %w", err)
	}
	if argc != uint64(st.Args) {
		return nil, fmt.Errorf("%w: argc slot at %#x holds %d, expected %d", ErrLayoutMismatch, l.ArgcSlot, argc, st.Args)
	}
	term, err := st.Word(st.Envp - w)
	if err != nil {
		return nil, fmt.Errorf("reading argv terminator: %w", err)
	}
	if term != 0 {
		return nil, fmt.Errorf("%w: argv is not NULL terminated at %#x", ErrLayoutMismatch, st.Envp-w)
	}
	return l, nil
}

// ReadVector decodes the auxiliary vector starting at addr, up to but
// excluding the AT_NULL terminator.
func ReadVector(b *Block, addr uint64) ([]Entry, error) {
	var r []Entry
	for {
		tag, err := b.Word(addr)
		if err != nil {
			return r, err
		}
		val, err := b.Word(b.Next(addr))
		if err != nil {
			return r, err
		}
		if Tag(tag) == AT_NULL {
			return r, nil
		}
		r = append(r, Entry{Tag(tag), val})
		addr = b.Next(b.Next(addr))
	}
}
