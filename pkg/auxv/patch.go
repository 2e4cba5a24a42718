package auxv

import (
	"fmt"
)

// Image describes the program the argument block is rewritten for.
type Image struct {
	// PhdrAddress is the in-memory address of the program header table.
	PhdrAddress uint64
	// Entry is the entry point of the program.
	Entry uint64
}

type patch struct {
	addr, val uint64
}

// Patch rewrites the argument block located by l so that it describes img
// instead of the running program. It returns the address the stack
// pointer must hold when control reaches img.Entry.
//
// The first drop arguments after argv[0] (the loader's own arguments: the
// path of the image and any flags preceding it) are removed: the new argc,
// Args-drop, is written drop words after the old argc slot and argv[0] is
// moved into the word following it. Auxiliary vector entries are
// rewritten as follows:
//
//	AT_PHDR    img.PhdrAddress
//	AT_BASE    0, the image is not relocated
//	AT_ENTRY   img.Entry
//	AT_EXECFN  0, the string it referred to names the loader
//
// Every other entry, and the AT_NULL terminator, is left alone.
//
// All checks are made before the first write, so an error leaves the block
// untouched. Once Patch succeeds the block no longer describes the running
// program and there is no way back.
func Patch(st *Stack, l *Layout, img Image, drop int) (uint64, error) {
	if drop < 1 || drop >= l.Args {
		return 0, fmt.Errorf("cannot drop %d of %d arguments", drop, l.Args)
	}
	if st.PtrSize() == 4 && (img.PhdrAddress > 0xffffffff || img.Entry > 0xffffffff) {
		return 0, fmt.Errorf("image addresses %#x/%#x do not fit a 4 byte word", img.PhdrAddress, img.Entry)
	}

	argv0, err := st.Word(l.Argv(st.Block, 0))
	if err != nil {
		return 0, fmt.Errorf("reading argv[0]: %w", err)
	}
	sp := l.ArgcSlot + uint64(drop)*uint64(st.PtrSize())
	patches := []patch{
		{st.Next(sp), argv0},
		{sp, uint64(l.Args - drop)},
	}

	p := l.Auxv
	for {
		tag, err := st.Word(p)
		if err != nil {
			return 0, fmt.Errorf("walking auxiliary vector: %w", err)
		}
		val := st.Next(p)
		if _, err := st.Word(val); err != nil {
			return 0, fmt.Errorf("walking auxiliary vector: %w", err)
		}
		switch Tag(tag) {
		case AT_PHDR:
			patches = append(patches, patch{val, img.PhdrAddress})
		case AT_BASE:
			patches = append(patches, patch{val, 0})
		case AT_ENTRY:
			patches = append(patches, patch{val, img.Entry})
		case AT_EXECFN:
			patches = append(patches, patch{val, 0})
		}
		if Tag(tag) == AT_NULL {
			break
		}
		p = st.Next(val)
	}

	for _, pt := range patches {
		if err := st.SetWord(pt.addr, pt.val); err != nil {
			// Unreachable: every address was checked above.
			panic(fmt.Sprintf("argument block changed while patching: %v", err))
		}
	}
	return sp, nil
}
