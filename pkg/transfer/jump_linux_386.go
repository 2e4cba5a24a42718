package transfer

const supported = true

// defaultAction is a kernel sigaction with handler SIG_DFL, no flags and an
// empty mask.
var defaultAction [5]uint32

// jump loads sp into ESP, resets the action of every signal to the default,
// restores startMask, clears EBX, ECX, EDX, EBP, ESI and EDI and jumps to
// entry, which is left in EAX. It does not return.
//
//go:noescape
func jump(entry, sp uintptr)
