// Package transfer hands the CPU over to a program whose image and
// argument block have already been prepared.
//
// The transfer is one way. The register state at the destination matches
// what the kernel gives a freshly started process: the stack pointer
// refers to argc, every general purpose register not used to carry the
// jump target is zero, and no return address is pushed.
package transfer

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"unsafe"

	"github.com/uexec/uexec/pkg/logflags"
)

// ErrUnsupported is returned by New on platforms without a jump
// implementation.
var ErrUnsupported = fmt.Errorf("control transfer not supported on %s/%s", runtime.GOOS, runtime.GOARCH)

// PtrSize is the size of a word on the platform.
const PtrSize = int(unsafe.Sizeof(uintptr(0)))

// State of a Handoff.
type State uint8

const (
	// Loaded means the handoff is validated and has not run.
	Loaded State = iota
	// Transferred means control has left the loader. It is only ever
	// observable from a debugger.
	Transferred
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Transferred:
		return "transferred"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Handoff is a validated pair of entry point and stack pointer.
type Handoff struct {
	entry uintptr
	sp    uintptr
	state State
}

// Supported returns true if the platform can transfer control.
func Supported() bool {
	return supported
}

// New validates entry and sp. All recoverable checks are made here; once
// New succeeds the only thing left to do with the Handoff is Transfer.
func New(entry, sp uint64) (*Handoff, error) {
	if !supported {
		return nil, ErrUnsupported
	}
	if entry == 0 {
		return nil, errors.New("entry point is zero")
	}
	if sp == 0 || sp%uint64(PtrSize) != 0 {
		return nil, fmt.Errorf("stack pointer %#x is not aligned to %d bytes", sp, PtrSize)
	}
	if uint64(uintptr(entry)) != entry || uint64(uintptr(sp)) != sp {
		return nil, fmt.Errorf("entry %#x or stack %#x does not fit a %d byte word", entry, sp, PtrSize)
	}
	return &Handoff{entry: uintptr(entry), sp: uintptr(sp)}, nil
}

// Entry returns the address control is transferred to.
func (h *Handoff) Entry() uint64 { return uint64(h.entry) }

// Stack returns the stack pointer the program starts with.
func (h *Handoff) Stack() uint64 { return uint64(h.sp) }

// State returns the state of the handoff.
func (h *Handoff) State() State { return h.state }

// Transfer jumps to the entry point and never returns.
//
// The calling goroutine must be running on the thread whose initial stack
// holds the argument block (see cmd/uexec, which locks the main goroutine
// to the main thread from init). Before the jump the garbage collector is
// stopped and every signal is blocked on the thread so that the runtime
// does not interrupt the new program. The jump itself resets every signal
// action to the default and restores the signal mask the process started
// with.
func (h *Handoff) Transfer() {
	if h.state != Loaded {
		panic(fmt.Sprintf("transfer: handoff already %v", h.state))
	}
	runtime.LockOSThread()
	debug.SetGCPercent(-1)

	if err := blockSignals(); err != nil {
		logflags.TransferLogger().Warnf("could not block signals: %v", err)
	}

	logflags.TransferLogger().Debugf("jumping to %#x with stack %#x", h.entry, h.sp)
	h.state = Transferred
	jump(h.entry, h.sp)
	panic("transfer: returned from jump")
}
