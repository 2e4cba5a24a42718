package hostenv

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"github.com/prometheus/procfs"
	sys "golang.org/x/sys/unix"

	"github.com/uexec/uexec/pkg/auxv"
	"github.com/uexec/uexec/pkg/logflags"
)

const ptrSize = int(unsafe.Sizeof(uintptr(0)))

// Current returns a handle on the argument block of the running process.
//
// The block is the [stack] mapping containing startstack; argc is read from
// startstack and envp is taken to start argc+2 words after it. The
// returned Stack writes directly to process memory.
func Current() (*auxv.Stack, error) {
	logger := logflags.AuxvLogger()

	start, err := readStartStack()
	if err != nil {
		return nil, err
	}

	p, err := procfs.Self()
	if err != nil {
		return nil, err
	}
	maps, err := p.ProcMaps()
	if err != nil {
		return nil, err
	}
	var stack *procfs.ProcMap
	for _, m := range maps {
		if uint64(m.StartAddr) <= start && start < uint64(m.EndAddr) {
			stack = m
			break
		}
	}
	if stack == nil {
		return nil, fmt.Errorf("%w: startstack %#x is not mapped", ErrNoStack, start)
	}
	if stack.Pathname != "[stack]" {
		return nil, fmt.Errorf("%w: startstack %#x is in %q", ErrNoStack, start, stack.Pathname)
	}
	logger.Debugf("initial stack %#x-%#x, startstack %#x", stack.StartAddr, stack.EndAddr, start)

	mem := unsafe.Slice((*byte)(unsafe.Pointer(stack.StartAddr)), stack.EndAddr-stack.StartAddr)
	b, err := auxv.NewBlock(uint64(stack.StartAddr), mem, ptrSize, binary.NativeEndian)
	if err != nil {
		return nil, err
	}
	argc, err := b.Word(start)
	if err != nil {
		return nil, err
	}
	envp := start + (argc+2)*uint64(ptrSize)
	logger.Debugf("argc %d, envp %#x", argc, envp)

	return &auxv.Stack{Block: b, Envp: envp, Args: len(os.Args)}, nil
}

// ReadMemory copies the memory of the running process at addr into buf.
// An unmapped address fails with an error instead of a fault.
func ReadMemory(addr uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	local := []sys.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []sys.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := sys.ProcessVMReadv(os.Getpid(), local, remote, 0)
	if err != nil {
		return fmt.Errorf("reading %#x: %w", addr, err)
	}
	if n != len(buf) {
		return fmt.Errorf("reading %#x: read %d of %d bytes", addr, n, len(buf))
	}
	return nil
}
