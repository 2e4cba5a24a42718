// Package supervise runs a command as a traced child and reports the
// hardware faults it dies of.
//
// The loaded program runs in the process that loaded it, so a crash takes
// the loader down with it. uexec re-executes itself under a supervisor: the
// supervisor forwards every signal the child receives, and when the child
// stops for SIGSEGV, SIGBUS, SIGILL or SIGFPE it logs the faulting address
// and program counter before letting the signal through.
package supervise

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"syscall"
)

// Fault describes a fault signal received by the child.
type Fault struct {
	Signal syscall.Signal
	Code   int32
	Addr   uint64
	PC     uint64
}

func (f *Fault) String() string {
	return fmt.Sprintf("%v (code %d) at %#x, pc %#x", f.Signal, f.Code, f.Addr, f.PC)
}

// Result is the outcome of a supervised run.
type Result struct {
	// ExitCode is the exit status of the child, or 128 plus the signal
	// number when the child was killed by a signal.
	ExitCode int
	// Fault is the last fault signal delivered to the child, if any.
	Fault *Fault
}

func isFault(sig syscall.Signal) bool {
	switch sig {
	case syscall.SIGSEGV, syscall.SIGBUS, syscall.SIGILL, syscall.SIGFPE:
		return true
	}
	return false
}

// siginfoFault decodes the fields of a siginfo_t that matter for a fault:
// si_code and si_addr. si_addr follows si_signo, si_errno and si_code,
// aligned to the word size.
func siginfoFault(info []byte, ptrSize int, order binary.ByteOrder) (code int32, addr uint64, err error) {
	off := 12
	if ptrSize == 8 {
		off = 16
	}
	if len(info) < off+ptrSize {
		return 0, 0, fmt.Errorf("siginfo too short: %d bytes", len(info))
	}
	code = int32(order.Uint32(info[8:]))
	switch ptrSize {
	case 4:
		addr = uint64(order.Uint32(info[off:]))
	case 8:
		addr = order.Uint64(info[off:])
	default:
		return 0, 0, fmt.Errorf("unsupported word size %d", ptrSize)
	}
	return code, addr, nil
}

func signalExit(sig syscall.Signal) int {
	return 128 + int(sig)
}

// tracerPid returns the TracerPid field of a /proc/<pid>/status file, 0
// when the process is not traced or the field is missing.
func tracerPid(status string) int {
	sc := bufio.NewScanner(strings.NewReader(status))
	for sc.Scan() {
		v, ok := strings.CutPrefix(sc.Text(), "TracerPid:")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
