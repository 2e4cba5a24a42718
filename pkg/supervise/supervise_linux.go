//go:build linux && (386 || amd64 || arm || arm64)

package supervise

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"unsafe"

	"github.com/prometheus/procfs"
	sys "golang.org/x/sys/unix"

	"github.com/uexec/uexec/pkg/logflags"
)

// Supported reports whether Run is implemented on this platform.
func Supported() bool { return true }

func ptraceGetSiginfo(pid int, info *[128]byte) error {
	_, _, e1 := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_GETSIGINFO, uintptr(pid), 0, uintptr(unsafe.Pointer(info)), 0, 0)
	if e1 != 0 {
		return e1
	}
	return nil
}

func readFault(pid int, sig syscall.Signal) (*Fault, error) {
	f := &Fault{Signal: sig}
	var info [128]byte
	if err := ptraceGetSiginfo(pid, &info); err != nil {
		return f, fmt.Errorf("PTRACE_GETSIGINFO: %w", err)
	}
	var err error
	f.Code, f.Addr, err = siginfoFault(info[:], int(unsafe.Sizeof(uintptr(0))), binary.NativeEndian)
	if err != nil {
		return f, err
	}
	var regs sys.PtraceRegs
	if err := sys.PtraceGetRegs(pid, &regs); err != nil {
		return f, fmt.Errorf("PTRACE_GETREGS: %w", err)
	}
	f.PC = regs.PC()
	return f, nil
}

// Run starts cmd as a traced child and waits for it to exit. cmd must not
// have been started. Signals stopping the child are delivered to it
// unchanged; faults are logged first. SIGTERM and SIGHUP received by the
// calling process are forwarded to the child. SIGINT and SIGQUIT are
// ignored by the caller while the child runs, the terminal delivers them to
// the child directly. Cancelling ctx kills the child.
func Run(ctx context.Context, cmd *exec.Cmd) (*Result, error) {
	logger := logflags.SupervisorLogger()

	// ptrace requests are only accepted from the thread that started the
	// tracee.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Ptrace = true
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL

	sigc := make(chan os.Signal, 4)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pid := cmd.Process.Pid
	logger.Debugf("started %s as %d", cmd.Path, pid)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				sys.Kill(pid, sys.SIGKILL)
				return
			case sig := <-sigc:
				if sig == syscall.SIGTERM || sig == syscall.SIGHUP {
					logger.Debugf("forwarding %v", sig)
					sys.Kill(pid, sig.(syscall.Signal))
				}
			}
		}
	}()

	res := &Result{}
	started := false
	for {
		var ws sys.WaitStatus
		wpid, err := sys.Wait4(pid, &ws, sys.WALL, nil)
		if errors.Is(err, sys.EINTR) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("waiting for %d: %w", pid, err)
		}
		if wpid != pid {
			continue
		}
		switch {
		case ws.Exited():
			res.ExitCode = ws.ExitStatus()
			logger.Debugf("%d exited with status %d", pid, res.ExitCode)
			return res, nil
		case ws.Signaled():
			res.ExitCode = signalExit(ws.Signal())
			logger.Debugf("%d killed by %v", pid, ws.Signal())
			return res, nil
		case !ws.Stopped():
			continue
		}

		sig := ws.StopSignal()
		if !started && sig == sys.SIGTRAP {
			// stop after the initial execve
			started = true
			if err := sys.PtraceSetOptions(pid, sys.PTRACE_O_EXITKILL|sys.PTRACE_O_TRACEEXEC|sys.PTRACE_O_TRACEEXIT); err != nil {
				logger.Warnf("setting ptrace options: %v", err)
			}
			sig = 0
		} else if sig == sys.SIGTRAP && ws.TrapCause() == sys.PTRACE_EVENT_EXEC {
			logger.Debugf("%d called execve", pid)
			sig = 0
		} else if sig == sys.SIGTRAP && ws.TrapCause() == sys.PTRACE_EVENT_EXIT {
			return exitGroup(pid, res, logger)
		} else if isFault(sig) {
			f, err := readFault(pid, sig)
			if err != nil {
				logger.Warnf("reading fault state: %v", err)
			}
			res.Fault = f
			logger.Errorf("%s: %v", cmd.Path, f)
		}
		if err := sys.PtraceCont(pid, int(sig)); err != nil {
			return nil, fmt.Errorf("resuming %d: %w", pid, err)
		}
	}
}

// exitGroup finishes a child whose main thread stopped in
// PTRACE_EVENT_EXIT. A program that calls exit instead of exit_group ends
// only its own thread and the runtime threads it was loaded into keep the
// process alive, so the rest of the thread group is killed and the status
// of the main thread is reported.
func exitGroup(pid int, res *Result, logger logflags.Logger) (*Result, error) {
	msg, err := sys.PtraceGetEventMsg(pid)
	if err != nil {
		return nil, fmt.Errorf("PTRACE_GETEVENTMSG: %w", err)
	}
	status := sys.WaitStatus(msg)
	switch {
	case status.Exited():
		res.ExitCode = status.ExitStatus()
	case status.Signaled():
		res.ExitCode = signalExit(status.Signal())
	}
	logger.WithField("pid", pid).Debugf("main thread exiting with status %d", res.ExitCode)

	sys.Kill(pid, sys.SIGKILL)
	sys.PtraceCont(pid, 0)
	for {
		var ws sys.WaitStatus
		_, err := sys.Wait4(pid, &ws, sys.WALL, nil)
		if errors.Is(err, sys.EINTR) {
			continue
		}
		if err != nil || ws.Exited() || ws.Signaled() {
			return res, nil
		}
		sys.PtraceCont(pid, 0)
	}
}

// Supervised reports whether the calling process was started by Run from
// the same executable: its tracer belongs to its parent process and the
// parent runs the same binary.
func Supervised() bool {
	raw, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return false
	}
	tracer := tracerPid(string(raw))
	if tracer <= 0 {
		return false
	}
	// TracerPid names the tracing thread.
	tp, err := procfs.NewProc(tracer)
	if err != nil {
		return false
	}
	st, err := tp.NewStatus()
	if err != nil || st.TGID != os.Getppid() {
		return false
	}
	parent, err := procfs.NewProc(st.TGID)
	if err != nil {
		return false
	}
	self, err := procfs.Self()
	if err != nil {
		return false
	}
	pexe, err := parent.Executable()
	if err != nil {
		return false
	}
	sexe, err := self.Executable()
	return err == nil && pexe == sexe
}
