package transfer

import (
	sys "golang.org/x/sys/unix"
)

// startMask is the signal mask of the thread that ran package
// initialization, restored by jump for the new program.
var startMask sys.Sigset_t

func init() {
	if err := sys.PthreadSigmask(sys.SIG_BLOCK, nil, &startMask); err != nil {
		startMask = sys.Sigset_t{}
	}
}

// blockSignals blocks every blockable signal on the calling thread.
func blockSignals() error {
	var all sys.Sigset_t
	for i := range all.Val {
		all.Val[i] = ^all.Val[i]
	}
	return sys.PthreadSigmask(sys.SIG_SETMASK, &all, nil)
}
