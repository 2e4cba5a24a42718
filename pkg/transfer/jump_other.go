//go:build !(linux && 386)

package transfer

const supported = false

func jump(entry, sp uintptr) {
	panic(ErrUnsupported)
}
