package hostenv

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"

	"github.com/uexec/uexec/pkg/auxv"
)

// TestCurrent checks that the live argument block is found and that the
// auxiliary vector read from it matches the one the kernel exports through
// procfs. Nothing is written.
func TestCurrent(t *testing.T) {
	st, err := Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if st.Args != len(os.Args) {
		t.Fatalf("expected %d arguments, got %d", len(os.Args), st.Args)
	}
	l, err := auxv.Locate(st)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	live, err := auxv.ReadVector(st.Block, l.Auxv)
	if err != nil {
		t.Fatalf("ReadVector: %v", err)
	}

	raw, err := os.ReadFile("/proc/self/auxv")
	if err != nil {
		t.Skipf("procfs auxv unavailable: %v", err)
	}
	exported, err := auxv.Entries(raw, ptrSize, binary.NativeEndian)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(exported, live); diff != "" {
		t.Fatalf("live auxiliary vector differs from /proc/self/auxv (-procfs +live):\n%s", diff)
	}
}

func TestReadMemory(t *testing.T) {
	src := []byte("program header table")
	got := make([]byte, len(src))
	if err := ReadMemory(uint64(uintptr(unsafe.Pointer(&src[0]))), got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("got %q, want %q", got, src)
	}
	// the first page is never mapped
	if err := ReadMemory(0x10, got); err == nil {
		t.Fatal("expected an error reading an unmapped address")
	}
}
