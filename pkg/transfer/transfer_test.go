package transfer

import (
	"errors"
	"runtime"
	"testing"
)

func TestSupported(t *testing.T) {
	want := runtime.GOOS == "linux" && runtime.GOARCH == "386"
	if Supported() != want {
		t.Fatalf("Supported() = %v on %s/%s", Supported(), runtime.GOOS, runtime.GOARCH)
	}
}

func TestNew(t *testing.T) {
	if !Supported() {
		if _, err := New(0x8049000, 0xbffff000); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		return
	}

	h, err := New(0x8049000, 0xbffff000)
	if err != nil {
		t.Fatal(err)
	}
	if h.Entry() != 0x8049000 || h.Stack() != 0xbffff000 || h.State() != Loaded {
		t.Fatalf("unexpected handoff %#x %#x %v", h.Entry(), h.Stack(), h.State())
	}

	for _, tc := range []struct {
		entry, sp uint64
	}{
		{0, 0xbffff000},
		{0x8049000, 0},
		{0x8049000, 0xbffff002},
		{0x8049000, 1 << 40},
		{1 << 40, 0xbffff000},
	} {
		if _, err := New(tc.entry, tc.sp); err == nil {
			t.Errorf("New(%#x, %#x): expected an error", tc.entry, tc.sp)
		}
	}
}

func TestTransferTwice(t *testing.T) {
	h := &Handoff{entry: 1, sp: 8, state: Transferred}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic transferring a handoff twice")
		}
	}()
	h.Transfer()
}

func TestStateString(t *testing.T) {
	if Loaded.String() != "loaded" || Transferred.String() != "transferred" || State(9).String() != "State(9)" {
		t.Fatalf("unexpected state names %v %v %v", Loaded, Transferred, State(9))
	}
}
