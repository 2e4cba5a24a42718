package image

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenModes(t *testing.T) {
	data := []byte("\x7fELF some image bytes")
	path := writeTemp(t, data)

	modes := []Mode{ModeRead}
	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" || runtime.GOOS == "freebsd" {
		modes = append(modes, ModeMmap)
	}
	for _, mode := range modes {
		img, err := Open(path, mode)
		if err != nil {
			t.Fatalf("Open(%s): %v", mode, err)
		}
		if !bytes.Equal(img.Bytes(), data) {
			t.Errorf("%s: expected %q, got %q", mode, data, img.Bytes())
		}
		if img.Size() != len(data) || img.Path() != path {
			t.Errorf("%s: wrong size %d or path %q", mode, img.Size(), img.Path())
		}
		if err := img.Close(); err != nil {
			t.Errorf("%s: Close: %v", mode, err)
		}
		if img.Bytes() != nil {
			t.Errorf("%s: bytes still reachable after Close", mode)
		}
	}
}

func TestOpenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")
	for _, mode := range []Mode{ModeRead, ModeMmap} {
		_, err := Open(path, mode)
		if !errors.Is(err, ErrIO) {
			t.Fatalf("%s: expected ErrIO, got %v", mode, err)
		}
		var ioerr *IOError
		if !errors.As(err, &ioerr) || ioerr.Path != path {
			t.Fatalf("%s: expected *IOError for %q, got %#v", mode, path, err)
		}
	}
}

func TestMapEmpty(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("mmap reader exercised on linux only")
	}
	img, err := Map(writeTemp(t, nil))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	defer img.Close()
	if img.Size() != 0 {
		t.Fatalf("expected empty image, got %d bytes", img.Size())
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeRead, "read": ModeRead, "mmap": ModeMmap} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("stream"); err == nil {
		t.Errorf("expected an error for an unknown reader")
	}
}
