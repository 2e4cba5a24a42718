package cmds

import (
	"bytes"
	"debug/elf"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/uexec/uexec/pkg/config"
	"github.com/uexec/uexec/pkg/elf32/elftest"
	"github.com/uexec/uexec/pkg/image"
)

func newTestCommand(t *testing.T) *bytes.Buffer {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	New(false)
	out := new(bytes.Buffer)
	rootCommand.SetOut(out)
	rootCommand.SetErr(out)
	return out
}

func TestUsage(t *testing.T) {
	out := newTestCommand(t)
	if status := execute(rootCommand, nil); status != 1 {
		t.Fatalf("expected exit status 1, got %d", status)
	}
	want := "Usage: " + os.Args[0] + " <filename>\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}

func TestLoaderArgs(t *testing.T) {
	for _, tc := range []struct {
		argv, args []string
		want       int
	}{
		{[]string{"uexec", "./prog"}, []string{"./prog"}, 1},
		{[]string{"uexec", "./prog", "a", "b"}, []string{"./prog", "a", "b"}, 1},
		{[]string{"uexec", "--map=false", "./prog", "a"}, []string{"./prog", "a"}, 2},
		{[]string{"uexec", "--log", "--log-output", "auxv", "./prog", "--map"}, []string{"./prog", "--map"}, 4},
		{[]string{"uexec", "--", "./prog"}, []string{"./prog"}, 2},
	} {
		if got := loaderArgs(tc.argv, tc.args); got != tc.want {
			t.Errorf("loaderArgs(%q, %q) = %d, want %d", tc.argv, tc.args, got, tc.want)
		}
	}
}

func TestFlagsStopAtImagePath(t *testing.T) {
	newTestCommand(t)
	fs := rootCommand.Flags()
	if err := fs.Parse([]string{"--map=false", "./prog", "--supervise=false", "x"}); err != nil {
		t.Fatal(err)
	}
	if got := fs.Args(); len(got) != 3 || got[0] != "./prog" || got[1] != "--supervise=false" {
		t.Fatalf("unexpected positional arguments %q", got)
	}
	if mapSegments || !superviseRun {
		t.Fatalf("flags after the image path were parsed")
	}
}

func TestResolveLoadOptions(t *testing.T) {
	newTestCommand(t)
	off := false
	c := &config.Config{ImageReader: "mmap", MapSegments: &off, DisasmCount: 3}

	opts, err := resolveLoadOptions(rootCommand.Flags(), c)
	if err != nil {
		t.Fatal(err)
	}
	if opts.reader != image.ModeMmap || opts.mapSegments || !opts.supervise || !opts.color || opts.disasm != 3 {
		t.Fatalf("config values not used: %+v", opts)
	}

	if err := rootCommand.Flags().Parse([]string{"--reader=read", "--map", "--supervise=false", "prog"}); err != nil {
		t.Fatal(err)
	}
	opts, err = resolveLoadOptions(rootCommand.Flags(), c)
	if err != nil {
		t.Fatal(err)
	}
	if opts.reader != image.ModeRead || !opts.mapSegments || opts.supervise {
		t.Fatalf("flags do not override the config: %+v", opts)
	}

	if _, err := resolveLoadOptions(rootCommand.Flags(), &config.Config{}); err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if err := rootCommand.Flags().Parse([]string{"--reader=bogus"}); err != nil {
		t.Fatal(err)
	}
	if _, err := resolveLoadOptions(rootCommand.Flags(), c); err == nil {
		t.Fatalf("--reader=bogus accepted")
	}
}

func TestInfo(t *testing.T) {
	out := newTestCommand(t)
	img := elftest.Image{
		Entry: 0x08048054,
		Progs: []elftest.Prog{
			{Type: elf.PT_LOAD, Vaddr: 0x08048000, Off: 0, Filesz: 0x60, Memsz: 0x60, Flags: elf.PF_R | elf.PF_X, Align: 0x1000},
		},
		// xor %ebx,%ebx; mov $1,%eax; int $0x80
		Body: map[uint32][]byte{0x54: {0x31, 0xdb, 0xb8, 0x01, 0x00, 0x00, 0x00, 0xcd, 0x80}},
	}
	path := filepath.Join(t.TempDir(), "prog")
	if err := os.WriteFile(path, img.Build(), 0o755); err != nil {
		t.Fatal(err)
	}

	rootCommand.SetArgs([]string{"info", "--disasm=2", "--reader=mmap", path})
	if err := rootCommand.Execute(); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	for _, want := range []string{
		"0\t0x8048000\t96\t0x0\t96\tr-x\n",
		"Base address 0x8048000\n",
		"Entry point 0x8048054\n",
		"0x8048054\t31 db\txor",
		"0x8048056\tb8 01 00 00 00\tmov",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output does not contain %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "cd 80") {
		t.Errorf("more than 2 instructions disassembled:\n%s", s)
	}
}

func TestInfoMissingFile(t *testing.T) {
	newTestCommand(t)
	rootCommand.SetArgs([]string{"info", filepath.Join(t.TempDir(), "missing")})
	if err := rootCommand.Execute(); err == nil {
		t.Fatal("expected an error")
	}
}

func TestAuxv(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux only")
	}
	out := newTestCommand(t)
	rootCommand.SetArgs([]string{"auxv"})
	if err := rootCommand.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"AT_PAGESZ", "AT_PHDR", "AT_ENTRY"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output does not contain %s:\n%s", want, out.String())
		}
	}
}

func TestVersion(t *testing.T) {
	out := newTestCommand(t)
	rootCommand.SetArgs([]string{"version"})
	if err := rootCommand.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "uexec\nVersion: ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestConfigLogging(t *testing.T) {
	newTestCommand(t)
	dest := filepath.Join(t.TempDir(), "log")
	rootCommand.SetArgs([]string{"--log", "--log-output=config", "--log-dest=" + dest, "version"})
	if err := rootCommand.Execute(); err != nil {
		t.Fatal(err)
	}
	buf, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(buf), "layer=config") || !strings.Contains(string(buf), "config.yml") {
		t.Fatalf("config loading not logged:\n%s", buf)
	}
	if conf == nil {
		t.Fatal("config not loaded")
	}
}
