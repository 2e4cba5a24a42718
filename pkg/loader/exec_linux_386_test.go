package loader

import (
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/uexec/uexec/pkg/elf32/elftest"
	"github.com/uexec/uexec/pkg/image"
	"github.com/uexec/uexec/pkg/supervise"
)

const execEnv = "UEXEC_LOADER_TEST_IMAGE"

func init() {
	// the argument block is on the stack of the main thread
	runtime.LockOSThread()
}

func TestMain(m *testing.M) {
	if path := os.Getenv(execEnv); path != "" {
		l := New(Config{Reader: image.ModeRead, MapSegments: true})
		p, err := l.Open(path)
		if err == nil {
			err = l.Exec(p, 1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(100)
	}
	os.Exit(m.Run())
}

const execBase = 0x5a6b0000

// codeImage returns a single segment image running code, which starts right
// after the program header table.
func codeImage(code []byte) elftest.Image {
	return elftest.Image{
		Entry: execBase + 0x54,
		Progs: []elftest.Prog{
			{Type: elf.PT_LOAD, Vaddr: execBase, Off: 0, Filesz: 0x100, Memsz: 0x100, Flags: elf.PF_R | elf.PF_X, Align: 0x1000},
		},
		Body: map[uint32][]byte{0x54: code},
	}
}

func execCommand(t *testing.T, ctx context.Context, code []byte) *exec.Cmd {
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^$")
	cmd.Env = append(os.Environ(), execEnv+"="+writeImage(t, codeImage(code)))
	cmd.Stderr = os.Stderr
	return cmd
}

// exit status 1 when %ebx is not zero, 0 otherwise
var exitNonzeroEBX = []byte{
	0x85, 0xdb, // test %ebx,%ebx
	0x0f, 0x95, 0xc3, // setne %bl
	0x0f, 0xb6, 0xdb, // movzbl %bl,%ebx
	0xb8, 0xfc, 0x00, 0x00, 0x00, // mov $252,%eax
	0xcd, 0x80, // int $0x80
}

func TestExecSignalState(t *testing.T) {
	if os.Getpagesize() != 0x1000 {
		t.Skipf("page size %#x", os.Getpagesize())
	}
	for _, tc := range []struct {
		name string
		code []byte
	}{
		{"empty mask", append([]byte{
			0xb8, 0xaf, 0x00, 0x00, 0x00, // mov $175,%eax (rt_sigprocmask)
			0x31, 0xdb, // xor %ebx,%ebx
			0x31, 0xc9, // xor %ecx,%ecx
			0x83, 0xec, 0x08, // sub $8,%esp
			0x89, 0xe2, // mov %esp,%edx
			0xbe, 0x08, 0x00, 0x00, 0x00, // mov $8,%esi
			0xcd, 0x80, // int $0x80
			0x8b, 0x1c, 0x24, // mov (%esp),%ebx
			0x0b, 0x5c, 0x24, 0x04, // or 4(%esp),%ebx
		}, exitNonzeroEBX...)},
		{"default SIGSEGV action", append([]byte{
			0xb8, 0xae, 0x00, 0x00, 0x00, // mov $174,%eax (rt_sigaction)
			0xbb, 0x0b, 0x00, 0x00, 0x00, // mov $11,%ebx
			0x31, 0xc9, // xor %ecx,%ecx
			0x83, 0xec, 0x14, // sub $20,%esp
			0x89, 0xe2, // mov %esp,%edx
			0xbe, 0x08, 0x00, 0x00, 0x00, // mov $8,%esi
			0xcd, 0x80, // int $0x80
			0x8b, 0x1c, 0x24, // mov (%esp),%ebx
		}, exitNonzeroEBX...)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			if err := execCommand(t, ctx, tc.code).Run(); err != nil {
				t.Fatalf("loaded program: %v", err)
			}
		})
	}
}

func TestExecThreadExit(t *testing.T) {
	if os.Getpagesize() != 0x1000 {
		t.Skipf("page size %#x", os.Getpagesize())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	cmd := execCommand(t, context.Background(), []byte{
		0xb8, 0x01, 0x00, 0x00, 0x00, // mov $1,%eax (exit)
		0xbb, 0x07, 0x00, 0x00, 0x00, // mov $7,%ebx
		0xcd, 0x80, // int $0x80
	})
	res, err := supervise.Run(ctx, cmd)
	if errors.Is(err, syscall.EPERM) {
		t.Skipf("ptrace not permitted: %v", err)
	}
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 7 {
		t.Fatalf("expected exit status 7, got %+v", res)
	}
}
