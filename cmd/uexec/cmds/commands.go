package cmds

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/uexec/uexec/pkg/auxv"
	"github.com/uexec/uexec/pkg/config"
	"github.com/uexec/uexec/pkg/diag"
	"github.com/uexec/uexec/pkg/image"
	"github.com/uexec/uexec/pkg/loader"
	"github.com/uexec/uexec/pkg/logflags"
	"github.com/uexec/uexec/pkg/supervise"
	"github.com/uexec/uexec/pkg/transfer"
	"github.com/uexec/uexec/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string

	// reader selects how the image file is read.
	reader string
	// mapSegments maps the loadable segments before starting the image.
	mapSegments bool
	// superviseRun runs the image under the fault supervisor.
	superviseRun bool
	// color enables colored diagnostics.
	color bool
	// disasmCount is the number of instructions printed by info.
	disasmCount int

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const uexecCommandLongDesc = `uexec loads a statically linked 32-bit ELF executable into its own
process and transfers control to it.

The program header table of the image is printed to standard error, the
auxiliary vector of the process is rewritten to describe the image, the
arguments that belong to uexec are removed from the argument block and the
image is entered with a clean register state. Every argument after the
image path is passed to the loaded program:

	uexec ./hello one two

Flags for uexec must come before the image path. An image whose path is
the name of a subcommand must be given with a directory, as in ./info.`

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	rootCommand = &cobra.Command{
		Use:           "uexec [flags] <elf-file> [program args...]",
		Short:         "uexec loads and starts 32-bit ELF executables in place.",
		Long:          uexecCommandLongDesc,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Logging first, so that loading the config can be logged.
			if err := logflags.Setup(log, logOutput, logDest); err != nil {
				return err
			}
			conf = config.LoadConfig()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logflags.Close()
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(execute(cmd, args))
		},
	}
	rootCommand.Flags().SetInterspersed(false)

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'uexec help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'uexec help log').")

	addLoadFlags(rootCommand.Flags())

	// 'info' subcommand.
	infoCommand := &cobra.Command{
		Use:   "info <elf-file>",
		Short: "Prints the program headers and the code at the entry point.",
		Long: `Parses an image without loading it, prints its program header table, its
base address and entry point, and disassembles the first instructions at the
entry point (see --disasm).`,
		Args: cobra.ExactArgs(1),
		RunE: infoCmd,
	}
	addLoadFlags(infoCommand.Flags())
	infoCommand.Flags().IntVar(&disasmCount, "disasm", 8, "Number of instructions to disassemble at the entry point.")
	rootCommand.AddCommand(infoCommand)

	// 'auxv' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "auxv",
		Short: "Prints the auxiliary vector of the uexec process.",
		Args:  cobra.NoArgs,
		RunE:  auxvCmd,
	})

	// 'version' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "uexec\n%s\n", version.String())
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:

	loader		Log image parsing, segment mapping and load decisions
	auxv		Log the argument block layout and the patched auxiliary vector
	transfer	Log the final state before control is transferred
	supervisor	Log the fault supervisor
	config		Log configuration loading

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func addLoadFlags(fs *pflag.FlagSet) {
	fs.StringVar(&reader, "reader", string(image.ModeRead), `How the image file is read, "read" or "mmap".`)
	fs.BoolVar(&mapSegments, "map", true, "Map the loadable segments of the image at their virtual addresses.")
	fs.BoolVar(&superviseRun, "supervise", true, "Run the image under a supervisor that reports hardware faults.")
	fs.BoolVar(&color, "color", true, "Color diagnostics printed to a terminal.")
}

// loadOptions are the load flags merged with the configuration file.
type loadOptions struct {
	reader      image.Mode
	mapSegments bool
	supervise   bool
	color       bool
	disasm      int
}

// resolveLoadOptions returns the value of every load flag, taken from the
// configuration file unless the flag was given on the command line.
func resolveLoadOptions(fs *pflag.FlagSet, c *config.Config) (loadOptions, error) {
	opts := loadOptions{
		mapSegments: c.MapSegmentsOrDefault(),
		supervise:   c.SuperviseOrDefault(),
		color:       c.ColorOrDefault(),
		disasm:      8,
	}
	readerName := c.ImageReader
	if fs.Changed("reader") {
		readerName = reader
	}
	if fs.Changed("map") {
		opts.mapSegments = mapSegments
	}
	if fs.Changed("supervise") {
		opts.supervise = superviseRun
	}
	if fs.Changed("color") {
		opts.color = color
	}
	if c.DisasmCount > 0 {
		opts.disasm = c.DisasmCount
	}
	if fs.Lookup("disasm") != nil && fs.Changed("disasm") {
		opts.disasm = disasmCount
	}
	var err error
	opts.reader, err = image.ParseMode(readerName)
	return opts, err
}

// loaderArgs returns how many entries of argv, after argv[0], belong to
// uexec: every flag and the image path. args are the positional arguments
// cobra extracted from argv, the image path first.
func loaderArgs(argv, args []string) int {
	return len(argv) - len(args)
}

func execute(cmd *cobra.Command, args []string) int {
	stderr := cmd.ErrOrStderr()
	if len(args) == 0 {
		fmt.Fprintf(stderr, "Usage: %s <filename>\n", os.Args[0])
		return 1
	}

	// Run exits without returning to cobra.
	defer logflags.Close()

	if conf == nil {
		conf = &config.Config{}
	}
	opts, err := resolveLoadOptions(cmd.Flags(), conf)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	if opts.supervise && !supervise.Supervised() {
		if supervise.Supported() {
			return runSupervised(stderr)
		}
		logflags.SupervisorLogger().Warnf("fault supervision is not available on this platform")
	}

	l := loader.New(loader.Config{Reader: opts.reader, MapSegments: opts.mapSegments})
	p, err := l.Open(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	if err := diag.PrintSegments(diag.NewWriter(os.Stderr, opts.color), p.Descriptor); err != nil {
		logflags.LoaderLogger().Warnf("printing program headers: %v", err)
	}

	err = l.Exec(p, loaderArgs(os.Args, args))
	p.Close()
	fmt.Fprintf(stderr, "%v\n", err)
	return 1
}

// runSupervised starts this executable again, with the same arguments,
// under the fault supervisor and returns its exit status.
func runSupervised(stderr io.Writer) int {
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	child := exec.Command(self, os.Args[1:]...)
	child.Args[0] = os.Args[0]
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	res, err := supervise.Run(context.Background(), child)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	return res.ExitCode
}

func infoCmd(cmd *cobra.Command, args []string) error {
	opts, err := resolveLoadOptions(cmd.Flags(), conf)
	if err != nil {
		return err
	}
	l := loader.New(loader.Config{Reader: opts.reader})
	p, err := l.Open(args[0])
	if err != nil {
		return err
	}
	defer p.Close()

	out := &diag.Writer{Writer: cmd.OutOrStdout()}
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		out = diag.NewWriter(f, opts.color)
	}
	if err := diag.PrintSegments(out, p.Descriptor); err != nil {
		return err
	}
	if err := l.Check(p); err != nil {
		fmt.Fprintf(out, "Cannot be started here: %v\n", err)
	}
	if opts.disasm <= 0 {
		return nil
	}
	fmt.Fprintln(out)
	err = diag.Disassemble(out, p.Descriptor, p.Bytes(), opts.disasm)
	if errors.Is(err, diag.ErrNoCode) {
		fmt.Fprintf(out, "No code at the entry point: %v\n", err)
		return nil
	}
	return err
}

func auxvCmd(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile("/proc/self/auxv")
	if err != nil {
		return err
	}
	vec, err := auxv.Entries(raw, transfer.PtrSize, binary.NativeEndian)
	if err != nil {
		return err
	}
	for _, e := range vec {
		fmt.Fprintf(cmd.OutOrStdout(), "%-16v %#x\n", e.Tag, e.Value)
	}
	return nil
}
