package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/ravilang/ravijit"
	"github.com/ravilang/ravijit/internal/native"
	"github.com/ravilang/ravijit/internal/samples"
	"github.com/ravilang/ravijit/internal/version"
	"github.com/ravilang/ravijit/vm"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, exit func(code int)) {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "print usage")

	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
	}

	subCmd := flag.Arg(0)
	switch subCmd {
	case "run":
		doRun(flag.Args()[1:], stdOut, stdErr, exit)
	case "dump-ir":
		doDump(subCmd, flag.Args()[1:], stdOut, stdErr, exit)
	case "dump-asm":
		doDump(subCmd, flag.Args()[1:], stdOut, stdErr, exit)
	case "symbols":
		doSymbols(stdOut)
		exit(0)
	case "backends":
		doBackends(stdOut)
		exit(0)
	case "version":
		fmt.Fprintln(stdOut, version.GetRavijitVersion())
		exit(0)
	default:
		fail(stdErr, "invalid command")
		printUsage(stdErr)
		exit(1)
	}
}

// fail prints an error line in red when stdErr is a terminal.
func fail(stdErr io.Writer, format string, args ...interface{}) {
	_, _ = color.New(color.FgRed).Fprintf(stdErr, format+"\n", args...)
}

// jitFlags are the flags shared by every command which initializes the JIT.
type jitFlags struct {
	configPath   string
	backend      string
	verbosity    uint
	optLevel     int
	validate     bool
	auto         bool
	minExecCount int
	minCodeSize  int
}

func (f *jitFlags) register(flags *flag.FlagSet) {
	flags.StringVar(&f.configPath, "config", "", "path to a TOML file with a [jit] table")
	flags.StringVar(&f.backend, "backend", "", "native backend, see the backends command")
	flags.UintVar(&f.verbosity, "verbosity", 0, "0: quiet, 1: compile failures, 2: every compilation")
	flags.IntVar(&f.optLevel, "opt", -1, "code generator optimization level")
	flags.BoolVar(&f.validate, "validate", false, "validate generated programs")
	flags.BoolVar(&f.auto, "auto", false, "compile functions automatically once they cross a threshold")
	flags.IntVar(&f.minExecCount, "min-exec-count", -1, "calls before a function is compiled in auto mode")
	flags.IntVar(&f.minCodeSize, "min-code-size", -1, "size above which a function is compiled on its first call in auto mode")
}

// config loads the config file, if any, and applies the flags on top.
func (f *jitFlags) config(stdErr io.Writer) (*ravijit.Config, error) {
	c := ravijit.NewConfig()
	if f.configPath != "" {
		var err error
		if c, err = ravijit.LoadConfig(f.configPath); err != nil {
			return nil, err
		}
	}
	c = c.WithDiagnostics(stdErr)
	if f.backend != "" {
		c = c.WithBackend(f.backend)
	}
	if f.verbosity > 0 {
		c = c.WithVerbosity(uint8(f.verbosity))
	}
	if f.optLevel >= 0 {
		c = c.WithOptLevel(uint8(f.optLevel))
	}
	if f.validate {
		c = c.WithValidation(true)
	}
	if f.auto {
		c = c.WithAutoMode(true)
	}
	if f.minExecCount >= 0 {
		c = c.WithMinExecCount(uint32(f.minExecCount))
	}
	if f.minCodeSize >= 0 {
		c = c.WithMinCodeSize(uint32(f.minCodeSize))
	}
	return c, nil
}

func doRun(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	var manual bool
	flags.BoolVar(&manual, "manual", false, "compile the program before the first call")

	var count int
	flags.IntVar(&count, "count", 1, "number of calls")

	var jf jitFlags
	jf.register(flags)

	_ = flags.Parse(args)

	if help {
		printRunUsage(stdErr, flags)
		exit(0)
	}

	prog, ok := lookupProgram(flags, stdErr)
	if !ok {
		printRunUsage(stdErr, flags)
		exit(1)
		return
	}
	callArgs := prog.Args
	if flags.NArg() > 1 {
		callArgs = parseArgs(flags.Args()[1:])
	}

	config, err := jf.config(stdErr)
	if err != nil {
		fail(stdErr, "error loading config: %v", err)
		exit(1)
		return
	}

	g := vm.NewGlobal()
	jit, err := ravijit.Initialize(g, config)
	if err != nil {
		fail(stdErr, "error initializing jit: %v", err)
		exit(1)
		return
	}
	defer func() { _ = jit.Shutdown() }()

	st := vm.NewState(g)
	defer st.Close()

	p := prog.New()
	if manual {
		jit.Compile(p, ravijit.CompileRequest{Manual: true})
	}

	var ret []vm.Value
	for i := 0; i < count; i++ {
		if ret, err = st.Call(p, callArgs...); err != nil {
			fail(stdErr, "error running %s: %v", prog.Name, err)
			exit(1)
			return
		}
	}

	strs := make([]string, len(ret))
	for i, v := range ret {
		strs[i] = v.String()
	}
	fmt.Fprintln(stdOut, strings.Join(strs, "\t"))
	fmt.Fprintf(stdOut, "%s: %s\n", prog.Name, p.Artifact().Status())
	exit(0)
}

func doDump(subCmd string, args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet(subCmd, flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	var jf jitFlags
	jf.register(flags)

	_ = flags.Parse(args)

	if help {
		printDumpUsage(stdErr, subCmd, flags)
		exit(0)
	}

	prog, ok := lookupProgram(flags, stdErr)
	if !ok {
		printDumpUsage(stdErr, subCmd, flags)
		exit(1)
		return
	}

	config, err := jf.config(stdErr)
	if err != nil {
		fail(stdErr, "error loading config: %v", err)
		exit(1)
		return
	}
	jit, err := ravijit.Initialize(vm.NewGlobal(), config)
	if err != nil {
		fail(stdErr, "error initializing jit: %v", err)
		exit(1)
		return
	}
	defer func() { _ = jit.Shutdown() }()

	dump := jit.DumpIR
	if subCmd == "dump-asm" {
		dump = jit.DumpASM
	}
	if err = dump(stdOut, prog.New()); err != nil {
		fail(stdErr, "error dumping %s: %v", prog.Name, err)
		exit(1)
		return
	}
	exit(0)
}

// lookupProgram resolves the first positional argument to a sample program.
func lookupProgram(flags *flag.FlagSet, stdErr io.Writer) (samples.Program, bool) {
	if flags.NArg() < 1 {
		fail(stdErr, "missing program name")
		return samples.Program{}, false
	}
	prog, ok := samples.Lookup(flags.Arg(0))
	if !ok {
		fail(stdErr, "unknown program %q", flags.Arg(0))
		return samples.Program{}, false
	}
	return prog, true
}

// parseArgs converts command line arguments to integers, then numbers, and
// leaves everything else as strings.
func parseArgs(args []string) []vm.Value {
	ret := make([]vm.Value, len(args))
	for i, a := range args {
		if n, err := strconv.ParseInt(a, 10, 64); err == nil {
			ret[i] = vm.Int(n)
		} else if f, err := strconv.ParseFloat(a, 64); err == nil {
			ret[i] = vm.Float(f)
		} else {
			ret[i] = vm.String(a)
		}
	}
	return ret
}

func doSymbols(stdOut io.Writer) {
	w := tabwriter.NewWriter(stdOut, 0, 8, 2, ' ', 0)
	for _, s := range vm.Registry().Symbols() {
		fmt.Fprintf(w, "%s\t%s\n", s.Name, s.Signature)
	}
	_ = w.Flush()
}

func doBackends(stdOut io.Writer) {
	def := native.Default()
	for _, name := range native.Backends() {
		if name == def {
			fmt.Fprintf(stdOut, "%s (default)\n", name)
		} else {
			fmt.Fprintln(stdOut, name)
		}
	}
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "ravijit CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  ravijit <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  run\t\tRuns a sample program")
	fmt.Fprintln(stdErr, "  dump-ir\tPrints the code generated for a sample program")
	fmt.Fprintln(stdErr, "  dump-asm\tPrints the amd64 listing of a sample program")
	fmt.Fprintln(stdErr, "  symbols\tLists the primitives generated code links against")
	fmt.Fprintln(stdErr, "  backends\tLists the native backends compiled in")
	fmt.Fprintln(stdErr, "  version\tDisplays the version of ravijit CLI")
}

func printPrograms(stdErr io.Writer) {
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Programs:")
	for _, name := range samples.Names() {
		prog, _ := samples.Lookup(name)
		fmt.Fprintf(stdErr, "  %s\t%s\n", name, prog.Description)
	}
}

func printRunUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "ravijit CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  ravijit run <options> <program> [<args>]")
	printPrograms(stdErr)
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

func printDumpUsage(stdErr io.Writer, subCmd string, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "ravijit CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintf(stdErr, "Usage:\n  ravijit %s <options> <program>\n", subCmd)
	printPrograms(stdErr)
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
