// Command kaubo is a thin driver over the compiler and VM. The lexer
// and parser that turn source text into an *ast.Module are external
// collaborators (spec.md §1) and aren't part of this module, so this
// driver exercises Compile/VM.Interpret against a small registry of
// hand-built example programs instead of real source files.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/kaubo-lang/kaubo/internal/ast"
	"github.com/kaubo-lang/kaubo/internal/kconfig"
	"github.com/kaubo-lang/kaubo/internal/vm"
)

// example is one named, self-checking program.
type example struct {
	name        string
	description string
	build       func() *ast.Module
	structInfo  map[string]vm.StructInfoInput
	want        string // expected Display(result); "" means don't check
}

func main() {
	trace := flag.Bool("trace", kconfig.TraceEnabled, "print disassembled bytecode before running (also via KAUBO_TRACE)")
	list := flag.Bool("list", false, "list available example programs and exit")
	all := flag.Bool("all", false, "run every example and report pass/fail")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: kaubo [-trace] [-all] [name]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs one of the built-in example programs.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	examples := registry()

	if *list {
		names := make([]string, 0, len(examples))
		for n := range examples {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Printf("%-10s %s\n", n, examples[n].description)
		}
		return
	}

	if *all {
		runAll(examples, *trace)
		return
	}

	name := "add"
	if flag.NArg() > 0 {
		name = flag.Arg(0)
	}
	ex, ok := examples[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "%s: no such example %q (try -list)\n", colorize(colorRed, "error"), name)
		os.Exit(1)
	}

	if code := runOne(ex, *trace, true); code != 0 {
		os.Exit(code)
	}
}

func runAll(examples map[string]*example, trace bool) {
	names := make([]string, 0, len(examples))
	for n := range examples {
		names = append(names, n)
	}
	sort.Strings(names)

	failures := 0
	for _, n := range names {
		if runOne(examples[n], trace, false) != 0 {
			failures++
		}
	}
	if failures > 0 {
		fmt.Printf("\n%s: %d of %d examples failed\n", colorize(colorRed, "FAIL"), failures, len(names))
		os.Exit(1)
	}
	fmt.Printf("\n%s: all %d examples produced their expected result\n", colorize(colorGreen, "PASS"), len(names))
}

// runOne compiles and interprets one example, printing its result (and
// disassembly, if requested). Returns a process exit code: 0 on
// success (and, when the example declares a `want`, only if the
// result matched it), 1 otherwise.
func runOne(ex *example, trace, verbose bool) int {
	mod := ex.build()
	machine := vm.New()

	chunk, localCount, shapes, err := vm.CompileWithStructInfo(mod, ex.structInfo, machine.Heap())
	if err != nil {
		fmt.Printf("%-10s %s %s\n", ex.name, colorize(colorRed, "compile error:"), err)
		return 1
	}
	for _, shape := range shapes {
		machine.RegisterShape(shape)
	}
	if err := machine.LoadChunk(chunk); err != nil {
		fmt.Printf("%-10s %s %s\n", ex.name, colorize(colorRed, "load error:"), err)
		return 1
	}

	if trace {
		fmt.Print(vm.Disassemble(chunk, ex.name, machine.Heap()))
	}

	result, err := machine.Interpret(chunk, localCount)
	if err != nil {
		fmt.Printf("%-10s %s %s\n", ex.name, colorize(colorRed, "runtime error:"), err)
		return 1
	}

	got := machine.Display(result)
	if ex.want == "" {
		if verbose {
			fmt.Printf("%-10s %s => %s\n", ex.name, ex.description, got)
		}
		return 0
	}
	if got != ex.want {
		fmt.Printf("%-10s %s got %s, want %s\n", ex.name, colorize(colorRed, "mismatch:"), got, ex.want)
		return 1
	}
	fmt.Printf("%-10s %s %s => %s\n", ex.name, colorize(colorGreen, "ok"), ex.description, got)
	return 0
}

// --- color support, mirroring the NO_COLOR / isatty detection the
// rest of the ecosystem uses for terminal output ---

const (
	colorRed   = "31"
	colorGreen = "32"
)

var (
	colorOnce    sync.Once
	colorEnabled bool
)

func colorize(code, s string) string {
	colorOnce.Do(func() {
		if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
			return
		}
		colorEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	})
	if !colorEnabled {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}
