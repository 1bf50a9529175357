// Command sprachli compiles and runs sprachli source files, or interprets
// pre-compiled bytecode modules, from the command line.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/SillyFreak/sprachli/bytecode"
	"github.com/SillyFreak/sprachli/compiler"
	"github.com/SillyFreak/sprachli/repl"
	"github.com/SillyFreak/sprachli/vm"
)

const version = "0.1.0"

// printUsage displays custom usage information.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `sprachli v%s

USAGE:
    %s [OPTIONS]
    %s compile <input.spr> <output.sprb>
    %s run <input>

DESCRIPTION:
    sprachli compiles source files (.spr) into bytecode modules (.sprb) and
    runs either one in a stack-based virtual machine. Without a subcommand,
    it starts an interactive REPL.

SUBCOMMANDS:
    compile <in> <out>      Compile a .spr source file into a .sprb module
    run <input>             Run a .spr source file or a .sprb bytecode module

OPTIONS:
    -v, --version           Show version information
    -h, --help               Show this help message

EXAMPLES:
    # Start interactive REPL
    %s

    # Compile source to bytecode
    %s compile program.spr program.sprb

    # Run source directly, or a pre-compiled module
    %s run program.spr
    %s run program.sprb

`, version, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	flag.Usage = printUsage
	versionFlag := flag.Bool("version", false, "Show version information")
	flag.BoolVar(versionFlag, "v", false, "Show version information")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("sprachli v%s\n", version)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		startREPL()
		return
	}

	switch args[0] {
	case "compile":
		if len(args) != 3 {
			printUsage()
			os.Exit(2)
		}
		cmdCompile(args[1], args[2])
	case "run":
		if len(args) != 2 {
			printUsage()
			os.Exit(2)
		}
		cmdRun(args[1])
	default:
		printUsage()
		os.Exit(2)
	}
}

func startREPL() {
	username := "unknown"
	if usr, err := user.Current(); err == nil {
		username = usr.Username
	}

	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		repl.StartInteractive(username, repl.Options{})
		return
	}

	fmt.Println("Hello", username+",", "welcome to sprachli!")
	fmt.Println("Feel free to type in sprachli code. (Ctrl+D or Ctrl+C to exit)")

	repl.Start(os.Stdin, os.Stdout)
}

// loadModule reads path and returns the bytecode module it describes,
// compiling it first if it's a source file (".spr") rather than an
// already-compiled bytecode module (".sprb").
func loadModule(path string) (*bytecode.Module, error) {
	cleaned := filepath.Clean(path)
	//nolint:gosec // the path comes from a trusted command-line argument
	content, err := os.ReadFile(cleaned)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", cleaned, err)
	}

	if strings.HasSuffix(cleaned, ".sprb") {
		m, err := bytecode.ParseModule(content)
		if err != nil {
			return nil, fmt.Errorf("parsing bytecode module %s: %w", cleaned, err)
		}
		return m, nil
	}

	m, err := compiler.CompileSource(string(content))
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", cleaned, err)
	}
	return m, nil
}

func cmdCompile(in, out string) {
	m, err := loadModule(in)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := os.WriteFile(out, bytecode.Encode(m), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %s\n", out, err)
		os.Exit(1)
	}
}

func cmdRun(in string) {
	m, err := loadModule(in)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	result, err := vm.New(m).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %s\n", err)
		os.Exit(1)
	}

	fmt.Println(result.String())
}
