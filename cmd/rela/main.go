// Command rela is the reference CLI driver for the embeddable scripting
// runtime: it reads a script file, compiles it, and runs it, per §6's
// CLI contract.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/seanpringle/rela"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("rela", flag.ContinueOnError)
	decompile := fs.Bool("d", false, "decompile before running")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: rela [-d] script.rela")
		return 1
	}

	path := fs.Arg(0)
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rela: %v\n", err)
		return 1
	}

	color := isatty.IsTerminal(os.Stderr.Fd())

	m := rela.New(rela.DefaultConfig(), os.Stdout, nil)
	ip, cerr := m.Compile(path, string(src))
	if cerr != nil {
		printErr(cerr, color)
		return 1
	}

	if *decompile {
		m.Decompile(os.Stderr)
	}

	if rerr := m.Run(ip); rerr != nil {
		printErr(rerr, color)
		return 1
	}

	if *decompile {
		m.Decompile(os.Stderr)
	}

	return 0
}

func printErr(err *rela.Error, color bool) {
	if color {
		fmt.Fprintf(os.Stderr, "\033[31mrela: %v\033[0m\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "rela: %v\n", err)
}
