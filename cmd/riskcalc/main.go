// riskcalc evaluates risk-based inspection formulas: damage factors,
// consequence of failure and the 5x5 risk matrix.
//
// Usage:
//
//	riskcalc formulas [--type=<type>]
//	riskcalc describe <variant>
//	riskcalc calc --variant=<variant> --input name=value ... [--profile=<code>] [--json]
//	riskcalc matrix [--pof=<p> --cof=<c> --basis=Financial|Area]
//	riskcalc demo
//	riskcalc serve [--port=<port>]
//	riskcalc mcp
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// errReported marks a failure whose details were already written to the
// output, so Run only sets the exit code.
var errReported = errors.New("reported")

// Run is the entrypoint for testing. It returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}
