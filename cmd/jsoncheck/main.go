// Command jsoncheck validates JSON and JSONC documents against JSON Schema,
// either in batch from the command line or live in an editor over LSP.
//
// Usage:
//
//	jsoncheck check [flags] [path ...]
//	jsoncheck lsp [flags]
//	jsoncheck config print|schema
//	jsoncheck cache dir|list|clear
//
// Exit codes for check:
//
//	0  All checked files are valid
//	1  One or more files are invalid
//	2  A tool error occurred (unreadable file, broken config, unusable schema)
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Version information, injected at build time.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries a process exit status out of a command without printing
// anything further.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// run executes the CLI and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 2
}
