// cmd/tova/main.go
package main

import (
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"

	"tova/internal/driver"
	"tova/internal/repl"
)

type options struct {
	compile    bool
	interpret  bool
	outputPath string
	driver     driver.Options
	fromStdin  bool
	invalid    bool
}

func usage() {
	fmt.Print(
		"Usage:\n" +
			"\ttova <mode> [<options> ...] <filepath>\n" +
			"\n" +
			"Filepath:\n" +
			"\tif <filepath> is \"-\", then stdin is used and a REPL session is started\n" +
			"\n" +
			"Options:\n" +
			"\t-V          verbose output. use multiple times to increase verbosity\n" +
			"\t-o <path>   output file path. if no path is provided, stdout is used\n" +
			"\t-b <name>   backend to be used. one of: walk, lir\n" +
			"\n" +
			"Modes:\n" +
			"\t-c          compile\n" +
			"\t-i          interpret\n")
}

func parseArgs(args []string) options {
	var opts options
	opts.driver.Backend = driver.BackendWalk

	i := 0
	for ; i < len(args); i++ {
		arg := args[i]
		if len(arg) < 2 || arg[0] != '-' || arg == "-" {
			break
		}
		switch arg {
		case "-V":
			opts.driver.Verbosity++
		case "-c":
			opts.compile = true
		case "-i":
			opts.interpret = true
		case "-o":
			if i+1 >= len(args) {
				opts.invalid = true
				return opts
			}
			i++
			opts.outputPath = args[i]
		case "-b":
			if i+1 >= len(args) {
				opts.invalid = true
				return opts
			}
			i++
			backend, err := driver.ParseBackend(args[i])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				opts.invalid = true
				return opts
			}
			opts.driver.Backend = backend
		default:
			opts.invalid = true
			return opts
		}
	}

	if i >= len(args) {
		opts.invalid = true
		return opts
	}
	opts.driver.File = args[i]
	if opts.driver.File == "-" {
		opts.fromStdin = true
	}
	if !opts.compile && !opts.interpret {
		opts.invalid = true
	}
	return opts
}

func interpret(opts options) int {
	if opts.fromStdin {
		return repl.Start(opts.driver)
	}

	source, err := os.ReadFile(opts.driver.File)
	if err != nil {
		fmt.Fprintln(os.Stderr, pkgerrors.Wrap(err, "couldn't read source file"))
		return 1
	}

	if err := driver.Run(string(source), opts.driver, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func compile(opts options) int {
	if opts.driver.Backend != driver.BackendLIR {
		fmt.Fprintln(os.Stderr, "can't compile with backend")
		return 1
	}

	var source []byte
	var err error
	if opts.fromStdin {
		source, err = io.ReadAll(os.Stdin)
	} else {
		source, err = os.ReadFile(opts.driver.File)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, pkgerrors.Wrap(err, "couldn't read source file"))
		return 1
	}

	chunk, err := driver.Compile(string(source), opts.driver)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := driver.WriteChunk(chunk, opts.outputPath, opts.driver); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func main() {
	opts := parseArgs(os.Args[1:])
	if opts.invalid {
		usage()
		os.Exit(1)
	}

	if opts.compile {
		os.Exit(compile(opts))
	}
	os.Exit(interpret(opts))
}
