// internal/driver/driver.go
package driver

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	pkgerrors "github.com/pkg/errors"

	"tova/internal/ast"
	"tova/internal/compiler"
	"tova/internal/lexer"
	"tova/internal/lir"
	"tova/internal/parser"
	"tova/internal/strpool"
	"tova/internal/typecheck"
	"tova/internal/vm"
	"tova/internal/walk"
)

// Backend selects how a checked program is executed or lowered.
type Backend int

const (
	BackendWalk Backend = iota
	BackendLIR
)

func ParseBackend(name string) (Backend, error) {
	switch name {
	case "walk":
		return BackendWalk, nil
	case "lir":
		return BackendLIR, nil
	}
	return 0, fmt.Errorf("unknown backend: %s", name)
}

// Options carries the flags the CLI collected.
type Options struct {
	Backend   Backend
	Verbosity int
	File      string
}

var stderrIsTTY = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

// Phase prints a progress note to stderr at verbosity 1 and up.
func Phase(opts Options, name string) {
	if opts.Verbosity < 1 {
		return
	}
	if stderrIsTTY {
		fmt.Fprintf(os.Stderr, "\x1b[33mINFO\x1b[0m: %s...\n", name)
	} else {
		fmt.Fprintf(os.Stderr, "INFO: %s...\n", name)
	}
}

// Frontend runs source through the lexer, the parser and the type checker
// and returns the checked tree with its string pool.
func Frontend(source string, opts Options) (*ast.AST, *strpool.Pool, error) {
	pool := strpool.NewPool()

	Phase(opts, "parsing")
	scanner := lexer.NewScanner(source, opts.File)
	tokens, err := scanner.ScanTokens()
	if err != nil {
		return nil, nil, err
	}
	tree, err := parser.NewParser(tokens, pool, source, opts.File).Parse()
	if err != nil {
		return nil, nil, err
	}

	if opts.Verbosity >= 3 {
		tree.PrintDetailed(os.Stderr, pool)
	} else if opts.Verbosity >= 2 {
		tree.Print(os.Stderr, pool)
		fmt.Fprintln(os.Stderr)
	}

	Phase(opts, "type checking")
	checker := typecheck.NewChecker(tree, pool, source, opts.File)
	if err := checker.Check(); err != nil {
		return nil, nil, err
	}

	return tree, pool, nil
}

// Compile lowers source to a chunk; only the lir backend can compile.
func Compile(source string, opts Options) (*lir.Chunk, error) {
	tree, pool, err := Frontend(source, opts)
	if err != nil {
		return nil, err
	}
	if tree.IsEmpty() {
		return lir.NewChunk(), nil
	}

	Phase(opts, "compiling(lir)")
	return compiler.NewCompiler(tree, pool, source, opts.File).Compile()
}

// Run interprets source with the selected backend, reading from stdin and
// writing to stdout.
func Run(source string, opts Options, stdin io.Reader, stdout io.Writer) error {
	switch opts.Backend {
	case BackendWalk:
		tree, pool, err := Frontend(source, opts)
		if err != nil {
			return err
		}
		Phase(opts, "interpreting(walk)")
		interp := walk.NewInterpreter(tree, pool, walk.Builtins(stdin, stdout), source, opts.File)
		_, err = interp.Eval()
		return err

	case BackendLIR:
		chunk, err := Compile(source, opts)
		if err != nil {
			return err
		}
		if opts.Verbosity >= 2 {
			chunk.Print(os.Stderr)
			fmt.Fprintln(os.Stderr)
		}
		Phase(opts, "interpreting(lir)")
		machine := vm.NewVM(stdin, stdout)
		return machine.Run(chunk)
	}
	return fmt.Errorf("backend can't be used for interpreting")
}

// WriteChunk saves a compiled chunk in its textual form. An empty path
// means stdout.
func WriteChunk(chunk *lir.Chunk, path string, opts Options) error {
	out := io.Writer(os.Stdout)
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return pkgerrors.Wrap(err, "couldn't open output file")
		}
		defer f.Close()
		out = f
	}
	Phase(opts, "saving output")
	chunk.Print(out)
	return nil
}
